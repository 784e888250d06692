package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/valyala/fasthttp"

	dbpkg "geosafe/internal/db"
	"geosafe/internal/geohash"
	httpctx "geosafe/internal/http/ctx"
	"geosafe/internal/ingest"
	"geosafe/internal/jobs"
)

// requestTimeout bounds the service calls made for one request.
const requestTimeout = 20 * time.Second

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.Info("request",
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"duration", time.Since(start),
			"ip", ctx.RemoteIP().String(),
		)
	}
}

// MustVoter returns the voter id set by the VoterIdentity middleware, or
// sends 401 and returns ("", false).
func MustVoter(ctx *fasthttp.RequestCtx) (string, bool) {
	voterID, ok := httpctx.VoterIDFromCtx(ctx)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString("unauthorized")
		return "", false
	}
	return voterID, true
}

func jsonResponse(ctx *fasthttp.RequestCtx, data any) {
	ctx.SetContentType("application/json")
	body, err := json.Marshal(data)
	if err != nil {
		errResponse(ctx, fasthttp.StatusInternalServerError, "failed to encode response")
		return
	}
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}

// errorResponse maps a service error onto a status code.
func errorResponse(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, dbpkg.ErrInvalidInput),
		errors.Is(err, geohash.ErrInvalidCoordinate),
		errors.Is(err, geohash.ErrInvalidPrecision):
		errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrRejected):
		errResponse(ctx, fasthttp.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, dbpkg.ErrNotFound), errors.Is(err, jobs.ErrUnknownJob):
		errResponse(ctx, fasthttp.StatusNotFound, "not found")
	case errors.Is(err, jobs.ErrJobRunning):
		errResponse(ctx, fasthttp.StatusConflict, err.Error())
	case errors.Is(err, dbpkg.ErrStoreUnavailable):
		log.Error("store unavailable", "path", string(ctx.Path()), "err", err)
		errResponse(ctx, fasthttp.StatusServiceUnavailable, "store unavailable")
	default:
		log.Error("request failed", "path", string(ctx.Path()), "err", err)
		errResponse(ctx, fasthttp.StatusInternalServerError, "internal error")
	}
}

func decodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// parseCenter reads the lat and lng query arguments.
func parseCenter(ctx *fasthttp.RequestCtx) (lat, lng float64, ok bool) {
	lat, err1 := strconv.ParseFloat(string(ctx.QueryArgs().Peek("lat")), 64)
	lng, err2 := strconv.ParseFloat(string(ctx.QueryArgs().Peek("lng")), 64)
	if err1 != nil || err2 != nil {
		errResponse(ctx, fasthttp.StatusBadRequest, "lat and lng query parameters are required")
		return 0, 0, false
	}
	return lat, lng, true
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	s, _ := ctx.UserValue(name).(string)
	return s
}

type location struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (l location) valid(ctx *fasthttp.RequestCtx) (float64, float64, bool) {
	if l.Lat == nil || l.Lng == nil {
		errResponse(ctx, fasthttp.StatusBadRequest, "location.lat and location.lng are required")
		return 0, 0, false
	}
	return *l.Lat, *l.Lng, true
}
