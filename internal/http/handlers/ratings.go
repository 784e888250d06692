package handlers

import (
	"github.com/valyala/fasthttp"

	dbpkg "geosafe/internal/db"
	"geosafe/internal/ratings"
)

type ratingRequest struct {
	Location location `json:"location"`
	dbpkg.RatingScores
	Comment string `json:"comment"`
}

func SubmitRating(svc *ratings.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		voterID, ok := MustVoter(ctx)
		if !ok {
			return
		}
		var payload ratingRequest
		if !decodeBody(ctx, &payload) {
			return
		}
		lat, lng, ok := payload.Location.valid(ctx)
		if !ok {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		r, err := svc.Submit(c, lat, lng, voterID, payload.RatingScores, payload.Comment)
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, r)
	}
}

func RatingsForLocation(svc *ratings.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		lat, lng, ok := parseCenter(ctx)
		if !ok {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		summary, err := svc.ForLocation(c, lat, lng)
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		jsonResponse(ctx, summary)
	}
}
