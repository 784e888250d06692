package handlers

import (
	"github.com/charmbracelet/log"
	"github.com/valyala/fasthttp"

	"geosafe/internal/authority"
	httpctx "geosafe/internal/http/ctx"
	"geosafe/internal/jobs"
)

// RunJob triggers a scheduled job immediately and waits for it.
func RunJob(runner *jobs.Runner) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		name := pathParam(ctx, "name")
		admin, _ := httpctx.AdminFromCtx(ctx)
		log.Info("manual job run", "job", name, "admin", admin)

		c, cancel := requestContext()
		defer cancel()
		if err := runner.RunNow(c, name); err != nil {
			errorResponse(ctx, err)
			return
		}
		jsonResponse(ctx, map[string]any{"job": name, "status": "ok"})
	}
}

type authorityRequest struct {
	Geohash string `json:"geohash"`
	Days    int    `json:"days"`
}

func GenerateAuthorityReport(g *authority.Generator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload authorityRequest
		if !decodeBody(ctx, &payload) {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		out, err := g.Generate(c, payload.Geohash, payload.Days)
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, out)
	}
}
