package handlers

import (
	"github.com/valyala/fasthttp"

	dbpkg "geosafe/internal/db"
	"geosafe/internal/patterns"
)

func PatternsNear(d *patterns.Detector) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		lat, lng, ok := parseCenter(ctx)
		if !ok {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		rows, err := d.Near(c, lat, lng)
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		if rows == nil {
			rows = []dbpkg.Pattern{}
		}
		jsonResponse(ctx, map[string]any{"patterns": rows})
	}
}
