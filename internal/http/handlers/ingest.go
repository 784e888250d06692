package handlers

import (
	"github.com/valyala/fasthttp"

	dbpkg "geosafe/internal/db"
	"geosafe/internal/ingest"
	"geosafe/internal/reports"
)

type submitRequest struct {
	Text       string   `json:"text"`
	ReportType string   `json:"reportType"`
	Location   location `json:"location"`
}

// SubmitReport moderates, classifies and stores a report.
func SubmitReport(svc *ingest.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload submitRequest
		if !decodeBody(ctx, &payload) {
			return
		}
		lat, lng, ok := payload.Location.valid(ctx)
		if !ok {
			return
		}

		c, cancel := requestContext()
		defer cancel()
		r, err := svc.Submit(c, ingest.Submission{
			Text:       payload.Text,
			ReportType: dbpkg.ReportType(payload.ReportType),
			Lat:        lat,
			Lng:        lng,
		})
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, r)
	}
}

func ReportsNear(rm *reports.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		lat, lng, ok := parseCenter(ctx)
		if !ok {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		rows, err := rm.FetchNear(c, lat, lng)
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		if rows == nil {
			rows = []dbpkg.Report{}
		}
		jsonResponse(ctx, map[string]any{"reports": rows})
	}
}

func GetReport(rm *reports.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		c, cancel := requestContext()
		defer cancel()
		r, err := rm.Get(c, pathParam(ctx, "id"))
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		jsonResponse(ctx, r)
	}
}
