package handlers

import (
	"strings"
	"unicode/utf8"

	"github.com/valyala/fasthttp"

	"geosafe/internal/classify"
	dbpkg "geosafe/internal/db"
)

type textRequest struct {
	Text string `json:"text"`
}

func readText(ctx *fasthttp.RequestCtx) (string, bool) {
	var payload textRequest
	if !decodeBody(ctx, &payload) {
		return "", false
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" || utf8.RuneCountInString(text) > dbpkg.MaxOriginalTextLen {
		errResponse(ctx, fasthttp.StatusBadRequest, "text must be 1 to 500 characters")
		return "", false
	}
	return text, true
}

func Classify(p *classify.Pipeline) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		text, ok := readText(ctx)
		if !ok {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		jsonResponse(ctx, p.Classify(c, text))
	}
}

func Moderate(p *classify.Pipeline) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		text, ok := readText(ctx)
		if !ok {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		jsonResponse(ctx, p.Moderate(c, text))
	}
}
