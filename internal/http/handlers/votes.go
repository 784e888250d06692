package handlers

import (
	"strconv"

	"github.com/valyala/fasthttp"

	"geosafe/internal/credibility"
	dbpkg "geosafe/internal/db"
)

type voteRequest struct {
	VoteType string `json:"voteType"`
	Comment  string `json:"comment"`
}

// CastVote records or changes the caller's vote and returns the report with
// its recomputed credibility.
func CastVote(agg *credibility.Aggregator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		voterID, ok := MustVoter(ctx)
		if !ok {
			return
		}
		var payload voteRequest
		if !decodeBody(ctx, &payload) {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		r, err := agg.Vote(c, pathParam(ctx, "id"), voterID, dbpkg.VoteType(payload.VoteType), payload.Comment)
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		jsonResponse(ctx, r)
	}
}

func RemoveVote(agg *credibility.Aggregator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		voterID, ok := MustVoter(ctx)
		if !ok {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		r, err := agg.RemoveVote(c, pathParam(ctx, "id"), voterID)
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		jsonResponse(ctx, r)
	}
}

func MyVote(agg *credibility.Aggregator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		voterID, ok := MustVoter(ctx)
		if !ok {
			return
		}
		c, cancel := requestContext()
		defer cancel()
		v, err := agg.VoteOf(c, pathParam(ctx, "id"), voterID)
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		jsonResponse(ctx, v)
	}
}

func Comments(agg *credibility.Aggregator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		limit := credibility.DefaultCommentLimit
		if s := string(ctx.QueryArgs().Peek("limit")); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				if n > 100 {
					n = 100
				}
				limit = n
			}
		}
		c, cancel := requestContext()
		defer cancel()
		rows, err := agg.Comments(c, pathParam(ctx, "id"), limit)
		if err != nil {
			errorResponse(ctx, err)
			return
		}
		jsonResponse(ctx, map[string]any{"comments": rows})
	}
}
