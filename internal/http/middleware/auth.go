package middleware

import (
	"strings"

	"github.com/valyala/fasthttp"

	dbpkg "geosafe/internal/db"
	httpctx "geosafe/internal/http/ctx"
)

// VoterHeader carries the caller's opaque anonymous identity.
const VoterHeader = "X-Voter-ID"

// VoterIdentity requires a well-formed voter id header and stores it on the
// context.
func VoterIdentity(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		voterID := strings.TrimSpace(string(ctx.Request.Header.Peek(VoterHeader)))
		if voterID == "" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString("missing " + VoterHeader + " header")
			return
		}
		if err := dbpkg.ValidateVoterID(voterID); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString(err.Error())
			return
		}

		httpctx.SetVoterID(ctx, voterID)
		next(ctx)
	}
}
