package ctx

import (
	"github.com/valyala/fasthttp"
)

const (
	VoterIDKey = "voterID"
	AdminKey   = "admin"
)

func SetVoterID(ctx *fasthttp.RequestCtx, voterID string) {
	ctx.SetUserValue(VoterIDKey, voterID)
}

func VoterIDFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(VoterIDKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func SetAdmin(ctx *fasthttp.RequestCtx, username string) {
	ctx.SetUserValue(AdminKey, username)
}

func AdminFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(AdminKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
