package middleware

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"

	"github.com/charmbracelet/log"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	"geosafe/internal/config"
	httpctx "geosafe/internal/http/ctx"
)

// AdminAuth returns middleware that checks HTTP Basic credentials against
// the configured operator. AdminPassword may be plain text or a bcrypt hash.
func AdminAuth(cfg *config.Config) (func(fasthttp.RequestHandler) fasthttp.RequestHandler, error) {
	hash := []byte(cfg.AdminPassword)
	if _, err := bcrypt.Cost(hash); err != nil {
		hash, err = bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
	}
	user := []byte(cfg.AdminUser)

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			username, password, ok := basicAuth(ctx)
			if !ok ||
				subtle.ConstantTimeCompare(username, user) != 1 ||
				bcrypt.CompareHashAndPassword(hash, password) != nil {
				if ok {
					log.Warn("admin auth failed", "user", string(username), "ip", ctx.RemoteIP().String())
				}
				ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="geosafe"`)
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("unauthorized")
				return
			}

			httpctx.SetAdmin(ctx, string(username))
			next(ctx)
		}
	}, nil
}

func basicAuth(ctx *fasthttp.RequestCtx) (username, password []byte, ok bool) {
	auth := ctx.Request.Header.Peek("Authorization")
	const prefix = "Basic "
	if len(auth) < len(prefix) || !bytes.EqualFold(auth[:len(prefix)], []byte(prefix)) {
		return nil, nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(string(auth[len(prefix):]))
	if err != nil {
		return nil, nil, false
	}
	username, password, ok = bytes.Cut(decoded, []byte(":"))
	return username, password, ok
}
