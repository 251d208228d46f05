package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	xhttp "github.com/atlasbank/swift-portal/pkg/http"
	"github.com/valyala/fasthttp"
)

const tokenBytes = 32

// CSRF implements the double-submit cookie pattern: a token is minted
// into a cookie and must be echoed back in a request header on every
// state-changing request. Cookie/header mismatch or absence rejects the
// request before any handler runs.
type CSRF struct {
	CookieName   string
	HeaderName   string
	SecureCookie bool
}

func NewCSRF(cookieName, headerName string, secure bool) *CSRF {
	return &CSRF{
		CookieName:   cookieName,
		HeaderName:   headerName,
		SecureCookie: secure,
	}
}

// NewToken mints a fresh random token.
func (c *CSRF) NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// SetCookie attaches the token cookie to the response. The cookie is
// deliberately readable by the frontend so it can echo the token in the
// request header.
func (c *CSRF) SetCookie(ctx *xhttp.RequestCtx, token string) {
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey(c.CookieName)
	cookie.SetValue(token)
	cookie.SetPath("/")
	cookie.SetSameSite(fasthttp.CookieSameSiteStrictMode)
	cookie.SetSecure(c.SecureCookie)
	ctx.Response.Header.SetCookie(cookie)
}

// Middleware rejects state-changing requests whose header token does
// not match the cookie token. Safe methods pass through untouched.
func (c *CSRF) Middleware(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		if !isStateChanging(ctx) {
			next(ctx)
			return
		}

		cookieToken := ctx.Request.Header.Cookie(c.CookieName)
		headerToken := ctx.Request.Header.Peek(c.HeaderName)

		if len(cookieToken) == 0 || len(headerToken) == 0 ||
			subtle.ConstantTimeCompare(cookieToken, headerToken) != 1 {
			ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
			ctx.Response.SetStatusCode(xhttp.StatusForbidden)
			ctx.Response.SetBodyString(`{"error":{"code":"forbidden","message":"missing or invalid csrf token"}}`)
			return
		}

		next(ctx)
	}
}

func isStateChanging(ctx *xhttp.RequestCtx) bool {
	switch string(ctx.Method()) {
	case fasthttp.MethodGet, fasthttp.MethodHead, fasthttp.MethodOptions:
		return false
	}
	return true
}
