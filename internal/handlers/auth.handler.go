package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/internal/ratelimit"
	"github.com/atlasbank/swift-portal/internal/security"
	xhttp "github.com/atlasbank/swift-portal/pkg/http"
)

type AuthService interface {
	Register(ctx context.Context, req model.RegisterRequest) (*model.User, *model.Session, error)
	Login(ctx context.Context, username, accountNumber, password string) (*model.Session, error)
	EmployeeLogin(ctx context.Context, employeeNumber, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentIdentity(ctx context.Context, sessionID string) (*model.Identity, error)
}

type AuthHandler struct {
	svc          AuthService
	csrf         *security.CSRF
	limiter      *ratelimit.Limiter
	cookieName   string
	cookieSecure bool
	sessionTTL   time.Duration
}

func NewAuthHandler(svc AuthService, csrf *security.CSRF, limiter *ratelimit.Limiter, cookieName string, cookieSecure bool, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		svc:          svc,
		csrf:         csrf,
		limiter:      limiter,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
		sessionTTL:   sessionTTL,
	}
}

// RegisterAuthRoutes mounts the auth endpoints. The credential
// endpoints share a per-IP budget on top of the per-identity lockout.
func RegisterAuthRoutes(e *router.Group, h *AuthHandler) {
	e.POST("/auth/register", rateLimited(h.limiter, h.Register))
	e.POST("/auth/login", rateLimited(h.limiter, h.Login))
	e.POST("/auth/employee/login", rateLimited(h.limiter, h.EmployeeLogin))
	e.POST("/auth/logout", h.RequireAuth(h.Logout))
	e.GET("/auth/me", h.RequireAuth(h.Me))
}

type registerRequest struct {
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	IDNumber      string `json:"id_number"`
	AccountNumber string `json:"account_number"`
	Password      string `json:"password"`
}

type loginRequest struct {
	Username      string `json:"username"`
	AccountNumber string `json:"account_number"`
	Password      string `json:"password"`
}

type employeeLoginRequest struct {
	EmployeeNumber string `json:"employee_number"`
	Password       string `json:"password"`
}

type identityResponse struct {
	SubjectID int64  `json:"subject_id"`
	Role      string `json:"role"`
	Username  string `json:"username"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *AuthHandler) Register(ctx *xhttp.RequestCtx) {
	var req registerRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}

	user, sess, err := h.svc.Register(ctx, model.RegisterRequest{
		Username:      req.Username,
		FullName:      req.FullName,
		IDNumber:      req.IDNumber,
		AccountNumber: req.AccountNumber,
		Password:      req.Password,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	h.issueSession(ctx, sess)
	writeJSON(ctx, xhttp.StatusCreated, identityResponse{
		SubjectID: user.ID,
		Role:      string(model.RoleCustomer),
		Username:  user.Username,
	})
}

func (h *AuthHandler) Login(ctx *xhttp.RequestCtx) {
	var req loginRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}

	// Any session presented before authentication is discarded so a
	// pre-set cookie can never ride through a login.
	if old := string(ctx.Request.Header.Cookie(h.cookieName)); old != "" {
		_ = h.svc.Logout(ctx, old)
	}

	sess, err := h.svc.Login(ctx, req.Username, req.AccountNumber, req.Password)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	h.issueSession(ctx, sess)
	writeJSON(ctx, xhttp.StatusOK, identityResponse{
		SubjectID: sess.SubjectID,
		Role:      string(sess.Role),
		Username:  sess.Username,
	})
}

func (h *AuthHandler) EmployeeLogin(ctx *xhttp.RequestCtx) {
	var req employeeLoginRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}

	if old := string(ctx.Request.Header.Cookie(h.cookieName)); old != "" {
		_ = h.svc.Logout(ctx, old)
	}

	sess, err := h.svc.EmployeeLogin(ctx, req.EmployeeNumber, req.Password)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	h.issueSession(ctx, sess)
	writeJSON(ctx, xhttp.StatusOK, identityResponse{
		SubjectID: sess.SubjectID,
		Role:      string(sess.Role),
		Username:  sess.Username,
	})
}

func (h *AuthHandler) Logout(ctx *xhttp.RequestCtx) {
	if err := h.svc.Logout(ctx, sessionIDFrom(ctx)); err != nil {
		writeServiceError(ctx, err)
		return
	}
	h.clearSessionCookie(ctx)
	writeJSON(ctx, xhttp.StatusOK, map[string]string{"status": "logged out"})
}

func (h *AuthHandler) Me(ctx *xhttp.RequestCtx) {
	ident := identityFrom(ctx)
	if ident == nil {
		writeError(ctx, xhttp.StatusUnauthorized, CodeUnauthorized, "no valid session")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, identityResponse{
		SubjectID: ident.SubjectID,
		Role:      string(ident.Role),
		Username:  ident.Username,
	})
}

/* ------------------------------- Middleware --------------------------------- */

// RequireAuth resolves the session cookie to a principal and stores it
// on the request context. Requests without a live session get a 401.
func (h *AuthHandler) RequireAuth(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		sessionID := string(ctx.Request.Header.Cookie(h.cookieName))
		if sessionID == "" {
			writeError(ctx, xhttp.StatusUnauthorized, CodeUnauthorized, "no valid session")
			return
		}

		ident, err := h.svc.CurrentIdentity(ctx, sessionID)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}

		ctx.SetUserValue(identityKey, ident)
		ctx.SetUserValue(sessionIDKey, sessionID)
		next(ctx)
	}
}

// RequireRole layers a role check on top of RequireAuth.
func (h *AuthHandler) RequireRole(role model.Role, next xhttp.RequestHandler) xhttp.RequestHandler {
	return h.RequireAuth(func(ctx *xhttp.RequestCtx) {
		ident := identityFrom(ctx)
		if ident == nil || ident.Role != role {
			writeError(ctx, xhttp.StatusForbidden, CodeForbidden, "insufficient role")
			return
		}
		next(ctx)
	})
}

/* --------------------------------- Cookies ----------------------------------- */

// issueSession attaches the opaque session cookie plus a fresh CSRF
// token for the new session.
func (h *AuthHandler) issueSession(ctx *xhttp.RequestCtx, sess *model.Session) {
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey(h.cookieName)
	cookie.SetValue(sess.ID)
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	cookie.SetSameSite(fasthttp.CookieSameSiteStrictMode)
	cookie.SetSecure(h.cookieSecure)
	cookie.SetMaxAge(int(h.sessionTTL.Seconds()))
	ctx.Response.Header.SetCookie(cookie)

	if token, err := h.csrf.NewToken(); err == nil {
		h.csrf.SetCookie(ctx, token)
	}
}

func (h *AuthHandler) clearSessionCookie(ctx *xhttp.RequestCtx) {
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey(h.cookieName)
	cookie.SetValue("")
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	cookie.SetSameSite(fasthttp.CookieSameSiteStrictMode)
	cookie.SetSecure(h.cookieSecure)
	cookie.SetExpire(fasthttp.CookieExpireDelete)
	ctx.Response.Header.SetCookie(cookie)
}
