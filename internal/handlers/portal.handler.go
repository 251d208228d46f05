package handlers

import (
	"github.com/fasthttp/router"

	"github.com/atlasbank/swift-portal/internal/security"
	xhttp "github.com/atlasbank/swift-portal/pkg/http"
)

type HealthService interface {
	Get() error
}

// PortalHandler serves the unauthenticated portal endpoints: health
// and CSRF token issuance for clients that have not logged in yet.
type PortalHandler struct {
	health HealthService
	csrf   *security.CSRF
}

func NewPortalHandler(health HealthService, csrf *security.CSRF) *PortalHandler {
	return &PortalHandler{
		health: health,
		csrf:   csrf,
	}
}

func RegisterPortalRoutes(e *router.Group, h *PortalHandler) {
	e.GET("/health", h.GetHealth)
	e.GET("/csrf-token", h.GetCSRFToken)
}

func (h *PortalHandler) GetHealth(ctx *xhttp.RequestCtx) {
	if h.health != nil {
		if err := h.health.Get(); err != nil {
			writeError(ctx, xhttp.StatusServiceUnavailable, CodeServerError, "unhealthy")
			return
		}
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]string{"status": "ok"})
}

// GetCSRFToken mints a token into both the cookie and the body so the
// frontend can send it back in the request header.
func (h *PortalHandler) GetCSRFToken(ctx *xhttp.RequestCtx) {
	token, err := h.csrf.NewToken()
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, CodeServerError, "internal error")
		return
	}
	h.csrf.SetCookie(ctx, token)
	writeJSON(ctx, xhttp.StatusOK, map[string]string{"token": token})
}
