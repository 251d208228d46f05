package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/internal/ratelimit"
	"github.com/atlasbank/swift-portal/internal/services"
	xhttp "github.com/atlasbank/swift-portal/pkg/http"
	"github.com/atlasbank/swift-portal/pkg/prom"
)

// Machine-readable error codes carried in every error envelope.
const (
	CodeInvalidInput = "invalid_input"
	CodeConflict     = "conflict"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeRateLimited  = "rate_limited"
	CodeInvalidState = "invalid_state"
	CodeNotFound     = "not_found"
	CodeServerError  = "server_error"
)

const identityKey = "identity"
const sessionIDKey = "session_id"

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// validationErrs are input failures that map to a 400 invalid_input.
var validationErrs = []error{
	model.ErrUsernameInvalid,
	model.ErrFullNameInvalid,
	model.ErrIDNumberInvalid,
	model.ErrAccountNumberInvalid,
	model.ErrPasswordTooWeak,
	model.ErrEmployeeNumberInvalid,
	model.ErrAmountInvalid,
	model.ErrCurrencyInvalid,
	model.ErrSwiftCodeInvalid,
	model.ErrPayeeInvalid,
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, code, msg string) {
	writeJSON(ctx, status, errorEnvelope{Error: errorBody{Code: code, Message: msg}})
}

// writeServiceError maps service and validation sentinels onto the
// error envelope. Unknown errors become an opaque 500 so internals
// never leak into a response body.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(ctx, xhttp.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, services.ErrLockedOut):
		writeError(ctx, xhttp.StatusTooManyRequests, CodeRateLimited, err.Error())
	case errors.Is(err, services.ErrNoSession):
		writeError(ctx, xhttp.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, services.ErrDuplicateIdentity):
		writeError(ctx, xhttp.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(ctx, xhttp.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidState):
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidState, err.Error())
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		writeError(ctx, xhttp.StatusTooManyRequests, CodeRateLimited, err.Error())
	default:
		for _, v := range validationErrs {
			if errors.Is(err, v) {
				writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, err.Error())
				return
			}
		}
		writeError(ctx, xhttp.StatusInternalServerError, CodeServerError, "internal error")
	}
}

// identityFrom returns the principal resolved by RequireAuth, or nil.
func identityFrom(ctx *xhttp.RequestCtx) *model.Identity {
	if v, ok := ctx.UserValue(identityKey).(*model.Identity); ok {
		return v
	}
	return nil
}

func sessionIDFrom(ctx *xhttp.RequestCtx) string {
	if v, ok := ctx.UserValue(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

func clientIP(ctx *xhttp.RequestCtx) string {
	return ctx.RemoteIP().String()
}

// rateLimited enforces a per-IP budget on the wrapped handler.
func rateLimited(limiter *ratelimit.Limiter, next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		if err := limiter.Allow(clientIP(ctx)); err != nil {
			if errors.Is(err, ratelimit.ErrLimitExceeded) {
				prom.IncRateLimited()
				writeError(ctx, xhttp.StatusTooManyRequests, CodeRateLimited, "too many requests")
				return
			}
			writeError(ctx, xhttp.StatusInternalServerError, CodeServerError, "internal error")
			return
		}
		next(ctx)
	}
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// parsePaymentFilter reads the shared list query parameters.
func parsePaymentFilter(ctx *xhttp.RequestCtx) model.PaymentFilter {
	var f model.PaymentFilter

	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.PaymentStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	return f
}
