package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/internal/ratelimit"
	"github.com/atlasbank/swift-portal/internal/security"
	xhttp "github.com/atlasbank/swift-portal/pkg/http"
	"github.com/atlasbank/swift-portal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/atlasbank/swift-portal/internal/services"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, *model.Session, error) {
	args := m.Called(ctx, req)
	var user *model.User
	var sess *model.Session
	if args.Get(0) != nil {
		user = args.Get(0).(*model.User)
	}
	if args.Get(1) != nil {
		sess = args.Get(1).(*model.Session)
	}
	return user, sess, args.Error(2)
}

func (m *MockAuthService) Login(ctx context.Context, username, accountNumber, password string) (*model.Session, error) {
	args := m.Called(ctx, username, accountNumber, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockAuthService) EmployeeLogin(ctx context.Context, employeeNumber, password string) (*model.Session, error) {
	args := m.Called(ctx, employeeNumber, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockAuthService) CurrentIdentity(ctx context.Context, sessionID string) (*model.Identity, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Identity), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func newTestLimiter(t *testing.T, max int) *ratelimit.Limiter {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	return ratelimit.NewLimiter(adapter, "ratelimit:auth:", max, time.Minute)
}

func newAuthHandler(t *testing.T, svc AuthService) *AuthHandler {
	t.Helper()
	csrf := security.NewCSRF("portal_csrf", "X-CSRF-Token", false)
	return NewAuthHandler(svc, csrf, newTestLimiter(t, 20), "portal_session", false, time.Hour)
}

func responseCookie(t *testing.T, ctx *xhttp.RequestCtx, name string) *fasthttp.Cookie {
	t.Helper()
	cookie := fasthttp.AcquireCookie()
	t.Cleanup(func() { fasthttp.ReleaseCookie(cookie) })
	cookie.SetKey(name)
	require.True(t, ctx.Response.Header.Cookie(cookie), "expected %s cookie on response", name)
	return cookie
}

func decodeErrorBody(t *testing.T, ctx *xhttp.RequestCtx) errorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
	return env.Error
}

func TestAuthHandler_Register(t *testing.T) {
	t.Run("successful registration opens a session", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		body, _ := json.Marshal(registerRequest{
			Username:      "alice.w",
			FullName:      "Alice Wonders",
			IDNumber:      "9001015009087",
			AccountNumber: "1234567890",
			Password:      "Str0ng!Pass",
		})

		svc.On("Register", mock.Anything, mock.MatchedBy(func(r model.RegisterRequest) bool {
			return r.Username == "alice.w" && r.AccountNumber == "1234567890"
		})).Return(
			&model.User{ID: 42, Username: "alice.w"},
			&model.Session{ID: "sess-1", SubjectID: 42, Role: model.RoleCustomer, Username: "alice.w"},
			nil,
		)

		ctx := setupTestContext("POST", "/api/v1/auth/register", body)
		h.Register(ctx)

		assert.Equal(t, xhttp.StatusCreated, ctx.Response.StatusCode())

		var resp identityResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, int64(42), resp.SubjectID)
		assert.Equal(t, "customer", resp.Role)

		sessCookie := responseCookie(t, ctx, "portal_session")
		assert.Equal(t, "sess-1", string(sessCookie.Value()))
		assert.True(t, sessCookie.HTTPOnly())

		csrfCookie := responseCookie(t, ctx, "portal_csrf")
		assert.NotEmpty(t, csrfCookie.Value())
		assert.False(t, csrfCookie.HTTPOnly())
	})

	t.Run("validation failure maps to invalid_input", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		body, _ := json.Marshal(registerRequest{Username: "x"})
		svc.On("Register", mock.Anything, mock.Anything).
			Return(nil, nil, model.ErrUsernameInvalid)

		ctx := setupTestContext("POST", "/api/v1/auth/register", body)
		h.Register(ctx)

		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, CodeInvalidInput, decodeErrorBody(t, ctx).Code)
	})

	t.Run("duplicate identity maps to conflict", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		body, _ := json.Marshal(registerRequest{Username: "alice.w"})
		svc.On("Register", mock.Anything, mock.Anything).
			Return(nil, nil, services.ErrDuplicateIdentity)

		ctx := setupTestContext("POST", "/api/v1/auth/register", body)
		h.Register(ctx)

		assert.Equal(t, xhttp.StatusConflict, ctx.Response.StatusCode())
		assert.Equal(t, CodeConflict, decodeErrorBody(t, ctx).Code)
	})

	t.Run("malformed JSON is rejected", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		ctx := setupTestContext("POST", "/api/v1/auth/register", []byte("{not json"))
		h.Register(ctx)

		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	loginBody, _ := json.Marshal(loginRequest{
		Username:      "alice.w",
		AccountNumber: "1234567890",
		Password:      "Str0ng!Pass",
	})

	t.Run("successful login sets fresh cookies", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		svc.On("Login", mock.Anything, "alice.w", "1234567890", "Str0ng!Pass").
			Return(&model.Session{ID: "sess-new", SubjectID: 7, Role: model.RoleCustomer, Username: "alice.w"}, nil)

		ctx := setupTestContext("POST", "/api/v1/auth/login", loginBody)
		h.Login(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		sessCookie := responseCookie(t, ctx, "portal_session")
		assert.Equal(t, "sess-new", string(sessCookie.Value()))
	})

	t.Run("presented session is destroyed before authenticating", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		svc.On("Logout", mock.Anything, "stale-session").Return(nil)
		svc.On("Login", mock.Anything, "alice.w", "1234567890", "Str0ng!Pass").
			Return(&model.Session{ID: "sess-new", SubjectID: 7, Role: model.RoleCustomer}, nil)

		ctx := setupTestContext("POST", "/api/v1/auth/login", loginBody)
		ctx.Request.Header.SetCookie("portal_session", "stale-session")
		h.Login(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		svc.AssertCalled(t, "Logout", mock.Anything, "stale-session")
	})

	t.Run("invalid credentials map to unauthorized", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		svc.On("Login", mock.Anything, "alice.w", "1234567890", "Str0ng!Pass").
			Return(nil, services.ErrInvalidCredentials)

		ctx := setupTestContext("POST", "/api/v1/auth/login", loginBody)
		h.Login(ctx)

		assert.Equal(t, xhttp.StatusUnauthorized, ctx.Response.StatusCode())
		body := decodeErrorBody(t, ctx)
		assert.Equal(t, CodeUnauthorized, body.Code)
		assert.Equal(t, "invalid credentials", body.Message)
	})

	t.Run("lockout maps to rate_limited", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		svc.On("Login", mock.Anything, "alice.w", "1234567890", "Str0ng!Pass").
			Return(nil, services.ErrLockedOut)

		ctx := setupTestContext("POST", "/api/v1/auth/login", loginBody)
		h.Login(ctx)

		assert.Equal(t, xhttp.StatusTooManyRequests, ctx.Response.StatusCode())
		assert.Equal(t, CodeRateLimited, decodeErrorBody(t, ctx).Code)
	})
}

func TestAuthHandler_EmployeeLogin(t *testing.T) {
	svc := new(MockAuthService)
	h := newAuthHandler(t, svc)

	body, _ := json.Marshal(employeeLoginRequest{EmployeeNumber: "EMP1001", Password: "Empl0yee!1"})
	svc.On("EmployeeLogin", mock.Anything, "EMP1001", "Empl0yee!1").
		Return(&model.Session{ID: "sess-emp", SubjectID: 3, Role: model.RoleEmployee, Username: "EMP1001"}, nil)

	ctx := setupTestContext("POST", "/api/v1/auth/employee/login", body)
	h.EmployeeLogin(ctx)

	assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())

	var resp identityResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, "employee", resp.Role)
	assert.Equal(t, "EMP1001", resp.Username)
}

func TestAuthHandler_RequireAuth(t *testing.T) {
	t.Run("missing cookie gets 401 before the service is asked", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		called := false
		handler := h.RequireAuth(func(ctx *xhttp.RequestCtx) { called = true })

		ctx := setupTestContext("GET", "/api/v1/auth/me", nil)
		handler(ctx)

		assert.False(t, called)
		assert.Equal(t, xhttp.StatusUnauthorized, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "CurrentIdentity", mock.Anything, mock.Anything)
	})

	t.Run("expired session gets 401", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		svc.On("CurrentIdentity", mock.Anything, "gone").Return(nil, services.ErrNoSession)

		handler := h.RequireAuth(func(ctx *xhttp.RequestCtx) { t.Fatal("handler must not run") })
		ctx := setupTestContext("GET", "/api/v1/auth/me", nil)
		ctx.Request.Header.SetCookie("portal_session", "gone")
		handler(ctx)

		assert.Equal(t, xhttp.StatusUnauthorized, ctx.Response.StatusCode())
	})

	t.Run("live session reaches the handler with identity set", func(t *testing.T) {
		svc := new(MockAuthService)
		h := newAuthHandler(t, svc)

		svc.On("CurrentIdentity", mock.Anything, "sess-1").
			Return(&model.Identity{SubjectID: 7, Role: model.RoleCustomer, Username: "alice.w"}, nil)

		var seen *model.Identity
		handler := h.RequireAuth(func(ctx *xhttp.RequestCtx) { seen = identityFrom(ctx) })
		ctx := setupTestContext("GET", "/api/v1/auth/me", nil)
		ctx.Request.Header.SetCookie("portal_session", "sess-1")
		handler(ctx)

		require.NotNil(t, seen)
		assert.Equal(t, int64(7), seen.SubjectID)
	})
}

func TestAuthHandler_RequireRole(t *testing.T) {
	svc := new(MockAuthService)
	h := newAuthHandler(t, svc)

	svc.On("CurrentIdentity", mock.Anything, "sess-cust").
		Return(&model.Identity{SubjectID: 7, Role: model.RoleCustomer, Username: "alice.w"}, nil)

	handler := h.RequireRole(model.RoleEmployee, func(ctx *xhttp.RequestCtx) {
		t.Fatal("handler must not run")
	})

	ctx := setupTestContext("GET", "/api/v1/payments/pending", nil)
	ctx.Request.Header.SetCookie("portal_session", "sess-cust")
	handler(ctx)

	assert.Equal(t, xhttp.StatusForbidden, ctx.Response.StatusCode())
	assert.Equal(t, CodeForbidden, decodeErrorBody(t, ctx).Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	svc := new(MockAuthService)
	h := newAuthHandler(t, svc)

	svc.On("CurrentIdentity", mock.Anything, "sess-1").
		Return(&model.Identity{SubjectID: 7, Role: model.RoleCustomer}, nil)
	svc.On("Logout", mock.Anything, "sess-1").Return(nil)

	handler := h.RequireAuth(h.Logout)
	ctx := setupTestContext("POST", "/api/v1/auth/logout", nil)
	ctx.Request.Header.SetCookie("portal_session", "sess-1")
	handler(ctx)

	assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
	svc.AssertCalled(t, "Logout", mock.Anything, "sess-1")

	// The response instructs the browser to drop the cookie.
	cookie := responseCookie(t, ctx, "portal_session")
	assert.Empty(t, cookie.Value())
}

func TestRateLimited_BudgetExhaustion(t *testing.T) {
	limiter := newTestLimiter(t, 2)

	calls := 0
	handler := rateLimited(limiter, func(ctx *xhttp.RequestCtx) {
		calls++
		ctx.Response.SetStatusCode(xhttp.StatusOK)
	})

	for i := 0; i < 2; i++ {
		ctx := setupTestContext("POST", "/api/v1/auth/login", nil)
		handler(ctx)
		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
	}

	ctx := setupTestContext("POST", "/api/v1/auth/login", nil)
	handler(ctx)

	assert.Equal(t, xhttp.StatusTooManyRequests, ctx.Response.StatusCode())
	assert.Equal(t, CodeRateLimited, decodeErrorBody(t, ctx).Code)
	assert.Equal(t, 2, calls)
}
