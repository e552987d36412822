package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	httpctx "github.com/ndrama/panel-server/internal/api/http/context"
	"github.com/ndrama/panel-server/internal/api/http/handler"
	"github.com/ndrama/panel-server/internal/api/http/middleware"
	"github.com/ndrama/panel-server/internal/credential"
	"github.com/ndrama/panel-server/internal/metrics"
	"github.com/ndrama/panel-server/internal/model"
	"github.com/ndrama/panel-server/internal/repository/memory"
	"github.com/ndrama/panel-server/internal/service"
	"github.com/ndrama/panel-server/internal/testutil"
	"github.com/ndrama/panel-server/internal/token"
)

type testServer struct {
	*httptest.Server
	users *service.Users
	store *memory.UserRepository
}

func newTestServer(t *testing.T, burst int, opts ...func(*Deps)) *testServer {
	t.Helper()

	log := testutil.MakeNoopLogger()
	codec, err := token.NewJWT(token.Config{Secret: "router-secret"})
	require.NoError(t, err)

	store := memory.NewUserRepository()
	hasher := credential.NewBcrypt(bcrypt.MinCost)
	tokens := service.NewTokenService(codec, time.Minute, time.Hour, log)
	users := service.NewUsers(store, hasher, log)

	reg := prometheus.NewRegistry()
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: rate.Limit(0.5), Burst: burst}, log)
	t.Cleanup(limiter.Stop)

	deps := Deps{
		AuthService:    service.NewAuth(store, hasher, tokens, log),
		UserService:    users,
		Guard:          service.NewGuard(store, tokens, log),
		ContextManager: httpctx.NewManager(),
		Metrics:        metrics.NewCollector(reg),
		MetricsHandler: metrics.Handler(reg),
		RateLimiter:    limiter,
		AuthConfig:     handler.AuthConfig{FrontendURL: "http://frontend.test"},
		AllowedOrigin:  "http://frontend.test",
		Logger:         log,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv := httptest.NewServer(New(deps).Register())
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, users: users, store: store}
}

func (s *testServer) do(t *testing.T, method, path, bearer, body string) (int, string) {
	t.Helper()
	return s.doWithHeaders(t, method, path, bearer, body, nil)
}

func (s *testServer) doWithHeaders(t *testing.T, method, path, bearer, body string, headers map[string]string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func tokensFrom(t *testing.T, body string) handler.TokenResponse {
	t.Helper()

	var pair handler.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return pair
}

func TestRouter_AuthFlow(t *testing.T) {
	s := newTestServer(t, 100)

	status, body := s.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"alice@example.com","password":"pw12345","name":"Alice"}`)
	require.Equal(t, http.StatusCreated, status, body)
	registered := tokensFrom(t, body)

	status, body = s.do(t, http.MethodGet, "/api/auth/me", registered.AccessToken, "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"email":"alice@example.com"`)
	assert.Contains(t, body, `"role":"editor"`)

	status, _ = s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"alice@example.com","password":"wrongpw"}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"alice@example.com","password":"pw12345"}`)
	require.Equal(t, http.StatusOK, status, body)
	loggedIn := tokensFrom(t, body)

	// refresh token is not an access token
	status, _ = s.do(t, http.MethodGet, "/api/auth/me", loggedIn.RefreshToken, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	// access token is not a refresh token
	status, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", `{"refresh_token":"`+loggedIn.AccessToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = s.do(t, http.MethodPost, "/api/auth/refresh", "", `{"refresh_token":"`+loggedIn.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, status, body)
	tokensFrom(t, body)

	status, _ = s.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"alice@example.com","password":"x","name":"Dup"}`)
	assert.Equal(t, http.StatusConflict, status)
}

func TestRouter_AdminRoutes(t *testing.T) {
	s := newTestServer(t, 100)
	ctx := context.Background()

	_, err := s.users.Invite(ctx, service.InviteParams{Email: "admin@example.com", Name: "Admin", Password: "adminpw", Role: model.RoleAdmin})
	require.NoError(t, err)

	status, body := s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"admin@example.com","password":"adminpw"}`)
	require.Equal(t, http.StatusOK, status, body)
	admin := tokensFrom(t, body)

	status, body = s.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"ed@example.com","password":"edpw","name":"Ed"}`)
	require.Equal(t, http.StatusCreated, status, body)
	editor := tokensFrom(t, body)

	status, _ = s.do(t, http.MethodGet, "/api/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/users", editor.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodGet, "/api/users", admin.AccessToken, "")
	require.Equal(t, http.StatusOK, status, body)
	var list []handler.UserResponse
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 2)

	ed, err := s.store.GetByEmail(ctx, "ed@example.com")
	require.NoError(t, err)

	status, _ = s.do(t, http.MethodGet, "/api/users/"+ed.ID.String(), editor.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodGet, "/api/users/"+ed.ID.String(), admin.AccessToken, "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"email":"ed@example.com"`)

	status, body = s.do(t, http.MethodPatch, "/api/users/"+ed.ID.String()+"/role", admin.AccessToken, `{"role":"admin"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"role":"admin"`)

	status, body = s.do(t, http.MethodPatch, "/api/users/"+ed.ID.String()+"/active", admin.AccessToken, `{"is_active":false}`)
	require.Equal(t, http.StatusOK, status, body)

	// the disabled editor is locked out everywhere
	status, _ = s.do(t, http.MethodGet, "/api/auth/me", editor.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", `{"refresh_token":"`+editor.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ed@example.com","password":"edpw"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodPost, "/api/users/invite", admin.AccessToken, `{"email":"inv@example.com","name":"Inv","password":"pw"}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Contains(t, body, `"role":"editor"`)
}

func TestRouter_HealthMetricsAndNotFound(t *testing.T) {
	s := newTestServer(t, 100)

	status, body := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	status, _ = s.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodGet, "/api/auth/google", "", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `panel_http_requests_total{method="GET",route="/health",status_code="200"} 1`)
}

func TestRouter_RateLimitsAuthEndpoints(t *testing.T) {
	s := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		status, _ := s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"x@example.com","password":"pw"}`)
		assert.Equal(t, http.StatusUnauthorized, status)
	}

	status, _ := s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"x@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusTooManyRequests, status)

	// non-auth routes are not throttled
	status, _ = s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestRouter_RateLimitIgnoresForwardingHeaders(t *testing.T) {
	s := newTestServer(t, 2)

	limited := 0
	for i := 0; i < 10; i++ {
		headers := map[string]string{
			"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i+1),
			"X-Real-IP":       fmt.Sprintf("10.0.1.%d", i+1),
		}
		status, _ := s.doWithHeaders(t, http.MethodPost, "/api/auth/login", "", `{"email":"x@example.com","password":"pw"}`, headers)
		if status == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.Equal(t, 8, limited)
}

func TestRouter_RateLimitTrustsProxyWhenEnabled(t *testing.T) {
	s := newTestServer(t, 1, func(d *Deps) { d.TrustProxyHeaders = true })

	login := func(forwardedFor string) int {
		status, _ := s.doWithHeaders(t, http.MethodPost, "/api/auth/login", "", `{"email":"x@example.com","password":"pw"}`,
			map[string]string{"X-Forwarded-For": forwardedFor})
		return status
	}

	assert.Equal(t, http.StatusUnauthorized, login("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, login("10.0.0.1"))
	assert.Equal(t, http.StatusUnauthorized, login("10.0.0.2"))
}
