package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/mailadmin/internal/auth"
	"github.com/hitoshi/mailadmin/internal/middleware"
	"github.com/hitoshi/mailadmin/internal/model"
)

// --- モック定義 ---

type mockAuthenticator struct {
	users map[string]*model.User // token -> user
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, model.NewNoTokenError()
	}
	if token == "expired" {
		return nil, model.NewTokenExpiredError()
	}
	if u, ok := m.users[token]; ok {
		return u, nil
	}
	return nil, model.NewInvalidTokenError()
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

func newTestRouter(t *testing.T, limiter *middleware.RateLimiter, health HealthChecker) http.Handler {
	t.Helper()
	return NewRouter(&RouterDeps{
		Authenticator: &mockAuthenticator{users: map[string]*model.User{
			"admin-token": {ID: "admin-1", Name: "Ann", Email: "ann@x.com", Role: model.RoleAdmin},
			"user-token":  {ID: "user-2", Name: "Bob", Email: "bob@x.com", Role: model.RoleUser},
		}},
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       limiter,
		HealthChecker:     health,
		AuthService: &mockAuthService{
			loginFn: func(ctx context.Context, email, password string) (*auth.Session, error) {
				return nil, model.NewInvalidCredentialsError()
			},
		},
	})
}

// --- テスト ---

func TestRouter_PublicRoutes(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/auth/registration-status", http.StatusOK},
		{http.MethodPost, "/api/auth/logout", http.StatusOK},
		{http.MethodPost, "/api/auth/refresh-token", http.StatusUnauthorized},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body=%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		code   string
	}{
		{"me without token", "/api/auth/me", "", http.StatusUnauthorized, model.ErrCodeNoToken},
		{"me with expired token", "/api/auth/me", "expired", http.StatusUnauthorized, model.ErrCodeTokenExpired},
		{"me with garbage", "/api/auth/me", "garbage", http.StatusUnauthorized, model.ErrCodeInvalidToken},
		{"me as user", "/api/auth/me", "user-token", http.StatusOK, ""},
		{"admin ping as admin", "/api/admin/ping", "admin-token", http.StatusOK, ""},
		{"admin ping as user", "/api/admin/ping", "user-token", http.StatusForbidden, model.ErrCodeForbidden},
		{"admin ping without token", "/api/admin/ping", "", http.StatusUnauthorized, model.ErrCodeNoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.code != "" {
				if env := decodeEnvelope(t, w); env.Code != tt.code {
					t.Errorf("code = %q, want %q", env.Code, tt.code)
				}
			}
		})
	}
}

func TestRouter_CookieAuthentication(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: "admin-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRouter_RateLimitsAuthWrites(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		AuthRate:        1.0 / 60.0,
		AuthBurst:       2,
		CleanupInterval: time.Minute,
	})
	defer limiter.Stop()
	router := newTestRouter(t, limiter, nil)

	post := func(path string) int {
		req := jsonRequest(http.MethodPost, path, `{"email":"ann@x.com","password":"wrong"}`)
		req.RemoteAddr = "203.0.113.9:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if got := post("/api/auth/login"); got != http.StatusUnauthorized {
		t.Fatalf("1st login = %d, want 401", got)
	}
	if got := post("/api/auth/login"); got != http.StatusUnauthorized {
		t.Fatalf("2nd login = %d, want 401", got)
	}
	if got := post("/api/auth/verify-otp"); got != http.StatusTooManyRequests {
		t.Errorf("3rd write = %d, want 429", got)
	}

	// 読み取り系は制限対象外
	req := httptest.NewRequest(http.MethodGet, "/api/auth/registration-status", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("registration-status = %d, want 200", w.Code)
	}
}

func TestRouter_HealthReportsDatabaseFailure(t *testing.T) {
	router := newTestRouter(t, nil, &mockHealthChecker{err: errors.New("connection refused")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestRouter_AppliesSecurityAndCORSHeaders(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}
