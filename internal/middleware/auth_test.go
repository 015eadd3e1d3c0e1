package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/mailadmin/internal/model"
)

// --- モック定義 ---

// mockAuthenticator はAuthenticatorのモック実装。
type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, token)
	}
	return nil, model.NewNoTokenError()
}

// tokenEchoAuthenticator は受け取ったトークンを記録し、空なら NO_TOKEN を返す。
func tokenEchoAuthenticator(got *string) *mockAuthenticator {
	return &mockAuthenticator{
		authenticateFn: func(ctx context.Context, token string) (*model.User, error) {
			*got = token
			if token == "" {
				return nil, model.NewNoTokenError()
			}
			return &model.User{ID: "user-1", Name: "Ann", Email: "ann@x.io", Role: model.RoleAdmin}, nil
		},
	}
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- テスト ---

func TestAuthMiddleware_BearerToken_InjectsIdentity(t *testing.T) {
	var gotToken string
	mw := NewAuthMiddleware(tokenEchoAuthenticator(&gotToken))

	var captured *Identity
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotToken != "header-token" {
		t.Errorf("token = %q, want %q", gotToken, "header-token")
	}
	if captured == nil || captured.ID != "user-1" || captured.Role != model.RoleAdmin {
		t.Errorf("identity = %+v, want user-1/admin", captured)
	}
}

func TestAuthMiddleware_CookieToken_UsedWhenNoHeader(t *testing.T) {
	var gotToken string
	mw := NewAuthMiddleware(tokenEchoAuthenticator(&gotToken))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotToken != "cookie-token" {
		t.Errorf("token = %q, want %q", gotToken, "cookie-token")
	}
}

func TestAuthMiddleware_HeaderTakesPrecedenceOverCookie(t *testing.T) {
	var gotToken string
	mw := NewAuthMiddleware(tokenEchoAuthenticator(&gotToken))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "bearer header-token")
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if gotToken != "header-token" {
		t.Errorf("token = %q, want %q", gotToken, "header-token")
	}
}

func TestAuthMiddleware_NonBearerScheme_FallsBackToCookie(t *testing.T) {
	var gotToken string
	mw := NewAuthMiddleware(tokenEchoAuthenticator(&gotToken))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if gotToken != "" {
		t.Errorf("token = %q, want empty", gotToken)
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeNoToken {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeNoToken)
	}
}

func TestAuthMiddleware_APIErrorsArePassedThrough(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"expired", model.NewTokenExpiredError(), http.StatusUnauthorized, model.ErrCodeTokenExpired},
		{"invalid", model.NewInvalidTokenError(), http.StatusUnauthorized, model.ErrCodeInvalidToken},
		{"user gone", model.NewUserGoneError(), http.StatusUnauthorized, model.ErrCodeUserGone},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewAuthMiddleware(&mockAuthenticator{
				authenticateFn: func(ctx context.Context, token string) (*model.User, error) {
					return nil, tt.err
				},
			})
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			req.Header.Set("Authorization", "Bearer some-token")
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			body := decodeErrorBody(t, w)
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
			if body.Success {
				t.Error("success should be false")
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		identity *Identity
		status   int
		code     string
	}{
		{"admin allowed", &Identity{ID: "u1", Role: model.RoleAdmin}, http.StatusOK, ""},
		{"user forbidden", &Identity{ID: "u2", Role: model.RoleUser}, http.StatusForbidden, model.ErrCodeForbidden},
		{"no identity", nil, http.StatusUnauthorized, model.ErrCodeNoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(model.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
			if tt.identity != nil {
				req = req.WithContext(ContextWithIdentity(req.Context(), tt.identity))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.code != "" {
				if body := decodeErrorBody(t, w); body.Code != tt.code {
					t.Errorf("code = %q, want %q", body.Code, tt.code)
				}
			}
		})
	}
}

func TestIdentityFromContext_NoValue(t *testing.T) {
	if id, ok := IdentityFromContext(context.Background()); ok || id != nil {
		t.Errorf("IdentityFromContext() = (%v, %v), want (nil, false)", id, ok)
	}
}
