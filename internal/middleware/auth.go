package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/mailadmin/internal/model"
)

// AccessTokenCookie はアクセストークンを保持するCookie名。
const AccessTokenCookie = "accessToken"

type contextKey string

const identityContextKey contextKey = "identity"

// Identity は認証済みリクエストの主体を表す。
type Identity struct {
	ID    string
	Name  string
	Email string
	Role  model.Role
}

// Authenticator はアクセストークンからユーザーを解決するインターフェース。
// 失敗時は*model.APIErrorを返すことが期待される。
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.User, error)
}

// NewAuthMiddleware はアクセストークンを検証し、Identityをコンテキストに注入するミドルウェアを返す。
// トークンはAuthorization: Bearerヘッダーを優先し、無ければaccessToken Cookieから取得する。
func NewAuthMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticator.Authenticate(r.Context(), accessTokenFromRequest(r))
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteErrorResponse(w, apiErr)
					return
				}
				slog.Error("failed to authenticate request",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			id := &Identity{
				ID:    user.ID,
				Name:  user.Name,
				Email: user.Email,
				Role:  user.Role,
			}
			markLoggedUser(r.Context(), id.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole は指定ロールのいずれかを持つ主体のみを通過させるミドルウェアを返す。
// NewAuthMiddlewareの後に配置すること。
func RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, model.NewNoTokenError())
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteErrorResponse(w, model.NewForbiddenError())
		})
	}
}

// IdentityFromContext はコンテキストから認証済みの主体を取得する。
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

// ContextWithIdentity は主体をコンテキストに設定する。テストでの利用を想定。
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// accessTokenFromRequest はリクエストからアクセストークンを取り出す。
func accessTokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}
