package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/mailadmin/internal/metrics"
	"github.com/hitoshi/mailadmin/internal/middleware"
	"github.com/hitoshi/mailadmin/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter // nilの場合はレート制限なし
	Logger            *slog.Logger            // nilの場合はslog.Default()
	Metrics           metrics.MetricsCollector

	// ヘルスチェック
	HealthChecker HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → SecurityHeaders → CORS → Logging → Metrics
//
// 認証が必要なルートには AuthMiddleware（必要に応じて RequireRole）を追加し、
// 未認証で呼ばれる書き込み系の認証エンドポイントにはIP単位のレート制限をかける。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.NewHTTPMiddleware(collector))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, collector)
	healthHandler := NewHealthHandler(deps.HealthChecker)
	adminHandler := &AdminHandler{}

	requireAuth := middleware.NewAuthMiddleware(deps.Authenticator)
	limit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		limit = deps.RateLimiter.AuthMiddleware()
	}

	r.Get("/health", healthHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// --- 認証不要のルート ---
			r.Get("/registration-status", authHandler.RegistrationStatus)
			r.Post("/refresh-token", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/verify-otp", authHandler.VerifyOTP)
				r.Post("/reset-password", authHandler.ResetPassword)
			})

			// --- 認証が必要なルート ---
			r.With(requireAuth).Get("/me", authHandler.Me)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Get("/ping", adminHandler.Ping)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, &model.APIError{
			Status:   http.StatusNotFound,
			Code:     "NOT_FOUND",
			Message:  "Route not found.",
			Category: "system",
		})
	})

	return r
}
