package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/mailadmin/internal/middleware"
	"github.com/hitoshi/mailadmin/internal/model"
)

// HealthChecker はデータベースの疎通確認を行うインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェック用のハンドラー。
type HealthHandler struct {
	checker HealthChecker
	timeout time.Duration
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker, timeout: 2 * time.Second}
}

// Health はプロセスの生存とDB接続を確認する。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		if err := h.checker.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, &model.APIError{
				Status:   http.StatusServiceUnavailable,
				Code:     model.ErrCodeInternal,
				Message:  "Database unavailable.",
				Category: "system",
			})
			return
		}
	}
	writeSuccess(w, http.StatusOK, "", map[string]string{"status": "ok"})
}

// AdminHandler は管理者ロールが必要なエンドポイントのハンドラー。
type AdminHandler struct{}

// Ping は管理者ロールの確認用エンドポイント。
// GET /api/admin/ping
func (h *AdminHandler) Ping(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	data := map[string]string{"status": "ok"}
	if id != nil {
		data["role"] = string(id.Role)
	}
	writeSuccess(w, http.StatusOK, "Admin access granted.", data)
}
