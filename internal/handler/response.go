package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/mailadmin/internal/middleware"
	"github.com/hitoshi/mailadmin/internal/model"
)

// successResponse は成功レスポンスの統一フォーマット。
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// userResponse はクライアントへ返すユーザー情報。パスワードハッシュは含めない。
type userResponse struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func identityToUserResponse(id *middleware.Identity) userResponse {
	return userResponse{ID: id.ID, Name: id.Name, Email: id.Email, Role: id.Role}
}

// writeSuccess は成功レスポンスを書き込む。
func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(successResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// decodeJSON はリクエストボディをJSONとしてデコードする。
// 失敗した場合はバリデーションエラーを書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, model.NewValidationError("Invalid request body."))
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーをレスポンスに変換する。
// APIError以外のエラーは詳細をログに残し、汎用の500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}
