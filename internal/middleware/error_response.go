package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/mailadmin/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// クライアントはCodeで分岐し、Errorは表示用のメッセージとして扱う。
type ErrorResponseBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// ステータスコードはAPIErrorが保持する値を使用する。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success: false,
		Error:   apiErr.Message,
		Code:    apiErr.Code,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, model.NewInternalError())
}
