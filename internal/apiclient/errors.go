package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// CodeTokenExpired はアクセストークン期限切れを示すサーバーのエラーコード。
const CodeTokenExpired = "TOKEN_EXPIRED"

// ErrSessionExpired はトークンのリフレッシュに失敗し、セッションが破棄されたことを示す。
// 呼び出し元は再ログインを促す必要がある。
var ErrSessionExpired = errors.New("apiclient: セッションが失効しました")

// APIError はサーバーが返したエラーエンベロープを表す。
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("apiclient: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("apiclient: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// IsTokenExpired はerrがアクセストークン期限切れ(401 TOKEN_EXPIRED)を示すかを返す。
func IsTokenExpired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized && apiErr.Code == CodeTokenExpired
}

// ErrorCode はerrに含まれるAPIErrorのコードを返す。APIErrorでなければ空文字を返す。
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
