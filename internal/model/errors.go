// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// HTTPステータスと機械可読なコードを持ち、クライアントはCodeで分岐する。
type APIError struct {
	Status   int    // HTTPステータスコード
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNoToken              = "NO_TOKEN"
	ErrCodeInvalidToken         = "INVALID_TOKEN"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeUserGone             = "USER_GONE"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeRegistrationClosed   = "REGISTRATION_CLOSED"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeOTPExpiredOrInvalid  = "OTP_EXPIRED_OR_INVALID"
	ErrCodeOTPInvalid           = "OTP_INVALID"
	ErrCodeResetLinkExpired     = "RESET_LINK_EXPIRED"
	ErrCodeResetLinkAlreadyUsed = "RESET_LINK_ALREADY_USED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewValidationError は入力値不正エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Status:   http.StatusBadRequest,
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
	}
}

// NewNoTokenError はアクセストークン未指定エラーを生成する。
func NewNoTokenError() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     ErrCodeNoToken,
		Message:  "Not authorized. No token provided.",
		Category: "auth",
	}
}

// NewInvalidTokenError は不正なアクセストークンのエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     ErrCodeInvalidToken,
		Message:  "Not authorized. Invalid token.",
		Category: "auth",
	}
}

// NewTokenExpiredError はアクセストークン期限切れエラーを生成する。
// クライアントはこのコードを受け取った場合のみリフレッシュを試みる。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     ErrCodeTokenExpired,
		Message:  "Token expired.",
		Category: "auth",
	}
}

// NewUserGoneError はトークンの主体ユーザーが既に存在しない場合のエラーを生成する。
func NewUserGoneError() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     ErrCodeUserGone,
		Message:  "User no longer exists.",
		Category: "auth",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
	}
}

// NewInvalidRefreshTokenError はリフレッシュトークン不正・期限切れエラーを生成する。
func NewInvalidRefreshTokenError() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     ErrCodeInvalidRefreshToken,
		Message:  "Invalid or expired refresh token.",
		Category: "auth",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Status:   http.StatusForbidden,
		Code:     ErrCodeForbidden,
		Message:  "You do not have permission to perform this action.",
		Category: "auth",
	}
}

// NewRegistrationClosedError は登録受付終了エラーを生成する。
func NewRegistrationClosedError() *APIError {
	return &APIError{
		Status:   http.StatusForbidden,
		Code:     ErrCodeRegistrationClosed,
		Message:  "Registration is closed. An account already exists.",
		Category: "auth",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Status:   http.StatusConflict,
		Code:     ErrCodeEmailTaken,
		Message:  "An account with this email already exists.",
		Category: "validation",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Status:   http.StatusNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
	}
}

// NewOTPExpiredOrInvalidError は有効なリセット要求が存在しない場合のエラーを生成する。
func NewOTPExpiredOrInvalidError() *APIError {
	return &APIError{
		Status:   http.StatusBadRequest,
		Code:     ErrCodeOTPExpiredOrInvalid,
		Message:  "OTP has expired or is invalid. Please request a new one.",
		Category: "auth",
	}
}

// NewOTPInvalidError はOTP不一致エラーを生成する。
// ユーザー不在の場合も同じエラーを返し、メールアドレスの存在を推測させない。
func NewOTPInvalidError() *APIError {
	return &APIError{
		Status:   http.StatusBadRequest,
		Code:     ErrCodeOTPInvalid,
		Message:  "Invalid OTP or email.",
		Category: "auth",
	}
}

// NewResetLinkExpiredError はリセットトークンの検証失敗エラーを生成する。
func NewResetLinkExpiredError() *APIError {
	return &APIError{
		Status:   http.StatusBadRequest,
		Code:     ErrCodeResetLinkExpired,
		Message:  "Reset link has expired. Please request a new OTP.",
		Category: "auth",
	}
}

// NewResetLinkAlreadyUsedError は使用済みリセット要求のエラーを生成する。
func NewResetLinkAlreadyUsedError() *APIError {
	return &APIError{
		Status:   http.StatusBadRequest,
		Code:     ErrCodeResetLinkAlreadyUsed,
		Message:  "This reset link has already been used.",
		Category: "auth",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Status:   http.StatusTooManyRequests,
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録すること。
func NewInternalError() *APIError {
	return &APIError{
		Status:   http.StatusInternalServerError,
		Code:     ErrCodeInternal,
		Message:  "Internal server error.",
		Category: "system",
	}
}
