// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleAdmin は管理者ロール。最初の登録ユーザーに付与される。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザーロール。
	RoleUser Role = "user"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User はサービス利用ユーザー（認証主体）を表す。
// PasswordHashが空の場合は未登録（パスワード未設定）であることを示す。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsRegistered はパスワードが設定済みかどうかを返す。
func (u *User) IsRegistered() bool {
	return u.PasswordHash != ""
}

// PasswordReset はOTPによるパスワードリセット要求1件を表す。
// OTPはハッシュ値のみを保持し、平文は保存しない。
// Usedはfalse→trueへの一方向にのみ遷移する。
type PasswordReset struct {
	ID        string
	UserID    string
	OTPHash   string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// IsUsable は指定時刻においてこのリセット要求が利用可能かどうかを返す。
func (p *PasswordReset) IsUsable(now time.Time) bool {
	return !p.Used && now.Before(p.ExpiresAt)
}

// NormalizeEmail はメールアドレスを比較用に正規化する（前後空白除去・小文字化）。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
