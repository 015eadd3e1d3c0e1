// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/mailadmin/internal/model"
)

// リポジトリが返すドメイン上のエラー
var (
	// ErrEmailTaken はメールアドレスが既に使用されていることを示す。
	ErrEmailTaken = errors.New("email already taken")
	// ErrRegistrationClosed は登録済みユーザーが既に存在し、新規登録を受け付けないことを示す。
	ErrRegistrationClosed = errors.New("registration closed")
	// ErrResetAlreadyUsed はリセット要求が既に使用済み（または存在しない）ことを示す。
	ErrResetAlreadyUsed = errors.New("password reset already used")
	// ErrUserNotFound は対象ユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CountRegistered はパスワード設定済みユーザーの件数を返す。
	CountRegistered(ctx context.Context) (int, error)

	// RegisterFirst は登録済みユーザーが0件の場合に限りユーザーを作成する。
	// 件数確認と作成は同一トランザクション内で直列化して行う。
	// 登録済みユーザーが存在する場合はErrRegistrationClosed、
	// メールアドレス重複時はErrEmailTakenを返す。
	RegisterFirst(ctx context.Context, user *model.User) error
}

// PasswordResetRepository はパスワードリセット要求の永続化インターフェース。
type PasswordResetRepository interface {
	// Replace は同一ユーザーの未使用リセット要求をすべて使用済みにし、
	// 新しいリセット要求を作成する。両操作は同一トランザクションで行う。
	Replace(ctx context.Context, reset *model.PasswordReset) error

	// FindLatestActive は指定時刻で有効な最新のリセット要求を取得する。
	// 見つからない場合はnilを返す。
	FindLatestActive(ctx context.Context, userID string, now time.Time) (*model.PasswordReset, error)

	// FindByID は指定IDのリセット要求を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PasswordReset, error)

	// Consume はリセット要求を使用済みにし、ユーザーのパスワードハッシュを更新する。
	// 両操作は同一トランザクションで行い、未使用状態からの遷移に失敗した場合は
	// ErrResetAlreadyUsedを返して何も変更しない。
	Consume(ctx context.Context, resetID, userID, passwordHash string) error

	// DeleteStale は指定時刻より前に作成され、使用済みまたは期限切れとなった
	// リセット要求を削除し、削除件数を返す。
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
