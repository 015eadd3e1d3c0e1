package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/mailadmin/internal/model"
)

// registrationLockKey は初回登録を直列化するアドバイザリロックのキー。
const registrationLockKey int64 = 0x6d61696c61646d // "mailadm"

const userColumns = `id, name, email, COALESCE(password_hash, ''), role, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail は正規化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// CountRegistered はパスワード設定済みユーザーの件数を返す。
func (r *PostgresUserRepo) CountRegistered(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE password_hash IS NOT NULL`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registered users: %w", err)
	}
	return count, nil
}

// RegisterFirst はアドバイザリロックで初回登録を直列化し、
// 登録済みユーザーが0件であることを確認したうえでユーザーを作成する。
func (r *PostgresUserRepo) RegisterFirst(ctx context.Context, user *model.User) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, registrationLockKey); err != nil {
			return fmt.Errorf("failed to acquire registration lock: %w", err)
		}

		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE password_hash IS NOT NULL`,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count registered users: %w", err)
		}
		if count > 0 {
			return ErrRegistrationClosed
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// scanUser は1行をUserにスキャンする。行がない場合はnilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var role string
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	return user, nil
}
