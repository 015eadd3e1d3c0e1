package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/mailadmin/internal/model"
)

const resetColumns = `id, user_id, otp_hash, expires_at, used, created_at`

// PostgresPasswordResetRepo はPostgreSQLを使用したリセット要求リポジトリ。
type PostgresPasswordResetRepo struct {
	db *sql.DB
}

// NewPostgresPasswordResetRepo はPostgresPasswordResetRepoを生成する。
func NewPostgresPasswordResetRepo(db *sql.DB) *PostgresPasswordResetRepo {
	return &PostgresPasswordResetRepo{db: db}
}

// Replace は既存の未使用リセット要求を無効化し、新しいリセット要求を作成する。
// 同一ユーザーへの同時要求はユーザー行のロックで直列化し、後から確定した要求を有効とする。
func (r *PostgresPasswordResetRepo) Replace(ctx context.Context, reset *model.PasswordReset) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, reset.UserID,
		); err != nil {
			return fmt.Errorf("failed to lock user for password reset: %w", err)
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE password_resets SET used = true WHERE user_id = $1 AND used = false`,
			reset.UserID,
		)
		if err != nil {
			return fmt.Errorf("failed to invalidate previous resets: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO password_resets (id, user_id, otp_hash, expires_at, used, created_at)
			 VALUES ($1, $2, $3, $4, false, $5)`,
			reset.ID, reset.UserID, reset.OTPHash, reset.ExpiresAt, reset.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert password reset: %w", err)
		}
		return nil
	})
}

// FindLatestActive は指定時刻で有効な最新のリセット要求を取得する。
func (r *PostgresPasswordResetRepo) FindLatestActive(ctx context.Context, userID string, now time.Time) (*model.PasswordReset, error) {
	reset, err := scanReset(r.db.QueryRowContext(ctx,
		`SELECT `+resetColumns+` FROM password_resets
		 WHERE user_id = $1 AND used = false AND expires_at > $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find active password reset: %w", err)
	}
	return reset, nil
}

// FindByID は指定IDのリセット要求を取得する。
func (r *PostgresPasswordResetRepo) FindByID(ctx context.Context, id string) (*model.PasswordReset, error) {
	reset, err := scanReset(r.db.QueryRowContext(ctx,
		`SELECT `+resetColumns+` FROM password_resets WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find password reset: %w", err)
	}
	return reset, nil
}

// Consume はリセット要求の使用済み化とパスワード更新を同一トランザクションで行う。
// 条件付きUPDATEの影響行数で未使用状態を判定するため、同一要求の同時消費は1件のみ成功する。
func (r *PostgresPasswordResetRepo) Consume(ctx context.Context, resetID, userID, passwordHash string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE password_resets SET used = true
			 WHERE id = $1 AND user_id = $2 AND used = false`,
			resetID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark password reset used: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrResetAlreadyUsed
		}

		result, err = tx.ExecContext(ctx,
			`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
			passwordHash, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// DeleteStale は保持期間を過ぎた使用済み・期限切れのリセット要求を削除する。
func (r *PostgresPasswordResetRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM password_resets
		 WHERE created_at < $1 AND (used = true OR expires_at < $1)`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale password resets: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// scanReset は1行をPasswordResetにスキャンする。行がない場合はnilを返す。
func scanReset(row *sql.Row) (*model.PasswordReset, error) {
	reset := &model.PasswordReset{}
	err := row.Scan(&reset.ID, &reset.UserID, &reset.OTPHash, &reset.ExpiresAt, &reset.Used, &reset.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reset, nil
}
