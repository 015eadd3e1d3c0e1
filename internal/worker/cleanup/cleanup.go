// Package cleanup はパスワードリセット要求の自動削除ジョブを提供する。
// 使用済みまたは期限切れで、作成から保持期間（デフォルト7日）を超過した
// リセット要求を定期的に削除する。未使用かつ有効期限内の要求は削除しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/mailadmin/internal/metrics"
)

// DefaultRetention はリセット要求のデフォルト保持期間。
const DefaultRetention = 7 * 24 * time.Hour

// StaleResetDeleter は保持期間を過ぎたリセット要求を削除するインターフェース。
// repository.PasswordResetRepository が満たす。
type StaleResetDeleter interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したリセット要求の自動削除ジョブ。
// 冪等な削除処理を保証し、何度実行しても結果は変わらない。
type CleanupJob struct {
	repo      StaleResetDeleter
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	now       func() time.Time
	Retention time.Duration // リセット要求の保持期間
}

// Option はCleanupJobの生成オプション。
type Option func(*CleanupJob)

// WithMetrics は削除件数を記録するメトリクスコレクタを設定する。
func WithMetrics(c metrics.MetricsCollector) Option {
	return func(j *CleanupJob) { j.metrics = c }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(j *CleanupJob) { j.now = now }
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionが0以下の場合はDefaultRetentionを使う。
func NewCleanupJob(repo StaleResetDeleter, logger *slog.Logger, retention time.Duration, opts ...Option) *CleanupJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	j := &CleanupJob{
		repo:      repo,
		logger:    logger,
		metrics:   metrics.NopCollector{},
		now:       time.Now,
		Retention: retention,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run は保持期間を超過したリセット要求を1回削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	before := j.now().Add(-j.Retention)

	deletedCount, err := j.repo.DeleteStale(ctx, before)
	if err != nil {
		j.logger.Error("リセット要求クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("リセット要求クリーンアップの実行に失敗: %w", err)
	}

	j.metrics.RecordResetsCleaned(deletedCount)

	duration := time.Since(start)
	j.logger.Info("リセット要求クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以降intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。個々の実行失敗はログに残して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Warn("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
