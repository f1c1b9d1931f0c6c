// Package cleanup は期限切れ投稿の自動削除ジョブを提供する。
// 終了日から保持期間を超過した投稿を両方の種別から定期的に削除する。
// 保持期間が0の場合は何も削除しない。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/clubhub/internal/listing"
	"github.com/hitoshi/clubhub/internal/metrics"
	"github.com/hitoshi/clubhub/internal/model"
)

// Purger は終了日がcutoffより前の投稿を削除するインターフェース。
// repository.PostRepositoryが満たす。
type Purger interface {
	DeleteExpiredBefore(ctx context.Context, kind model.Kind, cutoff civil.Date) (int64, error)
}

// CleanupJob は保持期間を超過した投稿の自動削除ジョブ。
// 冪等な削除処理であり、何度実行しても結果は変わらない。
type CleanupJob struct {
	repo          Purger
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	loc           *time.Location
	now           func() time.Time
	RetentionDays int // 終了日からの保持日数。0は無効
}

// NewCleanupJob は新しいCleanupJobを生成する。
// 今日の日付はlocのタイムゾーンで判定する。
func NewCleanupJob(repo Purger, logger *slog.Logger, retentionDays int, loc *time.Location, collector metrics.MetricsCollector) *CleanupJob {
	if loc == nil {
		loc = time.Local
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &CleanupJob{
		repo:          repo,
		logger:        logger,
		metrics:       collector,
		loc:           loc,
		now:           time.Now,
		RetentionDays: retentionDays,
	}
}

// Cutoff は削除対象の境界日を返す。終了日がこの日より前の投稿が削除される。
func (j *CleanupJob) Cutoff() civil.Date {
	return listing.Today(j.now(), j.loc).AddDays(-j.RetentionDays)
}

// Run は保持期間を超過した投稿を全種別から削除する。
// ある種別で失敗しても残りの種別は処理し、失敗はまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	if j.RetentionDays <= 0 {
		j.logger.Info("投稿クリーンアップは無効です",
			slog.Int("retention_days", j.RetentionDays),
		)
		return nil
	}

	start := time.Now()
	cutoff := j.Cutoff()

	var errs []error
	var total int64
	for _, kind := range model.Kinds() {
		deleted, err := j.repo.DeleteExpiredBefore(ctx, kind, cutoff)
		if err != nil {
			j.logger.Error("投稿クリーンアップの実行に失敗しました",
				slog.String("kind", string(kind)),
				slog.String("cutoff", cutoff.String()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%sのクリーンアップに失敗: %w", kind.Collection(), err))
			continue
		}
		total += deleted
	}

	j.metrics.RecordPostsPurged(total)

	duration := time.Since(start)
	j.logger.Info("投稿クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", total),
		slog.Int("retention_days", j.RetentionDays),
		slog.String("cutoff", cutoff.String()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return errors.Join(errs...)
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
