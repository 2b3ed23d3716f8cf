// Package cleanup は期限切れログイントークンの自動削除ジョブを提供する。
// 有効期限から保持期間（デフォルト24時間)を超過したトークンと関連する
// login_requestsを定期バッチで削除する。login_requestsはCASCADE削除で
// 自動的に処理される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bridgelogin/internal/metrics"
	"github.com/hitoshi/bridgelogin/internal/repository"
)

// DefaultRetention はデフォルトのトークン保持期間。
// 期限切れ後もこの期間は残し、ユーザーへのexpired表示を可能にする。
const DefaultRetention = 24 * time.Hour

// CleanupJob は期限切れトークンの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	tokenRepo repository.TokenRepository
	collector metrics.MetricsCollector
	logger    *slog.Logger
	Retention time.Duration // 期限切れ後の保持期間
}

// NewCleanupJob は新しいCleanupJobを生成する。
// collectorはnilでもよい（メトリクスなしで動作する）。
func NewCleanupJob(tokenRepo repository.TokenRepository, collector metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		tokenRepo: tokenRepo,
		collector: collector,
		logger:    logger,
		Retention: DefaultRetention,
	}
}

// Run は保持期間を超過した期限切れトークンを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.tokenRepo.DeleteExpired(ctx, j.Retention)
	if err != nil {
		j.logger.Error("トークンクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("トークンクリーンアップの実行に失敗: %w", err)
	}

	if j.collector != nil {
		j.collector.RecordTokensDeleted(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("トークンクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// RunPeriodic は指定間隔でRunを繰り返し実行する。
// コンテキストのキャンセルで停止する。個々の実行の失敗はログに残し、
// 次回の実行は継続する。
func (j *CleanupJob) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("定期クリーンアップに失敗しました",
					slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			return
		}
	}
}
