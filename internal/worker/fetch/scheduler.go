// Package fetch はコミュニティフィードからショーケース作品を取り込む
// バックグラウンド処理を提供する。スケジューラ、フェッチャー、
// リトライ/バックオフ戦略を含む。
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/repository"
)

// SourceFetcher は取り込み元フィード1件の取得処理のインターフェース。
type SourceFetcher interface {
	Fetch(ctx context.Context, src *model.ImportSource) error
}

// Scheduler は取り込みのスケジューリングと並列制御を行う。
type Scheduler struct {
	sourceRepo     repository.ImportSourceRepository
	fetcher        SourceFetcher
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合は4を使用する。
func NewScheduler(
	sourceRepo repository.ImportSourceRepository,
	fetcher SourceFetcher,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		sourceRepo:     sourceRepo,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はinterval間隔でRunOnceを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで戻らない。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("取り込みサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は取得対象のフィードを1回取得し、並列で取り込む。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	sources, err := s.sourceRepo.ListDueForFetch(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		s.logger.Info("取り込み対象のフィードはありません")
		return nil
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		sem <- struct{}{}
		go func(src *model.ImportSource) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, src); err != nil {
				s.logger.Error("フィードの取り込みに失敗しました",
					slog.String("feed_url", src.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(src)
	}
	wg.Wait()

	s.logger.Info("取り込みサイクルが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
