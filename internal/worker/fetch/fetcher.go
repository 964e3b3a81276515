package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/repository"
)

// URLGuard はSSRF検証のインターフェース。security.FeedGuardが実装する。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// ImportRecorder は取り込み結果のメトリクスを記録する。
type ImportRecorder interface {
	RecordImportSuccess(feedURL string)
	RecordImportFailure(feedURL string, reason string)
	RecordBuildsUpserted(count int)
}

// Fetcher は取り込み元フィードを取得し、記事をショーケース作品として保存する。
// ETag/Last-Modifiedによる条件付きGETとSSRF検証を行う。
type Fetcher struct {
	sourceRepo  repository.ImportSourceRepository
	buildRepo   repository.BuildRepository
	guard       URLGuard
	sanitizer   TextSanitizer
	recorder    ImportRecorder
	logger      *slog.Logger
	interval    time.Duration
	timeout     time.Duration
	maxBodySize int64
}

// FetcherConfig はFetcherの取得設定。
type FetcherConfig struct {
	// Interval は成功時の次回取得までの間隔。
	Interval    time.Duration
	Timeout     time.Duration
	MaxBodySize int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(
	sourceRepo repository.ImportSourceRepository,
	buildRepo repository.BuildRepository,
	guard URLGuard,
	sanitizer TextSanitizer,
	recorder ImportRecorder,
	logger *slog.Logger,
	config FetcherConfig,
) *Fetcher {
	return &Fetcher{
		sourceRepo:  sourceRepo,
		buildRepo:   buildRepo,
		guard:       guard,
		sanitizer:   sanitizer,
		recorder:    recorder,
		logger:      logger,
		interval:    config.Interval,
		timeout:     config.Timeout,
		maxBodySize: config.MaxBodySize,
	}
}

// Fetch はフィードを取得し、結果に応じて取得状態を更新する。
func (f *Fetcher) Fetch(ctx context.Context, src *model.ImportSource) error {
	start := time.Now()

	if err := f.guard.ValidateURL(src.FeedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyStop(src, fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		f.recorder.RecordImportFailure(src.FeedURL, "ssrf")
		f.saveState(ctx, src)
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "PawBox/1.0 Showcase Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := f.guard.NewSafeClient(f.timeout).Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(src, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		f.recorder.RecordImportFailure(src.FeedURL, "network")
		f.saveState(ctx, src)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultOK:
	case FetchResultNotModified:
		f.logger.Info("フィードは未変更です（304）",
			slog.String("feed_url", src.FeedURL),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		ApplySuccess(src, f.interval)
		f.recorder.RecordImportSuccess(src.FeedURL)
		return f.sourceRepo.UpdateFetchState(ctx, src)
	case FetchResultStop:
		f.logger.Warn("フィードの取得を停止します",
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplyStop(src, fmt.Sprintf("HTTPステータス %d により取得を停止しました", resp.StatusCode))
		f.recorder.RecordImportFailure(src.FeedURL, "http_stop")
		return f.sourceRepo.UpdateFetchState(ctx, src)
	default:
		f.logger.Warn("フィードの取得にバックオフを適用します",
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", src.ConsecutiveErrors+1),
		)
		ApplyBackoff(src, fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode))
		f.recorder.RecordImportFailure(src.FeedURL, "http_backoff")
		return f.sourceRepo.UpdateFetchState(ctx, src)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		ApplyBackoff(src, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		f.recorder.RecordImportFailure(src.FeedURL, "read")
		return f.sourceRepo.UpdateFetchState(ctx, src)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		src.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		src.LastModified = lastMod
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyParseFailure(src, err.Error())
		f.recorder.RecordImportFailure(src.FeedURL, "parse")
		f.saveState(ctx, src)
		// パース失敗は回数を記録して継続する
		return nil
	}
	if parsed.Title != "" {
		src.Title = f.sanitizer.PlainText(parsed.Title)
	}

	builds := convertItems(src.FeedURL, parsed.Items, f.sanitizer)
	inserted := 0
	for _, b := range builds {
		created, err := f.buildRepo.Upsert(ctx, b)
		if err != nil {
			f.logger.Error("作品のUPSERTに失敗しました",
				slog.String("feed_url", src.FeedURL),
				slog.String("guid", b.GUID),
				slog.String("error", err.Error()),
			)
			ApplyParseFailure(src, fmt.Sprintf("作品UPSERT失敗: %s", err.Error()))
			f.recorder.RecordImportFailure(src.FeedURL, "upsert")
			f.saveState(ctx, src)
			return nil
		}
		if created {
			inserted++
		}
	}

	ApplySuccess(src, f.interval)
	if err := f.sourceRepo.UpdateFetchState(ctx, src); err != nil {
		f.logger.Error("取得状態の更新に失敗しました",
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		return err
	}

	f.recorder.RecordImportSuccess(src.FeedURL)
	f.recorder.RecordBuildsUpserted(len(builds))
	f.logger.Info("フィードの取り込みが完了しました",
		slog.String("feed_url", src.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("builds_inserted", inserted),
		slog.Int("builds_total", len(builds)),
		slog.Int("items_total", len(parsed.Items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// saveState は取得状態を保存し、失敗してもログに留める。
func (f *Fetcher) saveState(ctx context.Context, src *model.ImportSource) {
	if err := f.sourceRepo.UpdateFetchState(ctx, src); err != nil {
		f.logger.Error("取得状態の更新に失敗しました",
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
	}
}
