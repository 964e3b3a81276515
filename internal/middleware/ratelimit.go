package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // リクエスト全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // リクエスト全般のバーストサイズ
	BlueprintRate   rate.Limit    // 解析・図面生成のレート（req/sec）。10/60
	BlueprintBurst  int           // 解析・図面生成のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// リクエスト全般 120 req/min、解析・図面生成 10 req/min（いずれも利用者ごと）
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		BlueprintRate:   rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		BlueprintBurst:  10,
		CleanupInterval: 5 * time.Minute,
	}
}

// userLimiter は利用者ごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter は利用者ごとのレート制限を管理する。
// 利用者はログイン済みならサブジェクトID、未ログインならクライアントIDで識別する。
// リクエスト全般のレート制限と解析・図面生成のレート制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*userLimiter

	blueprintMu       sync.RWMutex
	blueprintLimiters map[string]*userLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:            config,
		generalLimiters:   make(map[string]*userLimiter),
		blueprintLimiters: make(map[string]*userLimiter),
		stopCh:            make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はリクエスト全般のレート制限ミドルウェアを返す。
// ClientMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := subjectKey(r.Context())
			if key == "" {
				slog.Error("rate limiter used without client middleware",
					slog.String("path", r.URL.Path),
				)
				WriteInternalServerError(w)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(key)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("subject", key),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BlueprintMiddleware は解析・図面生成専用のレート制限ミドルウェアを返す。
// リクエスト全般のレート制限とは独立に動作する。
func (rl *RateLimiter) BlueprintMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := subjectKey(r.Context())
			if key == "" {
				slog.Error("rate limiter used without client middleware",
					slog.String("path", r.URL.Path),
				)
				WriteInternalServerError(w)
				return
			}

			limiter := rl.getOrCreateBlueprintLimiter(key)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.BlueprintRate)
				slog.Warn("rate limit exceeded",
					slog.String("subject", key),
					slog.String("limit_type", "blueprint"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているリクエスト全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// BlueprintLimiterCount は現在管理されている解析・図面生成リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) BlueprintLimiterCount() int {
	rl.blueprintMu.RLock()
	defer rl.blueprintMu.RUnlock()
	return len(rl.blueprintLimiters)
}

// getOrCreateGeneralLimiter は利用者のリクエスト全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(key string) *rate.Limiter {
	rl.generalMu.RLock()
	ul, exists := rl.generalLimiters[key]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		ul.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return ul.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.generalLimiters[key]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[key] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateBlueprintLimiter は利用者の解析・図面生成リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateBlueprintLimiter(key string) *rate.Limiter {
	rl.blueprintMu.RLock()
	ul, exists := rl.blueprintLimiters[key]
	rl.blueprintMu.RUnlock()

	if exists {
		rl.blueprintMu.Lock()
		ul.lastAccess = time.Now()
		rl.blueprintMu.Unlock()
		return ul.limiter
	}

	rl.blueprintMu.Lock()
	defer rl.blueprintMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.blueprintLimiters[key]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.BlueprintRate, rl.config.BlueprintBurst)
	rl.blueprintLimiters[key] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for key, ul := range rl.generalLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.generalLimiters, key)
		}
	}
	rl.generalMu.Unlock()

	rl.blueprintMu.Lock()
	for key, ul := range rl.blueprintLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.blueprintLimiters, key)
		}
	}
	rl.blueprintMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "요청이 너무 많습니다.",
		Category: "system",
		Action:   fmt.Sprintf("%d초 후에 다시 시도해 주세요.", retryAfterSec),
	})
}
