package fetch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pawbox/pawbox/internal/model"
)

// FetchResult はHTTPステータスコードに基づく取得結果の分類。
type FetchResult int

const (
	// FetchResultOK は取得成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultStop は取得停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	initialBackoff = 30 * time.Minute
	maxBackoff     = 12 * time.Hour
	// parseFailureThreshold は連続パース失敗で取得を停止する回数。
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == http.StatusOK:
		return FetchResultOK
	case statusCode == http.StatusNotModified:
		return FetchResultNotModified
	case statusCode == http.StatusNotFound, statusCode == http.StatusGone,
		statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return FetchResultStop
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づく指数バックオフ遅延を返す。
// 初回30分から2倍ずつ増加し、12時間で頭打ちになる。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyStop は取り込み元の取得を停止する。
func ApplyStop(src *model.ImportSource, reason string) {
	src.FetchStatus = model.FetchStatusStopped
	src.ErrorMessage = reason
	src.UpdatedAt = time.Now()
}

// ApplyBackoff は連続エラー回数を増やし、指数バックオフで次回取得日時を設定する。
func ApplyBackoff(src *model.ImportSource, reason string) {
	src.ConsecutiveErrors++
	src.ErrorMessage = reason
	src.NextFetchAt = time.Now().Add(CalculateBackoff(src.ConsecutiveErrors - 1))
	src.UpdatedAt = time.Now()
}

// ApplySuccess はエラー状態をリセットし、interval後を次回取得日時とする。
func ApplySuccess(src *model.ImportSource, interval time.Duration) {
	src.ConsecutiveErrors = 0
	src.ErrorMessage = ""
	src.NextFetchAt = time.Now().Add(interval)
	src.UpdatedAt = time.Now()
}

// ApplyParseFailure はパース失敗を記録する。閾値に達した場合は取得を停止する。
func ApplyParseFailure(src *model.ImportSource, reason string) {
	src.ConsecutiveErrors++
	src.ErrorMessage = fmt.Sprintf("パース失敗 (%d回連続): %s", src.ConsecutiveErrors, reason)
	src.UpdatedAt = time.Now()

	if src.ConsecutiveErrors >= parseFailureThreshold {
		src.FetchStatus = model.FetchStatusStopped
		src.ErrorMessage = fmt.Sprintf("パース失敗が%d回連続したため取得を停止しました: %s", src.ConsecutiveErrors, reason)
	}
}
