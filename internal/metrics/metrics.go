// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッション、バックエンドクライアント、ワーカーから利用する。
type MetricsCollector interface {
	RecordRestore(restored bool)
	RecordStorageCorrupt()
	RecordLogin()
	RecordLoginFailure(reason string)
	RecordLogout()
	RecordBackendCall(endpoint string, statusCode int, duration time.Duration)
	RecordImportSuccess(feedURL string)
	RecordImportFailure(feedURL string, reason string)
	RecordBuildsUpserted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	restores       *prometheus.CounterVec
	storageCorrupt prometheus.Counter
	logins         prometheus.Counter
	loginFailures  *prometheus.CounterVec
	logouts        prometheus.Counter
	backendStatus  *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	importSuccess  prometheus.Counter
	importFail     *prometheus.CounterVec
	buildsUpserted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawbox_session_restore_total",
			Help: "セッション初期復元の合計数（result=restored|empty）",
		}, []string{"result"}),
		storageCorrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawbox_session_storage_corrupt_total",
			Help: "破損していたため削除したセッションレコードの合計数",
		}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawbox_login_total",
			Help: "ログイン成功の合計数",
		}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawbox_login_failure_total",
			Help: "ログイン失敗の合計数",
		}, []string{"reason"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawbox_logout_total",
			Help: "ログアウトの合計数",
		}),
		backendStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawbox_backend_requests_total",
			Help: "図面生成バックエンドへのリクエスト数（ステータスコード別）",
		}, []string{"endpoint", "status_code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pawbox_backend_latency_seconds",
			Help:    "図面生成バックエンドのレイテンシ（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"endpoint"}),
		importSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawbox_showcase_import_success_total",
			Help: "コミュニティフィード取り込み成功の合計数",
		}),
		importFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawbox_showcase_import_fail_total",
			Help: "コミュニティフィード取り込み失敗の合計数",
		}, []string{"reason"}),
		buildsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawbox_showcase_builds_upserted_total",
			Help: "アップサートされたショーケース作品の合計数",
		}),
	}

	reg.MustRegister(
		c.restores,
		c.storageCorrupt,
		c.logins,
		c.loginFailures,
		c.logouts,
		c.backendStatus,
		c.backendLatency,
		c.importSuccess,
		c.importFail,
		c.buildsUpserted,
	)

	return c
}

// RecordRestore はセッション初期復元の結果を記録する。
func (c *Collector) RecordRestore(restored bool) {
	result := "empty"
	if restored {
		result = "restored"
	}
	c.restores.WithLabelValues(result).Inc()
}

// RecordStorageCorrupt は破損レコードの削除を記録する。
func (c *Collector) RecordStorageCorrupt() {
	c.storageCorrupt.Inc()
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFailures.WithLabelValues(reason).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logouts.Inc()
}

// RecordBackendCall はバックエンド呼び出しのステータスとレイテンシを記録する。
// 通信エラーでレスポンスが無い場合、statusCodeは0。
func (c *Collector) RecordBackendCall(endpoint string, statusCode int, duration time.Duration) {
	c.backendStatus.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.backendLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordImportSuccess はフィード取り込み成功を記録する。
func (c *Collector) RecordImportSuccess(feedURL string) {
	c.importSuccess.Inc()
}

// RecordImportFailure はフィード取り込み失敗を記録する。
func (c *Collector) RecordImportFailure(feedURL string, reason string) {
	c.importFail.WithLabelValues(reason).Inc()
}

// RecordBuildsUpserted はアップサートされた作品数を記録する。
func (c *Collector) RecordBuildsUpserted(count int) {
	c.buildsUpserted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスのスクレイプ用に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
