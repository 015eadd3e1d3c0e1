// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証イベント名
const (
	EventRegister      = "register"
	EventLogin         = "login"
	EventRefresh       = "refresh"
	EventResetRequest  = "reset_request"
	EventOTPVerify     = "otp_verify"
	EventPasswordReset = "password_reset"
)

// 認証イベントの結果
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordAuthEvent(event, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordResetsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authEvents     *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	resetsCleaned  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailadmin_auth_events_total",
			Help: "認証イベントの種別・結果別の合計数",
		}, []string{"event", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailadmin_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailadmin_http_request_duration_seconds",
			Help:    "APIリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		resetsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailadmin_password_resets_cleaned_total",
			Help: "クリーンアップで削除されたリセット要求の合計数",
		}),
	}

	reg.MustRegister(
		c.authEvents,
		c.httpStatus,
		c.requestLatency,
		c.resetsCleaned,
	)

	return c
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordResetsCleaned は削除されたリセット要求の件数を記録する。
func (c *Collector) RecordResetsCleaned(count int64) {
	c.resetsCleaned.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordAuthEvent(string, string)     {}
func (NopCollector) RecordHTTPStatus(int)               {}
func (NopCollector) RecordRequestLatency(time.Duration) {}
func (NopCollector) RecordResetsCleaned(int64)          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
