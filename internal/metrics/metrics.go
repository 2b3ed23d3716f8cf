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
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordTokenCheck(result string)
	RecordLoginStart(result string)
	RecordSubmitOutcome(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordExchangeLatency(duration time.Duration)
	RecordTokensDeleted(count int64)
}

// 結果ラベルの値。
const (
	ResultValid   = "valid"
	ResultExpired = "expired"
	ResultInvalid = "invalid"
	ResultOK      = "ok"
	ResultError   = "error"

	OutcomeSuccess   = "success"
	OutcomeFailure   = "fail"
	OutcomeTransport = "transport_error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tokenChecks     *prometheus.CounterVec
	loginStarts     *prometheus.CounterVec
	submitOutcomes  *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	exchangeLatency prometheus.Histogram
	tokensDeleted   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridgelogin_token_check_total",
			Help: "トークン検証の結果別合計数",
		}, []string{"result"}),
		loginStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridgelogin_login_start_total",
			Help: "ログイン開始の結果別合計数",
		}, []string{"result"}),
		submitOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridgelogin_submit_total",
			Help: "認可Cookie提出の結果別合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridgelogin_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		exchangeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridgelogin_exchange_latency_seconds",
			Help:    "プロバイダーとの認可Cookie交換のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokensDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridgelogin_tokens_deleted_total",
			Help: "クリーンアップで削除された期限切れトークンの合計数",
		}),
	}

	reg.MustRegister(
		c.tokenChecks,
		c.loginStarts,
		c.submitOutcomes,
		c.httpStatus,
		c.exchangeLatency,
		c.tokensDeleted,
	)

	return c
}

// RecordTokenCheck はトークン検証の結果を記録する。
func (c *Collector) RecordTokenCheck(result string) {
	c.tokenChecks.WithLabelValues(result).Inc()
}

// RecordLoginStart はログイン開始の結果を記録する。
func (c *Collector) RecordLoginStart(result string) {
	c.loginStarts.WithLabelValues(result).Inc()
}

// RecordSubmitOutcome は認可Cookie提出の結果を記録する。
func (c *Collector) RecordSubmitOutcome(outcome string) {
	c.submitOutcomes.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordExchangeLatency はプロバイダー交換のレイテンシを記録する。
func (c *Collector) RecordExchangeLatency(duration time.Duration) {
	c.exchangeLatency.Observe(duration.Seconds())
}

// RecordTokensDeleted は削除された期限切れトークン数を記録する。
func (c *Collector) RecordTokensDeleted(count int64) {
	c.tokensDeleted.Add(float64(count))
}

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
