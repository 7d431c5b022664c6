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
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordAuthFailure(reason string)
	RecordTokenExchange(duration time.Duration, success bool)
	RecordJWKSRefresh()
	RecordNoteCreated()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus    *prometheus.CounterVec
	authFailure   *prometheus.CounterVec
	tokenExchange *prometheus.HistogramVec
	jwksRefresh   prometheus.Counter
	notesCreated  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		authFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoman_auth_failure_total",
			Help: "認可失敗の合計数（理由別）",
		}, []string{"reason"}),
		tokenExchange: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memoman_token_exchange_seconds",
			Help:    "認可コード交換のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		jwksRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memoman_jwks_refresh_total",
			Help: "JWKSの取得（リフレッシュ）回数",
		}),
		notesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memoman_notes_created_total",
			Help: "作成されたメモの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.authFailure,
		c.tokenExchange,
		c.jwksRefresh,
		c.notesCreated,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAuthFailure は認可失敗を理由別に記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailure.WithLabelValues(reason).Inc()
}

// RecordTokenExchange は認可コード交換のレイテンシと成否を記録する。
func (c *Collector) RecordTokenExchange(duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.tokenExchange.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordJWKSRefresh はJWKSの取得を記録する。
func (c *Collector) RecordJWKSRefresh() {
	c.jwksRefresh.Inc()
}

// RecordNoteCreated はメモ作成を記録する。
func (c *Collector) RecordNoteCreated() {
	c.notesCreated.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
