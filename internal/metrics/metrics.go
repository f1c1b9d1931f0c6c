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
// サービス層、変更通知、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordFetchSuccess(kind string)
	RecordFetchFailure(kind string)
	RecordFetchLatency(duration time.Duration)
	RecordWrite(kind, op string)
	RecordWriteFailure(kind, op string)
	RecordNotification(kind string)
	SetActiveSubscriptions(kind string, n int)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordPostsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess   *prometheus.CounterVec
	fetchFail      *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	writes         *prometheus.CounterVec
	writeFail      *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	subscriptions  *prometheus.GaugeVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	postsPurged    prometheus.Counter
}

// コンパイル時にインターフェースの実装を検証する。
var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhub_store_fetch_success_total",
			Help: "投稿一覧取得成功の合計数",
		}, []string{"kind"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhub_store_fetch_fail_total",
			Help: "投稿一覧取得失敗の合計数（空の一覧で応答したもの）",
		}, []string{"kind"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clubhub_store_fetch_latency_seconds",
			Help:    "投稿一覧取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhub_store_write_total",
			Help: "投稿の書き込み成功数",
		}, []string{"kind", "op"}),
		writeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhub_store_write_fail_total",
			Help: "投稿の書き込み失敗数",
		}, []string{"kind", "op"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhub_change_notifications_total",
			Help: "受信した変更通知の数（kind=allは再接続）",
		}, []string{"kind"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clubhub_active_subscriptions",
			Help: "種別ごとのアクティブな変更通知購読数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubhub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clubhub_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		postsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clubhub_posts_purged_total",
			Help: "保持期間を過ぎて削除された投稿の合計数",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.writes,
		c.writeFail,
		c.notifications,
		c.subscriptions,
		c.httpStatus,
		c.requestLatency,
		c.postsPurged,
	)

	return c
}

// RecordFetchSuccess は一覧取得成功を記録する。
func (c *Collector) RecordFetchSuccess(kind string) {
	c.fetchSuccess.WithLabelValues(kind).Inc()
}

// RecordFetchFailure は一覧取得失敗を記録する。
func (c *Collector) RecordFetchFailure(kind string) {
	c.fetchFail.WithLabelValues(kind).Inc()
}

// RecordFetchLatency は一覧取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordWrite は書き込み成功を記録する。opはcreate/update/delete。
func (c *Collector) RecordWrite(kind, op string) {
	c.writes.WithLabelValues(kind, op).Inc()
}

// RecordWriteFailure は書き込み失敗を記録する。
func (c *Collector) RecordWriteFailure(kind, op string) {
	c.writeFail.WithLabelValues(kind, op).Inc()
}

// RecordNotification は変更通知の受信を記録する。
func (c *Collector) RecordNotification(kind string) {
	c.notifications.WithLabelValues(kind).Inc()
}

// SetActiveSubscriptions は種別ごとの購読数を設定する。
func (c *Collector) SetActiveSubscriptions(kind string, n int) {
	c.subscriptions.WithLabelValues(kind).Set(float64(n))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordPostsPurged は保持期間切れで削除された投稿数を記録する。
func (c *Collector) RecordPostsPurged(count int64) {
	c.postsPurged.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

var _ MetricsCollector = NopCollector{}

func (NopCollector) RecordFetchSuccess(string) {}
func (NopCollector) RecordFetchFailure(string) {}
func (NopCollector) RecordFetchLatency(time.Duration) {}
func (NopCollector) RecordWrite(string, string) {}
func (NopCollector) RecordWriteFailure(string, string) {}
func (NopCollector) RecordNotification(string) {}
func (NopCollector) SetActiveSubscriptions(string, int) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRequestLatency(time.Duration) {}
func (NopCollector) RecordPostsPurged(int64) {}

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
