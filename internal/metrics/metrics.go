// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordReminderPlanned(kind string)
	RecordTaskEnqueued()
	RecordTasksCancelled(count int)
	RecordTaskDispatched()
	RecordTaskDispatchFailure()
	RecordDispatchLatency(duration time.Duration)
	RecordVoteClosed(outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	remindersPlanned *prometheus.CounterVec
	tasksEnqueued    prometheus.Counter
	tasksCancelled   prometheus.Counter
	tasksDispatched  prometheus.Counter
	dispatchFail     prometheus.Counter
	dispatchLatency  prometheus.Histogram
	votesClosed      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remindersPlanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabiplan_reminders_planned_total",
			Help: "プランナーが算出したリマインダーの合計数",
		}, []string{"kind"}),
		tasksEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabiplan_tasks_enqueued_total",
			Help: "キューへ投入されたタスクの合計数",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabiplan_tasks_cancelled_total",
			Help: "発火前に取り消されたタスクの合計数",
		}),
		tasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabiplan_tasks_dispatched_total",
			Help: "ディスパッチされたタスクの合計数",
		}),
		dispatchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabiplan_task_dispatch_fail_total",
			Help: "ハンドラーが失敗したディスパッチの合計数",
		}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabiplan_dispatch_latency_seconds",
			Help:    "fire_atからハンドラー完了までのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		votesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabiplan_votes_closed_total",
			Help: "クローズされた投票の合計数（結果別）",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.remindersPlanned,
		c.tasksEnqueued,
		c.tasksCancelled,
		c.tasksDispatched,
		c.dispatchFail,
		c.dispatchLatency,
		c.votesClosed,
	)

	return c
}

// RecordReminderPlanned はリマインダーの算出を記録する。
func (c *Collector) RecordReminderPlanned(kind string) {
	c.remindersPlanned.WithLabelValues(kind).Inc()
}

// RecordTaskEnqueued はタスクのキュー投入を記録する。
func (c *Collector) RecordTaskEnqueued() {
	c.tasksEnqueued.Inc()
}

// RecordTasksCancelled はタスクの取り消しを記録する。
func (c *Collector) RecordTasksCancelled(count int) {
	c.tasksCancelled.Add(float64(count))
}

// RecordTaskDispatched はタスクのディスパッチを記録する。
func (c *Collector) RecordTaskDispatched() {
	c.tasksDispatched.Inc()
}

// RecordTaskDispatchFailure はハンドラー失敗を記録する。
func (c *Collector) RecordTaskDispatchFailure() {
	c.dispatchFail.Inc()
}

// RecordDispatchLatency はディスパッチのレイテンシを記録する。
func (c *Collector) RecordDispatchLatency(duration time.Duration) {
	c.dispatchLatency.Observe(duration.Seconds())
}

// RecordVoteClosed は投票のクローズを結果別に記録する。
// outcome: winner, no_winner, already_closed, config_error, materialize_error
func (c *Collector) RecordVoteClosed(outcome string) {
	c.votesClosed.WithLabelValues(outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスのスクレイプ用。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
