package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odjitter_rows_total",
		Help: "Total number of OD rows disaggregated",
	})
	TripsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odjitter_trips_total",
		Help: "Total number of trip records emitted, by mode (empty for jitter mode)",
	}, []string{"mode"})
	SampleRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odjitter_sample_rejections_total",
		Help: "Rejected origin/destination pairs by reason",
	}, []string{"reason"})
	SampleAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "odjitter_sample_attempts",
		Help:    "Pair draws needed per accepted trip",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 1000, 10000},
	})
	SinkWriteDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odjitter_sink_write_duration_ms",
		Help:    "Sink write duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"sink"})
	SinkErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odjitter_sink_errors_total",
		Help: "Sink write failures",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(RowsTotal)
	prometheus.MustRegister(TripsTotal)
	prometheus.MustRegister(SampleRejectionsTotal)
	prometheus.MustRegister(SampleAttempts)
	prometheus.MustRegister(SinkWriteDurationMs)
	prometheus.MustRegister(SinkErrorsTotal)
}

// 文档注释：返回 Prometheus 指标处理器
// 背景：设置 METRICS_ADDR 时由主入口挂载到 /metrics，便于观察长时间运行的解聚任务。
func Handler() http.Handler { return promhttp.Handler() }
