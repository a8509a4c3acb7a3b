package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ictbot/internal/domain/models"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	rejections  *prometheus.CounterVec
	entries     *prometheus.CounterVec
	equity      *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var (
	recorderOnce sync.Once
	recorder     *Recorder
)

// New returns the process-wide recorder. Collectors register once with the
// default registry, so repeated calls share them.
func New() *Recorder {
	recorderOnce.Do(func() {
		recorder = &Recorder{
			rejections: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ictbot_rejections_total",
					Help: "Candidate bars rejected, by filter",
				},
				[]string{"symbol", "reason"},
			),
			entries: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ictbot_entries_total",
					Help: "Accepted entries",
				},
				[]string{"symbol"},
			),
			equity: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "ictbot_equity",
					Help: "Equity at the end of the last run or account refresh",
				},
				[]string{"symbol"},
			),
			errorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ictbot_errors_total",
					Help: "Total number of errors encountered",
				},
				[]string{"type"},
			),
			latency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ictbot_operation_duration_seconds",
					Help:    "Duration of operations in seconds",
					Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
				},
				[]string{"operation"},
			),
		}
	})
	return recorder
}

// RecordRejection adds n rejections for reason.
func (r *Recorder) RecordRejection(symbol string, reason models.RejectReason, n int) {
	if n <= 0 {
		return
	}
	r.rejections.WithLabelValues(symbol, string(reason)).Add(float64(n))
}

func (r *Recorder) RecordEntry(symbol string, n int) {
	if n <= 0 {
		return
	}
	r.entries.WithLabelValues(symbol).Add(float64(n))
}

func (r *Recorder) RecordEquity(symbol string, equity float64) {
	r.equity.WithLabelValues(symbol).Set(equity)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordStatistics publishes a run's counters.
func (r *Recorder) RecordStatistics(symbol string, s models.Statistics) {
	for reason, n := range s.Rejections {
		r.RecordRejection(symbol, reason, n)
	}
	r.RecordEntry(symbol, s.Entries)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordRejection(string, models.RejectReason, int) {}
func (Nop) RecordEntry(string, int)                          {}
func (Nop) RecordEquity(string, float64)                     {}
func (Nop) RecordError(string)                               {}
func (Nop) RecordLatency(string, float64)                    {}
