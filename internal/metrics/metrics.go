package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	PollsPublished     prometheus.Counter
	PollsFailed        prometheus.Counter
	MalformedTotal     prometheus.Counter
	ConversionDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_publisher_runs_total",
			Help: "Total number of quiz runs by outcome",
		}, []string{"outcome"}),
		PollsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_publisher_polls_published_total",
			Help: "Total number of quiz polls delivered to the channel",
		}),
		PollsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_publisher_polls_failed_total",
			Help: "Total number of quiz polls that could not be delivered",
		}),
		MalformedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_publisher_malformed_questions_total",
			Help: "Total number of sampled questions excluded from polls",
		}),
		ConversionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_publisher_conversion_duration_seconds",
			Help:    "Time spent converting the assembled document",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
	}
}

func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PollPublished() {
	if m == nil {
		return
	}
	m.PollsPublished.Inc()
}

func (m *Metrics) PollFailed() {
	if m == nil {
		return
	}
	m.PollsFailed.Inc()
}

func (m *Metrics) MalformedQuestions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MalformedTotal.Add(float64(n))
}

func (m *Metrics) ObserveConversion(d time.Duration) {
	if m == nil {
		return
	}
	m.ConversionDuration.Observe(d.Seconds())
}
