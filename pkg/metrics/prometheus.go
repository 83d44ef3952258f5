package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetches         *prometheus.CounterVec
	skippedTicks    *prometheus.CounterVec
	persisted       *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastValue       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
	framesPublished prometheus.Counter
	frameRecipients prometheus.Histogram
	framesDropped   prometheus.Counter
	subscribers     prometheus.Gauge
}

// New creates a Prometheus metrics recorder on the default registerer.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockpulse_fetches_total",
				Help: "Feed fetch attempts by source and result",
			},
			[]string{"source", "result"},
		),
		skippedTicks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockpulse_skipped_ticks_total",
				Help: "Ticks skipped because the previous fetch was still running",
			},
			[]string{"source"},
		),
		persisted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockpulse_observations_persisted_total",
				Help: "Observations appended to the configured backend",
			},
			[]string{"backend", "source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blockpulse_last_value",
				Help: "Last observed value per source",
			},
			[]string{"source"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blockpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		framesPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "blockpulse_frames_published_total",
			Help: "Frames handed to the broadcast hub",
		}),
		frameRecipients: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "blockpulse_frame_recipients",
			Help:    "Subscribers a frame was enqueued for",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		framesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "blockpulse_frames_dropped_total",
			Help: "Frames discarded from full subscriber queues",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "blockpulse_subscribers",
			Help: "Currently registered subscribers",
		}),
	}
}

func (r *Recorder) RecordFetch(source, result string) {
	r.fetches.WithLabelValues(source, result).Inc()
}

func (r *Recorder) RecordSkippedTick(source string) {
	r.skippedTicks.WithLabelValues(source).Inc()
}

// RecordPersisted records an observation appended to a backend.
func (r *Recorder) RecordPersisted(backend, source string) {
	r.persisted.WithLabelValues(backend, source).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastValue(source string, v float64) {
	r.lastValue.WithLabelValues(source).Set(v)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordFramePublished(recipients int) {
	r.framesPublished.Inc()
	r.frameRecipients.Observe(float64(recipients))
}

func (r *Recorder) RecordFrameDropped() { r.framesDropped.Inc() }

func (r *Recorder) SetSubscribers(n int) { r.subscribers.Set(float64(n)) }
