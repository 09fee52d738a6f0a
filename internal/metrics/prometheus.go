package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the service's Prometheus metrics
type Recorder struct {
	latency        *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	updatesApplied *prometheus.CounterVec
	sessionErrors  *prometheus.CounterVec
	trackedGames   prometheus.Gauge
	viewers        prometheus.Gauge
	breakerState   *prometheus.GaugeVec
}

// New registers the recorder's collectors with reg.
// A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scorecard_upstream_duration_seconds",
				Help:    "Duration of scorecard backend requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorecard_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		updatesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorecard_updates_applied_total",
				Help: "Snapshots classified as changed and applied",
			},
			[]string{"game_id"},
		),
		sessionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorecard_session_errors_total",
				Help: "Terminal errors surfaced to viewers",
			},
			[]string{"game_id"},
		),
		trackedGames: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scorecard_tracked_games",
			Help: "Games currently tracked",
		}),
		viewers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scorecard_viewers",
			Help: "Connected websocket viewers",
		}),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scorecard_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
	}
}

// RecordLatency records upstream latency in seconds
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordError records an error occurrence
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordUpdateApplied counts an applied snapshot
func (r *Recorder) RecordUpdateApplied(gameID string) {
	r.updatesApplied.WithLabelValues(gameID).Inc()
}

// RecordSessionError counts an error surfaced for a game
func (r *Recorder) RecordSessionError(gameID string) {
	r.sessionErrors.WithLabelValues(gameID).Inc()
}

// SetTrackedGames sets the tracked games gauge
func (r *Recorder) SetTrackedGames(n int) {
	r.trackedGames.Set(float64(n))
}

// SetViewers sets the connected viewers gauge
func (r *Recorder) SetViewers(n int) {
	r.viewers.Set(float64(n))
}

// SetBreakerState records a circuit breaker state
func (r *Recorder) SetBreakerState(name string, state int) {
	r.breakerState.WithLabelValues(name).Set(float64(state))
}
