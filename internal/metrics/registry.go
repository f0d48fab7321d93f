package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the Prometheus collectors for a simulator process.
type Registry struct {
	// Simulation
	ActionsTotal        *prometheus.CounterVec
	TargetsReachedTotal *prometheus.CounterVec
	TicksTotal          prometheus.Counter
	SimulatedSeconds    prometheus.Gauge
	Objects             prometheus.Gauge
	StateChangesTotal   *prometheus.CounterVec

	// Training
	TrainingEpisodesTotal prometheus.Counter
	TrainingEpisodeReward prometheus.Histogram
	TrainingEpisodeTicks  prometheus.Histogram
	PolicyStates          prometheus.Gauge

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewRegistry creates a registry with every collector registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initSimulationMetrics()
	r.initTrainingMetrics()
	r.initHTTPMetrics()
	return r
}

// GetPrometheusRegistry exposes the underlying registry for promhttp.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

func (r *Registry) initSimulationMetrics() {
	r.ActionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "railsim_actions_total",
			Help: "Total number of actions chosen by agents",
		},
		[]string{"action"}, // stop, forward, backward
	)

	r.TargetsReachedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "railsim_targets_reached_total",
			Help: "Total number of targets reached",
		},
		[]string{"object"},
	)

	r.TicksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "railsim_ticks_total",
			Help: "Total number of simulation ticks executed",
		},
	)

	r.SimulatedSeconds = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "railsim_simulated_seconds",
			Help: "Simulated time elapsed in seconds",
		},
	)

	r.Objects = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "railsim_objects",
			Help: "Number of objects in the simulation",
		},
	)

	r.StateChangesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "railsim_state_changes_total",
			Help: "Total number of executor state transitions",
		},
		[]string{"to"}, // running, paused
	)
}

func (r *Registry) initTrainingMetrics() {
	r.TrainingEpisodesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "railsim_training_episodes_total",
			Help: "Total number of training episodes completed",
		},
	)

	r.TrainingEpisodeReward = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "railsim_training_episode_reward",
			Help:    "Cumulative reward per training episode",
			Buckets: []float64{-1000, -100, -10, 0, 10, 100, 1000, 10000},
		},
	)

	r.TrainingEpisodeTicks = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "railsim_training_episode_ticks",
			Help:    "Ticks per training episode",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
	)

	r.PolicyStates = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "railsim_policy_states",
			Help: "Number of discrete states in the learned value table",
		},
	)
}

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "railsim_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "railsim_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
}
