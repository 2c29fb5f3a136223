// Package metrics exposes Prometheus collectors for diffing, patch
// application and the live session transport.
//
// A nil *Metrics is valid and records nothing, so components take an
// optional *Metrics without checking for it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/vtree/pkg/vdom"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "vtree").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for diff duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// Gatherer serves Handler.
	// Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry registers the collectors with reg and serves them from it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = reg
		c.Gatherer = reg
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "vtree",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
		Gatherer:  prometheus.DefaultGatherer,
	}
}

// Metrics holds the collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	diffDuration   prometheus.Histogram
	patchOps       *prometheus.CounterVec
	patchesApplied prometheus.Counter
	patchesSent    prometheus.Counter
	patchBytes     prometheus.Histogram
	events         *prometheus.CounterVec
	timers         *prometheus.CounterVec
	divergences    prometheus.Counter
	activeSessions prometheus.Gauge
	journalErrors  prometheus.Counter
}

// New creates and registers the collectors.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		gatherer: config.Gatherer,

		diffDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "diff_duration_seconds",
			Help:        "Time spent diffing two trees",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
		patchOps:       counterVec("patch_ops_total", "Patch operations emitted by the diff, by op", "op"),
		patchesApplied: counter("patches_applied_total", "Patches applied by reconcilers"),
		patchesSent:    counter("patches_sent_total", "Patch frames sent to clients"),
		patchBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "patch_frame_bytes",
			Help:        "Encoded size of patch frames",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(16, 4, 8),
		}),
		events:      counterVec("events_total", "Native events routed to handlers, by outcome", "status"),
		timers:      counterVec("debounce_timers_total", "Debounce timer lifecycle transitions", "outcome"),
		divergences: counter("divergences_total", "Patches that addressed a node missing from the live tree"),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of live WebSocket sessions",
			ConstLabels: config.ConstLabels,
		}),
		journalErrors: counter("journal_errors_total", "Failed patch journal writes"),
	}
}

// Event outcomes.
const (
	StatusHandled   = "handled"
	StatusNoHandler = "no_handler"
	StatusUnhandled = "unhandled"
	StatusThrottled = "throttled"
)

// Timer outcomes.
const (
	TimerArmed    = "armed"
	TimerFired    = "fired"
	TimerCanceled = "canceled"
)

// ObserveDiff records one diff: its duration and the operations it emitted.
func (m *Metrics) ObserveDiff(d time.Duration, p *vdom.Patch) {
	if m == nil {
		return
	}
	m.diffDuration.Observe(d.Seconds())
	for op, n := range p.Ops() {
		m.patchOps.WithLabelValues(op.String()).Add(float64(n))
	}
}

// PatchApplied records a patch applied to a live tree.
func (m *Metrics) PatchApplied() {
	if m == nil {
		return
	}
	m.patchesApplied.Inc()
}

// PatchSent records an encoded patch frame written to a client.
func (m *Metrics) PatchSent(size int) {
	if m == nil {
		return
	}
	m.patchesSent.Inc()
	m.patchBytes.Observe(float64(size))
}

// Event records a routed native event.
func (m *Metrics) Event(status string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(status).Inc()
}

// Timer records a debounce timer transition.
func (m *Metrics) Timer(outcome string) {
	if m == nil {
		return
	}
	m.timers.WithLabelValues(outcome).Inc()
}

// Diverged records a patch that could not be applied.
func (m *Metrics) Diverged() {
	if m == nil {
		return
	}
	m.divergences.Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// JournalError records a failed journal write.
func (m *Metrics) JournalError() {
	if m == nil {
		return
	}
	m.journalErrors.Inc()
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
