// Package metrics exposes Prometheus metrics for the tuning engine: how often
// the profile recomputes, how often it publishes, and the current tuning.
package metrics

import (
	"net/http"

	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the aquire metrics.
type Manager struct {
	namespace string
	subsystem string
	enabled   bool
	registry  *prometheus.Registry

	recomputations prometheus.Counter
	publishes      prometheus.Counter
	suppressed     prometheus.Counter
	signalChanges  *prometheus.CounterVec
	persistErrors  prometheus.Counter

	blurStrength   prometheus.Gauge
	shadowRadius   prometheus.Gauge
	animationLevel prometheus.Gauge
	backgroundBlur prometheus.Gauge
	highlight      prometheus.Gauge
	throttleActive prometheus.Gauge
	preference     *prometheus.GaugeVec
	deviceTier     *prometheus.GaugeVec
}

// NewManager creates a manager. Without WithRegistry the metrics live on a
// fresh registry so several managers can coexist in tests.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "aquire",
		subsystem: "tuning",
		enabled:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		})
	}

	m.recomputations = counter("recomputations_total", "Total number of tuning recomputations")
	m.publishes = counter("publishes_total", "Total number of tuning values published to subscribers")
	m.suppressed = counter("suppressed_total", "Recomputations whose result matched the published tuning")
	m.persistErrors = counter("persist_errors_total", "Preference writes that failed and were kept in memory")
	m.signalChanges = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "signal_changes_total",
		Help:      "Individual system signal changes by signal",
	}, []string{"signal"})

	m.blurStrength = gauge("blur_strength", "Published blur strength")
	m.shadowRadius = gauge("shadow_radius", "Published shadow radius")
	m.animationLevel = gauge("animation_level", "Published animation level")
	m.backgroundBlur = gauge("background_blur_allowed", "1 when background blur is allowed")
	m.highlight = gauge("highlight_overlay_allowed", "1 when the highlight overlay is allowed")
	m.throttleActive = gauge("throttle_active", "1 while any system signal asks for reduced effects")
	m.preference = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "preference",
		Help:      "Active user preference (1 for the selected one)",
	}, []string{"preference"})
	m.deviceTier = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "device_tier",
		Help:      "Classified hardware tier (1 for the detected one)",
	}, []string{"tier"})
}

// Enabled reports whether the manager records.
func (m *Manager) Enabled() bool { return m != nil && m.enabled }

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRecompute counts a recomputation and whether it was published.
func (m *Manager) RecordRecompute(published bool) {
	if !m.Enabled() {
		return
	}
	m.recomputations.Inc()
	if published {
		m.publishes.Inc()
	} else {
		m.suppressed.Inc()
	}
}

// RecordSignalChange counts one signal change.
func (m *Manager) RecordSignalChange(sig types.Signal) {
	if !m.Enabled() {
		return
	}
	m.signalChanges.WithLabelValues(string(sig)).Inc()
}

// RecordPersistError counts a failed preference write.
func (m *Manager) RecordPersistError() {
	if !m.Enabled() {
		return
	}
	m.persistErrors.Inc()
}

// ObserveTuning sets the tuning gauges.
func (m *Manager) ObserveTuning(t types.VisualTuning, throttled bool) {
	if !m.Enabled() {
		return
	}
	m.blurStrength.Set(t.BlurStrength)
	m.shadowRadius.Set(t.ShadowRadius)
	m.animationLevel.Set(float64(t.AnimationLevel))
	m.backgroundBlur.Set(boolFloat(t.AllowBackgroundBlur))
	m.highlight.Set(boolFloat(t.AllowHighlightOverlay))
	m.throttleActive.Set(boolFloat(throttled))
}

// ObservePreference marks p as the active preference.
func (m *Manager) ObservePreference(p types.Preference) {
	if !m.Enabled() {
		return
	}
	for _, candidate := range types.Preferences {
		m.preference.WithLabelValues(candidate.String()).Set(boolFloat(candidate == p))
	}
}

// ObserveTier marks tier as the classified hardware tier.
func (m *Manager) ObserveTier(tier types.DeviceTier) {
	if !m.Enabled() {
		return
	}
	for _, candidate := range []types.DeviceTier{types.TierLow, types.TierMedium, types.TierHigh} {
		m.deviceTier.WithLabelValues(candidate.String()).Set(boolFloat(candidate == tier))
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
