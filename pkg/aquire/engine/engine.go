// Package engine assembles a working profile from configuration: the
// preference store, signal sources, telemetry, metrics and the profile
// itself. Both the aquire CLI and aquired build on it.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jamesainslie/aquire/pkg/aquire/config"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/metrics"
	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// ErrStoreLocked is returned by Open when another process, normally
// aquired, holds the badger directory lock.
var ErrStoreLocked = errors.New("preference store is in use by another process")

// Engine is an assembled profile and everything feeding it.
type Engine struct {
	Config    *config.Config
	Store     *prefs.Store
	Observer  *signals.Observer
	Telemetry *telemetry.Log
	Metrics   *metrics.Manager
	Profile   *profile.Profile
}

type options struct {
	inMemory   bool
	extra      []signals.Source
	identifier string
	tier       types.DeviceTier
	metrics    *bool
}

// Option configures Open.
type Option func(*options)

// WithInMemoryStore keeps preferences in memory instead of cfg.Store.Path.
func WithInMemoryStore() Option {
	return func(o *options) { o.inMemory = true }
}

// WithExtraSources appends sources after the configured ones, so they own
// any signal they provide.
func WithExtraSources(sources ...signals.Source) Option {
	return func(o *options) { o.extra = append(o.extra, sources...) }
}

// WithIdentifier classifies id instead of detecting the hardware.
func WithIdentifier(id string) Option {
	return func(o *options) { o.identifier = id }
}

// WithTier skips classification.
func WithTier(t types.DeviceTier) Option {
	return func(o *options) { o.tier = t }
}

// WithMetrics overrides cfg.Metrics.Enabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) { o.metrics = &enabled }
}

// Open builds an engine from cfg. The caller must Close it.
func Open(cfg *config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	metricsOn := cfg.Metrics.Enabled
	if o.metrics != nil {
		metricsOn = *o.metrics
	}
	m := metrics.NewManager(metrics.WithMetricsEnabled(metricsOn))

	store, err := openStore(cfg.Store.Path, o.inMemory, m)
	if err != nil {
		return nil, err
	}

	sources, err := signals.New(cfg.Signals.Sources, cfg.SignalOptions())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sources = append(sources, o.extra...)

	tel := telemetry.New(
		telemetry.WithCapacity(cfg.Telemetry.Capacity),
		telemetry.WithConsent(func() bool { return store.AppProfile().TelemetryOptIn }),
		telemetry.WithStore(store),
	)

	profileOpts := []profile.Option{
		profile.WithPolicy(cfg.PolicyValue()),
		profile.WithClassifier(cfg.Classifier()),
		profile.WithTelemetry(tel),
		profile.WithMetrics(m),
	}
	if o.identifier != "" {
		profileOpts = append(profileOpts, profile.WithIdentifier(o.identifier))
	}
	if o.tier != "" {
		profileOpts = append(profileOpts, profile.WithTier(o.tier))
	}

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	logging.Get("profile").Debug("engine assembled", "sources", names, "policy", cfg.Policy)

	return &Engine{
		Config:    cfg,
		Store:     store,
		Observer:  signals.NewObserver(sources...),
		Telemetry: tel,
		Metrics:   m,
		Profile:   profile.New(store, profileOpts...),
	}, nil
}

// openStore opens the persistent store at path. A store held by another
// process is an error; any other failure falls back to an in-memory store
// so the session runs on defaults and nothing is kept past exit.
func openStore(path string, inMemory bool, m *metrics.Manager) (*prefs.Store, error) {
	if inMemory {
		return prefs.OpenInMemory()
	}

	store, err := prefs.Open(path)
	if err == nil {
		return store, nil
	}
	if strings.Contains(err.Error(), "directory lock") {
		return nil, fmt.Errorf("%w: %w", ErrStoreLocked, err)
	}

	logging.Get("prefs").Warn("preference store unavailable, using defaults for this session",
		"path", path, "error", err)
	m.RecordPersistError()
	return prefs.OpenInMemory()
}

// Close closes profile subscriptions and the store.
func (e *Engine) Close() error {
	e.Profile.Close()
	return e.Store.Close()
}
