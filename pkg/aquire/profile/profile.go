// Package profile is the observable owner of the live tuning. It holds the
// current signals, reads the user's preference and auto-tune switch, runs the
// tuning engine on every event and publishes the result only when it changes.
package profile

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamesainslie/aquire/pkg/aquire/gates"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/metrics"
	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/aquire/tuner"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// Store is the subset of the preference store the profile uses.
type Store interface {
	Preference() types.Preference
	SetPreference(types.Preference) error
	AutoTune() bool
	SetAutoTune(bool) error
	AppProfile() prefs.AppProfile
	SetExperience(types.Experience) error
}

// Event names a reason for recomputation.
type Event string

// Recomputation events.
const (
	EventClassified Event = "classified"
	EventPreference Event = "preference"
	EventAutoTune   Event = "autotune"
	EventExperience Event = "experience"
	EventSignal     Event = "signal"
	EventReload     Event = "reload"
)

// Subscription receives every published tuning. When the subscriber falls
// behind, the pending value is replaced by the newer one.
type Subscription struct {
	ID string
	C  <-chan types.VisualTuning

	ch chan types.VisualTuning
}

// Profile owns the live tuning.
type Profile struct {
	store      Store
	classifier *tuner.Classifier
	policy     types.Policy
	identifier string
	tierSet    bool
	telemetry  *telemetry.Log
	metrics    *metrics.Manager

	// setMu keeps a store write and the matching in-memory change together,
	// so concurrent setters leave the store and the profile agreeing. It is
	// taken before mu.
	setMu sync.Mutex

	// mu serialises recomputation and guards everything below.
	mu         sync.Mutex
	tier       types.DeviceTier
	signals    types.SystemSignals
	preference types.Preference
	autoTune   bool
	experience types.Experience
	tuning     types.VisualTuning
	updatedAt  time.Time
	recomputes uint64
	publishes  uint64
	subs       map[string]*Subscription
	closed     bool
}

// Option configures a Profile.
type Option func(*Profile)

// WithPolicy selects the tuning policy. The default is device.
func WithPolicy(p types.Policy) Option {
	return func(pr *Profile) { pr.policy = p }
}

// WithTier fixes the hardware tier instead of classifying the host.
func WithTier(t types.DeviceTier) Option {
	return func(pr *Profile) {
		pr.tier = t
		pr.tierSet = true
	}
}

// WithIdentifier classifies identifier instead of detecting the host's.
func WithIdentifier(id string) Option {
	return func(pr *Profile) { pr.identifier = id }
}

// WithClassifier replaces the default device classifier.
func WithClassifier(c *tuner.Classifier) Option {
	return func(pr *Profile) {
		if c != nil {
			pr.classifier = c
		}
	}
}

// WithSignals seeds the signal snapshot.
func WithSignals(s types.SystemSignals) Option {
	return func(pr *Profile) { pr.signals = s }
}

// WithTelemetry records profile events in log.
func WithTelemetry(log *telemetry.Log) Option {
	return func(pr *Profile) { pr.telemetry = log }
}

// WithMetrics records recomputations in m.
func WithMetrics(m *metrics.Manager) Option {
	return func(pr *Profile) { pr.metrics = m }
}

// New creates a profile backed by store. Classification happens here, once,
// and produces the first published tuning.
func New(store Store, opts ...Option) *Profile {
	p := &Profile{
		store:      store,
		classifier: tuner.NewClassifier(nil, nil),
		policy:     types.PolicyDevice,
		signals:    types.DefaultSignals(),
		subs:       make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(p)
	}

	if !p.tierSet {
		if p.identifier == "" {
			id, err := tuner.DetectIdentifier()
			if err != nil {
				logging.Get("profile").Warn("hardware identifier unavailable", "error", err)
			}
			p.identifier = id
		}
		p.tier = p.classifier.Classify(p.identifier)
	}

	p.preference = store.Preference()
	p.autoTune = store.AutoTune()
	p.experience = store.AppProfile().Experience

	logging.Get("profile").Info("device classified",
		"identifier", p.identifier, "tier", p.tier, "policy", p.policy)
	p.metrics.ObserveTier(p.tier)
	p.metrics.ObservePreference(p.preference)

	p.mu.Lock()
	p.tuning = p.compute()
	p.updatedAt = time.Now()
	p.recomputes = 1
	p.publishes = 1
	p.mu.Unlock()

	p.metrics.RecordRecompute(true)
	p.metrics.ObserveTuning(p.tuning, p.signals.ThrottleActive())
	return p
}

// Current returns the published tuning.
func (p *Profile) Current() types.VisualTuning {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tuning
}

// Tier returns the classified hardware tier.
func (p *Profile) Tier() types.DeviceTier {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tier
}

// Signals returns the live signal snapshot.
func (p *Profile) Signals() types.SystemSignals {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signals
}

// Throttled reports whether the live signals ask for reduced effects.
func (p *Profile) Throttled() bool {
	return p.Signals().ThrottleActive()
}

// Preference returns the user preference in effect.
func (p *Profile) Preference() types.Preference {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preference
}

// AutoTune returns the auto-tune switch in effect.
func (p *Profile) AutoTune() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoTune
}

// SetPreference persists pref and recomputes. A failed write is logged and
// the new preference still applies for this session.
func (p *Profile) SetPreference(pref types.Preference) {
	p.setMu.Lock()
	if err := p.store.SetPreference(pref); err != nil {
		p.persistFailed(err)
	}
	p.mu.Lock()
	prev := p.preference
	p.preference = pref
	p.mu.Unlock()
	p.setMu.Unlock()

	if prev != pref {
		p.metrics.ObservePreference(pref)
		p.record(telemetry.EventPreferenceChanged, fmt.Sprintf("%s -> %s", prev, pref))
	}
	p.recompute(EventPreference)
}

// SetAutoTune persists the auto-tune switch and recomputes.
func (p *Profile) SetAutoTune(enabled bool) {
	p.setMu.Lock()
	if err := p.store.SetAutoTune(enabled); err != nil {
		p.persistFailed(err)
	}
	p.mu.Lock()
	prev := p.autoTune
	p.autoTune = enabled
	p.mu.Unlock()
	p.setMu.Unlock()

	if prev != enabled {
		p.record(telemetry.EventAutoTuneChanged, fmt.Sprintf("%t", enabled))
	}
	p.recompute(EventAutoTune)
}

// SetExperience stores the onboarding experience, which also selects the
// matching preference, and recomputes.
func (p *Profile) SetExperience(exp types.Experience) {
	pref := exp.Preference()

	p.setMu.Lock()
	if err := p.store.SetExperience(exp); err != nil {
		p.persistFailed(err)
	}
	p.mu.Lock()
	prevExp := p.experience
	p.experience = exp
	p.preference = pref
	p.mu.Unlock()
	p.setMu.Unlock()

	p.metrics.ObservePreference(pref)
	if prevExp != exp {
		p.record(telemetry.EventExperienceChanged, exp.String())
	}
	p.recompute(EventExperience)
}

// Apply sets a preference by its store key. The profile's own keys go
// through the matching setter so the tuning follows; any other key is
// written to the store when it supports Set.
func (p *Profile) Apply(key, value string) error {
	switch key {
	case prefs.KeyPreference:
		pref, err := types.ParsePreference(value)
		if err != nil {
			return err
		}
		p.SetPreference(pref)
	case prefs.KeyAutoTune:
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		p.SetAutoTune(enabled)
	case prefs.KeyExperience:
		exp, err := types.ParseExperience(value)
		if err != nil {
			return err
		}
		p.SetExperience(exp)
	default:
		setter, ok := p.store.(interface{ Set(key, value string) error })
		if !ok {
			return fmt.Errorf("%w: %s", prefs.ErrUnknownKey, key)
		}
		return setter.Set(key, value)
	}
	return nil
}

// Reload re-reads the stored preferences, e.g. after a reset, and
// recomputes without writing anything back.
func (p *Profile) Reload() {
	p.setMu.Lock()
	pref := p.store.Preference()
	autoTune := p.store.AutoTune()
	exp := p.store.AppProfile().Experience

	p.mu.Lock()
	p.preference = pref
	p.autoTune = autoTune
	p.experience = exp
	p.mu.Unlock()
	p.setMu.Unlock()

	p.metrics.ObservePreference(pref)
	p.recompute(EventReload)
}

// UpdateSignals replaces the signal snapshot and recomputes.
func (p *Profile) UpdateSignals(s types.SystemSignals) {
	p.mu.Lock()
	p.signals = s
	p.mu.Unlock()
	p.recompute(EventSignal)
}

// HandleChange applies one observer change. It is a signals.Handler.
func (p *Profile) HandleChange(c signals.Change) {
	p.metrics.RecordSignalChange(c.Signal)
	p.record(telemetry.EventSignalChanged, fmt.Sprintf("%s %s -> %s", c.Signal, c.Previous, c.Current))
	p.UpdateSignals(c.Signals)
}

// Attach seeds the profile from the observer's snapshot and recomputes on
// each of its changes. The returned function detaches.
func (p *Profile) Attach(o *signals.Observer) func() {
	p.UpdateSignals(o.Snapshot())
	return o.Subscribe(p.HandleChange)
}

// Subscribe returns a subscription to future published tunings.
func (p *Profile) Subscribe() *Subscription {
	ch := make(chan types.VisualTuning, 1)
	sub := &Subscription{ID: uuid.New().String(), C: ch, ch: ch}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return sub
	}
	p.subs[sub.ID] = sub
	return sub
}

// Unsubscribe stops delivery to id and closes its channel.
func (p *Profile) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subs[id]; ok {
		close(sub.ch)
		delete(p.subs, id)
	}
}

// Close closes every subscription. Later events still recompute but
// publish to nobody.
func (p *Profile) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sub := range p.subs {
		close(sub.ch)
		delete(p.subs, id)
	}
	p.closed = true
}

// recompute runs the engine and publishes when the result differs from the
// published tuning.
func (p *Profile) recompute(ev Event) bool {
	p.mu.Lock()
	next := p.compute()
	p.recomputes++
	changed := !next.Equal(p.tuning)
	if changed {
		p.tuning = next
		p.updatedAt = time.Now()
		p.publishes++
		for _, sub := range p.subs {
			deliverLatest(sub.ch, next)
		}
	}
	throttled := p.signals.ThrottleActive()
	p.mu.Unlock()

	p.metrics.RecordRecompute(changed)
	if !changed {
		logging.Get("profile").Debug("tuning unchanged", "event", ev)
		return false
	}

	p.metrics.ObserveTuning(next, throttled)
	logging.Get("profile").Info("tuning published",
		"event", ev,
		"blur", next.BlurStrength,
		"shadow", next.ShadowRadius,
		"animation", next.AnimationLevel,
		"throttled", throttled)
	p.record(telemetry.EventTuningChanged, fmt.Sprintf("blur=%.2f shadow=%.2f anim=%d",
		next.BlurStrength, next.ShadowRadius, next.AnimationLevel))
	return true
}

// compute must be called with p.mu held.
func (p *Profile) compute() types.VisualTuning {
	return tuner.Compute(tuner.Inputs{
		Tier:       p.tier,
		Preference: p.preference,
		Signals:    p.signals,
		AutoTune:   p.autoTune,
		Policy:     p.policy,
	})
}

// deliverLatest puts v on ch, replacing a value the reader has not taken.
func deliverLatest(ch chan types.VisualTuning, v types.VisualTuning) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func (p *Profile) persistFailed(err error) {
	logging.Get("profile").Warn("preference not persisted, keeping it for this session", "error", err)
	p.metrics.RecordPersistError()
}

func (p *Profile) record(name, detail string) {
	if p.telemetry != nil {
		p.telemetry.Log(name, detail)
	}
}

// Status is a point-in-time view of the profile.
type Status struct {
	Identifier string              `json:"identifier" yaml:"identifier"`
	Tier       types.DeviceTier    `json:"tier" yaml:"tier"`
	Policy     types.Policy        `json:"policy" yaml:"policy"`
	Preference types.Preference    `json:"preference" yaml:"preference"`
	Experience types.Experience    `json:"experience" yaml:"experience"`
	AutoTune   bool                `json:"auto_tune" yaml:"auto_tune"`
	Signals    types.SystemSignals `json:"signals" yaml:"signals"`
	Throttled  bool                `json:"throttled" yaml:"throttled"`
	Tuning     types.VisualTuning  `json:"tuning" yaml:"tuning"`
	Gates      gates.Gates         `json:"gates" yaml:"gates"`
	Recomputes uint64              `json:"recomputes" yaml:"recomputes"`
	Publishes  uint64              `json:"publishes" yaml:"publishes"`
	UpdatedAt  time.Time           `json:"updated_at" yaml:"updated_at"`
}

// Status returns a snapshot of the profile.
func (p *Profile) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	throttled := p.signals.ThrottleActive()
	return Status{
		Identifier: p.identifier,
		Tier:       p.tier,
		Policy:     p.policy,
		Preference: p.preference,
		Experience: p.experience,
		AutoTune:   p.autoTune,
		Signals:    p.signals,
		Throttled:  throttled,
		Tuning:     p.tuning,
		Gates:      gates.Compute(p.tuning, p.experience, throttled),
		Recomputes: p.recomputes,
		Publishes:  p.publishes,
		UpdatedAt:  p.updatedAt,
	}
}
