package profile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/metrics"
	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *prefs.Store {
	t.Helper()
	s, err := prefs.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func receive(t *testing.T, sub *profile.Subscription) types.VisualTuning {
	t.Helper()
	select {
	case v := <-sub.C:
		return v
	case <-time.After(time.Second):
		t.Fatal("no tuning published")
		return types.VisualTuning{}
	}
}

func assertNothing(t *testing.T, sub *profile.Subscription) {
	t.Helper()
	select {
	case v := <-sub.C:
		t.Fatalf("unexpected publish: %+v", v)
	default:
	}
}

var (
	highCinematic = types.VisualTuning{
		BlurStrength:          15,
		ShadowRadius:          18 * 1.15,
		AnimationLevel:        2,
		AllowBackgroundBlur:   true,
		AllowHighlightOverlay: true,
	}
	mediumBalanced = types.VisualTuning{
		BlurStrength:          6,
		ShadowRadius:          12,
		AnimationLevel:        1,
		AllowBackgroundBlur:   true,
		AllowHighlightOverlay: true,
	}
)

func TestNew_DefaultsAndClassification(t *testing.T) {
	p := profile.New(newStore(t), profile.WithIdentifier("Quantum1,1"))

	assert.Equal(t, types.TierMedium, p.Tier(), "unknown identifiers are medium")
	assert.Equal(t, types.PreferenceBalanced, p.Preference())
	assert.True(t, p.AutoTune())
	assert.Equal(t, mediumBalanced, p.Current())

	st := p.Status()
	assert.Equal(t, "Quantum1,1", st.Identifier)
	assert.Equal(t, types.PolicyDevice, st.Policy)
	assert.EqualValues(t, 1, st.Publishes)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestNew_ReadsStoredPreference(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SetPreference(types.PreferenceCinematic))

	p := profile.New(store, profile.WithTier(types.TierHigh))
	got := p.Current()

	assert.Equal(t, 15.0, got.BlurStrength)
	assert.InDelta(t, 20.7, got.ShadowRadius, 1e-9)
	assert.Equal(t, 2, got.AnimationLevel)
	assert.True(t, got.AllowBackgroundBlur)
	assert.True(t, got.AllowHighlightOverlay)
}

func TestSetPreference_PublishesAndPersists(t *testing.T) {
	store := newStore(t)
	p := profile.New(store, profile.WithTier(types.TierLow))
	sub := p.Subscribe()

	p.SetPreference(types.PreferenceBattery)

	got := receive(t, sub)
	assert.Equal(t, types.VisualTuning{ShadowRadius: 6 * 0.6}, got)
	assert.Equal(t, types.PreferenceBattery, store.Preference())
}

func TestSuppression(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SetAutoTune(false))

	p := profile.New(store, profile.WithTier(types.TierMedium))
	sub := p.Subscribe()

	// Auto-tune is off, so throttling signals leave the tuning alone.
	p.UpdateSignals(types.SystemSignals{ReduceMotion: true, Thermal: types.ThermalNominal})
	p.UpdateSignals(types.SystemSignals{ReduceMotion: true, Thermal: types.ThermalCritical})
	p.SetPreference(types.PreferenceBalanced)

	assertNothing(t, sub)

	st := p.Status()
	assert.EqualValues(t, 4, st.Recomputes)
	assert.EqualValues(t, 1, st.Publishes)
	assert.Equal(t, mediumBalanced, st.Tuning)
}

func TestAutoTuneToggleWhileThrottled(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SetPreference(types.PreferenceCinematic))

	p := profile.New(store,
		profile.WithTier(types.TierHigh),
		profile.WithSignals(types.SystemSignals{Thermal: types.ThermalCritical}),
	)

	throttled := p.Current()
	assert.Equal(t, 0.0, throttled.BlurStrength)
	assert.LessOrEqual(t, throttled.ShadowRadius, 10.0)
	assert.Equal(t, 0, throttled.AnimationLevel)
	assert.False(t, throttled.AllowBackgroundBlur)
	assert.False(t, throttled.AllowHighlightOverlay)

	sub := p.Subscribe()
	p.SetAutoTune(false)

	got := receive(t, sub)
	assert.Equal(t, 15.0, got.BlurStrength)
	assert.InDelta(t, highCinematic.ShadowRadius, got.ShadowRadius, 1e-9)
	assert.Equal(t, 2, got.AnimationLevel)
	assert.False(t, store.AutoTune())

	p.SetAutoTune(true)
	assert.Equal(t, throttled, receive(t, sub))
}

func TestSlowSubscriberKeepsLatest(t *testing.T) {
	p := profile.New(newStore(t), profile.WithTier(types.TierHigh))
	sub := p.Subscribe()

	p.SetPreference(types.PreferenceBattery)
	p.SetPreference(types.PreferenceCinematic)

	got := receive(t, sub)
	assert.Equal(t, 15.0, got.BlurStrength)
	assertNothing(t, sub)
}

func TestUnsubscribeAndClose(t *testing.T) {
	p := profile.New(newStore(t), profile.WithTier(types.TierHigh))

	a := p.Subscribe()
	b := p.Subscribe()
	p.Unsubscribe(a.ID)
	_, open := <-a.C
	assert.False(t, open)

	p.Close()
	_, open = <-b.C
	assert.False(t, open)

	late := p.Subscribe()
	_, open = <-late.C
	assert.False(t, open)

	assert.NotPanics(t, func() { p.SetPreference(types.PreferenceBattery) })
}

func TestSetExperience(t *testing.T) {
	store := newStore(t)
	p := profile.New(store, profile.WithTier(types.TierLow))

	p.SetExperience(types.ExperiencePerformance)

	assert.Equal(t, types.PreferenceBattery, p.Preference())
	assert.Equal(t, types.ExperiencePerformance, store.AppProfile().Experience)
	assert.Equal(t, types.PreferenceBattery, store.Preference())

	st := p.Status()
	assert.Equal(t, types.ExperiencePerformance, st.Experience)
	assert.False(t, st.Gates.Animations)
	assert.True(t, st.Gates.Shadows)
}

func TestAttach_RecomputesOnEachChange(t *testing.T) {
	src := signals.NewManual("manual")
	obs := signals.NewObserver(src)

	p := profile.New(newStore(t), profile.WithTier(types.TierHigh))
	detach := p.Attach(obs)
	defer detach()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = obs.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	sub := p.Subscribe()
	src.Set(types.SystemSignals{LowPowerMode: true, Thermal: types.ThermalNominal})

	got := receive(t, sub)
	assert.Equal(t, 0.0, got.BlurStrength)
	assert.Equal(t, 10.0, got.ShadowRadius)
	assert.True(t, p.Throttled())

	src.Set(types.DefaultSignals())
	got = receive(t, sub)
	assert.Equal(t, 12.0, got.BlurStrength)
}

func TestSignalsPolicyIgnoresHardware(t *testing.T) {
	low := profile.New(newStore(t), profile.WithTier(types.TierLow), profile.WithPolicy(types.PolicySignals))
	high := profile.New(newStore(t), profile.WithTier(types.TierHigh), profile.WithPolicy(types.PolicySignals))

	assert.Equal(t, low.Current(), high.Current())
	assert.Equal(t, highCinematic.BlurStrength, low.Current().BlurStrength)

	low.UpdateSignals(types.SystemSignals{Thermal: types.ThermalFair})
	assert.Equal(t, mediumBalanced, low.Current())
}

type brokenStore struct {
	*prefs.Store
}

var errDiskFull = errors.New("disk full")

func (brokenStore) SetPreference(types.Preference) error { return errDiskFull }
func (brokenStore) SetAutoTune(bool) error               { return errDiskFull }
func (brokenStore) SetExperience(types.Experience) error { return errDiskFull }

func TestPersistFailureKeepsSessionValue(t *testing.T) {
	m := metrics.NewManager()
	p := profile.New(brokenStore{newStore(t)}, profile.WithTier(types.TierMedium), profile.WithMetrics(m))
	sub := p.Subscribe()

	p.SetPreference(types.PreferenceCinematic)

	assert.Equal(t, types.PreferenceCinematic, p.Preference())
	assert.Equal(t, 7.5, receive(t, sub).BlurStrength)
}

func TestTelemetry(t *testing.T) {
	log := telemetry.New()
	p := profile.New(newStore(t), profile.WithTier(types.TierMedium), profile.WithTelemetry(log))

	p.SetPreference(types.PreferenceCinematic)
	p.SetAutoTune(false)

	names := []string{}
	for _, e := range log.Events() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{
		telemetry.EventAutoTuneChanged,
		telemetry.EventTuningChanged,
		telemetry.EventPreferenceChanged,
	}, names, "auto-tune off without throttling changes nothing visible")
}

func TestConcurrentEvents(t *testing.T) {
	p := profile.New(newStore(t), profile.WithTier(types.TierHigh))
	sub := p.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			p.SetPreference(types.Preferences[i%len(types.Preferences)])
		}(i)
		go func(i int) {
			defer wg.Done()
			p.UpdateSignals(types.SystemSignals{LowPowerMode: i%2 == 0, Thermal: types.ThermalNominal})
		}(i)
	}
	wg.Wait()

	// Whatever order the events landed in, the published value is the
	// engine's answer for the final state.
	st := p.Status()
	assert.EqualValues(t, 17, st.Recomputes)
	select {
	case v := <-sub.C:
		assert.Equal(t, st.Tuning, v)
	default:
	}
}

func TestConcurrentSettersKeepStoreInStep(t *testing.T) {
	store := newStore(t)
	p := profile.New(store, profile.WithTier(types.TierMedium))

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.SetPreference(types.Preferences[i%len(types.Preferences)])
		}()
		go func() {
			defer wg.Done()
			p.SetAutoTune(i%2 == 0)
		}()
	}
	wg.Wait()

	assert.Equal(t, store.Preference(), p.Preference())
	assert.Equal(t, store.AutoTune(), p.AutoTune())
}

func TestApply(t *testing.T) {
	store := newStore(t)
	p := profile.New(store, profile.WithTier(types.TierMedium))

	require.NoError(t, p.Apply(prefs.KeyPreference, "cinematic"))
	assert.Equal(t, types.PreferenceCinematic, p.Preference())
	assert.Equal(t, types.PreferenceCinematic, store.Preference())

	require.NoError(t, p.Apply(prefs.KeyAutoTune, "false"))
	assert.False(t, p.AutoTune())

	require.NoError(t, p.Apply(prefs.KeyExperience, "performance"))
	assert.Equal(t, types.PreferenceBattery, p.Preference())

	require.NoError(t, p.Apply(prefs.KeyTelemetryOptIn, "true"))
	assert.True(t, store.AppProfile().TelemetryOptIn)

	assert.Error(t, p.Apply(prefs.KeyPreference, "turbo"))
	assert.Error(t, p.Apply(prefs.KeyAutoTune, "maybe"))
	assert.ErrorIs(t, p.Apply("colour", "blue"), prefs.ErrUnknownKey)
}

func TestReload_AfterReset(t *testing.T) {
	store := newStore(t)
	p := profile.New(store, profile.WithTier(types.TierMedium))
	p.SetPreference(types.PreferenceCinematic)
	require.NoError(t, store.Reset())

	sub := p.Subscribe()
	p.Reload()

	assert.Equal(t, mediumBalanced, receive(t, sub))
	assert.Equal(t, types.PreferenceBalanced, p.Preference())

	_, stored, err := store.Get(prefs.KeyPreference)
	require.NoError(t, err)
	assert.False(t, stored, "reload does not write defaults back")
}
