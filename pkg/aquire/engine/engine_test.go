package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/config"
	"github.com/jamesainslie/aquire/pkg/aquire/engine"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "prefs")
	cfg.Signals.Sources = []string{"static"}
	return cfg
}

func TestOpen(t *testing.T) {
	e, err := engine.Open(testConfig(t), engine.WithInMemoryStore(), engine.WithIdentifier("iPhone16,1"))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, types.TierHigh, e.Profile.Tier())
	assert.Len(t, e.Observer.Sources(), 1)
	assert.False(t, e.Metrics.Enabled())
}

func TestOpen_DeviceOverridesAndPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Policy = "signals"
	cfg.Devices.Low = []string{"Toaster1,1"}

	e, err := engine.Open(cfg, engine.WithInMemoryStore(), engine.WithIdentifier("Toaster1,1"), engine.WithMetrics(true))
	require.NoError(t, err)
	defer e.Close()

	st := e.Profile.Status()
	assert.Equal(t, types.TierLow, st.Tier)
	assert.Equal(t, types.PolicySignals, st.Policy)
	assert.True(t, e.Metrics.Enabled())
}

func TestOpen_TelemetryNeedsOptIn(t *testing.T) {
	e, err := engine.Open(testConfig(t), engine.WithInMemoryStore(), engine.WithTier(types.TierMedium))
	require.NoError(t, err)
	defer e.Close()

	e.Profile.SetPreference(types.PreferenceCinematic)
	assert.Zero(t, e.Telemetry.Len())

	require.NoError(t, e.Store.SetTelemetryOptIn(true))
	e.Profile.SetPreference(types.PreferenceBattery)
	require.NotZero(t, e.Telemetry.Len())
	assert.Equal(t, telemetry.EventTuningChanged, e.Telemetry.Events()[0].Name)
}

func TestOpen_ExtraSourceOwnsSignals(t *testing.T) {
	manual := signals.NewManual("manual")
	e, err := engine.Open(testConfig(t),
		engine.WithInMemoryStore(),
		engine.WithTier(types.TierMedium),
		engine.WithExtraSources(manual))
	require.NoError(t, err)
	defer e.Close()

	detach := e.Profile.Attach(e.Observer)
	defer detach()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Observer.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	manual.Update(func(s *types.SystemSignals) { s.Thermal = types.ThermalCritical })
	assert.Eventually(t, e.Profile.Throttled, time.Second, 10*time.Millisecond)
}

func TestOpen_PersistentStoreIsExclusive(t *testing.T) {
	cfg := testConfig(t)

	first, err := engine.Open(cfg, engine.WithTier(types.TierMedium))
	require.NoError(t, err)
	defer first.Close()

	_, err = engine.Open(cfg, engine.WithTier(types.TierMedium))
	assert.ErrorIs(t, err, engine.ErrStoreLocked)
}

func TestOpen_BadSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Signals.Sources = []string{"crystal-ball"}

	_, err := engine.Open(cfg, engine.WithInMemoryStore())
	assert.ErrorIs(t, err, signals.ErrUnknownSource)
}

func TestOpen_UnusableStoreFallsBackToDefaults(t *testing.T) {
	cfg := testConfig(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("not a directory"), 0o644))
	cfg.Store.Path = filepath.Join(file, "prefs")

	e, err := engine.Open(cfg, engine.WithTier(types.TierMedium), engine.WithMetrics(true))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, types.PreferenceBalanced, e.Profile.Preference())
	assert.True(t, e.Profile.AutoTune())

	e.Profile.SetPreference(types.PreferenceCinematic)
	assert.Equal(t, types.PreferenceCinematic, e.Store.Preference(), "session keeps working in memory")

	families, err := e.Metrics.Registry().Gather()
	require.NoError(t, err)
	var persistErrors float64
	for _, mf := range families {
		if mf.GetName() == "aquire_tuning_persist_errors_total" {
			persistErrors = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, persistErrors)
}
