package daemon_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/metrics"
	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"github.com/jamesainslie/aquire/pkg/daemon"
	"github.com/jamesainslie/aquire/pkg/daemon/broadcaster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *prefs.Store
	profile   *profile.Profile
	manual    *signals.Manual
	telemetry *telemetry.Log
	service   *daemon.Service
	statePath string
}

func newFixture(t *testing.T, withMetrics bool) *fixture {
	t.Helper()

	store, err := prefs.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var m *metrics.Manager
	if withMetrics {
		m = metrics.NewManager()
	}

	tel := telemetry.New()
	manual := signals.NewManual("manual")
	p := profile.New(store,
		profile.WithTier(types.TierMedium),
		profile.WithTelemetry(tel),
		profile.WithMetrics(m))

	statePath := filepath.Join(t.TempDir(), "tuning.json")
	svc := daemon.NewService(daemon.Config{
		Profile:   p,
		Observer:  signals.NewObserver(manual),
		Store:     store,
		Telemetry: tel,
		Metrics:   m,
		StatePath: statePath,
	})

	return &fixture{store: store, profile: p, manual: manual, telemetry: tel, service: svc, statePath: statePath}
}

func (f *fixture) run(t *testing.T) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.service.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("service did not stop")
		}
	})

	require.Eventually(t, func() bool { return f.service.Writes() > 0 }, 2*time.Second, 10*time.Millisecond)
	return done
}

func TestWriteAndReadState(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, daemon.WriteState(f.statePath, f.profile.Status()))

	st, err := daemon.ReadState(f.statePath)
	require.NoError(t, err)
	assert.Equal(t, types.TierMedium, st.Profile.Tier)
	assert.Equal(t, f.profile.Current(), st.Profile.Tuning)
	assert.NotZero(t, st.PID)

	_, err = daemon.ReadState(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestService_WritesStateOnSignalChange(t *testing.T) {
	f := newFixture(t, false)
	f.run(t)

	st, err := daemon.ReadState(f.statePath)
	require.NoError(t, err)
	assert.False(t, st.Profile.Throttled)

	f.manual.Update(func(s *types.SystemSignals) { s.LowPowerMode = true })

	require.Eventually(t, func() bool {
		st, err := daemon.ReadState(f.statePath)
		return err == nil && st.Profile.Throttled && st.Profile.Tuning.BlurStrength == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.profile.Throttled())
}

func TestService_Shutdown(t *testing.T) {
	f := newFixture(t, false)
	done := f.run(t)

	f.service.Shutdown()
	f.service.Shutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
	<-f.service.Done()
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPI_StatusAndPrefs(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.service.Handler(42))
	defer srv.Close()

	var status daemon.StatusResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+daemon.PathStatus, nil, &status))
	assert.Equal(t, 42, status.PID)
	assert.Equal(t, types.PreferenceBalanced, status.Profile.Preference)

	var entries []prefs.Entry
	code := doJSON(t, http.MethodPut, srv.URL+daemon.PathPrefs+"/"+prefs.KeyPreference,
		daemon.SetPrefRequest{Value: "cinematic"}, &entries)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, types.PreferenceCinematic, f.profile.Preference())
	assert.Equal(t, prefs.Entry{Key: prefs.KeyPreference, Value: "cinematic", Stored: true}, entries[0])

	st, err := daemon.ReadState(f.statePath)
	require.NoError(t, err)
	assert.Equal(t, types.PreferenceCinematic, st.Profile.Preference)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut,
		srv.URL+daemon.PathPrefs+"/"+prefs.KeyPreference, daemon.SetPrefRequest{Value: "turbo"}, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPut,
		srv.URL+daemon.PathPrefs+"/colour", daemon.SetPrefRequest{Value: "blue"}, nil))

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodDelete, srv.URL+daemon.PathPrefs, nil, &entries))
	assert.False(t, entries[0].Stored)
	assert.Equal(t, types.PreferenceBalanced, f.profile.Preference())
}

func TestAPI_Telemetry(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.service.Handler(1))
	defer srv.Close()

	f.profile.SetPreference(types.PreferenceBattery)

	var events []telemetry.Event
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+daemon.PathTelemetry, nil, &events))
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{telemetry.EventTuningChanged, telemetry.EventPreferenceChanged}, names)

	assert.Equal(t, http.StatusNoContent, doJSON(t, http.MethodDelete, srv.URL+daemon.PathTelemetry, nil, nil))
	assert.Zero(t, f.telemetry.Len())
}

func TestAPI_MetricsAndShutdown(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(f.service.Handler(1))
	defer srv.Close()

	resp, err := http.Get(srv.URL + daemon.PathMetrics)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "aquire_tuning_publishes_total")

	assert.Equal(t, http.StatusAccepted, doJSON(t, http.MethodPost, srv.URL+daemon.PathShutdown, nil, nil))
	select {
	case <-f.service.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown not signalled")
	}
}

func TestAPI_MetricsDisabled(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.service.Handler(1))
	defer srv.Close()

	resp, err := http.Get(srv.URL + daemon.PathMetrics)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_EventStream(t *testing.T) {
	f := newFixture(t, false)
	f.run(t)
	srv := httptest.NewServer(f.service.Handler(1))
	defer srv.Close()

	resp, err := http.Get(srv.URL + daemon.PathEvents + "?type=signal,tuning")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	f.manual.Update(func(s *types.SystemSignals) { s.ReduceMotion = true })

	seen := make(map[string]bool)
	sc := bufio.NewScanner(resp.Body)
	for !(seen["signal"] && seen["tuning"]) && sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev broadcaster.Event
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		seen[string(ev.Type)] = true

		switch ev.Type {
		case broadcaster.EventSignal:
			assert.Equal(t, string(types.SignalReduceMotion), ev.Signal)
			assert.Equal(t, "true", ev.Current)
		case broadcaster.EventTuning:
			require.NotNil(t, ev.Status)
			assert.True(t, ev.Status.Throttled)
		}
	}
	assert.True(t, seen["signal"], "signal event")
	assert.True(t, seen["tuning"], "tuning event")
}

func TestAPI_EventStreamRejectsUnknownType(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.service.Handler(1))
	defer srv.Close()

	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, http.MethodGet, srv.URL+daemon.PathEvents+"?type=files", nil, nil))
}
