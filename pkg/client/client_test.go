package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"github.com/jamesainslie/aquire/pkg/daemon"
	"github.com/jamesainslie/aquire/pkg/daemon/broadcaster"
)

// startTestDaemon serves a daemon.Service on a temporary socket.
func startTestDaemon(t *testing.T) (string, *daemon.Service) {
	t.Helper()

	dir, err := os.MkdirTemp("", "aqc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "d.sock")

	store, err := prefs.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tel := telemetry.New()
	svc := daemon.NewService(daemon.Config{
		Profile:   profile.New(store, profile.WithTier(types.TierHigh), profile.WithTelemetry(tel)),
		Store:     store,
		Telemetry: tel,
		StatePath: filepath.Join(dir, "tuning.json"),
	})

	srv, err := daemon.Listen("unix", socket, svc.Handler(os.Getpid()))
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close(context.Background()) })

	return socket, svc
}

func TestConnect(t *testing.T) {
	socket, _ := startTestDaemon(t)

	c, err := Connect(socket)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	c.Close()
}

func TestConnectMissingSocket(t *testing.T) {
	_, err := Connect(filepath.Join(t.TempDir(), "none.sock"))
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	socket, _ := startTestDaemon(t)
	c, err := Connect(socket)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.PID != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), st.PID)
	}
	if st.Profile.Tier != types.TierHigh {
		t.Errorf("Expected tier high, got %s", st.Profile.Tier)
	}
}

func TestPrefs(t *testing.T) {
	socket, svc := startTestDaemon(t)
	c, err := Connect(socket)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	entries, err := c.SetPref(ctx, prefs.KeyPreference, "battery")
	if err != nil {
		t.Fatalf("SetPref failed: %v", err)
	}
	if entries[0].Value != "battery" || !entries[0].Stored {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}
	if svc.Profile().Preference() != types.PreferenceBattery {
		t.Errorf("Profile did not follow the preference")
	}

	if _, err := c.SetPref(ctx, prefs.KeyPreference, "turbo"); err == nil || !strings.Contains(err.Error(), "turbo") {
		t.Errorf("Expected validation error mentioning the value, got %v", err)
	}

	entries, err = c.ResetPrefs(ctx)
	if err != nil {
		t.Fatalf("ResetPrefs failed: %v", err)
	}
	if entries[0].Stored {
		t.Error("Expected preference to be unset after reset")
	}

	listed, err := c.Prefs(ctx)
	if err != nil {
		t.Fatalf("Prefs failed: %v", err)
	}
	if len(listed) != len(prefs.Keys) {
		t.Errorf("Expected %d entries, got %d", len(prefs.Keys), len(listed))
	}
}

func TestTelemetryAndShutdown(t *testing.T) {
	socket, svc := startTestDaemon(t)
	c, err := Connect(socket)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	svc.Profile().SetAutoTune(false)

	events, err := c.Telemetry(ctx)
	if err != nil {
		t.Fatalf("Telemetry failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("Expected telemetry events")
	}

	if err := c.ClearTelemetry(ctx); err != nil {
		t.Fatalf("ClearTelemetry failed: %v", err)
	}
	if events, _ = c.Telemetry(ctx); len(events) != 0 {
		t.Errorf("Expected empty telemetry, got %d", len(events))
	}

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	select {
	case <-svc.Done():
	case <-time.After(time.Second):
		t.Error("Shutdown not delivered")
	}
}

func TestEvents(t *testing.T) {
	socket, svc := startTestDaemon(t)

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()
	t.Cleanup(func() {
		stop()
		<-done
	})
	for deadline := time.Now().Add(2 * time.Second); svc.Writes() == 0; {
		if time.Now().After(deadline) {
			t.Fatal("service did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	c, err := Connect(socket)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := c.Events(ctx, broadcaster.EventTuning)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}

	if _, err := c.SetPref(ctx, prefs.KeyPreference, "battery"); err != nil {
		t.Fatal(err)
	}

	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("stream closed early")
		}
		if ev.Type != broadcaster.EventTuning || ev.Status == nil {
			t.Fatalf("Unexpected event: %+v", ev)
		}
		if ev.Status.Preference != types.PreferenceBattery {
			t.Errorf("Expected battery preference, got %s", ev.Status.Preference)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tuning event received")
	}
}

func TestStopDaemon_NotRunning(t *testing.T) {
	dir := t.TempDir()
	paths := DaemonPaths{PID: filepath.Join(dir, "aquired.pid"), Socket: filepath.Join(dir, "d.sock")}
	if err := StopDaemon(paths); err != nil {
		t.Errorf("Expected nil when daemon is not running, got %v", err)
	}
}

func TestResolveBinary(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "aquired")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := resolveBinary(bin)
	if err != nil || got != bin {
		t.Errorf("Expected configured binary, got %q (%v)", got, err)
	}

	if _, err := resolveBinary(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for missing configured binary")
	}

	t.Setenv("GOBIN", dir)
	got, err = resolveBinary("")
	if err != nil {
		t.Fatalf("resolveBinary failed: %v", err)
	}
	if got != bin {
		exe, _ := os.Executable()
		if filepath.Dir(got) != filepath.Dir(exe) {
			t.Errorf("Expected %s, got %s", bin, got)
		}
	}
}
