package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/engine"
	"github.com/jamesainslie/aquire/pkg/aquire/output"
	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/client"
	"github.com/jamesainslie/aquire/pkg/daemon"
)

// session is either a connection to aquired or an in-process engine.
// Exactly one of daemon and local is set.
type session struct {
	daemon *client.Client
	pid    int
	local  *engine.Engine
}

// openSession prefers a running daemon unless --no-daemon is given.
func openSession(ctx context.Context) (*session, error) {
	if !noDaemon() {
		if pid, ok := daemon.Running(cfg.Daemon.PIDPath); ok {
			printVerbose("daemon running (pid %d), connecting to %s", pid, cfg.Daemon.SocketPath)
			c, err := client.ConnectWithContext(ctx, cfg.Daemon.SocketPath)
			if err == nil {
				return &session{daemon: c, pid: pid}, nil
			}
			printVerbose("daemon unreachable: %v", err)
		}
	}

	eng, err := engine.Open(cfg)
	if err != nil {
		if errors.Is(err, engine.ErrStoreLocked) {
			return nil, fmt.Errorf("%w; stop aquired or drop --no-daemon", err)
		}
		return nil, err
	}

	// Give the profile one reading of every source so status is live.
	primeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := eng.Observer.Prime(primeCtx); err != nil {
		printVerbose("signal sources: %v", err)
	}
	eng.Profile.UpdateSignals(eng.Observer.Snapshot())

	return &session{local: eng}, nil
}

func (s *session) Close() {
	if s.daemon != nil {
		s.daemon.Close()
	}
	if s.local != nil {
		_ = s.local.Close()
	}
}

func (s *session) source() output.Source {
	if s.daemon != nil {
		return output.SourceDaemon
	}
	return output.SourceLocal
}

// result starts an output.Result describing where data came from.
func (s *session) result() *output.Result {
	r := &output.Result{Source: s.source()}
	if s.daemon != nil {
		r.DaemonUp = true
		r.DaemonPID = s.pid
	} else {
		r.DaemonPID, r.DaemonUp = daemon.Running(cfg.Daemon.PIDPath)
	}
	return r
}

func (s *session) Status(ctx context.Context) (profile.Status, error) {
	if s.daemon != nil {
		resp, err := s.daemon.Status(ctx)
		if err != nil {
			return profile.Status{}, err
		}
		return resp.Profile, nil
	}
	return s.local.Profile.Status(), nil
}

func (s *session) Prefs(ctx context.Context) ([]prefs.Entry, error) {
	if s.daemon != nil {
		return s.daemon.Prefs(ctx)
	}
	return s.local.Store.Entries(), nil
}

func (s *session) SetPref(ctx context.Context, key, value string) ([]prefs.Entry, error) {
	if s.daemon != nil {
		return s.daemon.SetPref(ctx, key, value)
	}
	if err := s.local.Profile.Apply(key, value); err != nil {
		return nil, err
	}
	return s.local.Store.Entries(), nil
}

func (s *session) ResetPrefs(ctx context.Context) ([]prefs.Entry, error) {
	if s.daemon != nil {
		return s.daemon.ResetPrefs(ctx)
	}
	if err := s.local.Store.Reset(); err != nil {
		return nil, err
	}
	s.local.Profile.Reload()
	return s.local.Store.Entries(), nil
}

func (s *session) Telemetry(ctx context.Context) ([]telemetry.Event, error) {
	if s.daemon != nil {
		return s.daemon.Telemetry(ctx)
	}
	return s.local.Telemetry.Events(), nil
}

func (s *session) ClearTelemetry(ctx context.Context) error {
	if s.daemon != nil {
		return s.daemon.ClearTelemetry(ctx)
	}
	s.local.Telemetry.Clear()
	return nil
}
