package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/metrics"
	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/daemon/broadcaster"
)

// Config wires a Service. Observer, Telemetry and Metrics may be nil.
type Config struct {
	Profile   *profile.Profile
	Observer  *signals.Observer
	Store     *prefs.Store
	Telemetry *telemetry.Log
	Metrics   *metrics.Manager
	StatePath string
}

// Service keeps a profile fed with live signals, mirrors every change
// into the state file and streams it to event subscribers.
type Service struct {
	cfg       Config
	log       *logging.Logger
	events    *broadcaster.Broadcaster
	startTime time.Time

	shutdownOnce sync.Once
	shutdown     chan struct{}

	writeMu sync.Mutex
	writes  uint64
}

// NewService creates a service. Call Run to start it.
func NewService(cfg Config) *Service {
	return &Service{
		cfg:       cfg,
		log:       logging.Get("daemon"),
		events:    broadcaster.New(),
		startTime: time.Now(),
		shutdown:  make(chan struct{}),
	}
}

// Profile returns the profile the service drives.
func (s *Service) Profile() *profile.Profile { return s.cfg.Profile }

// Events returns the broadcaster behind the event stream. It is closed
// when Run returns.
func (s *Service) Events() *broadcaster.Broadcaster { return s.events }

// Run primes the observer, attaches the profile and writes the state file
// until ctx is cancelled or Shutdown is called.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.events.Close()

	sub := s.cfg.Profile.Subscribe()
	defer s.cfg.Profile.Unsubscribe(sub.ID)

	dirty := make(chan struct{}, 1)
	observerDone := make(chan struct{})

	if o := s.cfg.Observer; o != nil {
		if err := o.Prime(ctx); err != nil {
			s.log.Warn("some signal sources failed their first read", "error", err)
		}
		detach := s.cfg.Profile.Attach(o)
		defer detach()

		// Registered after Attach, so the profile has already applied the
		// change when this runs.
		unsubscribe := o.Subscribe(func(c signals.Change) {
			s.events.Notify(broadcaster.SignalEvent(c))
			select {
			case dirty <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		go func() {
			defer close(observerDone)
			if err := o.Run(ctx); err != nil {
				s.log.Error("signal observer stopped", "error", err)
			}
		}()
	} else {
		close(observerDone)
	}

	s.writeState()
	s.log.Info("service running", "state", s.cfg.StatePath)

	for {
		select {
		case <-ctx.Done():
			<-observerDone
			return nil
		case <-s.shutdown:
			s.log.Info("shutdown requested")
			cancel()
			<-observerDone
			return nil
		case _, ok := <-sub.C:
			if !ok {
				cancel()
				<-observerDone
				return nil
			}
			s.writeState()
			s.events.Notify(broadcaster.TuningEvent(s.cfg.Profile.Status()))
		case <-dirty:
			s.writeState()
		}
	}
}

// Shutdown asks Run to return. It is safe to call more than once.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// Done is closed once Shutdown has been called.
func (s *Service) Done() <-chan struct{} {
	return s.shutdown
}

// Uptime returns how long the service has existed.
func (s *Service) Uptime() time.Duration {
	return time.Since(s.startTime)
}

func (s *Service) writeState() {
	if s.cfg.StatePath == "" {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := WriteState(s.cfg.StatePath, s.cfg.Profile.Status()); err != nil {
		s.log.Error("failed to write state file", "path", s.cfg.StatePath, "error", err)
		return
	}
	s.writes++
}

// resetPrefs clears the store and lets the profile pick up the defaults.
func (s *Service) resetPrefs() error {
	if err := s.cfg.Store.Reset(); err != nil {
		return err
	}
	s.cfg.Profile.Reload()
	s.writeState()
	return nil
}

// Writes reports how many times the state file has been written.
func (s *Service) Writes() uint64 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writes
}
