// Package telemetry keeps a small, opt-in log of app-level events for
// debugging performance behaviour. Events carry no personal data.
package telemetry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
)

// DefaultCapacity is the number of events kept.
const DefaultCapacity = 200

// Event names logged by aquire.
const (
	EventAppLaunch         = "app_launch"
	EventExperienceChanged = "profile_experience_changed"
	EventPreferenceChanged = "preference_changed"
	EventAutoTuneChanged   = "autotune_changed"
	EventTuningChanged     = "tuning_changed"
	EventSignalChanged     = "signal_changed"
)

// Event is one telemetry record.
type Event struct {
	ID     string    `json:"id" yaml:"id"`
	At     time.Time `json:"at" yaml:"at"`
	Name   string    `json:"name" yaml:"name"`
	Detail string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Store persists the event list between runs. prefs.Store satisfies it.
type Store interface {
	ReadBlob(name string) ([]byte, bool, error)
	WriteBlob(name string, data []byte) error
}

const blobName = "telemetry"

// Log is a bounded, newest-first event log.
type Log struct {
	// persistMu orders store writes so the stored blob matches the last
	// change. It is taken before mu.
	persistMu sync.Mutex

	mu       sync.RWMutex
	events   []Event
	capacity int
	enabled  func() bool
	store    Store
	now      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity bounds the log to n events.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithConsent makes Log a no-op while fn reports false. Without it every
// event is recorded.
func WithConsent(fn func() bool) Option {
	return func(l *Log) { l.enabled = fn }
}

// WithStore persists the log after every change and loads it on creation.
func WithStore(s Store) Option {
	return func(l *Log) { l.store = s }
}

// New creates a log.
func New(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		enabled:  func() bool { return true },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store != nil {
		if err := l.load(); err != nil {
			logging.Get("telemetry").Warn("discarding stored telemetry", "error", err)
		}
	}
	return l
}

// Enabled reports whether events are currently recorded.
func (l *Log) Enabled() bool {
	return l.enabled()
}

// Log records an event at the front of the log, dropping the oldest beyond
// capacity. It returns false when consent is not given.
func (l *Log) Log(name, detail string) bool {
	if !l.enabled() {
		return false
	}

	e := Event{
		ID:     uuid.New().String(),
		At:     l.now(),
		Name:   name,
		Detail: detail,
	}

	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	l.events = append([]Event{e}, l.events...)
	if len(l.events) > l.capacity {
		l.events = l.events[:l.capacity]
	}
	snapshot := l.copyLocked()
	l.mu.Unlock()

	l.persist(snapshot)
	return true
}

// Logf is Log with a formatted detail.
func (l *Log) Logf(name, format string, args ...any) bool {
	return l.Log(name, fmt.Sprintf(format, args...))
}

// Events returns a copy of the log, newest first.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

// Len returns the number of events held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Clear removes every event.
func (l *Log) Clear() {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
	l.persist(nil)
}

func (l *Log) copyLocked() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Log) load() error {
	data, ok, err := l.store.ReadBlob(blobName)
	if err != nil || !ok {
		return err
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("decoding telemetry: %w", err)
	}
	if len(events) > l.capacity {
		events = events[:l.capacity]
	}

	l.mu.Lock()
	l.events = events
	l.mu.Unlock()
	return nil
}

func (l *Log) persist(events []Event) {
	if l.store == nil {
		return
	}
	if events == nil {
		events = []Event{}
	}
	data, err := json.Marshal(events)
	if err == nil {
		err = l.store.WriteBlob(blobName, data)
	}
	if err != nil {
		logging.Get("telemetry").Warn("persisting telemetry failed", "error", err)
	}
}
