// Package signals observes live environment signals (low power mode,
// accessibility reduce-motion/transparency, thermal state) from a registry of
// sources and delivers each individual change to subscribers in arrival order.
package signals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// ErrUnknownSource is returned when a configured source name is not known.
var ErrUnknownSource = errors.New("unknown signal source")

// Source is a provider of one or more signals.
type Source interface {
	// Name identifies the source in logs and change events.
	Name() string

	// Provides lists the signals this source owns. Signals no registered
	// source provides stay at their not-throttled value.
	Provides() []types.Signal

	// Read returns the current value of the provided signals.
	Read(ctx context.Context) (types.SystemSignals, error)

	// Watch blocks until ctx is cancelled, calling emit with a fresh reading
	// whenever the source notices a change.
	Watch(ctx context.Context, emit func(types.SystemSignals)) error
}

// Change describes a single signal field changing value.
type Change struct {
	Source   string
	Signal   types.Signal
	Previous string
	Current  string
	// Signals is the full snapshot after the change was applied.
	Signals types.SystemSignals
	At      time.Time
}

// Handler receives changes. Handlers run on the observer's dispatch loop and
// must not block.
type Handler func(Change)

// reading is a source reading queued for the dispatch loop.
type reading struct {
	source  Source
	signals types.SystemSignals
}

// Observer merges readings from its sources into one snapshot.
type Observer struct {
	sources  []Source
	owners   map[types.Signal]Source
	readings chan reading

	mu       sync.RWMutex
	current  types.SystemSignals
	handlers map[string]Handler
	order    []string
	running  bool
}

// NewObserver creates an observer over sources. When two sources provide the
// same signal, the later one owns it.
func NewObserver(sources ...Source) *Observer {
	o := &Observer{
		sources:  sources,
		owners:   make(map[types.Signal]Source),
		readings: make(chan reading, 64),
		current:  types.DefaultSignals(),
		handlers: make(map[string]Handler),
	}
	for _, src := range sources {
		for _, sig := range src.Provides() {
			o.owners[sig] = src
		}
	}
	return o
}

// Sources returns the registered sources.
func (o *Observer) Sources() []Source {
	return o.sources
}

// Provided reports whether some source owns sig.
func (o *Observer) Provided(sig types.Signal) bool {
	_, ok := o.owners[sig]
	return ok
}

// Snapshot returns the current signal values.
func (o *Observer) Snapshot() types.SystemSignals {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Subscribe registers fn for every future change. The returned function
// removes the subscription.
func (o *Observer) Subscribe(fn Handler) func() {
	id := uuid.New().String()

	o.mu.Lock()
	o.handlers[id] = fn
	o.order = append(o.order, id)
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.handlers, id)
		for i, hid := range o.order {
			if hid == id {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}
}

// Prime reads every source once and seeds the snapshot without notifying
// subscribers. A failing source keeps its defaults.
func (o *Observer) Prime(ctx context.Context) error {
	var errs []error
	for _, src := range o.sources {
		sig, err := src.Read(ctx)
		if err != nil {
			logging.Get("signals").Warn("initial read failed", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("reading %s: %w", src.Name(), err))
			continue
		}

		o.mu.Lock()
		for _, s := range src.Provides() {
			if o.owners[s] == src {
				o.current.Merge(s, sig)
			}
		}
		o.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Run starts every source's Watch and dispatches their readings until ctx is
// cancelled. Readings are applied one at a time in arrival order.
func (o *Observer) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("observer already running")
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	var wg sync.WaitGroup
	for _, src := range o.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			err := src.Watch(ctx, func(sig types.SystemSignals) {
				select {
				case o.readings <- reading{source: src, signals: sig}:
				case <-ctx.Done():
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logging.Get("signals").Error("source stopped", "source", src.Name(), "error", err)
			}
		}(src)
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case r := <-o.readings:
			o.apply(r)
		}
	}
}

// apply merges a reading and notifies once per changed field.
func (o *Observer) apply(r reading) {
	for _, sig := range r.source.Provides() {
		if o.owners[sig] != r.source {
			continue
		}

		o.mu.Lock()
		prev := o.current
		next := prev
		next.Merge(sig, r.signals)
		if prev == next {
			o.mu.Unlock()
			continue
		}
		o.current = next
		handlers := o.snapshotHandlers()
		o.mu.Unlock()

		change := Change{
			Source:   r.source.Name(),
			Signal:   sig,
			Previous: prev.Value(sig),
			Current:  next.Value(sig),
			Signals:  next,
			At:       time.Now(),
		}
		logging.Get("signals").Debug("signal changed",
			"source", change.Source, "signal", sig, "from", change.Previous, "to", change.Current)

		for _, h := range handlers {
			h(change)
		}
	}
}

// snapshotHandlers copies handlers in subscription order.
// Must be called with o.mu held.
func (o *Observer) snapshotHandlers() []Handler {
	out := make([]Handler, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.handlers[id])
	}
	return out
}
