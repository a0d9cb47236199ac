package signals

import (
	"context"
	"sync"

	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// Manual is a source whose values are set programmatically. The settings TUI
// uses it to simulate OS signals, and tests use it to drive the observer.
type Manual struct {
	name     string
	provides []types.Signal

	mu      sync.Mutex
	current types.SystemSignals
	updates chan types.SystemSignals
}

// NewManual creates a manual source owning provides. With no signals given it
// owns all four.
func NewManual(name string, provides ...types.Signal) *Manual {
	if len(provides) == 0 {
		provides = types.AllSignals
	}
	return &Manual{
		name:     name,
		provides: provides,
		current:  types.DefaultSignals(),
		updates:  make(chan types.SystemSignals, 16),
	}
}

// Name implements Source.
func (m *Manual) Name() string { return m.name }

// Provides implements Source.
func (m *Manual) Provides() []types.Signal { return m.provides }

// Read implements Source.
func (m *Manual) Read(context.Context) (types.SystemSignals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

// Set replaces the source's values and queues a reading for watchers.
func (m *Manual) Set(s types.SystemSignals) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	m.updates <- s
}

// Update applies fn to the current values and queues the result.
func (m *Manual) Update(fn func(*types.SystemSignals)) {
	m.mu.Lock()
	next := m.current
	fn(&next)
	m.current = next
	m.mu.Unlock()
	m.updates <- next
}

// Watch implements Source.
func (m *Manual) Watch(ctx context.Context, emit func(types.SystemSignals)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-m.updates:
			emit(s)
		}
	}
}
