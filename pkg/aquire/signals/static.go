package signals

import (
	"context"

	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// Static is the source used on platforms without a given signal. It provides
// nothing, so every signal stays at its not-throttled value.
type Static struct{}

// NewStatic returns the no-op source.
func NewStatic() *Static { return &Static{} }

// Name implements Source.
func (s *Static) Name() string { return "static" }

// Provides implements Source.
func (s *Static) Provides() []types.Signal { return nil }

// Read implements Source.
func (s *Static) Read(context.Context) (types.SystemSignals, error) {
	return types.DefaultSignals(), nil
}

// Watch implements Source. It never emits.
func (s *Static) Watch(ctx context.Context, _ func(types.SystemSignals)) error {
	<-ctx.Done()
	return nil
}
