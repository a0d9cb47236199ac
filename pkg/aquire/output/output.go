// Package output renders profile status, preferences and telemetry for the
// CLI in several formats (pretty, plain, json, yaml).
//
//	f, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := f.Format(&buf, &output.Result{Status: &st}); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
)

// Source says where a status came from.
type Source string

const (
	// SourceLocal is a profile computed in the CLI process.
	SourceLocal Source = "local"
	// SourceDaemon is the state published by a running aquired.
	SourceDaemon Source = "daemon"
)

// Result is everything a formatter may render. Empty sections are skipped.
type Result struct {
	Source    Source            `json:"source,omitempty" yaml:"source,omitempty"`
	DaemonUp  bool              `json:"daemon_up" yaml:"daemon_up"`
	DaemonPID int               `json:"daemon_pid,omitempty" yaml:"daemon_pid,omitempty"`
	Status    *profile.Status   `json:"status,omitempty" yaml:"status,omitempty"`
	Prefs     []prefs.Entry     `json:"prefs,omitempty" yaml:"prefs,omitempty"`
	Telemetry []telemetry.Event `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	Warnings  []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Formatter renders a Result.
type Formatter interface {
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps formatter names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds or replaces a formatter.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available lists the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
