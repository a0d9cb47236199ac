package signals

import (
	"fmt"
	"strings"
	"time"
)

// Options configures the sources built by New.
type Options struct {
	// File is the signal file path for the "file" source.
	File string

	// PollInterval is the sampling interval for polling sources.
	PollInterval time.Duration

	// Thermal holds the temperature thresholds for the "thermal" source.
	Thermal ThermalThresholds
}

// New builds sources by name. An empty list selects the platform defaults.
func New(names []string, opts Options) ([]Source, error) {
	if len(names) == 0 {
		return DefaultSources(opts), nil
	}

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "static", "none":
			sources = append(sources, NewStatic())
		case "file":
			if opts.File == "" {
				return nil, fmt.Errorf("file source requires a path")
			}
			sources = append(sources, NewFile(opts.File))
		case "thermal":
			sources = append(sources, NewThermal(opts.Thermal, opts.PollInterval))
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
	}
	return sources, nil
}
