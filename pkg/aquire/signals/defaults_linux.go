//go:build linux

package signals

// DefaultSources returns the sources available on linux. Linux has no native
// low-power or accessibility notifications, so those come from the signal
// file when one is configured and otherwise stay not-throttled. The thermal
// source is registered last so hwmon sensors own the thermal state.
func DefaultSources(opts Options) []Source {
	var sources []Source
	if opts.File != "" {
		sources = append(sources, NewFile(opts.File))
	}
	return append(sources, NewThermal(opts.Thermal, opts.PollInterval))
}
