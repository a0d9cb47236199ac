//go:build !linux

package signals

// DefaultSources returns the signal file when configured, otherwise the
// static stub.
func DefaultSources(opts Options) []Source {
	if opts.File != "" {
		return []Source{NewFile(opts.File)}
	}
	return []Source{NewStatic()}
}
