package signals

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"gopkg.in/yaml.v3"
)

// fileSignals is the on-disk layout of a signal file. JSON is accepted too.
type fileSignals struct {
	LowPowerMode       bool   `yaml:"low_power_mode"`
	ReduceMotion       bool   `yaml:"reduce_motion"`
	ReduceTransparency bool   `yaml:"reduce_transparency"`
	ThermalState       string `yaml:"thermal_state"`
}

// File reads signals from a YAML file and watches it for changes. It lets
// hosts without native notifications (containers, CI, kiosks) feed signals
// from another process.
type File struct {
	path string
}

// NewFile returns a source backed by path.
func NewFile(path string) *File {
	return &File{path: filepath.Clean(path)}
}

// Name implements Source.
func (f *File) Name() string { return "file" }

// Path returns the watched file.
func (f *File) Path() string { return f.path }

// Provides implements Source.
func (f *File) Provides() []types.Signal { return types.AllSignals }

// Read implements Source. A missing file reads as defaults.
func (f *File) Read(context.Context) (types.SystemSignals, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.DefaultSignals(), nil
	}
	if err != nil {
		return types.DefaultSignals(), fmt.Errorf("reading signal file: %w", err)
	}

	return ParseSignals(data)
}

// ParseSignals decodes a signal document. An unrecognised thermal state is
// kept as unknown, which throttles.
func ParseSignals(data []byte) (types.SystemSignals, error) {
	var raw fileSignals
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return types.DefaultSignals(), fmt.Errorf("parsing signal file: %w", err)
	}

	thermal, err := types.ParseThermal(raw.ThermalState)
	if err != nil {
		logging.Get("signals").Warn("unrecognised thermal state", "value", raw.ThermalState)
	}

	return types.SystemSignals{
		LowPowerMode:       raw.LowPowerMode,
		ReduceMotion:       raw.ReduceMotion,
		ReduceTransparency: raw.ReduceTransparency,
		Thermal:            thermal,
	}, nil
}

// WriteSignals writes s to path in the format File reads.
func WriteSignals(path string, s types.SystemSignals) error {
	data, err := yaml.Marshal(fileSignals{
		LowPowerMode:       s.LowPowerMode,
		ReduceMotion:       s.ReduceMotion,
		ReduceTransparency: s.ReduceTransparency,
		ThermalState:       s.Thermal.String(),
	})
	if err != nil {
		return fmt.Errorf("encoding signals: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating signal directory: %w", err)
	}

	// Write-then-rename so watchers never see a partial document.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing signal file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Watch implements Source. The parent directory is watched so that editors
// and writers that replace the file by rename are still seen.
func (f *File) Watch(ctx context.Context, emit func(types.SystemSignals)) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating signal directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	log := logging.Get("signals")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			sig, err := f.Read(ctx)
			if err != nil {
				// Half-written documents are common; the next write event
				// will carry the complete file.
				log.Debug("skipping unreadable signal file", "path", f.path, "error", err)
				continue
			}
			emit(sig)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", "error", err)
		}
	}
}
