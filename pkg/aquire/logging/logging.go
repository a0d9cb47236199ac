// Package logging provides component loggers shared by the aquire CLI, TUI and
// daemon. Output goes to a size-rotated file and optionally to stderr.
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logging.Get("profile").Info("tuning published", "blur", 6.0)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// ErrInvalidLevel is returned when a level string is not recognised.
var ErrInvalidLevel = errors.New("invalid log level")

// Level is a log severity.
type Level = log.Level

// Levels, least to most severe.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// ParseLevel parses a level name. "warning" is accepted as warn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// Config configures Init.
type Config struct {
	// Level is the default level for every component.
	Level string

	// Path is the log file. Empty means DefaultLogPath.
	Path string

	Rotation RotationConfig

	// Components overrides the level per component name.
	Components map[string]string

	// ConsoleLevel mirrors entries at or above this level to stderr.
	// Empty disables console output.
	ConsoleLevel string

	// Quiet suppresses console output regardless of ConsoleLevel. The TUI
	// sets it because it owns the terminal.
	Quiet bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}

// DefaultLogPath returns $XDG_STATE_HOME/aquire/aquire.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "aquire", "aquire.log")
}

// Entry is a log line as seen by subscribers.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
}

// Logger writes entries for one component.
type Logger struct {
	component string
	file      *log.Logger
	console   *log.Logger
}

// Component returns the logger's component name.
func (l *Logger) Component() string { return l.component }

func (l *Logger) Debug(msg string, kv ...any) { l.write(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.write(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.write(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.write(LevelError, msg, kv) }

// With returns a logger that adds kv to every entry.
func (l *Logger) With(kv ...any) *Logger {
	out := &Logger{component: l.component, file: l.file.With(kv...)}
	if l.console != nil {
		out.console = l.console.With(kv...)
	}
	return out
}

func (l *Logger) write(level Level, msg string, kv []any) {
	l.file.Log(level, msg, kv...)
	if l.console != nil {
		l.console.Log(level, msg, kv...)
	}

	// Subscribers see entries that pass the component's file level.
	if l.file.GetLevel() > level {
		return
	}
	global.publish(Entry{
		Time:      time.Now(),
		Level:     level,
		Component: l.component,
		Message:   msg,
	})
}

type state struct {
	mu          sync.RWMutex
	ready       bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	console     bool
	consoleLvl  Level
	loggers     map[string]*Logger
	subscribers map[chan Entry]struct{}
}

var global = &state{
	level:       LevelInfo,
	components:  make(map[string]Level),
	loggers:     make(map[string]*Logger),
	subscribers: make(map[chan Entry]struct{}),
}

// Init opens the log file and reconfigures every logger handed out so far.
// Loggers obtained before Init discard their output.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for name, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for %s: %w", name, err)
		}
		components[name] = parsed
	}

	console := false
	consoleLvl := LevelInfo
	if cfg.ConsoleLevel != "" && !cfg.Quiet {
		consoleLvl, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		console = true
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if global.writer != nil {
		_ = global.writer.Close()
	}
	global.writer = writer
	global.level = level
	global.components = components
	global.console = console
	global.consoleLvl = consoleLvl
	global.ready = true

	// Existing *Logger values are updated in place so package-level loggers
	// captured before Init start writing.
	for name, l := range global.loggers {
		*l = *global.build(name)
	}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	global.mu.RLock()
	l, ok := global.loggers[component]
	global.mu.RUnlock()
	if ok {
		return l
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if l, ok := global.loggers[component]; ok {
		return l
	}
	l = global.build(component)
	global.loggers[component] = l
	return l
}

// build creates a logger for component. Must be called with s.mu held.
func (s *state) build(component string) *Logger {
	level := s.level
	if lvl, ok := s.components[component]; ok {
		level = lvl
	}

	var out io.Writer = io.Discard
	if s.ready {
		out = s.writer
	}

	l := &Logger{
		component: component,
		file: log.NewWithOptions(out, log.Options{
			Level:           level,
			Prefix:          component,
			ReportTimestamp: s.ready,
			TimeFormat:      time.RFC3339,
		}),
	}

	if s.ready && s.console {
		l.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           s.consoleLvl,
			Prefix:          component,
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		})
	}
	return l
}

// Close flushes the log file, closes subscriber channels and returns every
// logger to discard mode.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	for ch := range global.subscribers {
		close(ch)
		delete(global.subscribers, ch)
	}

	if !global.ready {
		return nil
	}
	global.ready = false

	var err error
	if global.writer != nil {
		err = global.writer.Close()
		global.writer = nil
	}

	for name, l := range global.loggers {
		*l = *global.build(name)
	}

	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// Subscribe returns a channel of future entries. Entries are dropped when
// the channel is full.
func Subscribe(buffer int) <-chan Entry {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan Entry, buffer)

	global.mu.Lock()
	global.subscribers[ch] = struct{}{}
	global.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func Unsubscribe(ch <-chan Entry) {
	global.mu.Lock()
	defer global.mu.Unlock()

	for sub := range global.subscribers {
		if sub == ch {
			delete(global.subscribers, sub)
			close(sub)
			return
		}
	}
}

func (s *state) publish(e Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
