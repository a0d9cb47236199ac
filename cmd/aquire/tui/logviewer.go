package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
)

// logRingBuffer keeps the newest maxEntries log entries.
type logRingBuffer struct {
	mu         sync.RWMutex
	entries    []logging.Entry
	maxEntries int
}

func newLogRingBuffer(maxEntries int) *logRingBuffer {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &logRingBuffer{
		entries:    make([]logging.Entry, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Add appends an entry, evicting the oldest at capacity.
func (rb *logRingBuffer) Add(entry logging.Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) >= rb.maxEntries {
		rb.entries = rb.entries[1:]
	}
	rb.entries = append(rb.entries, entry)
}

// Entries returns a copy of all entries, oldest first.
func (rb *logRingBuffer) Entries() []logging.Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	result := make([]logging.Entry, len(rb.entries))
	copy(result, rb.entries)
	return result
}

func (rb *logRingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

func filterEntriesByLevel(entries []logging.Entry, minLevel logging.Level) []logging.Entry {
	result := make([]logging.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Level >= minLevel {
			result = append(result, e)
		}
	}
	return result
}

// clampLogScroll keeps offset within [0, total-visible].
func clampLogScroll(offset, totalEntries, visibleRows int) int {
	if totalEntries <= visibleRows || offset < 0 {
		return 0
	}
	return min(offset, totalEntries-visibleRows)
}

func logLevelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelDebug:
		return logDebugStyle
	case logging.LevelWarn:
		return logWarnStyle
	case logging.LevelError:
		return logErrorStyle
	default:
		return logInfoStyle
	}
}

func logLevelChar(level logging.Level) string {
	switch level {
	case logging.LevelDebug:
		return "D"
	case logging.LevelInfo:
		return "I"
	case logging.LevelWarn:
		return "W"
	case logging.LevelError:
		return "E"
	default:
		return "?"
	}
}

// LogViewerState holds the log pane state.
type LogViewerState struct {
	Open         bool
	Buffer       *logRingBuffer
	FilterLevel  logging.Level
	ScrollOffset int
}

// NewLogViewerState creates a closed pane showing every level.
func NewLogViewerState() *LogViewerState {
	return &LogViewerState{
		Buffer:      newLogRingBuffer(100),
		FilterLevel: logging.LevelDebug,
	}
}

func (s *LogViewerState) Toggle() { s.Open = !s.Open }

// SetFilterLevel changes the minimum level and resets scrolling.
func (s *LogViewerState) SetFilterLevel(level logging.Level) {
	s.FilterLevel = level
	s.ScrollOffset = 0
}

func (s *LogViewerState) ScrollUp() {
	if s.ScrollOffset > 0 {
		s.ScrollOffset--
	}
}

func (s *LogViewerState) ScrollDown(visibleRows int) {
	maxOffset := max(s.FilteredEntryCount()-visibleRows, 0)
	if s.ScrollOffset < maxOffset {
		s.ScrollOffset++
	}
}

// AddEntry records an entry. A pane scrolled to the bottom follows new
// entries.
func (s *LogViewerState) AddEntry(entry logging.Entry, visibleRows int) {
	following := s.ScrollOffset >= max(s.FilteredEntryCount()-visibleRows, 0)
	s.Buffer.Add(entry)
	if following {
		s.ScrollOffset = max(s.FilteredEntryCount()-visibleRows, 0)
	}
}

// FilteredEntryCount counts entries at or above the filter level.
func (s *LogViewerState) FilteredEntryCount() int {
	return len(filterEntriesByLevel(s.Buffer.Entries(), s.FilterLevel))
}

// Render draws the pane into width x height.
func (s *LogViewerState) Render(width, height int) string {
	if height < 3 {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf(" Logs [%s] ", s.FilterLevel.String())))
	b.WriteString(mutedTextStyle.Render("[1-4] filter  [L] close"))
	b.WriteString("\n")
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	visibleRows := max(height-2, 1)
	filtered := filterEntriesByLevel(s.Buffer.Entries(), s.FilterLevel)
	offset := clampLogScroll(s.ScrollOffset, len(filtered), visibleRows)
	end := min(offset+visibleRows, len(filtered))

	rows := 0
	for _, entry := range filtered[offset:end] {
		b.WriteString(renderLogEntry(entry, width))
		b.WriteString("\n")
		rows++
	}
	for ; rows < visibleRows; rows++ {
		b.WriteString("\n")
	}
	return b.String()
}

// renderLogEntry formats "HH:MM:SS [L] component: message".
func renderLogEntry(entry logging.Entry, width int) string {
	comp := entry.Component
	if len(comp) > 10 {
		comp = comp[:10]
	}

	prefixWidth := 8 + 1 + 3 + 1 + len(comp) + 2
	msgWidth := max(width-prefixWidth, 10)
	msg := entry.Message
	if len(msg) > msgWidth {
		msg = msg[:msgWidth-3] + "..."
	}

	return fmt.Sprintf("%s %s %s: %s",
		logTimeStyle.Render(entry.Time.Format("15:04:05")),
		logLevelStyle(entry.Level).Render("["+logLevelChar(entry.Level)+"]"),
		logComponentStyle.Render(comp),
		msg)
}
