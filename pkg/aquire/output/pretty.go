package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

const barWidth = 20

// PrettyFormatter renders a styled terminal view using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	if r.Status != nil {
		w.WriteString(f.formatHeader(r))
		w.WriteString("\n")
		w.WriteString(f.formatTuning(r.Status))
		w.WriteString("\n")
	}

	if len(r.Prefs) > 0 {
		w.WriteString(f.formatPrefs(r))
		w.WriteString("\n")
	}

	if len(r.Telemetry) > 0 {
		w.WriteString(f.formatTelemetry(r))
		w.WriteString("\n")
	}

	if r.Status != nil {
		w.WriteString(f.formatFooter(r.Status))
		w.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}

	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	st := r.Status
	var lines []string

	device := st.Identifier
	if device == "" {
		device = "unknown"
	}
	lines = append(lines, fmt.Sprintf("%s %s  %s %s",
		LabelStyle.Render("Device:"), ValueStyle.Render(device),
		LabelStyle.Render("Tier:"), TitleStyle.Render(st.Tier.String())))

	auto := OffStyle.Render("off")
	if st.AutoTune {
		auto = OnStyle.Render("on")
	}
	lines = append(lines, fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		LabelStyle.Render("Policy:"), ValueStyle.Render(st.Policy.String()),
		LabelStyle.Render("Preference:"), ValueStyle.Render(st.Preference.String()),
		LabelStyle.Render("Experience:"), ValueStyle.Render(st.Experience.String()),
		LabelStyle.Render("Auto-tune:"), auto))

	lines = append(lines, f.formatSignals(st.Signals, st.Throttled))
	lines = append(lines, f.formatSource(r))

	box := HeaderBox
	if st.Throttled {
		box = ThrottleBox
	}
	return box.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatSignals(s types.SystemSignals, throttled bool) string {
	parts := make([]string, 0, len(types.AllSignals)+1)
	for _, sig := range types.AllSignals {
		value := s.Value(sig)
		style := MutedStyle
		switch {
		case value == "true":
			style = WarningStyle
		case sig == types.SignalThermalState && s.Thermal == types.ThermalCritical:
			style = DangerStyle
		case sig == types.SignalThermalState && s.Thermal.Hot():
			style = WarningStyle
		}
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render(string(sig)+":"), style.Render(value)))
	}

	if throttled {
		parts = append(parts, WarningStyle.Bold(true).Render("throttled"))
	}
	return strings.Join(parts, "  ")
}

func (f *PrettyFormatter) formatSource(r *Result) string {
	source := string(r.Source)
	if source == "" {
		source = string(SourceLocal)
	}
	daemon := MutedStyle.Render("○ daemon not running")
	if r.DaemonUp {
		label := "● daemon running"
		if r.DaemonPID > 0 {
			label = fmt.Sprintf("● daemon running (pid %d)", r.DaemonPID)
		}
		daemon = OnStyle.Render(label)
	}
	return fmt.Sprintf("%s %s  %s", LabelStyle.Render("Source:"), ValueStyle.Render(source), daemon)
}

func (f *PrettyFormatter) formatTuning(st *profile.Status) string {
	t := st.Tuning
	var b strings.Builder

	b.WriteString(SectionStyle.Render("Tuning"))
	b.WriteString("\n")

	labelWidth := 18
	row := func(label, value string) {
		b.WriteString("  ")
		b.WriteString(LabelStyle.Width(labelWidth).Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	row("blur strength", fmt.Sprintf("%s %s", bar(t.BlurStrength, types.MaxBlurStrength), ValueStyle.Render(formatFloat(t.BlurStrength))))
	row("shadow radius", fmt.Sprintf("%s %s", bar(t.ShadowRadius, types.MaxShadowRadius), ValueStyle.Render(formatFloat(t.ShadowRadius))))
	row("animation level", fmt.Sprintf("%s %s", bar(float64(t.AnimationLevel), types.MaxAnimationLevel), ValueStyle.Render(animationName(t.AnimationLevel))))
	row("background blur", onOff(t.AllowBackgroundBlur))
	row("highlight overlay", onOff(t.AllowHighlightOverlay))

	b.WriteString("\n")
	b.WriteString(SectionStyle.Render("Effects"))
	b.WriteString("\n")
	for _, g := range st.Gates.Names() {
		row(g.Name, onOff(g.Enabled))
	}

	return b.String()
}

func (f *PrettyFormatter) formatPrefs(r *Result) string {
	var b strings.Builder
	b.WriteString(SectionStyle.Render("Preferences"))
	b.WriteString("\n")

	width := 0
	for _, e := range r.Prefs {
		width = max(width, lipgloss.Width(e.Key))
	}
	for _, e := range r.Prefs {
		value := ValueStyle.Render(e.Value)
		if !e.Stored {
			value += " " + MutedStyle.Render("(default)")
		}
		fmt.Fprintf(&b, "  %s  %s\n", LabelStyle.Width(width).Render(e.Key), value)
	}
	return b.String()
}

func (f *PrettyFormatter) formatTelemetry(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", SectionStyle.Render("Telemetry"),
		MutedStyle.Render(fmt.Sprintf("(%s events, newest first)", humanize.Comma(int64(len(r.Telemetry))))))

	for _, e := range r.Telemetry {
		when := MutedStyle.Width(16).Render(humanize.Time(e.At))
		line := fmt.Sprintf("  %s %s", when, ValueStyle.Render(e.Name))
		if e.Detail != "" {
			line += "  " + MutedStyle.Render(e.Detail)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (f *PrettyFormatter) formatFooter(st *profile.Status) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Recomputes:"), ValueStyle.Render(humanize.Comma(int64(st.Recomputes)))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Published:"), ValueStyle.Render(humanize.Comma(int64(st.Publishes)))),
	}
	if !st.UpdatedAt.IsZero() {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Updated:"), MutedStyle.Render(humanize.Time(st.UpdatedAt))))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	lines := make([]string, 0, len(warnings))
	for _, w := range warnings {
		lines = append(lines, WarningStyle.Render("! "+w))
	}
	return strings.Join(lines, "\n") + "\n"
}

// bar draws value/limit as a fixed-width gauge.
func bar(value, limit float64) string {
	filled := 0
	if limit > 0 {
		filled = int(value / limit * barWidth)
	}
	filled = max(0, min(filled, barWidth))
	return BarStyle.Render(strings.Repeat("█", filled)) + MutedStyle.Render(strings.Repeat("░", barWidth-filled))
}

func onOff(on bool) string {
	if on {
		return OnStyle.Render("on")
	}
	return OffStyle.Render("off")
}

func formatFloat(f float64) string {
	return humanize.FtoaWithDigits(f, 2)
}

func animationName(level int) string {
	switch level {
	case 0:
		return "0 (off)"
	case 1:
		return "1 (reduced)"
	default:
		return fmt.Sprintf("%d (full)", level)
	}
}

func init() {
	Register("pretty", func() Formatter { return &PrettyFormatter{} })
}

var _ Formatter = (*PrettyFormatter)(nil)
