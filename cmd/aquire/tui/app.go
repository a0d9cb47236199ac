package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// Options configures the TUI.
type Options struct {
	Profile *profile.Profile
	// Manual, when set, owns the signals and the signal rows become
	// editable. Otherwise they show the live OS values.
	Manual *signals.Manual
	// Logs streams log entries into the log pane.
	Logs bool
}

// setting is one editable row.
type setting int

const (
	settingPreference setting = iota
	settingExperience
	settingAutoTune
	settingLowPower
	settingReduceMotion
	settingReduceTransparency
	settingThermal
	settingCount
)

func (s setting) label() string {
	switch s {
	case settingPreference:
		return "Performance preference"
	case settingExperience:
		return "Experience"
	case settingAutoTune:
		return "Auto-tune"
	case settingLowPower:
		return "Low power mode"
	case settingReduceMotion:
		return "Reduce motion"
	case settingReduceTransparency:
		return "Reduce transparency"
	case settingThermal:
		return "Thermal state"
	}
	return ""
}

func (s setting) isSignal() bool { return s >= settingLowPower }

var (
	experiences  = []types.Experience{types.ExperiencePerformance, types.ExperienceBalanced, types.ExperienceCinematic}
	thermalSteps = []types.ThermalState{types.ThermalNominal, types.ThermalFair, types.ThermalSerious, types.ThermalCritical}
)

type keyMap struct {
	Up, Down, Next, Prev key.Binding
	Preference, AutoTune key.Binding
	Logs, Quit           key.Binding
}

var keys = keyMap{
	Up:         key.NewBinding(key.WithKeys("up", "k")),
	Down:       key.NewBinding(key.WithKeys("down", "j")),
	Next:       key.NewBinding(key.WithKeys("right", "enter", " ", "space")),
	Prev:       key.NewBinding(key.WithKeys("left")),
	Preference: key.NewBinding(key.WithKeys("p")),
	AutoTune:   key.NewBinding(key.WithKeys("a")),
	Logs:       key.NewBinding(key.WithKeys("L")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

const logPaneHeight = 8

// Model is the Bubble Tea model for the settings panel.
type Model struct {
	options Options
	status  profile.Status
	cursor  setting

	sub   *profile.Subscription
	logCh <-chan logging.Entry
	logs  *LogViewerState

	live        spinner.Model
	lastPublish time.Time
	err         error

	width  int
	height int
}

// NewModel creates the model and subscribes to the profile.
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(successColor)

	m := Model{
		options: opts,
		status:  opts.Profile.Status(),
		sub:     opts.Profile.Subscribe(),
		logs:    NewLogViewerState(),
		live:    s,
		width:   80,
		height:  24,
	}
	if opts.Logs {
		m.logCh = logging.Subscribe(100)
	}
	return m
}

// Close releases the profile and log subscriptions.
func (m Model) Close() {
	m.options.Profile.Unsubscribe(m.sub.ID)
	if m.logCh != nil {
		logging.Unsubscribe(m.logCh)
	}
}

// Init starts the listeners.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.live.Tick, m.listenForTuning(), tick()}
	if m.logCh != nil {
		cmds = append(cmds, m.listenForLogs())
	}
	return tea.Batch(cmds...)
}

type (
	// tuningMsg is a published tuning.
	tuningMsg types.VisualTuning
	// logMsg is a log entry for the pane.
	logMsg logging.Entry
	// refreshMsg re-reads the status so signal-only changes show up.
	refreshMsg struct{}
)

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m Model) listenForTuning() tea.Cmd {
	ch := m.sub.C
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return tuningMsg(v)
	}
}

func (m Model) listenForLogs() tea.Cmd {
	ch := m.logCh
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return logMsg(e)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case refreshMsg:
		m.status = m.options.Profile.Status()
		return m, tick()

	case tuningMsg:
		m.status = m.options.Profile.Status()
		m.lastPublish = time.Now()
		return m, m.listenForTuning()

	case logMsg:
		m.logs.AddEntry(logging.Entry(msg), logPaneHeight-2)
		return m, m.listenForLogs()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.live, cmd = m.live.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.logs.Open {
		switch msg.String() {
		case "esc":
			m.logs.Open = false
			return m, nil
		case "1":
			m.logs.SetFilterLevel(logging.LevelDebug)
			return m, nil
		case "2":
			m.logs.SetFilterLevel(logging.LevelInfo)
			return m, nil
		case "3":
			m.logs.SetFilterLevel(logging.LevelWarn)
			return m, nil
		case "4":
			m.logs.SetFilterLevel(logging.LevelError)
			return m, nil
		case "pgup":
			m.logs.ScrollUp()
			return m, nil
		case "pgdown":
			m.logs.ScrollDown(logPaneHeight - 2)
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, keys.Quit), msg.String() == "esc":
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < settingCount-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Next):
		m.err = m.step(m.cursor, 1)
	case key.Matches(msg, keys.Prev):
		m.err = m.step(m.cursor, -1)
	case key.Matches(msg, keys.Preference):
		m.err = m.step(settingPreference, 1)
	case key.Matches(msg, keys.AutoTune):
		m.err = m.step(settingAutoTune, 1)
	case key.Matches(msg, keys.Logs):
		m.logs.Toggle()
	}

	m.status = m.options.Profile.Status()
	return m, nil
}

// step moves a setting dir positions through its values.
func (m Model) step(s setting, dir int) error {
	p := m.options.Profile
	st := m.status

	switch s {
	case settingPreference:
		next := cycle(types.Preferences, st.Preference, dir)
		return p.Apply(prefs.KeyPreference, next.String())
	case settingExperience:
		next := cycle(experiences, st.Experience, dir)
		return p.Apply(prefs.KeyExperience, next.String())
	case settingAutoTune:
		return p.Apply(prefs.KeyAutoTune, strconv.FormatBool(!st.AutoTune))
	}

	manual := m.options.Manual
	if manual == nil {
		return fmt.Errorf("%s is read from the system; restart with --simulate to edit it", strings.ToLower(s.label()))
	}
	manual.Update(func(sig *types.SystemSignals) {
		switch s {
		case settingLowPower:
			sig.LowPowerMode = !sig.LowPowerMode
		case settingReduceMotion:
			sig.ReduceMotion = !sig.ReduceMotion
		case settingReduceTransparency:
			sig.ReduceTransparency = !sig.ReduceTransparency
		case settingThermal:
			sig.Thermal = cycle(thermalSteps, sig.Thermal, dir)
		}
	})
	return nil
}

// cycle returns the value dir steps after cur, wrapping around.
func cycle[T comparable](values []T, cur T, dir int) T {
	idx := 0
	for i, v := range values {
		if v == cur {
			idx = i
			break
		}
	}
	n := len(values)
	return values[((idx+dir)%n+n)%n]
}

// View renders the panel.
func (m Model) View() string {
	contentWidth := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")
	b.WriteString(m.renderSettings())
	b.WriteString("\n")
	b.WriteString(m.renderTuning(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	if m.logs.Open {
		b.WriteString("\n")
		b.WriteString(m.logs.Render(contentWidth, logPaneHeight))
	}

	box := outerBoxStyle
	if m.status.Throttled {
		box = throttledBoxStyle
	}
	return box.Width(m.width - 2).Render(b.String())
}

func (m Model) renderHeader() string {
	st := m.status
	device := st.Identifier
	if device == "" {
		device = "unknown device"
	}

	header := fmt.Sprintf(" %s%s", titleStyle.Render("AQUIRE"),
		mutedTextStyle.Render(fmt.Sprintf("  %s  •  %s tier  •  %s policy", device, st.Tier, st.Policy)))

	if st.Throttled {
		header += warningTextStyle.Bold(true).Render("  ▲ THROTTLED")
	}
	if m.options.Manual != nil {
		header += warningTextStyle.Render("  SIMULATED")
	} else {
		header += successTextStyle.Render("  " + m.live.View() + " LIVE")
	}
	return header
}

func (m Model) renderSettings() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Settings"))
	b.WriteString("\n")

	for s := setting(0); s < settingCount; s++ {
		if s == settingLowPower {
			b.WriteString(sectionStyle.Render("Signals"))
			b.WriteString("\n")
		}

		cursor := "  "
		style := normalItemStyle
		if s == m.cursor {
			cursor = cursorStyle.Render("▸ ")
			style = selectedItemStyle
		}
		value := valueStyle.Render(m.settingValue(s))
		if s.isSignal() && m.options.Manual == nil {
			style = disabledItemStyle
			value = mutedTextStyle.Render(m.settingValue(s) + " (system)")
		}
		b.WriteString(cursor)
		b.WriteString(style.Width(24).Render(s.label()))
		b.WriteString(value)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) settingValue(s setting) string {
	st := m.status
	switch s {
	case settingPreference:
		return st.Preference.Label()
	case settingExperience:
		return st.Experience.String()
	case settingAutoTune:
		return onOff(st.AutoTune)
	case settingLowPower:
		return onOff(st.Signals.LowPowerMode)
	case settingReduceMotion:
		return onOff(st.Signals.ReduceMotion)
	case settingReduceTransparency:
		return onOff(st.Signals.ReduceTransparency)
	case settingThermal:
		return st.Signals.Thermal.FriendlyName()
	}
	return ""
}

func (m Model) renderTuning(width int) string {
	t := m.status.Tuning
	barWidth := max(min(width-40, 30), 10)

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Tuning"))
	b.WriteString("\n")

	row := func(label, bar, value string) {
		b.WriteString("  ")
		b.WriteString(normalItemStyle.Width(20).Render(label))
		if bar != "" {
			b.WriteString(bar)
			b.WriteString(" ")
		}
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	row("Blur strength", gauge(t.BlurStrength, types.MaxBlurStrength, barWidth), humanize.FtoaWithDigits(t.BlurStrength, 2))
	row("Shadow radius", gauge(t.ShadowRadius, types.MaxShadowRadius, barWidth), humanize.FtoaWithDigits(t.ShadowRadius, 2))
	row("Animation level", gauge(float64(t.AnimationLevel), types.MaxAnimationLevel, barWidth), strconv.Itoa(t.AnimationLevel))
	row("Background blur", "", onOff(t.AllowBackgroundBlur))
	row("Highlight overlay", "", onOff(t.AllowHighlightOverlay))

	var gates []string
	for _, g := range m.status.Gates.Names() {
		style := mutedTextStyle
		if g.Enabled {
			style = successTextStyle
		}
		gates = append(gates, style.Render(g.Name))
	}
	b.WriteString("  ")
	b.WriteString(normalItemStyle.Width(20).Render("Effects"))
	b.WriteString(strings.Join(gates, " "))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderFooter() string {
	hints := []string{
		keyHint("↑↓", "move"),
		keyHint("←→", "change"),
		keyHint("p", "preference"),
		keyHint("a", "auto-tune"),
		keyHint("L", "logs"),
		keyHint("q", "quit"),
	}
	line := strings.Join(hints, "  ")

	published := "never"
	if !m.lastPublish.IsZero() {
		published = humanize.Time(m.lastPublish)
	}
	line += "\n" + mutedTextStyle.Render(fmt.Sprintf(" published %s  •  %s recomputes",
		published, humanize.Comma(int64(m.status.Recomputes))))

	if m.err != nil {
		line += "\n" + errorTextStyle.Render(" "+m.err.Error())
	}
	return line
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// Run starts the TUI and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	model := NewModel(opts)
	defer model.Close()

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
