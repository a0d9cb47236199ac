package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// PlainFormatter writes unstyled key/value lines, suitable for pipes.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if st := r.Status; st != nil {
		fmt.Fprintf(tw, "identifier\t%s\n", st.Identifier)
		fmt.Fprintf(tw, "tier\t%s\n", st.Tier)
		fmt.Fprintf(tw, "policy\t%s\n", st.Policy)
		fmt.Fprintf(tw, "preference\t%s\n", st.Preference)
		fmt.Fprintf(tw, "experience\t%s\n", st.Experience)
		fmt.Fprintf(tw, "auto_tune\t%t\n", st.AutoTune)
		for _, sig := range types.AllSignals {
			fmt.Fprintf(tw, "%s\t%s\n", sig, st.Signals.Value(sig))
		}
		fmt.Fprintf(tw, "throttled\t%t\n", st.Throttled)
		fmt.Fprintf(tw, "blur_strength\t%s\n", formatFloat(st.Tuning.BlurStrength))
		fmt.Fprintf(tw, "shadow_radius\t%s\n", formatFloat(st.Tuning.ShadowRadius))
		fmt.Fprintf(tw, "animation_level\t%d\n", st.Tuning.AnimationLevel)
		fmt.Fprintf(tw, "allow_background_blur\t%t\n", st.Tuning.AllowBackgroundBlur)
		fmt.Fprintf(tw, "allow_highlight_overlay\t%t\n", st.Tuning.AllowHighlightOverlay)
		for _, g := range st.Gates.Names() {
			fmt.Fprintf(tw, "gate %s\t%t\n", g.Name, g.Enabled)
		}
		fmt.Fprintf(tw, "recomputes\t%d\n", st.Recomputes)
		fmt.Fprintf(tw, "publishes\t%d\n", st.Publishes)
	}

	if r.Source != "" {
		fmt.Fprintf(tw, "source\t%s\n", r.Source)
	}
	if r.DaemonUp {
		fmt.Fprintf(tw, "daemon_pid\t%d\n", r.DaemonPID)
	}

	for _, e := range r.Prefs {
		fmt.Fprintf(tw, "%s\t%s\n", e.Key, e.Value)
	}

	for _, e := range r.Telemetry {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.At.Format(time.RFC3339), e.Name, e.Detail)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

func init() {
	Register("plain", func() Formatter { return &PlainFormatter{} })
}

var _ Formatter = (*PlainFormatter)(nil)
