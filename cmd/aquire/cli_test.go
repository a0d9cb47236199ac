package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/output"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig points every path at dir and uses the static signal
// source so results do not depend on the host.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	body := strings.Join([]string{
		"store:",
		"  path: " + filepath.Join(dir, "store"),
		"signals:",
		"  sources: [static]",
		"logging:",
		"  path: " + filepath.Join(dir, "aquire.log"),
		"daemon:",
		"  socket_path: " + filepath.Join(dir, "aquired.sock"),
		"  pid_path: " + filepath.Join(dir, "aquired.pid"),
		"  status_path: " + filepath.Join(dir, "aquired.status"),
		"  state_path: " + filepath.Join(dir, "state.json"),
		"",
	}, "\n")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// resetFlags restores every flag to its default so state from one test
// does not leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes the root command against an isolated config in dir.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfgFile = ""
	t.Cleanup(func() { _ = logging.Close() })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", writeTestConfig(t, dir), "--no-daemon", "-q"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// plainFields parses "key  value" lines from the plain formatter.
func plainFields(out string) map[string]string {
	fields := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		idx := strings.LastIndex(line, "  ")
		if idx < 0 {
			continue
		}
		fields[strings.TrimSpace(line[:idx])] = strings.TrimSpace(line[idx:])
	}
	return fields
}

func TestCompute_Plain(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		wantBlur      string
		wantAnimation string
		wantThrottled string
	}{
		{
			name:          "high cinematic",
			args:          []string{"--tier", "high", "--preference", "cinematic"},
			wantBlur:      "15",
			wantAnimation: "2",
			wantThrottled: "false",
		},
		{
			name:          "medium balanced",
			args:          []string{"--tier", "medium"},
			wantBlur:      "6",
			wantAnimation: "1",
			wantThrottled: "false",
		},
		{
			name:          "low power throttles",
			args:          []string{"--tier", "high", "--preference", "cinematic", "--low-power"},
			wantBlur:      "0",
			wantAnimation: "0",
			wantThrottled: "true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"compute", "-o", "plain"}, tt.args...)
			out, err := runCLI(t, t.TempDir(), args...)
			require.NoError(t, err)

			fields := plainFields(out)
			if tt.wantBlur != "" {
				assert.Equal(t, tt.wantBlur, fields["blur_strength"])
			}
			assert.Equal(t, tt.wantAnimation, fields["animation_level"])
			assert.Equal(t, tt.wantThrottled, fields["throttled"])
		})
	}
}

func TestCompute_JSON(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "compute", "-o", "json", "--tier", "low", "--thermal", "serious")
	require.NoError(t, err)

	var r output.Result
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	require.NotNil(t, r.Status)
	assert.Equal(t, types.TierLow, r.Status.Tier)
	assert.Equal(t, types.ThermalSerious, r.Status.Signals.Thermal)
	assert.True(t, r.Status.Throttled)
}

func TestCompute_InvalidInput(t *testing.T) {
	for _, args := range [][]string{
		{"compute", "--tier", "enormous"},
		{"compute", "--preference", "turbo"},
		{"compute", "--thermal", "lukewarm"},
		{"compute", "--policy", "vibes"},
	} {
		_, err := runCLI(t, t.TempDir(), args...)
		assert.Error(t, err, "args %v", args)
	}
}

func TestPrefs_SetGetReset(t *testing.T) {
	dir := t.TempDir()

	_, err := runCLI(t, dir, "prefs", "set", "perfPreference", "battery")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "prefs", "get", "perfPreference")
	require.NoError(t, err)
	assert.Equal(t, "battery", strings.TrimSpace(out), "preference persists across runs")

	_, err = runCLI(t, dir, "prefs", "set", "perfPreference", "warp")
	assert.Error(t, err)

	_, err = runCLI(t, dir, "prefs", "get", "colour")
	assert.Error(t, err)

	_, err = runCLI(t, dir, "prefs", "reset")
	require.NoError(t, err)

	out, err = runCLI(t, dir, "prefs", "get", "perfPreference")
	require.NoError(t, err)
	assert.Equal(t, "balanced", strings.TrimSpace(out))
}

func TestStatus_JSON(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "status", "-o", "json", "--prefs")
	require.NoError(t, err)

	var r output.Result
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, output.SourceLocal, r.Source)
	assert.False(t, r.DaemonUp)
	require.NotNil(t, r.Status)
	assert.Equal(t, types.PreferenceBalanced, r.Status.Preference)
	assert.False(t, r.Status.Throttled, "static source reports nominal signals")
	assert.NotEmpty(t, r.Prefs)
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "compute", "--tier", "low", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available")
}

func TestStatusLine(t *testing.T) {
	st := profile.Status{
		Tier:       types.TierMedium,
		Preference: types.PreferenceBalanced,
		Tuning: types.VisualTuning{
			BlurStrength:        6,
			ShadowRadius:        12.5,
			AnimationLevel:      1,
			AllowBackgroundBlur: true,
		},
		Throttled: true,
		UpdatedAt: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	}

	line := statusLine(st)
	for _, want := range []string{"15:04:05", "tier=medium", "blur=6", "shadow=12.5", "anim=1", "bg_blur=true", "overlay=false", "throttled"} {
		assert.Contains(t, line, want)
	}
}
