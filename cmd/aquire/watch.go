package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/jamesainslie/aquire/cmd/aquire/tui"
	"github.com/jamesainslie/aquire/pkg/aquire/engine"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
	"github.com/jamesainslie/aquire/pkg/client"
	"github.com/jamesainslie/aquire/pkg/daemon"
	"github.com/jamesainslie/aquire/pkg/daemon/broadcaster"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow tuning changes as they happen",
	Long: `Print a line each time the tuning is republished.

With aquired running, watch follows the daemon's event stream (or its
state file when the socket does not answer). Otherwise the signal sources
are observed in-process.

--tui opens an interactive panel for changing the preference, experience and
auto-tune switch. Add --simulate to drive the system signals by hand.

Examples:
  aquire watch
  aquire watch -o json | jq .tuning
  aquire watch --tui --simulate`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("tui", false, "interactive settings panel")
	watchCmd.Flags().Bool("simulate", false, "with --tui, replace the system signals with editable values")
	watchCmd.Flags().Bool("logs", true, "with --tui, stream log entries into the log pane")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	useTUI, _ := cmd.Flags().GetBool("tui")
	simulate, _ := cmd.Flags().GetBool("simulate")
	if simulate && !useTUI {
		return errors.New("--simulate requires --tui")
	}

	if !noDaemon() {
		if pid, ok := daemon.Running(cfg.Daemon.PIDPath); ok {
			if useTUI {
				return fmt.Errorf("aquired (pid %d) holds the preference store; run `aquire daemon stop` first or use `aquire prefs set`", pid)
			}
			c, err := client.ConnectWithContext(ctx, cfg.Daemon.SocketPath)
			if err == nil {
				defer c.Close()
				return watchDaemon(ctx, cmd.OutOrStdout(), c)
			}
			printVerbose("daemon unreachable (%v), following %s", err, cfg.Daemon.StatePath)
			return watchStateFile(ctx, cmd.OutOrStdout(), cfg.Daemon.StatePath)
		}
	}

	var (
		opts   []engine.Option
		manual *signals.Manual
	)
	if simulate {
		manual = signals.NewManual("tui")
		opts = append(opts, engine.WithExtraSources(manual))
	}

	eng, err := engine.Open(cfg, opts...)
	if err != nil {
		if errors.Is(err, engine.ErrStoreLocked) {
			return fmt.Errorf("%w; stop aquired or drop --no-daemon", err)
		}
		return err
	}
	defer eng.Close() //nolint:errcheck // store close errors are logged

	primeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := eng.Observer.Prime(primeCtx); err != nil {
		printVerbose("signal sources: %v", err)
	}
	cancel()
	detach := eng.Profile.Attach(eng.Observer)
	defer detach()

	runCtx, cancelRun := context.WithCancel(ctx)
	observerErr := make(chan error, 1)
	observerDone := make(chan struct{})
	go func() {
		defer close(observerDone)
		observerErr <- eng.Observer.Run(runCtx)
	}()
	// The observer must be stopped before the store closes.
	defer func() {
		cancelRun()
		<-observerDone
	}()

	if useTUI {
		logs, _ := cmd.Flags().GetBool("logs")
		return tui.Run(ctx, tui.Options{Profile: eng.Profile, Manual: manual, Logs: logs})
	}
	return watchProfile(ctx, cmd.OutOrStdout(), eng, observerErr)
}

// watchProfile prints the local profile and every later publish.
func watchProfile(ctx context.Context, w io.Writer, eng *engine.Engine, observerErr <-chan error) error {
	sub := eng.Profile.Subscribe()
	defer eng.Profile.Unsubscribe(sub.ID)

	changes := make(chan signals.Change, 16)
	unsubscribe := eng.Observer.Subscribe(func(c signals.Change) {
		select {
		case changes <- c:
		default:
		}
	})
	defer unsubscribe()

	if err := printStatusLine(w, eng.Profile.Status()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-observerErr:
			return err
		case c := <-changes:
			printSignalLine(w, c.At, string(c.Signal), c.Previous, c.Current, c.Source)
		case _, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := printStatusLine(w, eng.Profile.Status()); err != nil {
				return err
			}
		}
	}
}

// watchDaemon prints the daemon's profile and then its event stream.
func watchDaemon(ctx context.Context, w io.Writer, c *client.Client) error {
	events, err := c.Events(ctx)
	if err != nil {
		return err
	}

	resp, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if err := printStatusLine(w, resp.Profile); err != nil {
		return err
	}

	for ev := range events {
		switch ev.Type {
		case broadcaster.EventTuning:
			if ev.Status == nil {
				continue
			}
			if err := printStatusLine(w, *ev.Status); err != nil {
				return err
			}
		case broadcaster.EventSignal:
			printSignalLine(w, ev.At, ev.Signal, ev.Previous, ev.Current, ev.Source)
		}
	}

	if ctx.Err() == nil {
		printInfo("aquired stopped")
	}
	return nil
}

// watchStateFile prints the daemon's state file each time it is replaced.
func watchStateFile(ctx context.Context, w io.Writer, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// The file is swapped in by rename, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	var last uint64
	show := func() error {
		st, err := daemon.ReadState(path)
		if err != nil {
			printVerbose("reading state: %v", err)
			return nil
		}
		if st.Profile.Publishes == last && last != 0 {
			return nil
		}
		last = st.Profile.Publishes
		return printStatusLine(w, st.Profile)
	}
	if err := show(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				if err := show(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			printVerbose("watcher: %v", err)
		}
	}
}

// printStatusLine writes one line per status, or one JSON object per line
// with -o json.
func printStatusLine(w io.Writer, st profile.Status) error {
	if viper.GetString("output") == "json" {
		return json.NewEncoder(w).Encode(st)
	}
	_, err := fmt.Fprintln(w, statusLine(st))
	return err
}

func printSignalLine(w io.Writer, at time.Time, signal, previous, current, source string) {
	if getQuiet() || viper.GetString("output") == "json" {
		return
	}
	fmt.Fprintf(w, "%s  signal %s %s -> %s (%s)\n", at.Format("15:04:05"), signal, previous, current, source)
}

func statusLine(st profile.Status) string {
	t := st.Tuning
	parts := []string{
		st.UpdatedAt.Format("15:04:05"),
		fmt.Sprintf("tier=%s", st.Tier),
		fmt.Sprintf("pref=%s", st.Preference),
		fmt.Sprintf("blur=%s", humanize.FtoaWithDigits(t.BlurStrength, 2)),
		fmt.Sprintf("shadow=%s", humanize.FtoaWithDigits(t.ShadowRadius, 2)),
		fmt.Sprintf("anim=%d", t.AnimationLevel),
		fmt.Sprintf("bg_blur=%t", t.AllowBackgroundBlur),
		fmt.Sprintf("overlay=%t", t.AllowHighlightOverlay),
	}
	if st.Throttled {
		parts = append(parts, "throttled")
	}
	return strings.Join(parts, "  ")
}
