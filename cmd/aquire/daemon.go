package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/aquire/pkg/client"
	"github.com/jamesainslie/aquire/pkg/daemon"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the aquired daemon",
	Long: `Manage aquired, which keeps the tuning up to date with live system
signals, writes it to a state file other programs can read, and optionally
serves Prometheus metrics.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start aquired in the background",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop aquired gracefully",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart aquired",
	Args:  cobra.NoArgs,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether aquired is running",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func daemonPaths() client.DaemonPaths {
	return client.PathsFromConfig(cfg, cfgFile)
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	paths := daemonPaths()
	if client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon already running")
		return nil
	}
	printVerbose("starting daemon...")
	if err := client.StartDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths := daemonPaths()
	if !client.IsDaemonRunning(paths.PID) {
		return errors.New("daemon is not running")
	}
	printVerbose("stopping daemon (pid file %s)", paths.PID)
	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(_ *cobra.Command, _ []string) error {
	if err := client.RestartDaemon(daemonPaths()); err != nil {
		return err
	}
	printInfo("Daemon restarted")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	paths := daemonPaths()

	pid, running := daemon.Running(paths.PID)
	if !running {
		fmt.Fprintln(out, "Daemon: not running")
		if st, err := daemon.ReadStatus(paths.Status); err == nil && st.Status == daemon.StatusError {
			fmt.Fprintf(out, "Last start failed: %s\n", st.Error)
		}
		return nil
	}

	fmt.Fprintf(out, "Daemon: running (pid %d)\n", pid)
	fmt.Fprintf(out, "Socket: %s\n", paths.Socket)
	if st, err := daemon.ReadStatus(paths.Status); err == nil {
		fmt.Fprintf(out, "Started: %s\n", st.StartedAt.Format(time.RFC3339))
		if st.MetricsAddr != "" {
			fmt.Fprintf(out, "Metrics: http://%s/metrics\n", st.MetricsAddr)
		}
	}
	if state, err := daemon.ReadState(cfg.Daemon.StatePath); err == nil {
		fmt.Fprintf(out, "State:   %s (written %s)\n", cfg.Daemon.StatePath, state.WrittenAt.Format(time.RFC3339))
	}
	return nil
}
