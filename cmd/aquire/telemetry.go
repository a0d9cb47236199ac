package main

import (
	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/spf13/cobra"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Show the local telemetry log",
	Long: `Show the local, newest-first event log. Nothing is sent anywhere.

Events are only recorded after opting in with 'aquire telemetry enable'.`,
	Args: cobra.NoArgs,
	RunE: runTelemetryShow,
}

var telemetryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every recorded event",
	Args:  cobra.NoArgs,
	RunE:  runTelemetryClear,
}

var telemetryEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Opt in to local telemetry",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, _ []string) error { return setTelemetryOptIn(cmd, true) },
}

var telemetryDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Opt out of local telemetry",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, _ []string) error { return setTelemetryOptIn(cmd, false) },
}

func init() {
	telemetryCmd.Flags().IntP("limit", "l", 20, "maximum number of events to show (0 for all)")

	telemetryCmd.AddCommand(telemetryClearCmd)
	telemetryCmd.AddCommand(telemetryEnableCmd)
	telemetryCmd.AddCommand(telemetryDisableCmd)
	rootCmd.AddCommand(telemetryCmd)
}

func runTelemetryShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.Telemetry(ctx)
	if err != nil {
		return err
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	r := s.result()
	r.Telemetry = events
	if len(events) == 0 {
		r.Warnings = append(r.Warnings, "no telemetry recorded; opt in with 'aquire telemetry enable'")
	}
	return render(cmd.OutOrStdout(), r)
}

func runTelemetryClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.ClearTelemetry(ctx); err != nil {
		return err
	}
	printInfo("Telemetry cleared")
	return nil
}

func setTelemetryOptIn(cmd *cobra.Command, on bool) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	value := "false"
	if on {
		value = "true"
	}
	if _, err := s.SetPref(ctx, prefs.KeyTelemetryOptIn, value); err != nil {
		return err
	}
	if on {
		printInfo("Telemetry enabled (stored locally only)")
	} else {
		printInfo("Telemetry disabled")
	}
	return nil
}
