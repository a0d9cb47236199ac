package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the live tuning",
	Long: `Show the device tier, system signals, preference and the resulting
visual tuning and effect gates.

With aquired running this is the daemon's live profile; otherwise the
signal sources are read once and the tuning computed in-process.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("prefs", false, "include stored preferences")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.Status(ctx)
	if err != nil {
		return err
	}

	r := s.result()
	r.Status = &st

	if withPrefs, _ := cmd.Flags().GetBool("prefs"); withPrefs {
		if r.Prefs, err = s.Prefs(ctx); err != nil {
			return err
		}
	}

	return render(cmd.OutOrStdout(), r)
}
