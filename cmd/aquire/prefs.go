package main

import (
	"fmt"
	"strings"

	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/spf13/cobra"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "List stored preferences",
	Long: `List, read and change the stored preferences.

Keys:
  ` + strings.Join(prefs.Keys, "\n  ") + `

Changes to perfPreference, perfAutoTuneEnabled and experience recompute the
tuning immediately, in aquired when it is running.`,
	Args: cobra.NoArgs,
	RunE: runPrefsList,
}

var prefsGetCmd = &cobra.Command{
	Use:       "get <key>",
	Short:     "Print one preference",
	Args:      cobra.ExactArgs(1),
	ValidArgs: prefs.Keys,
	RunE:      runPrefsGet,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a preference",
	Long: `Change a preference.

Examples:
  aquire prefs set perfPreference cinematic
  aquire prefs set perfAutoTuneEnabled false
  aquire prefs set experience performance   # also selects the battery preference`,
	Args: cobra.ExactArgs(2),
	RunE: runPrefsSet,
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every stored preference",
	Args:  cobra.NoArgs,
	RunE:  runPrefsReset,
}

func init() {
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsResetCmd)
	rootCmd.AddCommand(prefsCmd)
}

func runPrefsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	r := s.result()
	if r.Prefs, err = s.Prefs(ctx); err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), r)
}

func runPrefsGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.Prefs(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Key == args[0] {
			fmt.Fprintln(cmd.OutOrStdout(), e.Value)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", prefs.ErrUnknownKey, args[0])
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.SetPref(ctx, args[0], args[1]); err != nil {
		return err
	}

	st, err := s.Status(ctx)
	if err != nil {
		return err
	}
	printInfo("%s set; tuning: blur %.2f, shadow %.2f, animation %d",
		args[0], st.Tuning.BlurStrength, st.Tuning.ShadowRadius, st.Tuning.AnimationLevel)
	return nil
}

func runPrefsReset(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	r := s.result()
	if r.Prefs, err = s.ResetPrefs(ctx); err != nil {
		return err
	}
	printInfo("Preferences reset to defaults")
	if getQuiet() {
		return nil
	}
	return render(cmd.OutOrStdout(), r)
}
