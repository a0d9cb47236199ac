package main

import (
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/gates"
	"github.com/jamesainslie/aquire/pkg/aquire/output"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/tuner"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"github.com/spf13/cobra"
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute a tuning for hypothetical inputs",
	Long: `Run the tuning engine on the given inputs without touching stored
preferences or live signals. Unset inputs use this host's tier, the
balanced preference and nominal signals.

Examples:
  aquire compute --tier high --preference cinematic
  aquire compute --tier low --thermal serious
  aquire compute --policy signals --low-power`,
	Args: cobra.NoArgs,
	RunE: runCompute,
}

func init() {
	f := computeCmd.Flags()
	f.String("tier", "", "device tier: low, medium, high (default: classify this host)")
	f.String("identifier", "", "classify this hardware identifier instead of the host's")
	f.String("preference", string(types.PreferenceBalanced), "preference: battery, balanced, cinematic")
	f.String("experience", "", "onboarding experience for effect gates (default: matches preference)")
	f.String("policy", "", "policy: device, signals (default: from config)")
	f.Bool("auto-tune", true, "honour system signals")
	f.Bool("low-power", false, "low power mode is on")
	f.Bool("reduce-motion", false, "reduce motion is on")
	f.Bool("reduce-transparency", false, "reduce transparency is on")
	f.String("thermal", string(types.ThermalNominal), "thermal state: nominal, fair, serious, critical")
	rootCmd.AddCommand(computeCmd)
}

func runCompute(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	in := tuner.Inputs{Policy: cfg.PolicyValue()}

	identifier, _ := f.GetString("identifier")
	if raw, _ := f.GetString("tier"); raw != "" {
		tier, err := types.ParseTier(raw)
		if err != nil {
			return err
		}
		in.Tier = tier
	} else {
		if identifier == "" {
			identifier, _ = tuner.DetectIdentifier()
		}
		in.Tier = cfg.Classifier().Classify(identifier)
	}

	raw, _ := f.GetString("preference")
	pref, err := types.ParsePreference(raw)
	if err != nil {
		return err
	}
	in.Preference = pref

	if raw, _ := f.GetString("policy"); raw != "" {
		if in.Policy, err = types.ParsePolicy(raw); err != nil {
			return err
		}
	}

	in.AutoTune, _ = f.GetBool("auto-tune")
	in.Signals.LowPowerMode, _ = f.GetBool("low-power")
	in.Signals.ReduceMotion, _ = f.GetBool("reduce-motion")
	in.Signals.ReduceTransparency, _ = f.GetBool("reduce-transparency")
	raw, _ = f.GetString("thermal")
	if in.Signals.Thermal, err = types.ParseThermal(raw); err != nil {
		return err
	}

	exp := experienceFor(pref)
	if raw, _ := f.GetString("experience"); raw != "" {
		if exp, err = types.ParseExperience(raw); err != nil {
			return err
		}
	}

	tuning := tuner.Compute(in)
	throttled := in.Signals.ThrottleActive()
	st := profile.Status{
		Identifier: identifier,
		Tier:       in.Tier,
		Policy:     in.Policy,
		Preference: in.Preference,
		Experience: exp,
		AutoTune:   in.AutoTune,
		Signals:    in.Signals,
		Throttled:  throttled,
		Tuning:     tuning,
		Gates:      gates.Compute(tuning, exp, throttled),
		Recomputes: 1,
		Publishes:  1,
		UpdatedAt:  time.Now(),
	}
	printVerbose("inputs: %+v", in)

	return render(cmd.OutOrStdout(), &output.Result{Source: "compute", Status: &st})
}

// experienceFor is the inverse of Experience.Preference.
func experienceFor(p types.Preference) types.Experience {
	for _, e := range []types.Experience{types.ExperiencePerformance, types.ExperienceBalanced, types.ExperienceCinematic} {
		if e.Preference() == p {
			return e
		}
	}
	return types.ExperienceBalanced
}
