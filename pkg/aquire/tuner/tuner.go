// Package tuner classifies the host hardware and converts device, user and
// system signals into a VisualTuning decision.
//
// Compute is a pure function: the same Inputs always produce the same
// VisualTuning, and every numeric field is clamped into its documented range
// before it is returned.
package tuner

import (
	"strings"

	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// Classifier maps hardware identifiers onto device tiers.
type Classifier struct {
	low  map[string]struct{}
	high map[string]struct{}
}

// NewClassifier builds a classifier from the default identifier sets plus any
// extra identifiers supplied by configuration.
func NewClassifier(extraLow, extraHigh []string) *Classifier {
	c := &Classifier{
		low:  make(map[string]struct{}),
		high: make(map[string]struct{}),
	}
	for _, id := range append(append([]string{}, DefaultLowDevices...), extraLow...) {
		c.low[strings.TrimSpace(id)] = struct{}{}
	}
	for _, id := range append(append([]string{}, DefaultHighDevices...), extraHigh...) {
		c.high[strings.TrimSpace(id)] = struct{}{}
	}
	return c
}

// Classify returns the tier for identifier. Identifiers in neither set are
// medium; that is the expected branch for most hosts, not a failure.
func (c *Classifier) Classify(identifier string) types.DeviceTier {
	identifier = strings.TrimSpace(identifier)
	if _, ok := c.low[identifier]; ok {
		return types.TierLow
	}
	if _, ok := c.high[identifier]; ok {
		return types.TierHigh
	}
	return types.TierMedium
}

var defaultClassifier = NewClassifier(nil, nil)

// Classify classifies identifier against the default sets.
func Classify(identifier string) types.DeviceTier {
	return defaultClassifier.Classify(identifier)
}

// Inputs is everything the engine looks at.
type Inputs struct {
	Tier       types.DeviceTier
	Preference types.Preference
	Signals    types.SystemSignals
	AutoTune   bool
	Policy     types.Policy
}

// Compute returns the visual tuning for in.
//
// The calculation logic:
//   - Base: the hardware tier table (PolicyDevice) or the table for the tier
//     derived from live signals (PolicySignals)
//   - Preference: battery strips effects, cinematic boosts them (PolicyDevice only)
//   - Auto-tune: when enabled and the system is throttled, effects are forced
//     off regardless of the steps above
//   - Clamp: blur and shadow to [0,24], animation to [0,2]
func Compute(in Inputs) types.VisualTuning {
	var tuning types.VisualTuning

	if in.Policy == types.PolicySignals {
		tuning = signalTierTable[TierFromSignals(in.Signals)]
	} else {
		tuning = applyPreference(baseForTier(in.Tier), in.Preference)
	}

	if in.AutoTune && in.Signals.ThrottleActive() {
		tuning = throttle(tuning)
	}

	return tuning.Clamp()
}

// TierFromSignals maps live signals to a preference-named tier:
// low power or a hot thermal state selects battery, fair selects balanced,
// anything else cinematic.
func TierFromSignals(s types.SystemSignals) types.Preference {
	switch {
	case s.LowPowerMode:
		return types.PreferenceBattery
	case s.Thermal.Hot():
		return types.PreferenceBattery
	case s.Thermal == types.ThermalFair:
		return types.PreferenceBalanced
	default:
		return types.PreferenceCinematic
	}
}

// BaseTuning returns the unadjusted tuning for a hardware tier.
func BaseTuning(tier types.DeviceTier) types.VisualTuning {
	return baseForTier(tier)
}

// baseForTier looks up the tier table. Unknown tiers use medium.
func baseForTier(tier types.DeviceTier) types.VisualTuning {
	if base, ok := tierBase[tier]; ok {
		return base
	}
	return tierBase[types.TierMedium]
}

// applyPreference adjusts base values for the user preference.
func applyPreference(t types.VisualTuning, pref types.Preference) types.VisualTuning {
	switch pref {
	case types.PreferenceBattery:
		t.BlurStrength = 0
		t.ShadowRadius *= batteryShadowScale
		t.AnimationLevel = 0
		t.AllowBackgroundBlur = false
		t.AllowHighlightOverlay = false
	case types.PreferenceCinematic:
		t.BlurStrength *= cinematicBlurScale
		t.ShadowRadius *= cinematicShadowScale
		t.AnimationLevel = max(t.AnimationLevel, types.MaxAnimationLevel)
		t.AllowBackgroundBlur = true
		t.AllowHighlightOverlay = true
	}
	return t
}

// throttle forces the minimum visual state used while the OS signals distress.
func throttle(t types.VisualTuning) types.VisualTuning {
	t.BlurStrength = 0
	t.ShadowRadius = min(t.ShadowRadius, throttleShadowCap)
	t.AnimationLevel = 0
	t.AllowBackgroundBlur = false
	t.AllowHighlightOverlay = false
	return t
}
