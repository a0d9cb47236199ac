// Package types provides the core value types shared by the aquire tuning
// engine: device tiers, user preferences, live system signals and the
// resolved visual tuning that presentation code obeys.
package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Sentinel errors returned by the Parse functions.
var (
	ErrInvalidTier       = errors.New("invalid device tier")
	ErrInvalidPreference = errors.New("invalid performance preference")
	ErrInvalidThermal    = errors.New("invalid thermal state")
	ErrInvalidPolicy     = errors.New("invalid tuning policy")
	ErrInvalidExperience = errors.New("invalid experience")
)

// Range limits for VisualTuning fields.
const (
	MaxBlurStrength   = 24.0
	MaxShadowRadius   = 24.0
	MaxAnimationLevel = 2
)

// DeviceTier is a coarse performance classification of the running hardware.
type DeviceTier string

const (
	TierLow    DeviceTier = "low"
	TierMedium DeviceTier = "medium"
	TierHigh   DeviceTier = "high"
)

// ParseTier parses a device tier name.
func ParseTier(s string) (DeviceTier, error) {
	switch DeviceTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierLow:
		return TierLow, nil
	case TierMedium:
		return TierMedium, nil
	case TierHigh:
		return TierHigh, nil
	default:
		return TierMedium, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
}

// String returns the tier name.
func (t DeviceTier) String() string { return string(t) }

// Preference is the user-selected experience level.
type Preference string

const (
	PreferenceBattery   Preference = "battery"
	PreferenceBalanced  Preference = "balanced"
	PreferenceCinematic Preference = "cinematic"
)

// Preferences lists every preference in picker order.
var Preferences = []Preference{PreferenceBattery, PreferenceBalanced, PreferenceCinematic}

// ParsePreference parses a preference name. "performance" is accepted as an
// alias of battery since onboarding uses that word for the same level.
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "battery", "performance":
		return PreferenceBattery, nil
	case "balanced":
		return PreferenceBalanced, nil
	case "cinematic":
		return PreferenceCinematic, nil
	default:
		return PreferenceBalanced, fmt.Errorf("%w: %q", ErrInvalidPreference, s)
	}
}

// String returns the preference name.
func (p Preference) String() string { return string(p) }

// Label returns the user-facing name of the preference.
func (p Preference) Label() string {
	switch p {
	case PreferenceBattery:
		return "Battery Saver"
	case PreferenceCinematic:
		return "Cinematic"
	default:
		return "Balanced"
	}
}

// Description returns a one-line explanation of the preference.
func (p Preference) Description() string {
	switch p {
	case PreferenceBattery:
		return "Lowest GPU cost. Minimal blur, minimal animation."
	case PreferenceCinematic:
		return "Highest visual detail. Not recommended when hot or Low Power."
	default:
		return "Smooth default. Glass where it matters."
	}
}

// Experience is the onboarding "edition" choice. It maps one-to-one onto a
// Preference.
type Experience string

const (
	ExperiencePerformance Experience = "performance"
	ExperienceBalanced    Experience = "balanced"
	ExperienceCinematic   Experience = "cinematic"
)

// ParseExperience parses an experience name.
func ParseExperience(s string) (Experience, error) {
	switch Experience(strings.ToLower(strings.TrimSpace(s))) {
	case ExperiencePerformance:
		return ExperiencePerformance, nil
	case ExperienceBalanced:
		return ExperienceBalanced, nil
	case ExperienceCinematic:
		return ExperienceCinematic, nil
	default:
		return ExperienceBalanced, fmt.Errorf("%w: %q", ErrInvalidExperience, s)
	}
}

// String returns the experience name.
func (e Experience) String() string { return string(e) }

// Preference returns the performance preference this experience selects.
func (e Experience) Preference() Preference {
	switch e {
	case ExperiencePerformance:
		return PreferenceBattery
	case ExperienceCinematic:
		return PreferenceCinematic
	default:
		return PreferenceBalanced
	}
}

// ThermalState mirrors the platform thermal pressure levels.
type ThermalState string

const (
	ThermalNominal  ThermalState = "nominal"
	ThermalFair     ThermalState = "fair"
	ThermalSerious  ThermalState = "serious"
	ThermalCritical ThermalState = "critical"
	// ThermalUnknown is reported when a platform returns a level we do not
	// recognise. It is treated as throttled.
	ThermalUnknown ThermalState = "unknown"
)

// ParseThermal parses a thermal state name. An empty string is nominal.
func ParseThermal(s string) (ThermalState, error) {
	switch ThermalState(strings.ToLower(strings.TrimSpace(s))) {
	case "", ThermalNominal:
		return ThermalNominal, nil
	case ThermalFair:
		return ThermalFair, nil
	case ThermalSerious:
		return ThermalSerious, nil
	case ThermalCritical:
		return ThermalCritical, nil
	case ThermalUnknown:
		return ThermalUnknown, nil
	default:
		return ThermalUnknown, fmt.Errorf("%w: %q", ErrInvalidThermal, s)
	}
}

// String returns the thermal state name.
func (t ThermalState) String() string { return string(t) }

// Hot reports whether the state should throttle visuals.
func (t ThermalState) Hot() bool {
	switch t {
	case ThermalNominal, ThermalFair:
		return false
	default:
		return true
	}
}

// FriendlyName returns a display label for the state.
func (t ThermalState) FriendlyName() string {
	switch t {
	case ThermalNominal:
		return "Nominal"
	case ThermalFair:
		return "Fair"
	case ThermalSerious:
		return "Serious"
	case ThermalCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Signal names a single field of SystemSignals.
type Signal string

const (
	SignalLowPowerMode       Signal = "low_power_mode"
	SignalReduceMotion       Signal = "reduce_motion"
	SignalReduceTransparency Signal = "reduce_transparency"
	SignalThermalState       Signal = "thermal_state"
)

// AllSignals lists every signal field.
var AllSignals = []Signal{
	SignalLowPowerMode,
	SignalReduceMotion,
	SignalReduceTransparency,
	SignalThermalState,
}

// SystemSignals is a snapshot of the live environment signals.
type SystemSignals struct {
	LowPowerMode       bool         `json:"low_power_mode" yaml:"low_power_mode"`
	ReduceMotion       bool         `json:"reduce_motion" yaml:"reduce_motion"`
	ReduceTransparency bool         `json:"reduce_transparency" yaml:"reduce_transparency"`
	Thermal            ThermalState `json:"thermal_state" yaml:"thermal_state"`
}

// DefaultSignals returns the not-throttled value of every signal.
func DefaultSignals() SystemSignals {
	return SystemSignals{Thermal: ThermalNominal}
}

// ThrottleActive reports whether the OS is asking the app to reduce GPU work.
func (s SystemSignals) ThrottleActive() bool {
	return s.LowPowerMode || s.ReduceMotion || s.ReduceTransparency || s.Thermal.Hot()
}

// Value returns the string form of a single signal field.
func (s SystemSignals) Value(sig Signal) string {
	switch sig {
	case SignalLowPowerMode:
		return fmt.Sprint(s.LowPowerMode)
	case SignalReduceMotion:
		return fmt.Sprint(s.ReduceMotion)
	case SignalReduceTransparency:
		return fmt.Sprint(s.ReduceTransparency)
	case SignalThermalState:
		return s.Thermal.String()
	default:
		return ""
	}
}

// Diff returns the signals whose value differs between s and other, in
// AllSignals order.
func (s SystemSignals) Diff(other SystemSignals) []Signal {
	var changed []Signal
	if s.LowPowerMode != other.LowPowerMode {
		changed = append(changed, SignalLowPowerMode)
	}
	if s.ReduceMotion != other.ReduceMotion {
		changed = append(changed, SignalReduceMotion)
	}
	if s.ReduceTransparency != other.ReduceTransparency {
		changed = append(changed, SignalReduceTransparency)
	}
	if s.Thermal != other.Thermal {
		changed = append(changed, SignalThermalState)
	}
	return changed
}

// Merge copies a single field from src into s.
func (s *SystemSignals) Merge(sig Signal, src SystemSignals) {
	switch sig {
	case SignalLowPowerMode:
		s.LowPowerMode = src.LowPowerMode
	case SignalReduceMotion:
		s.ReduceMotion = src.ReduceMotion
	case SignalReduceTransparency:
		s.ReduceTransparency = src.ReduceTransparency
	case SignalThermalState:
		s.Thermal = src.Thermal
	}
}

// Policy selects how the tuning engine derives its base values.
type Policy string

const (
	// PolicyDevice seeds tuning from the static hardware tier and the user
	// preference.
	PolicyDevice Policy = "device"
	// PolicySignals derives a tier from live thermal/power signals and
	// ignores the hardware tier.
	PolicySignals Policy = "signals"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyDevice:
		return PolicyDevice, nil
	case PolicySignals:
		return PolicySignals, nil
	default:
		return PolicyDevice, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// String returns the policy name.
func (p Policy) String() string { return string(p) }

// VisualTuning is the resolved set of visual-effect parameters.
type VisualTuning struct {
	BlurStrength          float64 `json:"blur_strength" yaml:"blur_strength"`
	ShadowRadius          float64 `json:"shadow_radius" yaml:"shadow_radius"`
	AnimationLevel        int     `json:"animation_level" yaml:"animation_level"`
	AllowBackgroundBlur   bool    `json:"allow_background_blur" yaml:"allow_background_blur"`
	AllowHighlightOverlay bool    `json:"allow_highlight_overlay" yaml:"allow_highlight_overlay"`
}

// Equal reports whether two tunings match field by field.
func (v VisualTuning) Equal(other VisualTuning) bool {
	return v == other
}

// Clamp returns v with every numeric field forced into its documented range.
func (v VisualTuning) Clamp() VisualTuning {
	v.BlurStrength = clampFloat(v.BlurStrength, 0, MaxBlurStrength)
	v.ShadowRadius = clampFloat(v.ShadowRadius, 0, MaxShadowRadius)
	v.AnimationLevel = max(0, min(v.AnimationLevel, MaxAnimationLevel))
	return v
}

// clampFloat bounds f to [lo, hi]. NaN collapses to lo.
func clampFloat(f, lo, hi float64) float64 {
	if math.IsNaN(f) {
		return lo
	}
	return math.Max(lo, math.Min(f, hi))
}
