package types

import (
	"errors"
	"math"
	"testing"
)

func TestParsePreference(t *testing.T) {
	tests := []struct {
		input   string
		want    Preference
		wantErr bool
	}{
		{input: "battery", want: PreferenceBattery},
		{input: "performance", want: PreferenceBattery},
		{input: "Balanced", want: PreferenceBalanced},
		{input: " cinematic ", want: PreferenceCinematic},
		{input: "", want: PreferenceBalanced, wantErr: true},
		{input: "turbo", want: PreferenceBalanced, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePreference(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePreference(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPreference) {
				t.Errorf("error = %v, want ErrInvalidPreference", err)
			}
			if got != tt.want {
				t.Errorf("ParsePreference(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseThermal(t *testing.T) {
	tests := []struct {
		input   string
		want    ThermalState
		wantErr bool
	}{
		{input: "", want: ThermalNominal},
		{input: "nominal", want: ThermalNominal},
		{input: "FAIR", want: ThermalFair},
		{input: "serious", want: ThermalSerious},
		{input: "critical", want: ThermalCritical},
		{input: "unknown", want: ThermalUnknown},
		{input: "melting", want: ThermalUnknown, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseThermal(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseThermal(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseThermal(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTierAndPolicy(t *testing.T) {
	if tier, err := ParseTier("HIGH"); err != nil || tier != TierHigh {
		t.Errorf("ParseTier(HIGH) = %q, %v", tier, err)
	}
	if _, err := ParseTier("ultra"); !errors.Is(err, ErrInvalidTier) {
		t.Errorf("ParseTier(ultra) error = %v, want ErrInvalidTier", err)
	}
	if p, err := ParsePolicy("signals"); err != nil || p != PolicySignals {
		t.Errorf("ParsePolicy(signals) = %q, %v", p, err)
	}
	if _, err := ParsePolicy("magic"); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("ParsePolicy(magic) error = %v, want ErrInvalidPolicy", err)
	}
}

func TestExperiencePreference(t *testing.T) {
	tests := map[Experience]Preference{
		ExperiencePerformance: PreferenceBattery,
		ExperienceBalanced:    PreferenceBalanced,
		ExperienceCinematic:   PreferenceCinematic,
	}
	for exp, want := range tests {
		if got := exp.Preference(); got != want {
			t.Errorf("%s.Preference() = %q, want %q", exp, got, want)
		}
	}
}

func TestThrottleActive(t *testing.T) {
	tests := []struct {
		name    string
		signals SystemSignals
		want    bool
	}{
		{name: "defaults", signals: DefaultSignals(), want: false},
		{name: "fair is not hot", signals: SystemSignals{Thermal: ThermalFair}, want: false},
		{name: "low power", signals: SystemSignals{LowPowerMode: true, Thermal: ThermalNominal}, want: true},
		{name: "reduce motion", signals: SystemSignals{ReduceMotion: true, Thermal: ThermalNominal}, want: true},
		{name: "reduce transparency", signals: SystemSignals{ReduceTransparency: true, Thermal: ThermalNominal}, want: true},
		{name: "serious", signals: SystemSignals{Thermal: ThermalSerious}, want: true},
		{name: "critical", signals: SystemSignals{Thermal: ThermalCritical}, want: true},
		{name: "unknown is conservative", signals: SystemSignals{Thermal: ThermalUnknown}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.signals.ThrottleActive(); got != tt.want {
				t.Errorf("ThrottleActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSystemSignalsDiffAndMerge(t *testing.T) {
	a := DefaultSignals()
	b := SystemSignals{LowPowerMode: true, Thermal: ThermalCritical}

	changed := a.Diff(b)
	if len(changed) != 2 || changed[0] != SignalLowPowerMode || changed[1] != SignalThermalState {
		t.Fatalf("Diff() = %v, want [low_power_mode thermal_state]", changed)
	}

	a.Merge(SignalThermalState, b)
	if a.Thermal != ThermalCritical || a.LowPowerMode {
		t.Errorf("Merge(thermal) = %+v, want only thermal copied", a)
	}
	if got := a.Value(SignalThermalState); got != "critical" {
		t.Errorf("Value(thermal) = %q, want critical", got)
	}
}

func TestVisualTuningClamp(t *testing.T) {
	got := VisualTuning{
		BlurStrength:   40,
		ShadowRadius:   -3,
		AnimationLevel: 7,
	}.Clamp()

	if got.BlurStrength != MaxBlurStrength {
		t.Errorf("BlurStrength = %v, want %v", got.BlurStrength, MaxBlurStrength)
	}
	if got.ShadowRadius != 0 {
		t.Errorf("ShadowRadius = %v, want 0", got.ShadowRadius)
	}
	if got.AnimationLevel != MaxAnimationLevel {
		t.Errorf("AnimationLevel = %d, want %d", got.AnimationLevel, MaxAnimationLevel)
	}

	nan := VisualTuning{BlurStrength: math.NaN(), AnimationLevel: -1}.Clamp()
	if nan.BlurStrength != 0 || nan.AnimationLevel != 0 {
		t.Errorf("Clamp() with NaN/negative = %+v, want zeros", nan)
	}
}

func TestVisualTuningEqual(t *testing.T) {
	a := VisualTuning{BlurStrength: 6, ShadowRadius: 12, AnimationLevel: 1, AllowBackgroundBlur: true}
	b := a
	if !a.Equal(b) {
		t.Error("Equal() = false for identical values")
	}
	b.AllowHighlightOverlay = true
	if a.Equal(b) {
		t.Error("Equal() = true for values differing in one flag")
	}
}
