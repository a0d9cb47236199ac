// Package gates turns a visual tuning into the on/off switches presentation
// code checks before enabling an expensive effect.
package gates

import "github.com/jamesainslie/aquire/pkg/aquire/types"

// Gates is the set of feature switches.
type Gates struct {
	HeavyBlur        bool `json:"heavy_blur" yaml:"heavy_blur"`
	HighlightOverlay bool `json:"highlight_overlay" yaml:"highlight_overlay"`
	Shadows          bool `json:"shadows" yaml:"shadows"`
	Animations       bool `json:"animations" yaml:"animations"`
	Preview3D        bool `json:"preview_3d" yaml:"preview_3d"`
	LargeListEffects bool `json:"large_list_effects" yaml:"large_list_effects"`
}

// Default is the state before the first computation.
var Default = Gates{Shadows: true, Animations: true, Preview3D: true}

// Compute derives gates from the tuning, the onboarding experience and the
// throttle flag. Experience knobs override the tuning; throttling overrides
// everything except shadows.
func Compute(t types.VisualTuning, exp types.Experience, throttled bool) Gates {
	g := Gates{
		HeavyBlur:        t.BlurStrength > 0,
		HighlightOverlay: t.AllowHighlightOverlay,
		Shadows:          t.ShadowRadius > 0,
		Animations:       t.AnimationLevel > 0,
		Preview3D:        true,
	}

	switch exp {
	case types.ExperiencePerformance:
		g = Gates{Shadows: true}
	case types.ExperienceCinematic:
		g = Gates{
			HeavyBlur:        true,
			HighlightOverlay: true,
			Shadows:          true,
			Animations:       true,
			Preview3D:        true,
			LargeListEffects: true,
		}
	}

	if throttled {
		g.HeavyBlur = false
		g.HighlightOverlay = false
		g.Animations = false
		g.Preview3D = false
		g.LargeListEffects = false
	}
	return g
}

// Names lists the gates in display order paired with their state.
func (g Gates) Names() []Named {
	return []Named{
		{"heavy blur", g.HeavyBlur},
		{"highlight overlay", g.HighlightOverlay},
		{"shadows", g.Shadows},
		{"animations", g.Animations},
		{"3D preview", g.Preview3D},
		{"large list effects", g.LargeListEffects},
	}
}

// Named is a gate label and its state.
type Named struct {
	Name    string
	Enabled bool
}
