package tuner

import "github.com/jamesainslie/aquire/pkg/aquire/types"

// Preference multipliers.
const (
	// batteryShadowScale shrinks shadows while keeping some depth cue.
	batteryShadowScale = 0.6

	cinematicBlurScale   = 1.25
	cinematicShadowScale = 1.15

	// throttleShadowCap is the largest shadow allowed while auto-tune is
	// overriding a throttled system.
	throttleShadowCap = 10.0
)

// tierBase seeds tuning per hardware tier under PolicyDevice.
var tierBase = map[types.DeviceTier]types.VisualTuning{
	types.TierLow: {
		BlurStrength:   0,
		ShadowRadius:   6,
		AnimationLevel: 0,
	},
	types.TierMedium: {
		BlurStrength:          6,
		ShadowRadius:          12,
		AnimationLevel:        1,
		AllowBackgroundBlur:   true,
		AllowHighlightOverlay: true,
	},
	types.TierHigh: {
		BlurStrength:          12,
		ShadowRadius:          18,
		AnimationLevel:        2,
		AllowBackgroundBlur:   true,
		AllowHighlightOverlay: true,
	},
}

// signalTierTable is the fixed tuning per signal-derived tier under
// PolicySignals. Keys are the preference vocabulary reused as tier names.
var signalTierTable = map[types.Preference]types.VisualTuning{
	types.PreferenceBattery: {
		BlurStrength:   0,
		ShadowRadius:   6,
		AnimationLevel: 0,
	},
	types.PreferenceBalanced: {
		BlurStrength:          6,
		ShadowRadius:          12,
		AnimationLevel:        1,
		AllowBackgroundBlur:   true,
		AllowHighlightOverlay: true,
	},
	types.PreferenceCinematic: {
		BlurStrength:          15,
		ShadowRadius:          20.7,
		AnimationLevel:        2,
		AllowBackgroundBlur:   true,
		AllowHighlightOverlay: true,
	},
}

// Default identifier sets. Hardware identifiers are the platform "machine"
// strings (for example "iPhone15,2").
var (
	DefaultLowDevices = []string{
		"iPhone10,1", "iPhone10,4", // 8
		"iPhone10,2", "iPhone10,5", // 8 Plus
		"iPhone10,3", "iPhone10,6", // X
		"iPhone11,8", // XR
	}

	DefaultHighDevices = []string{
		"iPhone15,2", "iPhone15,3", // 14 Pro / Pro Max
		"iPhone16,1", "iPhone16,2", // 15 Pro / Pro Max
	}
)
