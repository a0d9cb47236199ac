package prefs

import (
	"errors"
	"strconv"

	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// AppProfile is the onboarding profile kept next to the performance keys.
type AppProfile struct {
	Experience          types.Experience `json:"experience" yaml:"experience"`
	TelemetryOptIn      bool             `json:"telemetry_opt_in" yaml:"telemetry_opt_in"`
	CompletedOnboarding bool             `json:"completed_onboarding" yaml:"completed_onboarding"`
}

// AppProfile reads the onboarding profile.
func (s *Store) AppProfile() AppProfile {
	exp := DefaultExperience
	if raw, ok := s.lookup(KeyExperience); ok {
		parsed, err := types.ParseExperience(raw)
		if err != nil {
			logging.Get("prefs").Warn("ignoring stored experience", "value", raw)
		} else {
			exp = parsed
		}
	}

	return AppProfile{
		Experience:          exp,
		TelemetryOptIn:      s.boolValue(KeyTelemetryOptIn, false),
		CompletedOnboarding: s.boolValue(KeyCompletedOnboarding, false),
	}
}

// SetExperience stores e and the performance preference it selects, so the
// tuning follows the onboarding choice.
func (s *Store) SetExperience(e types.Experience) error {
	return errors.Join(
		s.put(KeyExperience, e.String()),
		s.SetPreference(e.Preference()),
	)
}

// SetTelemetryOptIn stores the telemetry consent flag.
func (s *Store) SetTelemetryOptIn(on bool) error {
	return s.put(KeyTelemetryOptIn, strconv.FormatBool(on))
}

// CompleteOnboarding records the onboarding choices in one step.
func (s *Store) CompleteOnboarding(e types.Experience, telemetry bool) error {
	return errors.Join(
		s.SetExperience(e),
		s.SetTelemetryOptIn(telemetry),
		s.put(KeyCompletedOnboarding, "true"),
	)
}
