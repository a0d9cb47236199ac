//go:build darwin

package tuner

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// DetectIdentifier returns the hardware identifier of the host.
// On darwin it reads sysctl hw.machine, which carries the model identifier on
// iOS-family devices. On Macs hw.machine is only the CPU architecture, so
// hw.model is used instead.
func DetectIdentifier() (string, error) {
	machine, err := unix.Sysctl("hw.machine")
	if err != nil {
		return "", fmt.Errorf("sysctl hw.machine: %w", err)
	}

	if machine != "arm64" && machine != "x86_64" {
		return strings.TrimSpace(machine), nil
	}

	model, err := unix.Sysctl("hw.model")
	if err != nil {
		return strings.TrimSpace(machine), nil //nolint:nilerr // architecture is still a usable identifier
	}

	return strings.TrimSpace(model), nil
}
