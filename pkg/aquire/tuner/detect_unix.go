//go:build unix && !darwin

package tuner

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DetectIdentifier returns the hardware identifier of the host.
// On non-darwin unix platforms it is the uname machine field.
func DetectIdentifier() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname: %w", err)
	}

	return unix.ByteSliceToString(uts.Machine[:]), nil
}
