//go:build !unix

package tuner

// DetectIdentifier returns an empty identifier on platforms without a
// hardware identifier concept; it classifies as medium.
func DetectIdentifier() (string, error) {
	return "", nil
}
