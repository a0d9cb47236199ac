package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/profile"
)

// State is the document aquired rewrites on every published tuning. Readers
// poll or watch the file; it is replaced atomically so they never see a
// partial write.
type State struct {
	PID       int            `json:"pid"`
	WrittenAt time.Time      `json:"written_at"`
	Profile   profile.Status `json:"profile"`
}

// WriteState writes st to path.
func WriteState(path string, st profile.Status) error {
	data, err := json.MarshalIndent(State{
		PID:       os.Getpid(),
		WrittenAt: time.Now(),
		Profile:   st,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return writeFileAtomic(path, data)
}

// ReadState reads the last published state.
func ReadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding state %s: %w", path, err)
	}
	return &st, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
