package daemon

import (
	"encoding/json"
	"os"
	"time"
)

// Startup states written to the status file.
const (
	StatusReady = "ready"
	StatusError = "error"
)

// StatusFile tells a launching CLI whether aquired came up.
type StatusFile struct {
	Status      string    `json:"status"`
	PID         int       `json:"pid,omitempty"`
	Error       string    `json:"error,omitempty"`
	Socket      string    `json:"socket,omitempty"`
	MetricsAddr string    `json:"metrics_addr,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// WriteStatusReady records a successful start.
func WriteStatusReady(path, socket, metricsAddr string) error {
	return writeStatus(path, &StatusFile{
		Status:      StatusReady,
		PID:         os.Getpid(),
		Socket:      socket,
		MetricsAddr: metricsAddr,
		StartedAt:   time.Now(),
	})
}

// WriteStatusError records why startup failed.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, &StatusFile{
		Status:    StatusError,
		Error:     err.Error(),
		StartedAt: time.Now(),
	})
}

func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}
