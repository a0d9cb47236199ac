package daemon_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/aquire/pkg/daemon"
)

func TestWriteStatusReady(t *testing.T) {
	statusPath := filepath.Join(t.TempDir(), "aquired.status.json")

	if err := daemon.WriteStatusReady(statusPath, "/tmp/aquired.sock", "127.0.0.1:9464"); err != nil {
		t.Fatalf("WriteStatusReady failed: %v", err)
	}

	data, err := os.ReadFile(statusPath)
	if err != nil {
		t.Fatalf("Failed to read status file: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to parse status JSON: %v", err)
	}
	if _, exists := raw["error"]; exists {
		t.Error("Error field should not be present in ready status")
	}

	status, err := daemon.ReadStatus(statusPath)
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if status.Status != daemon.StatusReady {
		t.Errorf("Expected status %q, got %q", daemon.StatusReady, status.Status)
	}
	if status.PID != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), status.PID)
	}
	if status.Socket != "/tmp/aquired.sock" || status.MetricsAddr != "127.0.0.1:9464" {
		t.Errorf("Unexpected addresses: %+v", status)
	}
	if status.StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}
}

func TestWriteStatusError(t *testing.T) {
	statusPath := filepath.Join(t.TempDir(), "aquired.status.json")

	if err := daemon.WriteStatusError(statusPath, errors.New("store locked")); err != nil {
		t.Fatalf("WriteStatusError failed: %v", err)
	}

	status, err := daemon.ReadStatus(statusPath)
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if status.Status != daemon.StatusError || status.Error != "store locked" {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.PID != 0 {
		t.Errorf("Error status should not carry a PID, got %d", status.PID)
	}
}

func TestReadStatus_Invalid(t *testing.T) {
	dir := t.TempDir()

	if _, err := daemon.ReadStatus(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemon.ReadStatus(bad); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestRemoveStatus(t *testing.T) {
	statusPath := filepath.Join(t.TempDir(), "aquired.status.json")
	if err := daemon.WriteStatusReady(statusPath, "", ""); err != nil {
		t.Fatal(err)
	}
	if err := daemon.RemoveStatus(statusPath); err != nil {
		t.Fatalf("RemoveStatus failed: %v", err)
	}
	if _, err := os.Stat(statusPath); !os.IsNotExist(err) {
		t.Error("Status file should have been removed")
	}
}
