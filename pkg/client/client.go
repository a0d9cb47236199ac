// Package client talks to a running aquired over its control socket and
// starts or stops the daemon process.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/config"
	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/daemon"
	"github.com/jamesainslie/aquire/pkg/daemon/broadcaster"
)

// ErrNotRunning is returned when no daemon answers on the socket.
var ErrNotRunning = errors.New("daemon not running")

// Client connects to aquired via HTTP on a Unix socket.
type Client struct {
	socket string
	http   *http.Client
}

// Connect establishes a connection to the daemon.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext connects and checks the daemon answers its health probe.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: socket not found at %s", ErrNotRunning, socketPath)
	}

	c := &Client{
		socket: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}

	if err := c.do(ctx, http.MethodGet, daemon.PathHealth, nil, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Status returns the daemon's live profile.
func (c *Client) Status(ctx context.Context) (*daemon.StatusResponse, error) {
	var resp daemon.StatusResponse
	if err := c.do(ctx, http.MethodGet, daemon.PathStatus, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Prefs lists the daemon's preference entries.
func (c *Client) Prefs(ctx context.Context) ([]prefs.Entry, error) {
	var entries []prefs.Entry
	err := c.do(ctx, http.MethodGet, daemon.PathPrefs, nil, &entries)
	return entries, err
}

// SetPref sets one preference through the daemon's profile.
func (c *Client) SetPref(ctx context.Context, key, value string) ([]prefs.Entry, error) {
	var entries []prefs.Entry
	err := c.do(ctx, http.MethodPut, daemon.PathPrefs+"/"+key, daemon.SetPrefRequest{Value: value}, &entries)
	return entries, err
}

// ResetPrefs removes every stored preference.
func (c *Client) ResetPrefs(ctx context.Context) ([]prefs.Entry, error) {
	var entries []prefs.Entry
	err := c.do(ctx, http.MethodDelete, daemon.PathPrefs, nil, &entries)
	return entries, err
}

// Telemetry returns the daemon's event log, newest first.
func (c *Client) Telemetry(ctx context.Context) ([]telemetry.Event, error) {
	var events []telemetry.Event
	err := c.do(ctx, http.MethodGet, daemon.PathTelemetry, nil, &events)
	return events, err
}

// ClearTelemetry empties the daemon's event log.
func (c *Client) ClearTelemetry(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, daemon.PathTelemetry, nil, nil)
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, daemon.PathShutdown, nil, nil)
}

// Events streams daemon events of the given types (all when none are
// given). The channel closes when ctx is cancelled or the daemon stops.
func (c *Client) Events(ctx context.Context, types ...broadcaster.EventType) (<-chan broadcaster.Event, error) {
	path := daemon.PathEvents
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		path += "?type=" + strings.Join(names, ",")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://aquired"+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var apiErr daemon.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return nil, fmt.Errorf("daemon: %s", resp.Status)
	}

	out := make(chan broadcaster.Event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			data, ok := strings.CutPrefix(sc.Text(), "data: ")
			if !ok {
				continue
			}
			var ev broadcaster.Event
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	// The host is ignored; the transport always dials the socket.
	req, err := http.NewRequestWithContext(ctx, method, "http://aquired"+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr daemon.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // aquired binary, auto-discovered if empty
	Config string // passed to aquired as --config when set
	Socket string
	PID    string
	Status string
}

// PathsFromConfig builds DaemonPaths from the loaded configuration.
func PathsFromConfig(cfg *config.Config, configFile string) DaemonPaths {
	return DaemonPaths{
		Binary: cfg.Daemon.Binary,
		Config: configFile,
		Socket: cfg.Daemon.SocketPath,
		PID:    cfg.Daemon.PIDPath,
		Status: cfg.Daemon.StatusPath,
	}
}

func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = config.DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	if p.Status == "" {
		p.Status = config.DefaultStatusPath()
	}
	return p
}

// StartDaemon starts aquired in the background.
// Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find aquired: %w", err)
	}

	_ = os.Remove(paths.Status)

	var args []string
	if paths.Config != "" {
		args = append(args, "--config", paths.Config)
	}

	// exec.Command, not CommandContext: the daemon must outlive the caller.
	cmd := exec.Command(binary, args...) //nolint:gosec // binary path is resolved above
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)

		if status, err := daemon.ReadStatus(paths.Status); err == nil {
			switch status.Status {
			case daemon.StatusReady:
				return nil
			case daemon.StatusError:
				return fmt.Errorf("daemon failed to start: %s", status.Error)
			}
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon asks the daemon to exit and waits for it.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if !IsDaemonRunning(paths.PID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer c.Close()

	if err := c.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !IsDaemonRunning(paths.PID) {
			return nil
		}
	}
	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := StartDaemon(paths); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	return daemon.IsDaemonRunning(pidPath)
}

// resolveBinary finds aquired.
// Priority: configured path > next to the executable > GOBIN/GOPATH > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	var candidates []string
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), "aquired"))
	}
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		candidates = append(candidates, filepath.Join(gobin, "aquired"))
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		candidates = append(candidates, filepath.Join(gopath, "bin", "aquired"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "go", "bin", "aquired"))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	if path, err := exec.LookPath("aquired"); err == nil {
		return path, nil
	}
	return "", errors.New("aquired not found")
}
