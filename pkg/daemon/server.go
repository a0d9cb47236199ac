package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Server serves an http.Handler on a Unix socket or TCP address.
type Server struct {
	network  string
	http     *http.Server
	listener net.Listener
}

// Listen binds network ("unix" or "tcp") at addr. A leftover Unix socket
// is removed first.
func Listen(network, addr string, handler http.Handler) (*Server, error) {
	if network == "unix" {
		if err := os.MkdirAll(filepath.Dir(addr), 0o755); err != nil {
			return nil, err
		}
		if err := os.RemoveAll(addr); err != nil {
			return nil, err
		}
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		network: network,
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until the server is closed.
func (s *Server) Serve() error {
	err := s.http.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close shuts the server down gracefully and removes a Unix socket.
func (s *Server) Close(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if s.network == "unix" {
		_ = os.Remove(s.listener.Addr().String())
	}
	return err
}
