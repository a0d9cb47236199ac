package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/prefs"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/daemon/broadcaster"
)

// API paths served on the control socket.
const (
	PathHealth    = "/healthz"
	PathStatus    = "/v1/status"
	PathPrefs     = "/v1/prefs"
	PathTelemetry = "/v1/telemetry"
	PathShutdown  = "/v1/shutdown"
	PathEvents    = "/v1/events"
	PathMetrics   = "/metrics"
)

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	PID     int            `json:"pid"`
	Uptime  string         `json:"uptime"`
	Profile profile.Status `json:"profile"`
}

// SetPrefRequest is the body of PUT /v1/prefs/{key}.
type SetPrefRequest struct {
	Value string `json:"value"`
}

// ErrorResponse carries a failed request's message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler returns the control API.
func (s *Service) Handler(pid int) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+PathHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET "+PathStatus, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			PID:     pid,
			Uptime:  s.Uptime().Truncate(time.Second).String(),
			Profile: s.cfg.Profile.Status(),
		})
	})

	mux.HandleFunc("GET "+PathPrefs, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.cfg.Store.Entries())
	})

	mux.HandleFunc("PUT "+PathPrefs+"/{key}", func(w http.ResponseWriter, r *http.Request) {
		var req SetPrefRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		key := r.PathValue("key")
		if err := s.cfg.Profile.Apply(key, req.Value); err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, prefs.ErrUnknownKey) {
				code = http.StatusNotFound
			}
			writeError(w, code, err)
			return
		}
		s.log.Info("preference set", "key", key, "value", req.Value)
		s.writeState()
		writeJSON(w, http.StatusOK, s.cfg.Store.Entries())
	})

	mux.HandleFunc("DELETE "+PathPrefs, func(w http.ResponseWriter, _ *http.Request) {
		if err := s.resetPrefs(); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.log.Info("preferences reset")
		writeJSON(w, http.StatusOK, s.cfg.Store.Entries())
	})

	mux.HandleFunc("GET "+PathTelemetry, func(w http.ResponseWriter, _ *http.Request) {
		events := []telemetry.Event{}
		if s.cfg.Telemetry != nil {
			events = s.cfg.Telemetry.Events()
		}
		writeJSON(w, http.StatusOK, events)
	})

	mux.HandleFunc("DELETE "+PathTelemetry, func(w http.ResponseWriter, _ *http.Request) {
		if s.cfg.Telemetry != nil {
			s.cfg.Telemetry.Clear()
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET "+PathEvents, s.serveEvents)

	mux.HandleFunc("POST "+PathShutdown, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		s.Shutdown()
	})

	if s.cfg.Metrics.Enabled() {
		mux.Handle("GET "+PathMetrics, s.cfg.Metrics.Handler())
	}

	return mux
}

// serveEvents streams broadcaster events as server-sent events until the
// client goes away or the service stops. ?type=tuning,signal limits the
// stream.
func (s *Service) serveEvents(w http.ResponseWriter, r *http.Request) {
	var types []broadcaster.EventType
	if raw := r.URL.Query().Get("type"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			t, ok := broadcaster.ParseEventType(strings.TrimSpace(name))
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Errorf("unknown event type %q", name))
				return
			}
			types = append(types, t)
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	sub := s.events.Subscribe(types...)
	if sub == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("service stopping"))
		return
	}
	defer s.events.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Error("encoding event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}
