// Package status exposes the local inspection API: a JSON snapshot of the
// engine, a health endpoint, Prometheus metrics, and a few control verbs
// for scripting around the daemon.
package status

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netmend/internal/api"
	"netmend/internal/engine"
	"netmend/internal/model"
	"netmend/internal/telemetry"
)

// Server provides the local HTTP API over a running engine.
type Server struct {
	listen   string
	engine   *engine.Engine
	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewServer constructs a status server bound to the given engine.
func NewServer(listen string, eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(telemetry.NewCollector(eng))
	return &Server{
		listen:   listen,
		engine:   eng,
		registry: registry,
		logger:   logger,
	}
}

// Handler returns the route table so tests can drive it without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/queue", s.handleQueue)
	mux.HandleFunc("/check", s.handleCheck)
	mux.HandleFunc("/sync", s.handleSync)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe runs the HTTP server.
func (s *Server) ListenAndServe() error {
	server := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("status api listening", "addr", s.listen)
	return server.ListenAndServe()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sync := s.engine.SyncStatus()
	writeJSON(w, http.StatusOK, api.StatusResponse{
		State:          s.engine.State(),
		Online:         s.engine.IsOnline(),
		ConnectionType: s.engine.ConnectionType(),
		Quality:        s.engine.Quality(),
		Metrics:        s.engine.Metrics(),
		Sync:           sync,
		Pending:        sync.PendingCount,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.BufferState())
	case http.MethodPost:
		var req api.EnqueueRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.URL == "" {
			writeJSONError(w, http.StatusBadRequest, "url is required")
			return
		}
		id := s.engine.QueueRequest(model.QueuedRequest{
			URL:        req.URL,
			Method:     req.Method,
			Body:       req.Body,
			Headers:    req.Headers,
			Priority:   req.Priority,
			MaxRetries: req.MaxRetries,
		})
		writeJSON(w, http.StatusOK, api.EnqueueResponse{ID: id})
	case http.MethodDelete:
		if id := r.URL.Query().Get("id"); id != "" {
			if !s.engine.CancelRequest(id) {
				writeJSONError(w, http.StatusNotFound, "no such request")
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.engine.ClearQueue()
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ok := s.engine.CheckConnection(r.Context())
	writeJSON(w, http.StatusOK, api.CheckResponse{Online: ok, State: s.engine.State()})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.engine.RequestSync("api")
	w.WriteHeader(http.StatusAccepted)
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
