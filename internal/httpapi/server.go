// Package httpapi exposes the operator monitoring HTTP surface from
// SPEC_FULL.md §6: read-only daemon inspection plus two narrow
// mutations (execute, ping), layered over the registry and the
// multiplexer without duplicating either's bookkeeping. Grounded on
// steveyegge/beads' internal/rpc.HTTPServer (net/http + bearer-token
// auth + JSON handlers wrapping an existing backend), generalized from
// beads' single Connect-RPC-style method dispatch to a handful of
// fixed REST-ish routes since this surface has no protobuf service
// definition to mirror.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xcha05/prime/internal/daemonlink"
	"github.com/0xcha05/prime/internal/registry"
	"github.com/0xcha05/prime/internal/types"
)

// ServerVersion is overridden by cmd/primed at build time via -ldflags.
var ServerVersion = "0.0.0"

// ExecuteTimeout bounds how long POST /api/daemon/{id}/execute waits for a
// result, matching the brain loop's own CommandTimeout.
const ExecuteTimeout = 60 * time.Second

// PingTimeout bounds POST /api/daemon/{id}/ping.
const PingTimeout = 10 * time.Second

// Server wraps the registry and multiplexer with the monitoring HTTP
// surface. It owns no daemon state of its own.
type Server struct {
	log      *zap.Logger
	registry *registry.Registry
	mux      *daemonlink.Multiplexer
	token    string // bearer token required on /api/* routes; empty disables auth
	started  time.Time

	httpServer *http.Server
	listener   net.Listener
}

// New creates a Server. token is the bearer token required on every
// /api/daemon/* route (empty disables auth, matching a local-only deployment).
func New(log *zap.Logger, reg *registry.Registry, mux *daemonlink.Multiplexer, token string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log, registry: reg, mux: mux, token: token, started: time.Now()}
}

// Start listens on addr and serves until ctx is cancelled, at which point it
// shuts down gracefully. Blocks until the listener closes.
func (s *Server) Start(ctx context.Context, addr string) error {
	routes := http.NewServeMux()
	routes.HandleFunc("/health", instrument("/health", s.handleHealth))
	routes.Handle("/metrics", promhttp.Handler())
	routes.HandleFunc("/api/daemon/list", instrument("/api/daemon/list", s.auth(s.handleList)))
	routes.HandleFunc("/api/daemon/by-name/", instrument("/api/daemon/by-name/", s.auth(s.handleByName)))
	routes.HandleFunc("/api/daemon/connection-info", instrument("/api/daemon/connection-info", s.auth(s.handleConnectionInfo)))
	routes.HandleFunc("/api/daemon/", instrument("/api/daemon/", s.auth(s.handleDaemonSubroute)))

	s.httpServer = &http.Server{
		Handler:      routes,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var err error
	s.listener, err = net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	return s.httpServer.Serve(s.listener)
}

// Addr returns the address the server is actually bound to, resolving a
// ":0" wildcard port once Start has run.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// auth wraps h with bearer-token enforcement. A Server created with an empty
// token skips the check, for local-only deployments with no exposed port.
func (s *Server) auth(h http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		wantPrefix := "Bearer "
		if !strings.HasPrefix(authHeader, wantPrefix) || strings.TrimPrefix(authHeader, wantPrefix) != s.token {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		h(w, r)
	}
}

// handleHealth serves GET /health -> {status, version}. Never authenticated:
// it is the liveness probe operators and orchestrators hit before any
// credential exchange.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": ServerVersion,
	})
}

// handleList serves GET /api/daemon/list.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"daemons": s.registry.List()})
}

// handleByName serves GET /api/daemon/by-name/{name}.
func (s *Server) handleByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/daemon/by-name/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	h := s.registry.GetByName(name)
	if h == nil {
		writeError(w, http.StatusNotFound, "no connected daemon named "+name)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// handleConnectionInfo serves GET /api/daemon/connection-info: the
// aggregate counts an operator dashboard polls without fetching every
// handle's full record.
func (s *Server) handleConnectionInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	list := s.registry.List()
	privileged := 0
	for _, h := range list {
		if h.IsPrivileged {
			privileged++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected_count":   len(list),
		"privileged_count":  privileged,
		"server_started_at": s.started,
	})
}

// handleDaemonSubroute dispatches GET /api/daemon/{id},
// POST /api/daemon/{id}/execute, and POST /api/daemon/{id}/ping by
// splitting the remaining path.
func (s *Server) handleDaemonSubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/daemon/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "missing daemon id")
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	daemonID := parts[0]

	if len(parts) == 1 {
		s.handleShow(w, r, daemonID)
		return
	}
	switch parts[1] {
	case "execute":
		s.handleExecute(w, r, daemonID)
	case "ping":
		s.handlePing(w, r, daemonID)
	default:
		writeError(w, http.StatusNotFound, "unknown daemon route")
	}
}

// handleShow serves GET /api/daemon/{id}.
func (s *Server) handleShow(w http.ResponseWriter, r *http.Request, daemonID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h := s.registry.Get(daemonID)
	if h == nil {
		writeError(w, http.StatusNotFound, "no connected daemon "+daemonID)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// executeRequest is the body of POST /api/daemon/{id}/execute, per
// spec.md §6.
type executeRequest struct {
	Command         string `json:"command"`
	WorkingDirectory string `json:"working_directory,omitempty"`
	Timeout         int    `json:"timeout,omitempty"` // seconds; 0 = ExecuteTimeout
	UseSudo         bool   `json:"use_sudo,omitempty"`
}

// handleExecute serves POST /api/daemon/{id}/execute by routing an
// execute_shell command through the multiplexer, same command type and
// params shape the brain loop's execute_shell tool uses.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, daemonID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	timeout := ExecuteTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	result, err := s.mux.Send(r.Context(), daemonID, "execute_shell", req, timeout)
	if err != nil {
		s.writeDaemonError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

// handlePing serves POST /api/daemon/{id}/ping.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request, daemonID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t0 := time.Now()
	_, err := s.mux.Send(r.Context(), daemonID, "ping", nil, PingTimeout)
	if err != nil {
		s.writeDaemonError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"daemon_id":   daemonID,
		"latency_ms":  time.Since(t0).Milliseconds(),
	})
}

// writeDaemonError maps a daemonlink error kind to the HTTP status an
// operator dashboard should render, per SPEC_FULL.md §7's error taxonomy.
func (s *Server) writeDaemonError(w http.ResponseWriter, err error) {
	switch types.KindOf(err) {
	case types.ErrDaemonNotConnected, types.ErrDaemonDisconnected:
		writeError(w, http.StatusNotFound, err.Error())
	case types.ErrCommandTimedOut:
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
