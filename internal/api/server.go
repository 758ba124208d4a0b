// Package api is a lightweight read-only HTTP surface over the engine's
// runtime state, for dashboards and probes.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gameleet/gameleet-engine/internal/engine"
)

// EngineState exposes the running engine for the API layer.
type EngineState interface {
	RecentPasses() []engine.PassResult
}

// UserCounter reports the registered-user population.
type UserCounter interface {
	UserCount(ctx context.Context) (int, error)
}

// Server is a lightweight HTTP API for engine status.
type Server struct {
	httpServer *http.Server
	state      EngineState
	users      UserCounter
	timezone   string
	dryRun     bool
	startedAt  time.Time
}

// NewServer creates a new API server bound to addr.
func NewServer(addr string, state EngineState, users UserCounter, timezone string, dryRun bool) *Server {
	s := &Server{
		state:     state,
		users:     users,
		timezone:  timezone,
		dryRun:    dryRun,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/passes", s.handlePasses)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Printf("api server listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("api server: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/status reports overall engine status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"timezone": s.timezone,
		"dry_run":  s.dryRun,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	}
	passes := s.state.RecentPasses()
	if len(passes) > 0 {
		last := passes[len(passes)-1]
		resp["last_pass"] = last
	}
	if s.users != nil {
		if n, err := s.users.UserCount(r.Context()); err == nil {
			resp["users"] = n
		}
	}
	s.writeJSON(w, resp)
}

// GET /api/passes returns recent pass history, newest last.
func (s *Server) handlePasses(w http.ResponseWriter, _ *http.Request) {
	passes := s.state.RecentPasses()
	s.writeJSON(w, map[string]interface{}{"passes": passes, "count": len(passes)})
}
