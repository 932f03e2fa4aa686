// Package server exposes the derived dashboard state over HTTP and
// websocket and proxies human-triggered commands to the bot backend.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rewired-gh/kalshideck/internal/backend"
	"github.com/rewired-gh/kalshideck/internal/config"
	"github.com/rewired-gh/kalshideck/internal/dashboard"
	"github.com/rewired-gh/kalshideck/internal/logger"
	"github.com/rewired-gh/kalshideck/internal/models"
)

// Backend is the command surface the server proxies to. Satisfied by
// *backend.Client.
type Backend interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetMode(ctx context.Context, env string) error
	ResetPaper(ctx context.Context) error
	Reconcile(ctx context.Context) error
	SaveConfig(ctx context.Context, updates map[string]string) error
	Chat(ctx context.Context, message string, history []backend.ChatTurn) (string, error)
}

// SettingsStore persists tunable overrides. Satisfied by *storage.Storage.
type SettingsStore interface {
	SetSetting(key, value string) error
	AllSettings() (map[string]string, error)
}

// Server is the dashboard HTTP API.
type Server struct {
	httpServer *http.Server
	hub        *dashboard.Hub
	backend    Backend
	settings   SettingsStore

	// busy gates one in-flight command per affordance; two different
	// affordances may be in flight simultaneously.
	busyMu sync.Mutex
	busy   map[string]bool
}

// New creates a dashboard server bound to addr.
func New(addr string, hub *dashboard.Hub, be Backend, settings SettingsStore) *Server {
	s := &Server{
		hub:      hub,
		backend:  be,
		settings: settings,
		busy:     make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/view", s.handleView)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/start", s.command("start", func(ctx context.Context) error { return s.backend.Start(ctx) }))
	mux.HandleFunc("/api/stop", s.command("stop", func(ctx context.Context) error { return s.backend.Stop(ctx) }))
	mux.HandleFunc("/api/reconcile", s.command("reconcile", func(ctx context.Context) error { return s.backend.Reconcile(ctx) }))
	mux.HandleFunc("/api/reset", s.confirmed("reset", func(ctx context.Context) error { return s.backend.ResetPaper(ctx) }))
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routing for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving the API until Shutdown.
func (s *Server) ListenAndServe() error {
	logger.Info("Dashboard server listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.hub.Current())
}

// handleTrades serves the latest raw trade feed as polled from the
// backend. An empty feed is served before the first successful poll.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	feed := s.hub.Feed()
	if feed == nil {
		feed = &models.TradeFeed{}
	}
	writeJSON(w, http.StatusOK, feed)
}

// handleStatus serves the latest raw status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := s.hub.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no status yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// tryAcquire marks an affordance busy; returns false if already in flight.
func (s *Server) tryAcquire(name string) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if s.busy[name] {
		return false
	}
	s.busy[name] = true
	return true
}

func (s *Server) release(name string) {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	delete(s.busy, name)
}

type commandResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// command builds a busy-gated POST handler delegating to the backend.
// The busy flag is cleared on both success and failure paths; failures
// surface as a transient message, never a retry.
func (s *Server) command(name string, run func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !s.tryAcquire(name) {
			writeError(w, http.StatusConflict, name+" already in progress")
			return
		}
		defer s.release(name)

		if err := run(r.Context()); err != nil {
			logger.Warn("Command %s failed: %v", name, err)
			writeJSON(w, http.StatusBadGateway, commandResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, commandResponse{OK: true})
	}
}

// confirmed wraps command with an explicit confirmation requirement for
// destructive actions.
func (s *Server) confirmed(name string, run func(ctx context.Context) error) http.HandlerFunc {
	inner := s.command(name, run)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !confirmedRequest(r) {
			writeError(w, http.StatusBadRequest, "confirmation required")
			return
		}
		inner(w, r)
	}
}

func confirmedRequest(r *http.Request) bool {
	var payload struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return false
	}
	return payload.Confirm
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		Env     string `json:"env"`
		Confirm bool   `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !payload.Confirm {
		writeError(w, http.StatusBadRequest, "confirmation required")
		return
	}
	if !s.tryAcquire("mode") {
		writeError(w, http.StatusConflict, "mode switch already in progress")
		return
	}
	defer s.release("mode")

	if err := s.backend.SetMode(r.Context(), payload.Env); err != nil {
		logger.Warn("Mode switch failed: %v", err)
		writeJSON(w, http.StatusBadGateway, commandResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{OK: true})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.AllSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPost:
		var updates map[string]string
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		applied := config.ApplyTunableBounds(updates)
		if len(applied) == 0 {
			writeError(w, http.StatusBadRequest, "no valid settings in payload")
			return
		}

		if !s.tryAcquire("config") {
			writeError(w, http.StatusConflict, "config save already in progress")
			return
		}
		defer s.release("config")

		if err := s.backend.SaveConfig(r.Context(), applied); err != nil {
			logger.Warn("Config save failed: %v", err)
			writeJSON(w, http.StatusBadGateway, commandResponse{Error: err.Error()})
			return
		}
		for key, value := range applied {
			if err := s.settings.SetSetting(key, value); err != nil {
				logger.Warn("Failed to persist setting %s: %v", key, err)
			}
		}
		s.hub.PublishConfigChanged()
		writeJSON(w, http.StatusOK, applied)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		Message string             `json:"message"`
		History []backend.ChatTurn `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if !s.tryAcquire("chat") {
		writeError(w, http.StatusConflict, "chat already in progress")
		return
	}
	defer s.release("chat")

	reply, err := s.backend.Chat(r.Context(), payload.Message, payload.History)
	if err != nil {
		logger.Warn("Chat failed: %v", err)
		writeJSON(w, http.StatusBadGateway, commandResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, commandResponse{Error: msg})
}
