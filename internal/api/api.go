// Package api implements the local HTTP API described in spec.md §6:
// status snapshot, mode/startstop/current writes, and config
// round-trip, plus a live-push websocket, grounded on the teacher's
// WebServer (scheduler/server.go) mux-and-broadcast shape.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evcharged/evcharged/internal/config"
)

// StatusSnapshot is the JSON shape returned by GET /api/status and
// pushed over the websocket.
type StatusSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Mode          int       `json:"mode"`
	StartStop     bool      `json:"start_stop"`
	Status        int       `json:"status"`
	SetCurrent    float32   `json:"set_current"`
	MaxCurrent    float32   `json:"max_current"`
	PowerW        float32   `json:"power_w"`
	EnergyWh      float64   `json:"energy_wh"`
	PhaseCount    int       `json:"phase_count"`
	ChargingTimeS float64   `json:"charging_time_s"`
}

// Commands is the seam the Server uses to apply user requests; the
// engine implements it and enqueues the request for the next tick
// (spec.md §5: "enqueue requests that run between ticks").
type Commands interface {
	CurrentStatus() StatusSnapshot
	SetMode(mode int) error
	SetStartStop(enabled bool) error
	SetCurrent(amps float64) error
	GetConfig() *config.Config
	PutConfig(cfg *config.Config) error
}

// Server is the HTTP+websocket API surface.
type Server struct {
	cmds Commands
	cfg  ServerConfig

	httpServer *http.Server
	upgrader   websocket.Upgrader

	logger *log.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// ServerConfig configures listen address and broadcast cadence.
type ServerConfig struct {
	Listen            string
	BroadcastInterval time.Duration
}

// NewServer builds a Server with the mux wired exactly like the
// teacher's NewWebServer: stdlib ServeMux, no router library.
func NewServer(cmds Commands, cfg ServerConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = 5 * time.Second
	}

	s := &Server{
		cmds:    cmds,
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/startstop", s.handleStartStop)
	mux.HandleFunc("/api/set_current", s.handleSetCurrent)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go s.broadcastLoop()
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("[API] server error: %v", err)
		}
	}()
}

// Shutdown stops accepting new connections and closes all websockets.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.cmds.CurrentStatus())
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Mode int `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cmds.SetMode(body.Mode); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStartStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cmds.SetStartStop(body.Enabled); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Amps float64 `json:"amps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cmds.SetCurrent(body.Amps); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cmds.GetConfig())

	case http.MethodPut:
		cfg, err := config.LoadFromReader(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.cmds.PutConfig(cfg); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[API] websocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	s.sendStatus(conn)

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) sendStatus(conn *websocket.Conn) {
	data, err := json.Marshal(s.cmds.CurrentStatus())
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		conns := make([]*websocket.Conn, 0, len(s.clients))
		for c := range s.clients {
			conns = append(conns, c)
		}
		s.mu.Unlock()

		data, err := json.Marshal(s.cmds.CurrentStatus())
		if err != nil {
			continue
		}
		for _, c := range conns {
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				s.mu.Lock()
				delete(s.clients, c)
				s.mu.Unlock()
				c.Close()
			}
		}
	}
}
