package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rewired-gh/kalshideck/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard frontend is served from its own origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// wsEnvelope wraps every pushed websocket message.
type wsEnvelope struct {
	Type string      `json:"type"` // "view" or "config_changed"
	Data interface{} `json:"data,omitempty"`
}

// handleWS upgrades the connection and streams view model updates and
// config-change signals until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	views, cancelViews := s.hub.Subscribe()
	defer cancelViews()
	configs, cancelConfigs := s.hub.SubscribeConfig()
	defer cancelConfigs()

	// Reader goroutine only drains control frames and detects disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current state immediately so the client does not wait for
	// the next poll cycle.
	if err := s.writeWS(conn, wsEnvelope{Type: "view", Data: s.hub.Current()}); err != nil {
		return
	}

	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	for {
		select {
		case <-done:
			return
		case model, ok := <-views:
			if !ok {
				return
			}
			if err := s.writeWS(conn, wsEnvelope{Type: "view", Data: model}); err != nil {
				return
			}
		case _, ok := <-configs:
			if !ok {
				return
			}
			if err := s.writeWS(conn, wsEnvelope{Type: "config_changed"}); err != nil {
				return
			}
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, env wsEnvelope) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	return conn.WriteJSON(env)
}
