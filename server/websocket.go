package server

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// minStatusInterval bounds how fast a client may ask to be updated
const minStatusInterval = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interval := s.config.StatusInterval
		if raw := r.URL.Query().Get("interval"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d < minStatusInterval {
				http.Error(w, fmt.Sprintf("Invalid interval: must be a duration of at least %s", minStatusInterval), 400)
				return
			}
			interval = d
		}
		withSessions := r.URL.Query().Get("sessions") == "1"

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WebSocket upgrade failed: %v\n", err)
			return
		}
		defer conn.Close()

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		done := make(chan struct{})

		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if err := s.streamStatus(conn, interval, withSessions, done); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Fprintf(os.Stderr, "WebSocket stream error: %v\n", err)
			}
		}
	}
}

// streamStatus pushes one WatchFrame right away and one per interval
// until the client goes away
func (s *Server) streamStatus(conn *websocket.Conn, interval time.Duration, withSessions bool, done chan struct{}) error {
	if err := s.sendFrame(conn, withSessions); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil

		case <-ticker.C:
			if err := s.sendFrame(conn, withSessions); err != nil {
				return err
			}
		}
	}
}

func (s *Server) sendFrame(conn *websocket.Conn, withSessions bool) error {
	frame := WatchFrame{
		Time:   time.Now(),
		Status: s.status(),
	}
	if withSessions {
		frame.Sessions = s.service.Sessions()
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal status frame: %w", err)
	}

	return conn.WriteMessage(websocket.TextMessage, data)
}
