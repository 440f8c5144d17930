package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"tangled.org/atscan.net/perfhint/session"
)

func (s *Server) handleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		st := s.service.Status()
		sessions := s.service.Sessions()

		var total session.FrameBuckets
		for _, m := range sessions {
			total.AddUpNewFrames(m.Buckets)
		}

		baseURL := getBaseURL(r)
		wsURL := getWSURL(r)

		var sb strings.Builder

		sb.WriteString("\nperfhint server\n\n")
		sb.WriteString("Clients report per-frame work durations through shared memory\n")
		sb.WriteString("channels. Each channel group is drained by one worker thread.\n\n")

		sb.WriteString("Channels\n")
		sb.WriteString("━━━━━━━━\n")
		sb.WriteString(fmt.Sprintf("  Segment dir:   %s\n", st.SegmentDir))
		sb.WriteString(fmt.Sprintf("  Groups:        %d\n", st.GroupCount))
		sb.WriteString(fmt.Sprintf("  Channels:      %d\n", st.ChannelCount))
		for _, g := range st.Groups {
			line := fmt.Sprintf("  Group %-4d     %2d/16 slots", g.ID, g.Channels)
			if len(g.Blocklisted) > 0 {
				line += fmt.Sprintf("  ⚠ blocklisted uids: %v", g.Blocklisted)
			}
			sb.WriteString(line + "\n")
		}

		sb.WriteString("\nSessions\n")
		sb.WriteString("━━━━━━━━\n")
		sb.WriteString(fmt.Sprintf("  Open:          %d\n", st.SessionCount))
		sb.WriteString(fmt.Sprintf("  Frames:        %s\n", formatNumber(total.TotalNumOfFrames)))
		sb.WriteString(fmt.Sprintf("  Jank frames:   %s\n", formatNumber(total.JankFrames())))
		if st.ArchivePath != "" {
			sb.WriteString(fmt.Sprintf("  Archive:       %s\n", st.ArchivePath))
		}

		sb.WriteString("\nServer Stats\n")
		sb.WriteString("━━━━━━━━━━━━\n")
		sb.WriteString(fmt.Sprintf("  Version:           %s\n", s.config.Version))
		sb.WriteString(fmt.Sprintf("  WebSocket:         %v\n", s.config.EnableWebSocket))
		sb.WriteString(fmt.Sprintf("  Uptime:            %s\n", time.Since(s.startTime).Round(time.Second)))

		sb.WriteString("\n\nAPI Endpoints\n")
		sb.WriteString("━━━━━━━━━━━━━\n")
		sb.WriteString("  GET    /                        This info page\n")
		sb.WriteString("  GET    /status                  Service status (JSON)\n")
		sb.WriteString("  GET    /groups                  Channel groups\n")
		sb.WriteString("  GET    /sessions                Open session snapshots\n")
		sb.WriteString("  POST   /sessions                Create a session\n")
		sb.WriteString("  GET    /sessions/:id            Session snapshot\n")
		sb.WriteString("  DELETE /sessions/:id            Close a session\n")
		sb.WriteString("  POST   /channels/:tgid/:uid     Channel attach config\n")
		sb.WriteString("  DELETE /channels/:tgid/:uid     Close a channel\n")
		sb.WriteString("  GET    /metrics                 Prometheus metrics\n")

		if s.config.EnableWebSocket {
			sb.WriteString("\nWebSocket Endpoints\n")
			sb.WriteString("━━━━━━━━━━━━━━━━━━━\n")
			sb.WriteString(fmt.Sprintf("  WS     /ws                      Status every %s\n", s.config.StatusInterval))
		}

		sb.WriteString("\nExamples\n")
		sb.WriteString("━━━━━━━━\n")
		sb.WriteString(fmt.Sprintf("  curl %s/status\n", baseURL))
		sb.WriteString(fmt.Sprintf("  curl -X POST %s/sessions -d '{\"tgid\":1,\"uid\":1,\"target_duration_ns\":16666666}'\n", baseURL))
		sb.WriteString(fmt.Sprintf("  curl -X POST %s/channels/1/1\n", baseURL))
		if s.config.EnableWebSocket {
			sb.WriteString(fmt.Sprintf("  websocat %s/ws\n", wsURL))
		}

		w.Write([]byte(sb.String()))
	}
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		Server: ServerStatus{
			Version:          s.config.Version,
			WebSocketEnabled: s.config.EnableWebSocket,
			UptimeSeconds:    int(time.Since(s.startTime).Seconds()),
		},
		Service: s.service.Status(),
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, 200, s.status())
	}
}

func (s *Server) handleGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, 200, s.service.Status().Groups)
	}
}

func (s *Server) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, 200, s.service.Sessions())
	}
}

func (s *Server) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendJSON(w, 400, map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}

		sess, err := s.service.CreateSession(req.TGID, req.UID, req.TargetDurationNanos)
		if err != nil {
			sendError(w, err)
			return
		}

		sendJSON(w, 201, CreateSessionResponse{SessionID: sess.ID()})
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt32(r, "id")
		if err != nil {
			sendError(w, err)
			return
		}

		sess, ok := s.service.GetSession(id)
		if !ok {
			sendError(w, fmt.Errorf("session %d: %w", id, session.ErrNotFound))
			return
		}

		sendJSON(w, 200, sess.Snapshot())
	}
}

func (s *Server) handleCloseSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt32(r, "id")
		if err != nil {
			sendError(w, err)
			return
		}

		final, err := s.service.CloseSession(id)
		if errors.Is(err, session.ErrNotFound) {
			sendError(w, err)
			return
		}
		// an archive failure still closed the session
		if err != nil {
			w.Header().Set("X-Archive-Error", err.Error())
		}

		sendJSON(w, 200, final)
	}
}

func (s *Server) handleChannelConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tgid, err := pathInt32(r, "tgid")
		if err != nil {
			sendError(w, err)
			return
		}
		uid, err := pathInt32(r, "uid")
		if err != nil {
			sendError(w, err)
			return
		}

		cfg, err := s.service.GetChannelConfig(tgid, uid)
		if err != nil {
			sendJSON(w, 503, map[string]string{"error": err.Error()})
			return
		}

		sendJSON(w, 200, cfg)
	}
}

func (s *Server) handleCloseChannel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tgid, err := pathInt32(r, "tgid")
		if err != nil {
			sendError(w, err)
			return
		}
		uid, err := pathInt32(r, "uid")
		if err != nil {
			sendError(w, err)
			return
		}

		closed := s.service.CloseChannel(tgid, uid)
		status := 200
		if !closed {
			status = 404
		}
		sendJSON(w, status, CloseChannelResponse{TGID: tgid, UID: uid, Closed: closed})
	}
}
