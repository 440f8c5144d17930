package server

import (
	"time"

	"tangled.org/atscan.net/perfhint"
)

// StatusResponse is the /status endpoint response
type StatusResponse struct {
	Server  ServerStatus    `json:"server"`
	Service perfhint.Status `json:"service"`
}

// ServerStatus contains server information
type ServerStatus struct {
	Version          string `json:"version"`
	WebSocketEnabled bool   `json:"websocket_enabled"`
	UptimeSeconds    int    `json:"uptime_seconds"`
}

// CreateSessionRequest is the POST /sessions body
type CreateSessionRequest struct {
	TGID                int32 `json:"tgid"`
	UID                 int32 `json:"uid"`
	TargetDurationNanos int64 `json:"target_duration_ns"`
}

// CreateSessionResponse is the POST /sessions response
type CreateSessionResponse struct {
	SessionID int32 `json:"session_id"`
}

// CloseChannelResponse is the DELETE /channels response
type CloseChannelResponse struct {
	TGID   int32 `json:"tgid"`
	UID    int32 `json:"uid"`
	Closed bool  `json:"closed"`
}

// WatchFrame is one /ws message
type WatchFrame struct {
	Time     time.Time                 `json:"time"`
	Status   StatusResponse            `json:"status"`
	Sessions []perfhint.SessionMetrics `json:"sessions,omitempty"`
}
