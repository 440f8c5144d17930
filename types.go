package perfhint

import (
	"time"

	"tangled.org/atscan.net/perfhint/channel"
	"tangled.org/atscan.net/perfhint/internal/message"
	"tangled.org/atscan.net/perfhint/internal/types"
	"tangled.org/atscan.net/perfhint/session"
)

// Re-export commonly used types for convenience
type (
	Logger         = types.Logger
	Session        = session.Session
	SessionMetrics = session.Metrics
	FrameBuckets   = session.FrameBuckets
	ChannelConfig  = channel.ChannelConfig
	Client         = channel.Client
	GroupStats     = channel.GroupStats
	Message        = message.Message
	WorkDuration   = types.WorkDuration
	SessionHint    = types.SessionHint
	SessionMode    = types.SessionMode
)

// Re-export constants
const (
	MaxChannels = types.MaxChannels
	QueueSize   = types.QueueSize
)

// Status summarizes a running service
type Status struct {
	StartTime    time.Time    `json:"start_time"`
	UptimeSecs   int64        `json:"uptime_seconds"`
	SegmentDir   string       `json:"segment_dir"`
	ArchivePath  string       `json:"archive_path,omitempty"`
	GroupCount   int          `json:"group_count"`
	ChannelCount int          `json:"channel_count"`
	SessionCount int          `json:"session_count"`
	Groups       []GroupStats `json:"groups"`
}
