package channel

import (
	"errors"
	"log"

	"tangled.org/atscan.net/perfhint/internal/metrics"
	"tangled.org/atscan.net/perfhint/internal/shm"
	"tangled.org/atscan.net/perfhint/internal/types"
)

// ErrInvalidChannel is returned when a channel has no usable queue
var ErrInvalidChannel = errors.New("invalid channel")

// SessionHandler receives the requests a client pushes through its channel.
// Errors are logged by the worker and never stop it.
type SessionHandler interface {
	SendHint(hint types.SessionHint) error
	UpdateTargetWorkDuration(targetNs int64) error
	// ReportActualWorkDuration gets consecutive reports for one session in
	// arrival order. The slice is reused after the call returns.
	ReportActualWorkDuration(durations []types.WorkDuration) error
	SetMode(mode types.SessionMode, enabled bool) error
}

// SessionRegistry resolves session ids carried in messages
type SessionRegistry interface {
	Session(id int32) (SessionHandler, bool)
}

// Config holds channel layer configuration
type Config struct {
	// Dir holds the shared memory segment files
	Dir string

	Registry SessionRegistry
	Metrics  *metrics.Collector
	Logger   types.Logger
	Verbose  bool
}

// DefaultConfig returns a configuration placing segments in dir
// (or the platform shared memory directory when dir is empty)
func DefaultConfig(dir string) *Config {
	if dir == "" {
		dir = shm.DefaultDir()
	}
	return &Config{
		Dir:    dir,
		Logger: defaultLogger{},
	}
}

// ChannelConfig is everything a client needs to attach to its channel
type ChannelConfig struct {
	EventFlagDescriptor shm.Descriptor `json:"event_flag"`
	ChannelDescriptor   shm.Descriptor `json:"channel"`
	ReadFlagBitmask     uint32         `json:"read_flag_bitmask"`
	WriteFlagBitmask    uint32         `json:"write_flag_bitmask"`
}

type defaultLogger struct{}

func (d defaultLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

func (d defaultLogger) Println(v ...interface{}) {
	log.Println(v...)
}
