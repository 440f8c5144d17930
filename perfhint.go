// Package perfhint is a performance hint service. Clients report per-frame
// work durations and hints through lock-free shared memory channels; the
// service aggregates them into per-session frame statistics.
package perfhint

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tangled.org/atscan.net/perfhint/channel"
	"tangled.org/atscan.net/perfhint/internal/metrics"
	"tangled.org/atscan.net/perfhint/internal/storage"
	"tangled.org/atscan.net/perfhint/session"
)

// Service wires the channel manager to the session registry
type Service struct {
	config    *config
	channels  *channel.Manager
	sessions  *session.Registry
	archive   *storage.Archive
	metrics   *metrics.Collector
	promReg   *prometheus.Registry
	startTime time.Time
}

// registryAdapter lets channel workers resolve sessions without the channel
// package depending on the session package
type registryAdapter struct {
	sessions *session.Registry
}

func (r registryAdapter) Session(id int32) (channel.SessionHandler, bool) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return s, true
}

// New creates a service
func New(opts ...Option) (*Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	promReg := cfg.promRegistry
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}
	collector := metrics.NewCollector(promReg)

	s := &Service{
		config:    cfg,
		metrics:   collector,
		promReg:   promReg,
		startTime: time.Now(),
	}

	if cfg.archiveDir != "" {
		archive, err := storage.OpenArchive(cfg.archiveDir, cfg.sessionConfig.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open session archive: %w", err)
		}
		s.archive = archive
		cfg.sessionConfig.Archive = archive
	}

	cfg.sessionConfig.Metrics = collector
	s.sessions = session.NewRegistry(cfg.sessionConfig)

	cfg.channelConfig.Metrics = collector
	cfg.channelConfig.Registry = registryAdapter{sessions: s.sessions}
	s.channels = channel.NewManager(cfg.channelConfig)

	return s, nil
}

// CreateSession opens a session for the client
func (s *Service) CreateSession(tgid, uid int32, targetNs int64) (*Session, error) {
	return s.sessions.Create(tgid, uid, targetNs)
}

// GetSession looks up an open session
func (s *Service) GetSession(id int32) (*Session, bool) {
	return s.sessions.Get(id)
}

// CloseSession closes a session and returns its final metrics
func (s *Service) CloseSession(id int32) (SessionMetrics, error) {
	return s.sessions.Close(id)
}

// GetChannelConfig returns the client's channel configuration, creating the
// channel on first use
func (s *Service) GetChannelConfig(tgid, uid int32) (*ChannelConfig, error) {
	return s.channels.GetChannelConfig(tgid, uid)
}

// CloseChannel releases the client's channel
func (s *Service) CloseChannel(tgid, uid int32) bool {
	return s.channels.CloseChannel(tgid, uid)
}

// IsBlocklisted reports whether the client's messages are being ignored
func (s *Service) IsBlocklisted(tgid, uid int32) bool {
	return s.channels.IsBlocklisted(tgid, uid)
}

// Sessions returns snapshots of every open session
func (s *Service) Sessions() []SessionMetrics {
	return s.sessions.Snapshot()
}

// Status summarizes the service
func (s *Service) Status() Status {
	st := Status{
		StartTime:    s.startTime,
		UptimeSecs:   int64(time.Since(s.startTime).Seconds()),
		SegmentDir:   s.config.channelConfig.Dir,
		GroupCount:   s.channels.GroupCount(),
		ChannelCount: s.channels.ChannelCount(),
		SessionCount: s.sessions.Len(),
		Groups:       s.channels.Groups(),
	}
	if s.archive != nil {
		st.ArchivePath = s.archive.Path()
	}
	return st
}

// ArchivePath returns the session archive path, or "" when archiving is off
func (s *Service) ArchivePath() string {
	if s.archive == nil {
		return ""
	}
	return s.archive.Path()
}

// Gatherer exposes the service metrics
func (s *Service) Gatherer() prometheus.Gatherer {
	return s.promReg
}

// Close stops every channel worker, then closes and archives every session
func (s *Service) Close() {
	s.channels.Close()
	s.sessions.CloseAll()
}
