package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tangled.org/atscan.net/perfhint/internal/types"
)

var (
	// ErrBadState is returned for calls a session cannot accept in its current state
	ErrBadState = errors.New("illegal session state")

	// ErrInvalidArgument is returned for malformed requests
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a session id is unknown
	ErrNotFound = errors.New("session not found")
)

// Session is one client's performance-hint session. It keeps rolling frame
// statistics and applies the requests delivered by channel workers.
type Session struct {
	id        int32
	tgid      int32
	uid       int32
	createdAt time.Time

	lowFrameRateThreshold int32
	logger                types.Logger

	mu           sync.Mutex
	records      *Records
	targetNs     int64
	buckets      FrameBuckets
	hints        map[types.SessionHint]int64
	modes        map[types.SessionMode]bool
	reports      int64
	lowFrameRate bool
	updatedAt    time.Time
	closed       bool
}

func newSession(id, tgid, uid int32, targetNs int64, cfg *RegistryConfig) *Session {
	now := time.Now()
	return &Session{
		id:                    id,
		tgid:                  tgid,
		uid:                   uid,
		createdAt:             now,
		lowFrameRateThreshold: cfg.LowFrameRateThreshold,
		logger:                cfg.Logger,
		records:               NewRecords(cfg.RecordsCapacity, cfg.JankFactor),
		targetNs:              targetNs,
		hints:                 make(map[types.SessionHint]int64),
		modes:                 make(map[types.SessionMode]bool),
		updatedAt:             now,
	}
}

// ID returns the session id
func (s *Session) ID() int32 { return s.id }

// SendHint records a load hint
func (s *Session) SendHint(hint types.SessionHint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session %d: %w: closed", s.id, ErrBadState)
	}
	if !hint.Valid() {
		return fmt.Errorf("session %d: %w: hint %s", s.id, ErrInvalidArgument, hint)
	}

	s.hints[hint]++
	s.updatedAt = time.Now()
	return nil
}

// UpdateTargetWorkDuration sets a new target. Retained records are dropped
// when the target changes since they were judged against the old one.
func (s *Session) UpdateTargetWorkDuration(targetNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session %d: %w: closed", s.id, ErrBadState)
	}
	if targetNs <= 0 {
		return fmt.Errorf("session %d: %w: target duration %d", s.id, ErrInvalidArgument, targetNs)
	}

	if targetNs != s.targetNs {
		s.records.ResetRecords()
		s.lowFrameRate = false
	}
	s.targetNs = targetNs
	s.updatedAt = time.Now()
	return nil
}

// ReportActualWorkDuration feeds a batch of frame durations to the records.
// durations may be reused by the caller after return.
func (s *Session) ReportActualWorkDuration(durations []types.WorkDuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session %d: %w: closed", s.id, ErrBadState)
	}
	if s.targetNs == 0 {
		return fmt.Errorf("session %d: %w: target duration not set", s.id, ErrBadState)
	}
	if len(durations) == 0 {
		return fmt.Errorf("session %d: %w: empty duration batch", s.id, ErrInvalidArgument)
	}

	s.records.AddReportedDurations(durations, s.targetNs, &s.buckets, s.modes[types.ModeGraphicsPipeline])
	s.reports++

	low := s.records.IsLowFrameRate(s.lowFrameRateThreshold)
	if low != s.lowFrameRate && s.logger != nil {
		s.logger.Printf("session %d: low frame rate %v (threshold %d fps)", s.id, low, s.lowFrameRateThreshold)
	}
	s.lowFrameRate = low
	s.updatedAt = time.Now()
	return nil
}

// SetMode toggles a session mode
func (s *Session) SetMode(mode types.SessionMode, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session %d: %w: closed", s.id, ErrBadState)
	}
	if !mode.Valid() {
		return fmt.Errorf("session %d: %w: mode %s", s.id, ErrInvalidArgument, mode)
	}

	s.modes[mode] = enabled
	s.updatedAt = time.Now()
	return nil
}

// close marks the session closed and returns its final metrics
func (s *Session) close() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	m := s.metricsLocked()
	now := time.Now()
	m.ClosedAt = &now
	return m
}

// Metrics is a point-in-time view of a session
type Metrics struct {
	SessionID           int32            `json:"session_id"`
	TGID                int32            `json:"tgid"`
	UID                 int32            `json:"uid"`
	TargetDurationNanos int64            `json:"target_duration_ns"`
	NumOfRecords        int32            `json:"records"`
	MaxDurationUs       int32            `json:"max_duration_us"`
	AvgDurationUs       int32            `json:"avg_duration_us"`
	MissedCycles        int32            `json:"missed_cycles"`
	FPSJitters          int32            `json:"fps_jitters"`
	LatestFPS           int32            `json:"latest_fps"`
	LowFrameRate        bool             `json:"low_frame_rate"`
	Latest              *CycleRecord     `json:"latest,omitempty"`
	Reports             int64            `json:"reports"`
	Modes               []string         `json:"modes,omitempty"`
	Hints               map[string]int64 `json:"hints,omitempty"`
	Buckets             FrameBuckets     `json:"buckets"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	ClosedAt            *time.Time       `json:"closed_at,omitempty"`
}

// Snapshot returns the session's current metrics
func (s *Session) Snapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsLocked()
}

func (s *Session) metricsLocked() Metrics {
	m := Metrics{
		SessionID:           s.id,
		TGID:                s.tgid,
		UID:                 s.uid,
		TargetDurationNanos: s.targetNs,
		NumOfRecords:        s.records.NumOfRecords(),
		MissedCycles:        s.records.NumOfMissedCycles(),
		FPSJitters:          s.records.NumOfFPSJitters(),
		LatestFPS:           s.records.LatestFPS(),
		LowFrameRate:        s.lowFrameRate,
		Reports:             s.reports,
		Buckets:             s.buckets,
		CreatedAt:           s.createdAt,
		UpdatedAt:           s.updatedAt,
	}
	m.MaxDurationUs, _ = s.records.MaxDuration()
	m.AvgDurationUs, _ = s.records.AvgDuration()
	if latest, ok := s.records.Latest(); ok {
		m.Latest = &latest
	}

	for mode, on := range s.modes {
		if on {
			m.Modes = append(m.Modes, mode.String())
		}
	}
	sort.Strings(m.Modes)

	if len(s.hints) > 0 {
		m.Hints = make(map[string]int64, len(s.hints))
		for h, n := range s.hints {
			m.Hints[h.String()] = n
		}
	}

	return m
}
