package session

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"tangled.org/atscan.net/perfhint/internal/metrics"
	"tangled.org/atscan.net/perfhint/internal/types"
)

// Archiver receives the final metrics of every closed session
type Archiver interface {
	Append(record interface{}) error
}

// RegistryConfig configures the sessions a Registry creates
type RegistryConfig struct {
	RecordsCapacity       int32
	JankFactor            float64
	LowFrameRateThreshold int32

	Archive Archiver
	Metrics *metrics.Collector
	Logger  types.Logger
}

// DefaultRegistryConfig returns the default session parameters
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		RecordsCapacity:       300,
		JankFactor:            1.5,
		LowFrameRateThreshold: 25,
		Logger:                defaultLogger{},
	}
}

type defaultLogger struct{}

func (d defaultLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

func (d defaultLogger) Println(v ...interface{}) {
	log.Println(v...)
}

// Registry owns every open session and resolves session ids for channel
// workers.
type Registry struct {
	config *RegistryConfig

	mu       sync.RWMutex
	sessions map[int32]*Session
	nextID   int32
}

// NewRegistry creates an empty registry
func NewRegistry(config *RegistryConfig) *Registry {
	if config == nil {
		config = DefaultRegistryConfig()
	}
	if config.Logger == nil {
		config.Logger = defaultLogger{}
	}
	if config.RecordsCapacity <= 0 {
		config.RecordsCapacity = DefaultRegistryConfig().RecordsCapacity
	}
	if config.JankFactor <= 0 {
		config.JankFactor = DefaultRegistryConfig().JankFactor
	}

	return &Registry{
		config:   config,
		sessions: make(map[int32]*Session),
		nextID:   1,
	}
}

// Create opens a new session for a client. targetNs may be zero, in which
// case duration reports are rejected until a target is set.
func (r *Registry) Create(tgid, uid int32, targetNs int64) (*Session, error) {
	if targetNs < 0 {
		return nil, fmt.Errorf("%w: target duration %d", ErrInvalidArgument, targetNs)
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	s := newSession(id, tgid, uid, targetNs, r.config)
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.config.Metrics.SetSessions(n)
	return s, nil
}

// Get returns the session with id
func (r *Registry) Get(id int32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Close closes and removes a session, archiving its final metrics
func (r *Registry) Close(id int32) (Metrics, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return Metrics{}, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	r.config.Metrics.SetSessions(n)

	final := s.close()
	r.config.Logger.Printf("Session %d closed: %s", id, final.Buckets)

	if r.config.Archive != nil {
		if err := r.config.Archive.Append(final); err != nil {
			return final, fmt.Errorf("failed to archive session %d: %w", id, err)
		}
		r.config.Metrics.SessionArchived()
	}

	return final, nil
}

// CloseAll closes every open session
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]int32, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if _, err := r.Close(id); err != nil {
			r.config.Logger.Printf("Warning: %v", err)
		}
	}
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns metrics for every open session ordered by id
func (r *Registry) Snapshot() []Metrics {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })

	out := make([]Metrics, len(sessions))
	for i, s := range sessions {
		out[i] = s.Snapshot()
	}
	return out
}
