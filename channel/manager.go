package channel

import (
	"fmt"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"tangled.org/atscan.net/perfhint/internal/types"
)

// Manager assigns client channels to groups, creating a group when every
// existing one is full and closing a group as soon as it becomes empty.
// Lock order is manager, then group.
type Manager struct {
	config *Config

	mu       sync.Mutex
	groups   *treemap.Map // int32 -> *Group, ascending by id
	channels map[ClientKey]ChannelID
}

// GroupStats describes one live group
type GroupStats struct {
	ID          int32   `json:"id"`
	Channels    int32   `json:"channels"`
	Blocklisted []int32 `json:"blocklisted_uids,omitempty"`
	Stopped     bool    `json:"stopped,omitempty"`
}

// NewManager creates a manager with no groups
func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Logger == nil {
		config.Logger = defaultLogger{}
	}

	return &Manager{
		config:   config,
		groups:   treemap.NewWith(utils.Int32Comparator),
		channels: make(map[ClientKey]ChannelID),
	}
}

func (m *Manager) group(id int32) *Group {
	v, ok := m.groups.Get(id)
	if !ok {
		return nil
	}
	return v.(*Group)
}

// GetOrCreateChannel returns the client's channel, creating it (and a
// group, if needed) on first use.
func (m *Manager) GetOrCreateChannel(tgid, uid int32) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, _, err := m.getOrCreateLocked(ClientKey{TGID: tgid, UID: uid})
	return ch, err
}

func (m *Manager) getOrCreateLocked(key ClientKey) (*Channel, *Group, error) {
	if id, ok := m.channels[key]; ok {
		g := m.group(id.GroupID)
		if g == nil {
			panic(fmt.Sprintf("channel %s of %s points at missing group", id, key))
		}
		return g.GetChannel(id.Slot), g, nil
	}

	var g *Group
	it := m.groups.Iterator()
	for it.Next() {
		candidate := it.Value().(*Group)
		if !candidate.Stopped() && candidate.ChannelCount() < types.MaxChannels {
			g = candidate
			break
		}
	}

	if g == nil {
		id := int32(0)
		if maxKey, _ := m.groups.Max(); maxKey != nil {
			id = maxKey.(int32) + 1
		}

		var err error
		g, err = NewGroup(id, m.config)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create channel group: %w", err)
		}
		m.groups.Put(id, g)
	}

	ch := g.CreateChannel(key.TGID, key.UID)
	m.channels[key] = ch.ID()

	if m.config.Verbose {
		m.config.Logger.Printf("Channel %s created for %s", ch.ID(), key)
	}
	m.updateGaugesLocked()
	return ch, g, nil
}

// CloseChannel removes the client's channel, closing its group when it was
// the last one. It returns false when the client had no channel.
func (m *Manager) CloseChannel(tgid, uid int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeLocked(ClientKey{TGID: tgid, UID: uid})
}

func (m *Manager) closeLocked(key ClientKey) bool {
	id, ok := m.channels[key]
	if !ok {
		return false
	}
	delete(m.channels, key)

	g := m.group(id.GroupID)
	if g == nil {
		panic(fmt.Sprintf("channel %s of %s points at missing group", id, key))
	}
	g.RemoveChannel(id.Slot)

	if g.ChannelCount() == 0 {
		m.groups.Remove(id.GroupID)
		g.Close()
	}

	if m.config.Verbose {
		m.config.Logger.Printf("Channel %s closed for %s", id, key)
	}
	m.updateGaugesLocked()
	return true
}

// GetChannelConfig returns what the client needs to attach to its
// channel, creating the channel on first use.
func (m *Manager) GetChannelConfig(tgid, uid int32) (*ChannelConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ClientKey{TGID: tgid, UID: uid}
	ch, g, err := m.getOrCreateLocked(key)
	if err != nil {
		return nil, err
	}

	desc, err := ch.Desc()
	if err != nil {
		m.closeLocked(key)
		return nil, err
	}

	return &ChannelConfig{
		EventFlagDescriptor: g.FlagDesc(),
		ChannelDescriptor:   desc,
		ReadFlagBitmask:     ch.ReadBitmask(),
		WriteFlagBitmask:    ch.WriteBitmask(),
	}, nil
}

// GroupCount returns the number of live groups
func (m *Manager) GroupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups.Size()
}

// ChannelCount returns the number of live channels
func (m *Manager) ChannelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Groups describes every live group in ascending id order
func (m *Manager) Groups() []GroupStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]GroupStats, 0, m.groups.Size())
	it := m.groups.Iterator()
	for it.Next() {
		g := it.Value().(*Group)
		stats = append(stats, GroupStats{
			ID:          g.ID(),
			Channels:    g.ChannelCount(),
			Blocklisted: g.Blocklisted(),
			Stopped:     g.Stopped(),
		})
	}
	return stats
}

// IsBlocklisted reports whether the client's group ignores its uid
func (m *Manager) IsBlocklisted(tgid, uid int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.channels[ClientKey{TGID: tgid, UID: uid}]
	if !ok {
		return false
	}
	return m.group(id.GroupID).IsBlocklisted(uid)
}

func (m *Manager) updateGaugesLocked() {
	m.config.Metrics.SetGroups(m.groups.Size())
	m.config.Metrics.SetChannels(len(m.channels))
}

// Close closes every channel and group
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.groups.Iterator()
	for it.Next() {
		it.Value().(*Group).Close()
	}
	m.groups.Clear()
	m.channels = make(map[ClientKey]ChannelID)
	m.updateGaugesLocked()
}
