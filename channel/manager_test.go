package channel_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"tangled.org/atscan.net/perfhint/channel"
	"tangled.org/atscan.net/perfhint/internal/types"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Printf(format string, v ...interface{}) {
	l.t.Logf(format, v...)
}

func (l *testLogger) Println(v ...interface{}) {
	l.t.Log(v...)
}

func newTestConfig(t *testing.T, registry channel.SessionRegistry) *channel.Config {
	t.Helper()

	cfg := channel.DefaultConfig(t.TempDir())
	cfg.Logger = &testLogger{t: t}
	cfg.Registry = registry
	return cfg
}

func newTestManager(t *testing.T, registry channel.SessionRegistry) *channel.Manager {
	t.Helper()

	m := channel.NewManager(newTestConfig(t, registry))
	t.Cleanup(m.Close)
	return m
}

// ====================================================================================
// MANAGER ALLOCATION TESTS
// ====================================================================================

func TestManagerGroupAllocation(t *testing.T) {
	m := newTestManager(t, nil)

	const clients = 40
	seen := make(map[channel.ChannelID]bool)

	for i := int32(0); i < clients; i++ {
		ch, err := m.GetOrCreateChannel(1000+i, 10000+i)
		if err != nil {
			t.Fatalf("GetOrCreateChannel(%d) failed: %v", i, err)
		}
		if !ch.IsValid() {
			t.Fatalf("channel %d is invalid", i)
		}
		if seen[ch.ID()] {
			t.Fatalf("channel id %s reused while alive", ch.ID())
		}
		seen[ch.ID()] = true

		wantGroup := i / types.MaxChannels
		if ch.ID().GroupID != wantGroup || ch.ID().Slot != i%types.MaxChannels {
			t.Errorf("client %d placed at %s, want %d/%d", i, ch.ID(), wantGroup, i%types.MaxChannels)
		}
	}

	if got := m.GroupCount(); got != 3 {
		t.Errorf("GroupCount = %d, want 3", got)
	}
	if got := m.ChannelCount(); got != clients {
		t.Errorf("ChannelCount = %d, want %d", got, clients)
	}

	stats := m.Groups()
	if len(stats) != 3 || stats[0].Channels != 16 || stats[1].Channels != 16 || stats[2].Channels != 8 {
		t.Errorf("group stats = %+v", stats)
	}

	t.Run("SameClientSameChannel", func(t *testing.T) {
		a, _ := m.GetOrCreateChannel(1005, 10005)
		b, _ := m.GetOrCreateChannel(1005, 10005)
		if a != b {
			t.Error("repeated lookup returned a different channel")
		}
		if m.ChannelCount() != clients {
			t.Errorf("ChannelCount = %d after repeated lookup", m.ChannelCount())
		}
	})

	for i := int32(0); i < clients; i++ {
		if !m.CloseChannel(1000+i, 10000+i) {
			t.Errorf("CloseChannel(%d) returned false", i)
		}
	}

	if m.GroupCount() != 0 || m.ChannelCount() != 0 {
		t.Errorf("after closing all: groups=%d channels=%d", m.GroupCount(), m.ChannelCount())
	}

	if m.CloseChannel(1000, 10000) {
		t.Error("closing an unknown client should return false")
	}
}

func TestManagerSlotReuse(t *testing.T) {
	m := newTestManager(t, nil)

	for i := int32(0); i < types.MaxChannels; i++ {
		if _, err := m.GetOrCreateChannel(i, i); err != nil {
			t.Fatalf("GetOrCreateChannel failed: %v", err)
		}
	}

	if !m.CloseChannel(5, 5) {
		t.Fatal("CloseChannel failed")
	}

	ch, err := m.GetOrCreateChannel(100, 100)
	if err != nil {
		t.Fatalf("GetOrCreateChannel failed: %v", err)
	}
	if ch.ID() != (channel.ChannelID{GroupID: 0, Slot: 5}) {
		t.Errorf("replacement placed at %s, want 0/5", ch.ID())
	}
	if m.GroupCount() != 1 {
		t.Errorf("GroupCount = %d, want 1", m.GroupCount())
	}
}

func TestManagerGroupIDs(t *testing.T) {
	m := newTestManager(t, nil)

	// fill groups 0 and 1, then empty group 0
	for i := int32(0); i < 2*types.MaxChannels; i++ {
		if _, err := m.GetOrCreateChannel(i, 0); err != nil {
			t.Fatalf("GetOrCreateChannel failed: %v", err)
		}
	}
	for i := int32(0); i < types.MaxChannels; i++ {
		m.CloseChannel(i, 0)
	}
	if m.GroupCount() != 1 {
		t.Fatalf("GroupCount = %d, want 1", m.GroupCount())
	}

	// group 1 is full, so a new group gets id max+1
	ch, err := m.GetOrCreateChannel(999, 0)
	if err != nil {
		t.Fatalf("GetOrCreateChannel failed: %v", err)
	}
	if ch.ID().GroupID != 2 {
		t.Errorf("new group id = %d, want 2", ch.ID().GroupID)
	}
}

func TestManagerConcurrentClients(t *testing.T) {
	m := newTestManager(t, nil)

	var wg sync.WaitGroup
	for w := int32(0); w < 8; w++ {
		wg.Add(1)
		go func(w int32) {
			defer wg.Done()
			for i := int32(0); i < 20; i++ {
				if _, err := m.GetOrCreateChannel(w, i); err != nil {
					t.Errorf("GetOrCreateChannel failed: %v", err)
					return
				}
				if i%2 == 1 {
					m.CloseChannel(w, i)
				}
			}
		}(w)
	}
	wg.Wait()

	if got := m.ChannelCount(); got != 80 {
		t.Errorf("ChannelCount = %d, want 80", got)
	}

	total := int32(0)
	for _, g := range m.Groups() {
		if g.Channels <= 0 || g.Channels > types.MaxChannels {
			t.Errorf("group %d has %d channels", g.ID, g.Channels)
		}
		total += g.Channels
	}
	if total != 80 {
		t.Errorf("groups hold %d channels, want 80", total)
	}
}

// ====================================================================================
// CHANNEL CONFIG TESTS
// ====================================================================================

func TestGetChannelConfig(t *testing.T) {
	m := newTestManager(t, nil)

	cfg, err := m.GetChannelConfig(42, 4242)
	if err != nil {
		t.Fatalf("GetChannelConfig failed: %v", err)
	}

	if m.ChannelCount() != 1 {
		t.Errorf("GetChannelConfig should create the channel implicitly")
	}
	if cfg.WriteFlagBitmask != types.WriteBitmask(0) || cfg.ReadFlagBitmask != types.ReadBitmask(0) {
		t.Errorf("bitmasks = %#x/%#x", cfg.WriteFlagBitmask, cfg.ReadFlagBitmask)
	}
	if cfg.ChannelDescriptor.Capacity != types.QueueSize {
		t.Errorf("queue capacity = %d, want %d", cfg.ChannelDescriptor.Capacity, types.QueueSize)
	}
	if cfg.EventFlagDescriptor.Path == "" || cfg.ChannelDescriptor.Path == "" {
		t.Error("descriptors must carry segment paths")
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded channel.ChannelConfig
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != *cfg {
		t.Errorf("decoded config %+v, want %+v", decoded, *cfg)
	}
}

func TestGetChannelConfigMissingDir(t *testing.T) {
	cfg := channel.DefaultConfig("/nonexistent/perfhint/segments")
	cfg.Logger = &testLogger{t: t}
	m := channel.NewManager(cfg)
	defer m.Close()

	if _, err := m.GetChannelConfig(1, 1); err == nil {
		t.Fatal("expected error when segments cannot be created")
	}
	if m.GroupCount() != 0 || m.ChannelCount() != 0 {
		t.Errorf("failed creation left groups=%d channels=%d", m.GroupCount(), m.ChannelCount())
	}
}

// ====================================================================================
// GROUP INVARIANT TESTS
// ====================================================================================

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestGroupSlots(t *testing.T) {
	g, err := channel.NewGroup(7, newTestConfig(t, nil))
	if err != nil {
		t.Fatalf("NewGroup failed: %v", err)
	}
	defer g.Close()

	for i := int32(0); i < types.MaxChannels; i++ {
		ch := g.CreateChannel(i, i)
		if ch.ID() != (channel.ChannelID{GroupID: 7, Slot: i}) {
			t.Errorf("channel %d at %s", i, ch.ID())
		}
		if ch.WriteBitmask() != 1<<i || ch.ReadBitmask() != 1<<(i+16) {
			t.Errorf("slot %d masks %#x/%#x", i, ch.WriteBitmask(), ch.ReadBitmask())
		}
	}
	if g.ChannelCount() != types.MaxChannels {
		t.Errorf("ChannelCount = %d", g.ChannelCount())
	}

	expectPanic(t, "CreateChannel on full group", func() { g.CreateChannel(99, 99) })

	if !g.RemoveChannel(3) {
		t.Error("RemoveChannel(3) returned false")
	}
	if g.RemoveChannel(3) {
		t.Error("second RemoveChannel(3) should be a no-op")
	}
	if g.ChannelCount() != types.MaxChannels-1 {
		t.Errorf("ChannelCount = %d", g.ChannelCount())
	}

	expectPanic(t, "GetChannel on empty slot", func() { g.GetChannel(3) })

	if ch := g.CreateChannel(50, 50); ch.ID().Slot != 3 {
		t.Errorf("freed slot not reused, got %s", ch.ID())
	}
}

func TestGroupCloseIdempotent(t *testing.T) {
	g, err := channel.NewGroup(0, newTestConfig(t, nil))
	if err != nil {
		t.Fatalf("NewGroup failed: %v", err)
	}
	ch := g.CreateChannel(1, 1)

	g.Close()
	g.Close()

	if ch.IsValid() {
		t.Error("channel still valid after group close")
	}
	if _, err := ch.Desc(); !errors.Is(err, channel.ErrInvalidChannel) {
		t.Errorf("expected ErrInvalidChannel, got %v", err)
	}
}
