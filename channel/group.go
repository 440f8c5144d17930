package channel

import (
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tangled.org/atscan.net/perfhint/internal/message"
	"tangled.org/atscan.net/perfhint/internal/shm"
	"tangled.org/atscan.net/perfhint/internal/types"
)

const (
	// waitErrorBackoff keeps a failing futex from turning the worker into a spin loop
	waitErrorBackoff = 10 * time.Millisecond

	// workerWaitTimeout bounds each wait so the worker notices Close even
	// when the wake-up could not be delivered
	workerWaitTimeout = time.Second
)

// Group serves up to MaxChannels channels with one worker goroutine locked
// to its own OS thread. All slots share one event flag: clients set their
// write bit after writing, the worker sets their read bit after draining.
type Group struct {
	id     int32
	config *Config
	flag   *shm.EventFlag

	mu           sync.Mutex
	channels     [types.MaxChannels]*Channel
	liveChannels atomic.Int32
	blocklist    map[int32]struct{}

	destructing atomic.Bool
	stopped     atomic.Bool
	closeOnce   sync.Once
	done        chan struct{}

	// worker-owned scratch space
	buf   []byte
	batch []types.WorkDuration
}

// NewGroup creates the group's event flag and starts its worker
func NewGroup(id int32, config *Config) (*Group, error) {
	flag, err := shm.CreateEventFlag(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("group %d: missing synchronization segment: %w", id, err)
	}

	g := &Group{
		id:        id,
		config:    config,
		flag:      flag,
		blocklist: make(map[int32]struct{}),
		done:      make(chan struct{}),
		buf:       make([]byte, types.QueueSize*message.Size),
		batch:     make([]types.WorkDuration, 0, types.QueueSize),
	}

	go g.run()

	if config.Verbose {
		config.Logger.Printf("Channel group %d started (flag %s)", id, flag.Desc().Path)
	}
	return g, nil
}

// ID returns the group id
func (g *Group) ID() int32 { return g.id }

// ChannelCount returns the number of occupied slots
func (g *Group) ChannelCount() int32 {
	return g.liveChannels.Load()
}

// Stopped reports whether the worker quit because the event flag became
// unusable. A stopped group accepts no new channels.
func (g *Group) Stopped() bool {
	return g.stopped.Load()
}

// FlagDesc returns the descriptor of the group's event flag
func (g *Group) FlagDesc() shm.Descriptor {
	return g.flag.Desc()
}

// CreateChannel places a new channel in the lowest free slot. Callers must
// check for a free slot first; a full group panics.
func (g *Group) CreateChannel(tgid, uid int32) *Channel {
	g.mu.Lock()
	defer g.mu.Unlock()

	for slot := int32(0); slot < types.MaxChannels; slot++ {
		if g.channels[slot] != nil {
			continue
		}
		id := ChannelID{GroupID: g.id, Slot: slot}
		ch := newChannel(g.config.Dir, ClientKey{TGID: tgid, UID: uid}, id, g.config.Logger)
		g.channels[slot] = ch
		g.liveChannels.Add(1)
		return ch
	}

	panic(fmt.Sprintf("channel group %d is full", g.id))
}

// RemoveChannel frees slot and closes its channel. Removing an empty slot
// is a no-op that returns false.
func (g *Group) RemoveChannel(slot int32) bool {
	g.mu.Lock()
	if slot < 0 || slot >= types.MaxChannels || g.channels[slot] == nil {
		g.mu.Unlock()
		return false
	}
	ch := g.channels[slot]
	g.channels[slot] = nil
	g.liveChannels.Add(-1)
	g.mu.Unlock()

	if err := ch.Close(); err != nil {
		g.config.Logger.Printf("Warning: failed to close channel %s: %v", ch.ID(), err)
	}
	return true
}

// GetChannel returns the channel in slot. The slot must be occupied.
func (g *Group) GetChannel(slot int32) *Channel {
	g.mu.Lock()
	defer g.mu.Unlock()

	if slot < 0 || slot >= types.MaxChannels || g.channels[slot] == nil {
		panic(fmt.Sprintf("channel group %d: slot %d is empty", g.id, slot))
	}
	return g.channels[slot]
}

func (g *Group) channelAt(slot int32) *Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.channels[slot]
}

// IsBlocklisted reports whether uid's messages are being ignored
func (g *Group) IsBlocklisted(uid int32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blocklist[uid]
	return ok
}

// Blocklisted returns the blocklisted uids in ascending order
func (g *Group) Blocklisted() []int32 {
	g.mu.Lock()
	uids := make([]int32, 0, len(g.blocklist))
	for uid := range g.blocklist {
		uids = append(uids, uid)
	}
	g.mu.Unlock()

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

func (g *Group) addToBlocklist(ch *Channel, cause error) {
	g.mu.Lock()
	g.blocklist[ch.UID()] = struct{}{}
	g.mu.Unlock()

	g.config.Metrics.ClientBlocklisted()
	g.config.Logger.Printf("Blocklisting uid %d (tgid %d, channel %s): %v", ch.UID(), ch.TGID(), ch.ID(), cause)
}

// ============================================================================
// WORKER
// ============================================================================

func (g *Group) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(g.done)

	if err := raiseThreadPriority(); err != nil && g.config.Verbose {
		g.config.Logger.Printf("Channel group %d: could not raise worker priority: %v", g.id, err)
	}

	for !g.destructing.Load() {
		var pending uint32
		err := guardFault(func() (err error) {
			pending, err = g.flag.Wait(types.WriteBits, workerWaitTimeout)
			return err
		})
		if errors.Is(err, shm.ErrTimeout) {
			continue
		}
		if errors.Is(err, ErrSegmentFault) {
			g.stopped.Store(true)
			g.config.Logger.Printf("Channel group %d: event flag unusable, stopping worker: %v", g.id, err)
			return
		}
		if err != nil {
			g.config.Logger.Printf("Channel group %d: wait failed: %v", g.id, err)
			time.Sleep(waitErrorBackoff)
			continue
		}

		for pending != 0 {
			if g.destructing.Load() {
				return
			}
			slot := int32(bits.TrailingZeros32(pending))
			pending &= pending - 1
			g.serve(slot)
		}
	}
}

// serve drains one slot and dispatches what it read
func (g *Group) serve(slot int32) {
	ch := g.channelAt(slot)
	if ch == nil || !ch.IsValid() {
		return
	}
	if g.IsBlocklisted(ch.UID()) {
		return
	}

	var n int
	err := guardFault(func() (err error) {
		n, err = ch.drain(g.buf)
		return err
	})
	if err != nil {
		g.addToBlocklist(ch, err)
		return
	}
	if n == 0 {
		return
	}

	if err := g.wake(ch.ReadBitmask()); err != nil {
		g.config.Logger.Printf("Channel group %d: wake failed: %v", g.id, err)
	}

	g.dispatch(g.buf[:n*message.Size], n)
}

func (g *Group) wake(bits uint32) error {
	return guardFault(func() error {
		return g.flag.Wake(bits)
	})
}

// dispatch delivers n decoded messages in order. Consecutive work
// durations for the same session are delivered as one batch.
func (g *Group) dispatch(data []byte, n int) {
	for i := 0; i < n; {
		if g.destructing.Load() {
			return
		}

		m, err := message.Decode(data[i*message.Size:])
		if err != nil {
			g.config.Logger.Printf("Channel group %d: dropping message: %v", g.id, err)
			g.config.Metrics.MessageDropped("decode")
			i++
			continue
		}

		if m.Tag == message.TagWorkDuration {
			batch := append(g.batch[:0], m.WorkDuration)
			j := i + 1
			for ; j < n; j++ {
				next, err := message.Decode(data[j*message.Size:])
				if err != nil || next.Tag != message.TagWorkDuration || next.SessionID != m.SessionID {
					break
				}
				batch = append(batch, next.WorkDuration)
			}
			g.batch = batch
			g.deliverDurations(m.SessionID, batch)
			i = j
			continue
		}

		g.deliver(&m)
		i++
	}
}

func (g *Group) lookup(sessionID int32) (SessionHandler, bool) {
	if g.config.Registry == nil {
		return nil, false
	}
	return g.config.Registry.Session(sessionID)
}

func (g *Group) deliverDurations(sessionID int32, batch []types.WorkDuration) {
	handler, ok := g.lookup(sessionID)
	if !ok {
		g.config.Metrics.MessageDropped("unknown_session")
		return
	}

	g.config.Metrics.ObserveBatch(len(batch))
	if err := handler.ReportActualWorkDuration(batch); err != nil {
		g.config.Logger.Printf("Channel group %d: session %d: %v", g.id, sessionID, err)
		return
	}
	g.config.Metrics.MessageDispatched(message.TagWorkDuration.String())
}

func (g *Group) deliver(m *message.Message) {
	handler, ok := g.lookup(m.SessionID)
	if !ok {
		g.config.Metrics.MessageDropped("unknown_session")
		return
	}

	var err error
	switch m.Tag {
	case message.TagHint:
		err = handler.SendHint(m.Hint)
	case message.TagTargetDuration:
		err = handler.UpdateTargetWorkDuration(m.TargetDurationNanos)
	case message.TagMode:
		err = handler.SetMode(m.Mode, m.Enabled)
	}

	if err != nil {
		g.config.Logger.Printf("Channel group %d: session %d: %v", g.id, m.SessionID, err)
		return
	}
	g.config.Metrics.MessageDispatched(m.Tag.String())
}

// Close stops the worker, waits for it to exit and releases every channel
// and the event flag. Close is idempotent.
func (g *Group) Close() {
	g.closeOnce.Do(func() {
		g.destructing.Store(true)
		if err := g.wake(types.AllBits); err != nil {
			g.config.Logger.Printf("Channel group %d: wake failed: %v", g.id, err)
		}
		<-g.done

		g.mu.Lock()
		for slot, ch := range g.channels {
			if ch == nil {
				continue
			}
			if err := ch.Close(); err != nil {
				g.config.Logger.Printf("Warning: failed to close channel %s: %v", ch.ID(), err)
			}
			g.channels[slot] = nil
			g.liveChannels.Add(-1)
		}
		g.mu.Unlock()

		if err := g.flag.Close(); err != nil {
			g.config.Logger.Printf("Warning: failed to remove flag of group %d: %v", g.id, err)
		}

		if g.config.Verbose {
			g.config.Logger.Printf("Channel group %d stopped", g.id)
		}
	})
}
