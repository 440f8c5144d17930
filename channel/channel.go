package channel

import (
	"fmt"
	"sync"

	"tangled.org/atscan.net/perfhint/internal/message"
	"tangled.org/atscan.net/perfhint/internal/shm"
	"tangled.org/atscan.net/perfhint/internal/types"
)

// Channel is one client's message queue, bound to a slot of a group.
// A channel whose queue could not be created stays registered but invalid.
type Channel struct {
	key ClientKey
	id  ChannelID

	mu    sync.RWMutex
	queue *shm.Queue
	err   error
}

func newChannel(dir string, key ClientKey, id ChannelID, logger types.Logger) *Channel {
	ch := &Channel{key: key, id: id}

	q, err := shm.CreateQueue(dir, types.QueueSize, message.Size)
	if err != nil {
		logger.Printf("Warning: channel %s for %s has no queue: %v", id, key, err)
		ch.err = err
		return ch
	}
	ch.queue = q
	return ch
}

// TGID returns the owning process id
func (c *Channel) TGID() int32 { return c.key.TGID }

// UID returns the owning user id
func (c *Channel) UID() int32 { return c.key.UID }

// Key returns the owning client
func (c *Channel) Key() ClientKey { return c.key }

// ID returns the channel's group and slot
func (c *Channel) ID() ChannelID { return c.id }

// WriteBitmask is the bit a client sets after writing
func (c *Channel) WriteBitmask() uint32 { return types.WriteBitmask(c.id.Slot) }

// ReadBitmask is the bit the worker sets after draining
func (c *Channel) ReadBitmask() uint32 { return types.ReadBitmask(c.id.Slot) }

// IsValid reports whether the channel has a usable queue
func (c *Channel) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue != nil
}

// Queue returns the channel's queue, or nil if invalid or closed
func (c *Channel) Queue() *shm.Queue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue
}

// Desc returns the descriptor of the channel's queue
func (c *Channel) Desc() (shm.Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.queue == nil {
		if c.err != nil {
			return shm.Descriptor{}, fmt.Errorf("channel %s: %w: %v", c.id, ErrInvalidChannel, c.err)
		}
		return shm.Descriptor{}, fmt.Errorf("channel %s: %w", c.id, ErrInvalidChannel)
	}
	return c.queue.Desc(), nil
}

// drain reads every available message into buf and returns how many were
// read. An error means the client broke the queue protocol.
func (c *Channel) drain(buf []byte) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.queue == nil {
		return 0, nil
	}

	n := c.queue.AvailableToRead()
	if n == 0 {
		return 0, nil
	}
	if err := c.queue.Read(buf, n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close unmaps and removes the queue. Close is idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue == nil {
		return nil
	}
	err := c.queue.Close()
	c.queue = nil
	return err
}
