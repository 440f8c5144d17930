package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tangled.org/atscan.net/perfhint/internal/message"
	"tangled.org/atscan.net/perfhint/internal/shm"
)

// clientPollInterval bounds how long a client blocks before rechecking its context
const clientPollInterval = 10 * time.Millisecond

// Client is the producer side of a channel. It maps the group's event flag
// and the channel's queue from a ChannelConfig and is safe for concurrent
// use.
type Client struct {
	config ChannelConfig
	flag   *shm.EventFlag
	queue  *shm.Queue

	mu  sync.Mutex
	buf []byte
}

// Attach maps the segments described by config
func Attach(config *ChannelConfig) (*Client, error) {
	flag, err := shm.OpenEventFlag(config.EventFlagDescriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to attach event flag: %w", err)
	}

	queue, err := shm.OpenQueue(config.ChannelDescriptor)
	if err != nil {
		flag.Close()
		return nil, fmt.Errorf("failed to attach queue: %w", err)
	}

	return &Client{
		config: *config,
		flag:   flag,
		queue:  queue,
		buf:    make([]byte, queue.Capacity()*message.Size),
	}, nil
}

// Send writes msgs in order, waiting for queue space as needed, and
// signals the worker after every write. Messages that fit in the free space
// together are written (and therefore drained) together.
func (c *Client) Send(ctx context.Context, msgs ...message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(msgs) > 0 {
		free := c.queue.AvailableToWrite()
		if free == 0 {
			if err := c.waitRead(ctx); err != nil {
				return err
			}
			continue
		}

		n := min(free, len(msgs))
		for i := 0; i < n; i++ {
			if err := msgs[i].Encode(c.buf[i*message.Size:]); err != nil {
				return fmt.Errorf("failed to encode message: %w", err)
			}
		}
		if err := c.queue.Write(c.buf, n); err != nil {
			return fmt.Errorf("failed to write queue: %w", err)
		}
		if err := c.flag.Wake(c.config.WriteFlagBitmask); err != nil {
			return fmt.Errorf("failed to signal worker: %w", err)
		}
		msgs = msgs[n:]
	}

	return nil
}

// WaitConsumed blocks until the worker has drained everything written
func (c *Client) WaitConsumed(ctx context.Context) error {
	for c.queue.AvailableToRead() > 0 {
		if err := c.waitRead(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) waitRead(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.flag.Wait(c.config.ReadFlagBitmask, clientPollInterval)
	if err != nil && !errors.Is(err, shm.ErrTimeout) {
		return fmt.Errorf("failed to wait for worker: %w", err)
	}
	return nil
}

// Close unmaps the client's view of both segments
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return errors.Join(c.queue.Close(), c.flag.Close())
}
