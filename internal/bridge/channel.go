package bridge

import (
	"context"
	"fmt"
)

// DefaultCapacity is the number of frames buffered between bus and network.
const DefaultCapacity = 16

// Channel is a fixed-capacity FIFO of frames. Send blocks while the channel
// is full; nothing is ever dropped.
type Channel struct {
	ch chan CanFrame
}

// NewChannel creates a channel holding at most capacity frames.
func NewChannel(capacity int) (*Channel, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("bridge: channel capacity must be > 0, got %d", capacity)
	}
	return &Channel{ch: make(chan CanFrame, capacity)}, nil
}

// Send enqueues f, waiting for a free slot. It only fails when ctx ends.
func (c *Channel) Send(ctx context.Context, f CanFrame) error {
	select {
	case c.ch <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the oldest frame, waiting for one to arrive.
func (c *Channel) Receive(ctx context.Context) (CanFrame, error) {
	select {
	case f := <-c.ch:
		return f, nil
	case <-ctx.Done():
		return CanFrame{}, ctx.Err()
	}
}

// Len reports the number of queued frames.
func (c *Channel) Len() int { return len(c.ch) }

// Cap reports the fixed capacity.
func (c *Channel) Cap() int { return cap(c.ch) }
