/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package relay

import (
	"context"
	"sync"
)

// Bus is an in-process relay. Every Channel joined to it hears the frames the
// others send, delivered synchronously on the sender's goroutine.
type Bus struct {
	mu      sync.Mutex
	members map[*MemoryChannel]struct{}
	drop    func(from *MemoryChannel, data []byte) bool
	echo    bool
}

func NewBus() *Bus {
	return &Bus{members: make(map[*MemoryChannel]struct{})}
}

// SetDrop installs a filter that discards frames for which it returns true.
// It stands in for a lossy network in tests.
func (b *Bus) SetDrop(drop func(from *MemoryChannel, data []byte) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.drop = drop
}

// SetEcho makes the bus hand frames back to their sender as well, the way
// redis pub/sub does.
func (b *Bus) SetEcho(echo bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.echo = echo
}

func (b *Bus) Join() *MemoryChannel {
	c := &MemoryChannel{bus: b}

	b.mu.Lock()
	b.members[c] = struct{}{}
	b.mu.Unlock()

	return c
}

func (b *Bus) publish(from *MemoryChannel, data []byte) {
	b.mu.Lock()
	if b.drop != nil && b.drop(from, data) {
		b.mu.Unlock()
		return
	}

	targets := make([]*MemoryChannel, 0, len(b.members))
	for c := range b.members {
		if c != from || b.echo {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		c.deliver(data)
	}
}

func (b *Bus) leave(c *MemoryChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.members, c)
}

type MemoryChannel struct {
	bus *Bus

	mu      sync.Mutex
	handler Handler
	closed  bool
}

func (c *MemoryChannel) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}

	c.bus.publish(c, append([]byte(nil), data...))

	return nil
}

func (c *MemoryChannel) OnMessage(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler = h
}

func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.bus.leave(c)

	return nil
}

func (c *MemoryChannel) deliver(data []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h(data)
	}
}
