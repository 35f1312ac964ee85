/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package relay connects participants through a best-effort broadcast
// channel. Frames may be dropped, duplicated or reordered; nothing here
// confirms delivery.
package relay

import (
	"context"
	"errors"
)

var (
	ErrClosed       = errors.New("relay channel closed")
	ErrNotConnected = errors.New("relay not connected")
)

// Handler receives one inbound frame. Handlers are called from the channel's
// own goroutine and must not block for long.
type Handler func(data []byte)

// Channel is the publish/subscribe boundary between participants.
type Channel interface {
	// Send broadcasts data to every other participant. A nil error does not
	// mean anyone received it.
	Send(ctx context.Context, data []byte) error
	// OnMessage installs the inbound handler, replacing any previous one.
	OnMessage(h Handler)
	Close() error
}
