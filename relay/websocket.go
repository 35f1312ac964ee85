/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package relay

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 64 << 10
	minReconnect   = time.Second
	maxReconnect   = 30 * time.Second
	dialHandshake  = 10 * time.Second
	reconnectScale = 1.5
)

type WebSocketOptions struct {
	// MinBackoff and MaxBackoff bound the delay between reconnect attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logf       func(format string, args ...any)
}

// WebSocket is a Channel backed by a relay server. It reconnects on its own
// for as long as it is open; frames sent while disconnected are refused with
// ErrNotConnected.
type WebSocket struct {
	url  string
	opts WebSocketOptions

	mu      sync.Mutex
	conn    *websocket.Conn
	handler Handler

	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// DialWebSocket starts connecting to url in the background and returns at
// once.
func DialWebSocket(ctx context.Context, url string, opts WebSocketOptions) *WebSocket {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = minReconnect
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(maxReconnect, opts.MinBackoff)
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	ctx, cancel := context.WithCancel(ctx)

	w := &WebSocket{
		url:    url,
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go w.run(ctx)

	return w
}

func (w *WebSocket) run(ctx context.Context) {
	defer close(w.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.MinBackoff
	b.MaxInterval = w.opts.MaxBackoff
	b.Multiplier = reconnectScale
	b.Reset()

	dialer := websocket.Dialer{HandshakeTimeout: dialHandshake}

	for ctx.Err() == nil {
		conn, _, err := dialer.DialContext(ctx, w.url, nil)
		if err != nil {
			delay := b.NextBackOff()
			if delay == backoff.Stop {
				delay = w.opts.MaxBackoff
			}
			w.opts.Logf("RELAY: Connect to %s failed, retrying in %s: %v", w.url, delay, err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		b.Reset()
		w.opts.Logf("RELAY: Connected to %s", w.url)

		w.serve(ctx, conn)

		w.opts.Logf("RELAY: Disconnected from %s", w.url)
	}
}

// serve pumps inbound frames until the connection fails or ctx ends.
func (w *WebSocket) serve(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	defer func() {
		stop()

		w.mu.Lock()
		if w.conn == conn {
			w.conn = nil
		}
		w.mu.Unlock()

		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		w.mu.Lock()
		h := w.handler
		w.mu.Unlock()

		if h != nil {
			h(data)
		}
	}
}

func (w *WebSocket) Send(_ context.Context, data []byte) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocket) OnMessage(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handler = h
}

// Connected reports whether a relay connection is currently up.
func (w *WebSocket) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.conn != nil
}

func (w *WebSocket) Close() error {
	w.cancel()
	<-w.done

	return nil
}
