/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Petshow relay rooms
//
// Every screen taking part in a show joins the same room and hears every frame
// any member sends. The relay never looks inside the frames.
//
// Features:
// - WebSockets per room: /show/:room/ws
// - Frames broadcast to every member of the room, sender included
// - Slow members drop frames rather than stall the room
// - Rooms optionally shared between relays through redis pub/sub
// - Rooms auto-reaped after a configurable idle timeout
// - Random 8-char room IDs via crypto/rand at /show
// - Join page and PNG QR code of the room's websocket URL, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/petshow/relay"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	maxFrameSize = 64 << 10
	sendBuffer   = 64
	writeWait    = 10 * time.Second
)

type Client struct {
	conn *websocket.Conn
	send chan []byte
	addr string
}

type Room struct {
	id      string
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	inbound  chan []byte
	upstream chan []byte
	quit     chan struct{}
	stopOnce sync.Once

	// fanout carries frames between relays; nil when serving alone.
	fanout relay.Channel

	mu         sync.RWMutex
	connected  int
	lastActive time.Time
}

func newRoom(id string, fanout relay.Channel) *Room {
	r := &Room{
		id:         id,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inbound:    make(chan []byte),
		upstream:   make(chan []byte, sendBuffer),
		quit:       make(chan struct{}),
		fanout:     fanout,
		lastActive: time.Now(),
	}

	if fanout != nil {
		fanout.OnMessage(func(data []byte) {
			select {
			case r.upstream <- data:
			case <-r.quit:
			}
		})
	}

	return r
}

func (r *Room) run(cfg *Config) {
	for {
		select {
		case c := <-r.register:
			r.clients[c] = true
			r.touch(1)
			logf(cfg, "RELAY: %s joined room %s (%d connected)", c.addr, r.id, len(r.clients))

		case c := <-r.unreg:
			if _, ok := r.clients[c]; ok {
				delete(r.clients, c)
				close(c.send)
				r.touch(-1)
				logf(cfg, "RELAY: %s left room %s (%d connected)", c.addr, r.id, len(r.clients))
			}

		case data := <-r.inbound:
			r.touch(0)

			if r.fanout == nil {
				r.broadcast(data)
				continue
			}

			if err := r.fanout.Send(context.Background(), data); err != nil {
				logf(cfg, "RELAY: Room %s fan-out failed, delivering locally: %v", r.id, err)
				r.broadcast(data)
			}

		case data := <-r.upstream:
			r.touch(0)
			r.broadcast(data)

		case <-r.quit:
			for c := range r.clients {
				delete(r.clients, c)
				close(c.send)
			}
			r.touch(-r.Connected())
			return
		}
	}
}

// broadcast hands data to every member without blocking. A member whose
// buffer is full misses the frame.
func (r *Room) broadcast(data []byte) {
	for c := range r.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (r *Room) touch(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connected += delta
	r.lastActive = time.Now()
}

// Connected reports how many members the room currently has.
func (r *Room) Connected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.connected
}

func (r *Room) LastActive() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastActive
}

func (r *Room) closeAll() {
	r.stopOnce.Do(func() {
		close(r.quit)

		if r.fanout != nil {
			_ = r.fanout.Close()
		}
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoomManager holds a set of rooms keyed by id, so each $path/$room is its
// own isolated show.
type RoomManager struct {
	cfg *Config

	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
	newFanout   func(room string) (relay.Channel, error)
}

func newRoomManager(cfg *Config, newFanout func(room string) (relay.Channel, error)) *RoomManager {
	return &RoomManager{
		cfg:         cfg,
		rooms:       make(map[string]*Room),
		idleTimeout: cfg.roomTimeout,
		newFanout:   newFanout,
	}
}

func (rm *RoomManager) getRoom(id string) (*Room, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if room, ok := rm.rooms[id]; ok {
		return room, nil
	}

	var fanout relay.Channel
	if rm.newFanout != nil {
		var err error
		if fanout, err = rm.newFanout(id); err != nil {
			return nil, fmt.Errorf("share room %s: %w", id, err)
		}
	}

	room := newRoom(id, fanout)
	rm.rooms[id] = room
	go room.run(rm.cfg)

	logf(rm.cfg, "RELAY: Opened room %s", id)

	return room, nil
}

// newRoomID generates a crypto-random room ID and ensures it doesn't
// collide with an open room.
func (rm *RoomManager) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		rm.mu.Lock()
		_, exists := rm.rooms[id]
		rm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reap closes every room idle since before cutoff and returns their ids.
func (rm *RoomManager) reap(cutoff time.Time) []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var reaped []string

	for id, room := range rm.rooms {
		if room.LastActive().Before(cutoff) {
			delete(rm.rooms, id)
			room.closeAll()
			reaped = append(reaped, id)
		}
	}

	return reaped
}

// reaperLoop periodically removes rooms that have been idle longer than idleTimeout.
func (rm *RoomManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(rm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range rm.reap(time.Now().Add(-rm.idleTimeout)) {
				logf(rm.cfg, "RELAY: Closed idle room %s", id)
			}
		}
	}
}

func (rm *RoomManager) closeAll() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for id, room := range rm.rooms {
		delete(rm.rooms, id)
		room.closeAll()
	}
}

func validRoom(id string) bool {
	return id != "" && len(id) <= maxRoomLen && !strings.ContainsAny(id, "/?#")
}

// WebSocket handler that picks the room based on :room
func serveRoomSocket(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("room")
		if !validRoom(id) {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		room, err := rm.getRoom(id)
		if err != nil {
			logf(cfg, "RELAY: %v", err)
			http.Error(w, "room unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "RELAY: Upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan []byte, sendBuffer),
			addr: realIP(r),
		}

		select {
		case room.register <- client:
		case <-room.quit:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(room)
	}
}

func (c *Client) readPump(room *Room) {
	defer func() {
		select {
		case room.unreg <- c:
		case <-room.quit:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		select {
		case room.inbound <- data:
		case <-room.quit:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// roomURL is the websocket address participants use to join the room.
func roomURL(r *http.Request, prefix, room string) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" {
		scheme = "wss"
	}

	return scheme + "://" + r.Host + prefix + "/show/" + url.PathEscape(room) + "/ws"
}

// QR handler: generates a PNG QR code for the room's websocket URL using go-qrcode.
func serveRoomQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("room")
		if !validRoom(id) {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(roomURL(r, cfg.prefix, id), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("room")
		if !validRoom(id) {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		wsURL := html.EscapeString(roomURL(r, cfg.prefix, id))
		qrURL := html.EscapeString(cfg.prefix + "/show/" + url.PathEscape(id) + "/qr")
		room := html.EscapeString(id)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")

		_, _ = w.Write([]byte(newPage("petshow: "+room, fmt.Sprintf(
			`<img src="%s" alt="QR code for room %s"><p><code>petshow perform --relay %s</code></p>`,
			qrURL, room, wsURL,
		))))
	}
}

func redirectNewRoom(cfg *Config, path string, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id := rm.newRoomID()
		logf(cfg, "RELAY: Issued room %s%s/%s", cfg.prefix, path, id)
		http.Redirect(w, r, cfg.prefix+path+"/"+id, http.StatusTemporaryRedirect)
	}
}

// registerShow sets up routes so that:
//   - $path              → redirects to a new random room (8-char ID)
//   - $path/:room        → join page with the room's QR code
//   - $path/:room/ws     → WebSocket for that room
//   - $path/:room/qr     → PNG QR code for that room's websocket URL
func registerShow(cfg *Config, path string, mux *httprouter.Router, rm *RoomManager) {
	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, rm))

	mux.GET(cfg.prefix+path+"/:room", serveRoomPage(cfg))

	mux.GET(cfg.prefix+path+"/:room/ws", serveRoomSocket(cfg, rm))

	mux.GET(cfg.prefix+path+"/:room/qr", serveRoomQR(cfg))
}
