package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
)

type inbox struct {
	mu     sync.Mutex
	frames []string
}

func (i *inbox) handle(data []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.frames = append(i.frames, string(data))
}

func (i *inbox) snapshot() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	return append([]string(nil), i.frames...)
}

func TestBusBroadcastsToOthers(t *testing.T) {
	bus := NewBus()
	a, b, c := bus.Join(), bus.Join(), bus.Join()

	var ia, ib, ic inbox
	a.OnMessage(ia.handle)
	b.OnMessage(ib.handle)
	c.OnMessage(ic.handle)

	if err := a.Send(context.Background(), []byte("hello")); err != nil {
		t.Fatal(err)
	}

	if got := ia.snapshot(); len(got) != 0 {
		t.Errorf("sender heard itself: %v", got)
	}
	for name, in := range map[string]*inbox{"b": &ib, "c": &ic} {
		if got := in.snapshot(); len(got) != 1 || got[0] != "hello" {
			t.Errorf("%s got %v", name, got)
		}
	}
}

func TestBusDropAndClose(t *testing.T) {
	bus := NewBus()
	a, b := bus.Join(), bus.Join()

	var ib inbox
	b.OnMessage(ib.handle)

	bus.SetDrop(func(_ *MemoryChannel, data []byte) bool {
		return string(data) == "lost"
	})

	_ = a.Send(context.Background(), []byte("lost"))
	_ = a.Send(context.Background(), []byte("kept"))

	if got := ib.snapshot(); len(got) != 1 || got[0] != "kept" {
		t.Errorf("got %v, want [kept]", got)
	}

	_ = b.Close()
	_ = a.Send(context.Background(), []byte("after close"))

	if got := ib.snapshot(); len(got) != 1 {
		t.Errorf("closed member still receiving: %v", got)
	}
	if err := b.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send on closed channel = %v, want ErrClosed", err)
	}
}

func TestBusEcho(t *testing.T) {
	bus := NewBus()
	bus.SetEcho(true)
	a, b := bus.Join(), bus.Join()

	var ia, ib inbox
	a.OnMessage(ia.handle)
	b.OnMessage(ib.handle)

	_ = a.Send(context.Background(), []byte("hello"))

	for name, in := range map[string]*inbox{"a": &ia, "b": &ib} {
		if got := in.snapshot(); len(got) != 1 || got[0] != "hello" {
			t.Errorf("%s got %v", name, got)
		}
	}
}

func TestRedisRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	join := func(room string) (*Redis, *inbox) {
		t.Helper()

		r, err := NewRedis(ctx, RedisOptions{Addr: mr.Addr(), Room: room})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = r.Close() })

		in := new(inbox)
		r.OnMessage(in.handle)

		return r, in
	}

	a, ia := join("lobby")
	_, ib := join("lobby")
	_, other := join("elsewhere")

	const frame = `{"type":"switch","id":"b"}`
	if err := a.Send(ctx, []byte(frame)); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "frame at b", func() bool { return len(ib.snapshot()) == 1 })
	waitFor(t, "echo at a", func() bool { return len(ia.snapshot()) == 1 })

	if got := ib.snapshot()[0]; got != frame {
		t.Errorf("b received %q", got)
	}

	time.Sleep(50 * time.Millisecond)
	if got := other.snapshot(); len(got) != 0 {
		t.Errorf("other room received %v", got)
	}

	_ = a.Close()
	if err := a.Send(ctx, []byte(frame)); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close = %v, want ErrClosed", err)
	}
}

func TestRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedis(context.Background(), RedisOptions{Addr: addr, Room: "lobby"}); err == nil {
		t.Fatal("expected an error connecting to a stopped server")
	}
}

// echoRelay broadcasts every frame to all connected clients.
func echoRelay(t *testing.T) *httptest.Server {
	t.Helper()

	var (
		mu    sync.Mutex
		conns = make(map[*websocket.Conn]bool)
	)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		mu.Lock()
		conns[conn] = true
		mu.Unlock()

		defer func() {
			mu.Lock()
			delete(conns, conn)
			mu.Unlock()
			_ = conn.Close()
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			mu.Lock()
			for c := range conns {
				_ = c.WriteMessage(websocket.TextMessage, data)
			}
			mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := echoRelay(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx := context.Background()
	a := DialWebSocket(ctx, url, WebSocketOptions{MinBackoff: 10 * time.Millisecond})
	b := DialWebSocket(ctx, url, WebSocketOptions{MinBackoff: 10 * time.Millisecond})
	defer a.Close()
	defer b.Close()

	var ib inbox
	b.OnMessage(ib.handle)

	waitFor(t, "both connected", func() bool { return a.Connected() && b.Connected() })

	if err := a.Send(ctx, []byte(`{"type":"notify","id":"a","master":true}`)); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "frame at b", func() bool { return len(ib.snapshot()) > 0 })

	if got := ib.snapshot()[0]; got != `{"type":"notify","id":"a","master":true}` {
		t.Errorf("b received %q", got)
	}
}

func TestWebSocketNotConnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	w := DialWebSocket(context.Background(), "ws://"+addr+"/show/x/ws", WebSocketOptions{MinBackoff: 10 * time.Millisecond})

	if err := w.Send(context.Background(), []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() = %v, want ErrNotConnected", err)
	}

	_ = w.Close()

	if err := w.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close = %v, want ErrClosed", err)
	}
}

func TestEndpointURL(t *testing.T) {
	ep := Endpoint{Host: "192.168.5.81", Port: 8080, Prefix: "/pets"}

	if got, want := ep.URL("lobby"), "ws://192.168.5.81:8080/pets/show/lobby/ws"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestEndpointFrom(t *testing.T) {
	entry := zeroconf.NewServiceEntry("relay", ServiceType, ServiceDomain)
	entry.Port = 9000
	entry.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.7")}
	entry.Text = []string{"prefix=/pets/"}

	ep, ok := endpointFrom(entry)
	if !ok {
		t.Fatal("expected an endpoint")
	}
	if ep != (Endpoint{Host: "10.0.0.7", Port: 9000, Prefix: "/pets"}) {
		t.Errorf("endpoint = %+v", ep)
	}

	if _, ok := endpointFrom(zeroconf.NewServiceEntry("relay", ServiceType, ServiceDomain)); ok {
		t.Error("entry without addresses should be skipped")
	}
}
