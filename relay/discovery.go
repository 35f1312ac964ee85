/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType   = "_petshow._tcp"
	ServiceDomain = "local."

	prefixKey = "prefix="
)

var ErrNoRelay = errors.New("no relay found on the local network")

// Endpoint is a relay server found on the local network.
type Endpoint struct {
	Host   string
	Port   int
	Prefix string
}

// URL returns the websocket address of room on this relay.
func (e Endpoint) URL(room string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
		Path:   e.Prefix + "/show/" + url.PathEscape(room) + "/ws",
	}

	return u.String()
}

// Advertise registers a relay listening on port over mDNS. The returned func
// withdraws the advertisement.
func Advertise(instance string, port int, prefix string) (func(), error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, []string{prefixKey + prefix}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	return server.Shutdown, nil
}

// Discover browses for relays until ctx ends and returns the first one that
// answers with an IPv4 address.
func Discover(ctx context.Context) (Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Endpoint{}, fmt.Errorf("create mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return Endpoint{}, fmt.Errorf("browse mDNS: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return Endpoint{}, ErrNoRelay
		case entry, ok := <-entries:
			if !ok {
				return Endpoint{}, ErrNoRelay
			}
			if ep, found := endpointFrom(entry); found {
				return ep, nil
			}
		}
	}
}

func endpointFrom(entry *zeroconf.ServiceEntry) (Endpoint, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return Endpoint{}, false
	}

	ep := Endpoint{
		Host: entry.AddrIPv4[0].String(),
		Port: entry.Port,
	}

	for _, txt := range entry.Text {
		if p, ok := strings.CutPrefix(txt, prefixKey); ok {
			ep.Prefix = strings.TrimSuffix(p, "/")
		}
	}

	return ep, true
}
