/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package election

import (
	"math/rand/v2"
	"slices"
	"time"
)

// Peers tracks when each other participant last announced itself.
type Peers struct {
	self string
	seen map[string]time.Time
	rng  *rand.Rand
}

func NewPeers(self string, rng *rand.Rand) *Peers {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Peers{
		self: self,
		seen: make(map[string]time.Time),
		rng:  rng,
	}
}

// Observe refreshes id's record. Announcements from ourselves are ignored and
// a record is never moved backwards in time.
func (p *Peers) Observe(id string, now time.Time) {
	if id == "" || id == p.self {
		return
	}

	if last, ok := p.seen[id]; ok && !now.After(last) {
		return
	}

	p.seen[id] = now
}

// Prune drops every peer silent for longer than window and returns their ids.
func (p *Peers) Prune(now time.Time, window time.Duration) []string {
	var gone []string

	for id, last := range p.seen {
		if now.Sub(last) > window {
			delete(p.seen, id)
			gone = append(gone, id)
		}
	}

	slices.Sort(gone)

	return gone
}

// PickHandoffTarget prunes stale peers and returns one of the survivors,
// chosen uniformly at random.
func (p *Peers) PickHandoffTarget(now time.Time, window time.Duration) (string, bool) {
	p.Prune(now, window)

	ids := p.IDs()
	if len(ids) == 0 {
		return "", false
	}

	return ids[p.rng.IntN(len(ids))], true
}

// IDs returns the known peers in sorted order.
func (p *Peers) IDs() []string {
	ids := make([]string, 0, len(p.seen))
	for id := range p.seen {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func (p *Peers) LastSeen(id string) (time.Time, bool) {
	t, ok := p.seen[id]

	return t, ok
}

func (p *Peers) Len() int {
	return len(p.seen)
}
