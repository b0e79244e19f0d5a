package presence

import (
	"sort"
	"sync"
	"time"

	"sotto/internal/domain"
)

// Info is one row of the presence table.
type Info struct {
	Peer        domain.PeerKey
	Status      string
	DisplayName string
	LastSeen    time.Time
}

// Tracker is the in-memory presence table. Observe feeds it from inbound
// presence envelopes; subscribers are notified on every change.
type Tracker struct {
	mu     sync.Mutex
	peers  map[domain.PeerKey]Info
	subs   map[int]func(Info)
	nextID int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		peers: make(map[domain.PeerKey]Info),
		subs:  make(map[int]func(Info)),
	}
}

// Observe records one presence announcement. An offline status removes the
// peer from the table; anything else upserts it.
func (t *Tracker) Observe(peer domain.PeerKey, p domain.PresencePayload) {
	info := Info{
		Peer:        peer,
		Status:      p.Status,
		DisplayName: p.DisplayName,
		LastSeen:    time.Now(),
	}

	t.mu.Lock()
	if p.Status == domain.PresenceOffline {
		delete(t.peers, peer)
	} else {
		t.peers[peer] = info
	}
	fns := make([]func(Info), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(info)
	}
}

// Online reports whether peer has announced itself and not gone offline.
func (t *Tracker) Online(peer domain.PeerKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.peers[peer]
	return ok
}

// Snapshot returns the table ordered by peer key.
func (t *Tracker) Snapshot() []Info {
	t.mu.Lock()
	out := make([]Info, 0, len(t.peers))
	for _, info := range t.peers {
		out = append(out, info)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Peer < out[j].Peer })
	return out
}

// Subscribe registers fn for every table change. The returned function
// removes the registration.
func (t *Tracker) Subscribe(fn func(Info)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Prune drops peers not seen within maxAge and returns how many went.
func (t *Tracker) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for peer, info := range t.peers {
		if info.LastSeen.Before(cutoff) {
			delete(t.peers, peer)
			n++
		}
	}
	return n
}
