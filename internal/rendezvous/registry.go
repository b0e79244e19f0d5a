package rendezvous

import (
	"errors"
	"sync"

	"sotto/internal/domain"
)

// ErrBundleInvalid is returned when a registered bundle is missing required
// keys or its signed prekey signature does not verify.
var ErrBundleInvalid = errors.New("rendezvous: invalid bundle")

// Registry holds published prekey bundles in memory, keyed by the owner's
// peer key. Fetching pops one one-time prekey from the stored bundle so no
// single-use key is ever served twice.
type Registry struct {
	mu      sync.Mutex
	bundles map[domain.PeerKey]domain.PrekeyBundle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bundles: make(map[domain.PeerKey]domain.PrekeyBundle)}
}

// Register stores the bundle, replacing any previous one from the same
// owner: re-registering rotates the published prekeys.
func (r *Registry) Register(b domain.PrekeyBundle) error {
	if b.IdentityKey.IsZero() || b.SignedPrekey.IsZero() || len(b.SignedPrekeySignature) == 0 {
		return ErrBundleInvalid
	}
	r.mu.Lock()
	r.bundles[b.PeerKey()] = b
	r.mu.Unlock()
	return nil
}

// Fetch returns the bundle for peer with at most one one-time prekey, and
// removes that key from the stored bundle. When the supply is exhausted
// the bundle is served without one; the handshake then runs on the signed
// prekey alone.
func (r *Registry) Fetch(peer domain.PeerKey) (domain.PrekeyBundle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bundles[peer]
	if !ok {
		return domain.PrekeyBundle{}, false
	}
	served := stored
	if len(stored.OneTimePrekeys) > 0 {
		served.OneTimePrekeys = stored.OneTimePrekeys[:1:1]
		stored.OneTimePrekeys = stored.OneTimePrekeys[1:]
		r.bundles[peer] = stored
	}
	return served, true
}

// Remaining reports how many one-time prekeys are left for peer.
func (r *Registry) Remaining(peer domain.PeerKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bundles[peer].OneTimePrekeys)
}
