package interfaces

import (
	"context"

	domaintypes "sotto/internal/domain/types"
)

// RendezvousClient is the HTTP side of the rendezvous service: the prekey
// bundle registry peers use to bootstrap handshakes.
type RendezvousClient interface {
	RegisterBundle(ctx context.Context, bundle domaintypes.PrekeyBundle) error

	// FetchBundle retrieves a peer's published bundle. The service pops
	// one one-time prekey per fetch, so repeated fetches return bundles
	// with distinct one-time keys until the supply runs out.
	FetchBundle(ctx context.Context, peer domaintypes.PeerKey) (domaintypes.PrekeyBundle, error)
}
