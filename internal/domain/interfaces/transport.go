package interfaces

import (
	"context"

	domaintypes "sotto/internal/domain/types"
)

// TransportRouter delivers already-encrypted bytes to peers, preferring a
// direct channel and falling back to relaying through the signaling
// channel. Inbound ciphertext from either path surfaces through the single
// OnCiphertext callback, so consumers never learn which path carried it.
type TransportRouter interface {
	// Connect begins direct-channel negotiation with a peer. Not required
	// before Send; failure to negotiate leaves the relay path in use.
	Connect(ctx context.Context, peer domaintypes.PeerKey) error

	// Send delivers bytes over the open direct channel, or relays them as
	// a relayed-ciphertext envelope otherwise.
	Send(ctx context.Context, peer domaintypes.PeerKey, data []byte) error

	// HandleEnvelope consumes one transport-negotiation or
	// relayed-ciphertext envelope. The orchestrator wires the signaling
	// subscriptions to this method.
	HandleEnvelope(env domaintypes.Envelope)

	OnCiphertext(fn func(peer domaintypes.PeerKey, data []byte))
	OnStateChange(fn func(peer domaintypes.PeerKey, phase domaintypes.LinkPhase))

	LinkPhase(peer domaintypes.PeerKey) domaintypes.LinkPhase
	Disconnect(peer domaintypes.PeerKey)
	Close() error
}
