package interfaces

import (
	"context"

	domaintypes "sotto/internal/domain/types"
)

// EnvelopeHandler consumes one validated inbound envelope.
type EnvelopeHandler func(env domaintypes.Envelope)

// Signaler is the pub/sub signaling channel. Delivery is best-effort,
// at-least-once and unordered across senders; subscribers must tolerate
// duplicates and silent loss.
type Signaler interface {
	// Connect dials the broker and subscribes the local inbox plus the
	// broadcast address. Idempotent while connected. Fails with
	// ErrUnavailable after bounded retries.
	Connect(ctx context.Context) error

	// Send publishes one envelope stamped with the local identity and the
	// current time. An empty recipient targets the broadcast address.
	// Fire-and-forget: success means the publish was handed off.
	Send(ctx context.Context, typ domaintypes.EnvelopeType, to domaintypes.PeerKey, payload any) error

	// Subscribe registers a handler for one envelope type (or
	// EnvelopeWildcard for all). Self-sent envelopes are filtered before
	// dispatch. All handlers registered for a type run. The returned
	// function removes the handler.
	Subscribe(typ domaintypes.EnvelopeType, h EnvelopeHandler) func()

	Close() error
}
