// Package rendezvous contains both halves of the rendezvous service.
//
// The server side is the broker: a websocket pub/sub hub that fans
// envelopes out by topic with no persistence and no replay, plus the
// prekey-bundle registry peers use to bootstrap handshakes while the owner
// is offline. The registry hands out one one-time prekey per fetch and
// forgets it.
//
// The client side is the HTTP client for the bundle registry; the
// websocket surface is consumed by internal/signaling.
package rendezvous
