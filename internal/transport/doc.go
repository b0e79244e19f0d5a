// Package transport routes already-encrypted bytes to peers.
//
// The Router keeps one direct WebRTC data channel per peer when
// negotiation succeeds and relays through the signaling channel otherwise.
// Offers, answers and trickled ICE candidates travel as signaling
// envelopes. When both sides offer at once, the side with the
// lexicographically larger public key discards its own offer and answers
// the peer's, so exactly one channel survives the race. Consumers receive
// inbound ciphertext through a single callback and never learn which path
// carried it.
package transport
