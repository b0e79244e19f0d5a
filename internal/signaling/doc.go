// Package signaling implements the websocket client for the rendezvous
// broker's pub/sub surface.
//
// Every client subscribes to two topics: its own inbox, keyed by peer key,
// and the shared broadcast topic. Envelopes are validated at this boundary;
// handlers registered with Subscribe only ever see well-formed envelopes
// sent by other peers. The connection reconnects on its own after the
// initial Connect has succeeded.
package signaling
