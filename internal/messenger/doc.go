// Package messenger wires the session manager, contact directory,
// signaling channel and transport router into one running client.
//
// It owns startup ordering: persisted sessions are restored before the
// signaling channel connects, and every envelope handler is registered
// before traffic can arrive, so inbound messages from already-established
// peers are never mistaken for new handshakes. The messenger itself holds
// no protocol state; it only sequences and dispatches.
package messenger
