// Package session owns the per-peer session lifecycle.
//
// The Manager runs the handshake in both roles, keeps the exclusive
// in-memory registry of live sessions, and persists the serialized engine
// state after every mutation so a restart resumes conversations exactly
// where they stopped. Sessions move through a small state machine:
// handshake states are transient, established-awaiting-first-message marks
// a responder that cannot send yet, and established is terminal until the
// session is removed.
package session
