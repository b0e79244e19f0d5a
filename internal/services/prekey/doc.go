// Package prekey manages signed prekeys and one-time prekeys for X3DH bootstrap.
//
// It rotates the current signed prekey, tracks one-time prekey consumption
// in the store, and assembles the public bundle the rendezvous service
// publishes.
package prekey
