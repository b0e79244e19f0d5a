// Package app wires application dependencies for the CLI.
//
// It resolves the typed Config from viper, builds the concrete stores,
// crypto engine, services and rendezvous client into a Wire, and assembles
// the online messenger for an unlocked identity.
package app
