// Package store provides file-based persistence for sotto's local state.
//
// It contains the concrete implementations of the domain storage
// interfaces, serialising data as JSON on disk under the configured home
// directory. Writes go through a temp file and rename so a crash never
// leaves a half-written file. All methods are concurrency-safe via
// internal locking.
//
// The package includes stores for:
//   - Identity keys, encrypted at rest (IdentityFileStore)
//   - Signed and one-time prekeys (PrekeyFileStore)
//   - Per-peer session records (SessionFileStore)
//   - Contacts (ContactFileStore)
package store
