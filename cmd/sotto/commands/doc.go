// Package commands defines the sotto CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init         Create the local identity
//   - fingerprint  Print the identity fingerprint and peer key
//   - publish      Generate prekeys and publish the bundle
//   - contacts     List and rename contacts
//   - add          Fetch a peer's bundle and initiate a handshake
//   - remove       Remove a contact and its session
//   - run          Connect and chat interactively
//   - reset        Wipe all local state
//
// # Implementation
//
// The root command merges flags, the config file and SOTTO_* environment
// variables through viper, then builds the dependency graph (stores,
// engine, services, rendezvous client) before any subcommand runs. Online
// commands additionally unlock the identity and assemble the messenger.
package commands
