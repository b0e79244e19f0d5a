package app

import (
	"log/slog"

	"sotto/internal/domain"
	"sotto/internal/messenger"
	"sotto/internal/presence"
	"sotto/internal/rendezvous"
	"sotto/internal/session"
	"sotto/internal/signaling"
	"sotto/internal/transport"
)

// App carries the configuration, logger and wired dependencies for the CLI.
type App struct {
	Cfg  Config
	Log  *slog.Logger
	Wire *Wire
}

// New bundles an App for commands to use.
func New(cfg Config, log *slog.Logger, w *Wire) *App {
	return &App{Cfg: cfg, Log: log, Wire: w}
}

// Messenger builds the online client for an unlocked identity: session
// manager, signaling client, transport router and presence tracker,
// assembled into a messenger. Nothing connects until Start.
func (a *App) Messenger(ident domain.Identity) (*messenger.Messenger, error) {
	sessions := session.NewManager(a.Log, a.Wire.Engine, a.Wire.SessionStore, a.Wire.PrekeyStore, ident)

	sig := signaling.NewClient(
		rendezvous.WSURL(a.Cfg.RendezvousURL),
		ident.PeerKey(),
		a.Cfg.DialAttempts,
		a.Log,
	)
	router, err := transport.NewRouter(a.Log, ident.PeerKey(), sig, transport.Options{
		STUNServers:        a.Cfg.STUNServers,
		NegotiationTimeout: a.Cfg.NegotiationTimeout,
		IdleTimeout:        a.Cfg.IdleTimeout,
	})
	if err != nil {
		return nil, err
	}

	return messenger.New(
		a.Log,
		ident,
		sessions,
		a.Wire.Contacts,
		sig,
		router,
		a.Wire.Rendezvous,
		presence.NewTracker(),
		messenger.Options{
			DisplayName:      a.Cfg.DisplayName,
			PresenceInterval: a.Cfg.PresenceInterval,
		},
	), nil
}

// Reset wipes all local state: identity, prekeys, sessions and contacts.
func (a *App) Reset() error {
	if err := a.Wire.SessionStore.DeleteAllSessionRecords(); err != nil {
		return err
	}
	if err := a.Wire.PrekeyStore.DeleteAllPrekeys(); err != nil {
		return err
	}
	contacts, err := a.Wire.ContactStore.AllContacts()
	if err != nil {
		return err
	}
	for key := range contacts {
		if err := a.Wire.ContactStore.DeleteContact(key); err != nil {
			return err
		}
	}
	return a.Wire.IDs.ResetIdentity()
}
