package app

import (
	"net/http"
	"os"

	"sotto/internal/contact"
	"sotto/internal/domain"
	"sotto/internal/engine"
	"sotto/internal/rendezvous"
	identitysvc "sotto/internal/services/identity"
	prekeysvc "sotto/internal/services/prekey"
	"sotto/internal/store"
)

// Wire is the offline dependency graph: stores, engine, services and the
// rendezvous HTTP client. Everything here works without an unlocked
// identity; the online pieces hang off App.Messenger.
type Wire struct {
	IdentityStore domain.IdentityStore
	PrekeyStore   domain.PrekeyStore
	SessionStore  domain.SessionStore
	ContactStore  domain.ContactStore

	Engine domain.CryptoEngine

	IDs        domain.IdentityService
	Prekeys    domain.PrekeyService
	Contacts   domain.ContactDirectory
	Rendezvous domain.RendezvousClient
}

// NewWire constructs the dependency graph from cfg, creating the state
// directory if needed.
func NewWire(cfg Config) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}

	identityStore := store.NewIdentityFileStore(cfg.Home)
	prekeyStore := store.NewPrekeyFileStore(cfg.Home)
	sessionStore := store.NewSessionFileStore(cfg.Home)
	contactStore := store.NewContactFileStore(cfg.Home)

	eng := engine.New()

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Wire{
		IdentityStore: identityStore,
		PrekeyStore:   prekeyStore,
		SessionStore:  sessionStore,
		ContactStore:  contactStore,
		Engine:        eng,
		IDs:           identitysvc.New(eng, identityStore),
		Prekeys:       prekeysvc.New(eng, identityStore, prekeyStore),
		Contacts:      contact.New(contactStore),
		Rendezvous:    rendezvous.NewClient(cfg.RendezvousURL, httpClient),
	}, nil
}
