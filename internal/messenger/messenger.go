package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sotto/internal/domain"
	"sotto/internal/presence"
	"sotto/internal/session"
)

const defaultPresenceInterval = 30 * time.Second

// Options tune the messenger. Zero values fall back to defaults.
type Options struct {
	// DisplayName is announced in presence envelopes.
	DisplayName string

	// PresenceInterval is how often presence is re-announced.
	PresenceInterval time.Duration

	// EagerDial starts direct-channel negotiation with every established
	// contact right after startup instead of on first send.
	EagerDial bool
}

// Messenger is the top-level client: it sequences startup, dispatches
// inbound envelopes to the session manager and transport router, and
// surfaces events to the embedding layer.
type Messenger struct {
	log      *slog.Logger
	ident    domain.Identity
	self     domain.PeerKey
	sessions domain.SessionManager
	contacts domain.ContactDirectory
	sig      domain.Signaler
	router   domain.TransportRouter
	rdv      domain.RendezvousClient
	tracker  *presence.Tracker
	opts     Options

	evMu          sync.RWMutex
	onFriendAdded func(peer domain.PeerKey, origin domain.TrustOrigin)
	onMessage     func(peer domain.PeerKey, plaintext []byte)
	onTransport   func(peer domain.PeerKey, phase domain.LinkPhase)
	onPresence    func(peer domain.PeerKey, p domain.PresencePayload)
	onTyping      func(peer domain.PeerKey, active bool)

	mu      sync.Mutex
	started bool
	unsubs  []func()

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New builds a messenger for a loaded identity. Nothing connects until
// Start.
func New(
	log *slog.Logger,
	ident domain.Identity,
	sessions domain.SessionManager,
	contacts domain.ContactDirectory,
	sig domain.Signaler,
	router domain.TransportRouter,
	rdv domain.RendezvousClient,
	tracker *presence.Tracker,
	opts Options,
) *Messenger {
	if opts.PresenceInterval <= 0 {
		opts.PresenceInterval = defaultPresenceInterval
	}
	return &Messenger{
		log:      log,
		ident:    ident,
		self:     ident.PeerKey(),
		sessions: sessions,
		contacts: contacts,
		sig:      sig,
		router:   router,
		rdv:      rdv,
		tracker:  tracker,
		opts:     opts,
		done:     make(chan struct{}),
	}
}

// OnFriendAdded sets the callback for newly created contacts.
func (m *Messenger) OnFriendAdded(fn func(peer domain.PeerKey, origin domain.TrustOrigin)) {
	m.evMu.Lock()
	m.onFriendAdded = fn
	m.evMu.Unlock()
}

// OnMessageDecrypted sets the callback for decrypted inbound plaintext.
func (m *Messenger) OnMessageDecrypted(fn func(peer domain.PeerKey, plaintext []byte)) {
	m.evMu.Lock()
	m.onMessage = fn
	m.evMu.Unlock()
}

// OnTransportStateChanged sets the callback for link phase transitions.
func (m *Messenger) OnTransportStateChanged(fn func(peer domain.PeerKey, phase domain.LinkPhase)) {
	m.evMu.Lock()
	m.onTransport = fn
	m.evMu.Unlock()
}

// OnPresence sets the callback for peer presence announcements.
func (m *Messenger) OnPresence(fn func(peer domain.PeerKey, p domain.PresencePayload)) {
	m.evMu.Lock()
	m.onPresence = fn
	m.evMu.Unlock()
}

// OnTyping sets the callback for typing indicators.
func (m *Messenger) OnTyping(fn func(peer domain.PeerKey, active bool)) {
	m.evMu.Lock()
	m.onTyping = fn
	m.evMu.Unlock()
}

// Start brings the client up. The order is load-bearing: sessions are
// restored before the signaling channel can deliver a single envelope, and
// handlers are registered before anything else may race them.
func (m *Messenger) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	restored, err := m.sessions.RestoreAll()
	if err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}
	contacts, err := m.contacts.ListContacts()
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	m.log.Info("state restored", "sessions", restored, "contacts", len(contacts))

	m.router.OnCiphertext(m.handleCiphertext)
	m.router.OnStateChange(m.emitTransport)

	if err := m.sig.Connect(ctx); err != nil {
		return fmt.Errorf("connect signaling: %w", err)
	}

	m.subscribe(domain.EnvelopeHandshakeInit, m.handleHandshakeInit)
	m.subscribe(domain.EnvelopeTransportOffer, m.router.HandleEnvelope)
	m.subscribe(domain.EnvelopeTransportAnswer, m.router.HandleEnvelope)
	m.subscribe(domain.EnvelopeTransportICE, m.router.HandleEnvelope)
	m.subscribe(domain.EnvelopeRelayedCiphertext, m.router.HandleEnvelope)
	m.subscribe(domain.EnvelopePresence, m.handlePresence)
	m.subscribe(domain.EnvelopeTyping, m.handleTyping)

	m.announcePresence(ctx, domain.PresenceOnline)
	m.wg.Add(1)
	go m.presenceLoop()

	if m.opts.EagerDial {
		for _, peer := range m.sessions.EstablishedPeers() {
			peer := peer
			go func() {
				if err := m.router.Connect(context.Background(), peer); err != nil {
					m.log.Debug("eager dial failed", "peer", peer, "error", err)
				}
			}()
		}
	}
	m.log.Info("messenger started", "self", m.self)
	return nil
}

// SendPlaintext encrypts text for peer and routes the ciphertext. The
// session manager's errors pass through unchanged, so callers can
// distinguish a missing session from a role-ordering violation.
func (m *Messenger) SendPlaintext(ctx context.Context, peer domain.PeerKey, text []byte) error {
	ct, err := m.sessions.EncryptFor(peer, text)
	if err != nil {
		return err
	}
	return m.router.Send(ctx, peer, ct)
}

// SendTyping publishes a typing indicator to peer.
func (m *Messenger) SendTyping(ctx context.Context, peer domain.PeerKey, active bool) error {
	return m.sig.Send(ctx, domain.EnvelopeTyping, peer, domain.TypingPayload{Active: active})
}

// AddPeer fetches the peer's published bundle, initiates the handshake,
// delivers the handshake material, and records the contact. origin says
// how the key was obtained; unverified adds use TrustSharedLink.
func (m *Messenger) AddPeer(ctx context.Context, peer domain.PeerKey, displayName string, origin domain.TrustOrigin) error {
	if peer == m.self {
		return fmt.Errorf("messenger: cannot add self")
	}
	bundle, err := m.rdv.FetchBundle(ctx, peer)
	if err != nil {
		return err
	}
	if bundle.PeerKey() != peer {
		return fmt.Errorf("messenger: bundle identity %s does not match requested peer %s", bundle.PeerKey(), peer)
	}

	init, err := m.sessions.InitiateHandshake(bundle)
	if err != nil {
		return err
	}
	if err := m.sig.Send(ctx, domain.EnvelopeHandshakeInit, peer, init); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	created, err := m.contacts.EnsureContact(domain.ContactRecord{
		PublicKey:   peer,
		DisplayName: displayName,
		TrustOrigin: origin,
	})
	if err != nil {
		return err
	}
	if created {
		m.emitFriendAdded(peer, origin)
	}

	go func() {
		if err := m.router.Connect(context.Background(), peer); err != nil {
			m.log.Debug("dial after handshake failed", "peer", peer, "error", err)
		}
	}()
	return nil
}

// RemovePeer destroys the peer's session and contact record and tears
// down its direct link. Only this explicit call removes a session.
func (m *Messenger) RemovePeer(peer domain.PeerKey) error {
	m.router.Disconnect(peer)
	if err := m.sessions.RemoveSession(peer); err != nil {
		return err
	}
	if err := m.contacts.RemoveContact(peer); err != nil {
		return err
	}
	m.log.Info("peer removed", "peer", peer)
	return nil
}

// Close announces offline, stops the presence loop, and releases the
// router and signaling channel. Session persistence is synchronous on
// every mutation, so there is nothing to flush.
func (m *Messenger) Close() error {
	m.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		m.announcePresence(ctx, domain.PresenceOffline)
		cancel()
		close(m.done)
	})
	m.wg.Wait()

	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}

	err := m.router.Close()
	if cerr := m.sig.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *Messenger) subscribe(typ domain.EnvelopeType, h domain.EnvelopeHandler) {
	unsub := m.sig.Subscribe(typ, h)
	m.mu.Lock()
	m.unsubs = append(m.unsubs, unsub)
	m.mu.Unlock()
}

// handleHandshakeInit feeds an inbound handshake to the session manager
// and records the contact. Duplicates are absorbed by the manager; the
// contact keeps its original record either way.
func (m *Messenger) handleHandshakeInit(env domain.Envelope) {
	var init domain.HandshakeInitPayload
	if err := json.Unmarshal(env.Payload, &init); err != nil {
		m.log.Debug("dropping malformed handshake", "peer", env.From, "error", err)
		return
	}
	if err := m.sessions.AcceptHandshake(env.From, init); err != nil {
		m.log.Warn("handshake rejected", "peer", env.From, "error", err)
		return
	}
	created, err := m.contacts.EnsureContact(domain.ContactRecord{
		PublicKey:   env.From,
		TrustOrigin: domain.TrustSharedLink,
	})
	if err != nil {
		m.log.Error("recording contact failed", "peer", env.From, "error", err)
		return
	}
	if created {
		m.emitFriendAdded(env.From, domain.TrustSharedLink)
	}
}

// handleCiphertext decrypts inbound bytes from either transport path. The
// two no-session cases stay distinguishable: an unknown sender is noise on
// an open channel, a known contact without a session means lost state that
// only a re-handshake repairs.
func (m *Messenger) handleCiphertext(peer domain.PeerKey, data []byte) {
	pt, err := m.sessions.DecryptFrom(peer, data)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownSender):
			if has, cerr := m.contacts.HasContact(peer); cerr == nil && has {
				m.log.Error("session missing for known contact, re-handshake required", "peer", peer)
			} else {
				m.log.Warn("ciphertext from unknown sender", "peer", peer)
			}
		default:
			m.log.Warn("decrypt failed", "peer", peer, "error", err)
		}
		return
	}
	m.evMu.RLock()
	fn := m.onMessage
	m.evMu.RUnlock()
	if fn != nil {
		fn(peer, pt)
	}
}

func (m *Messenger) handlePresence(env domain.Envelope) {
	var p domain.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		m.log.Debug("dropping malformed presence", "peer", env.From, "error", err)
		return
	}
	if m.tracker != nil {
		m.tracker.Observe(env.From, p)
	}
	m.evMu.RLock()
	fn := m.onPresence
	m.evMu.RUnlock()
	if fn != nil {
		fn(env.From, p)
	}
}

func (m *Messenger) handleTyping(env domain.Envelope) {
	var p domain.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		m.log.Debug("dropping malformed typing indicator", "peer", env.From, "error", err)
		return
	}
	m.evMu.RLock()
	fn := m.onTyping
	m.evMu.RUnlock()
	if fn != nil {
		fn(env.From, p.Active)
	}
}

func (m *Messenger) presenceLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.PresenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.announcePresence(context.Background(), domain.PresenceOnline)
		}
	}
}

// announcePresence publishes to broadcast; failures are logged only, since
// presence is advisory.
func (m *Messenger) announcePresence(ctx context.Context, status string) {
	p := domain.PresencePayload{Status: status, DisplayName: m.opts.DisplayName}
	if err := m.sig.Send(ctx, domain.EnvelopePresence, "", p); err != nil {
		m.log.Debug("presence announce failed", "status", status, "error", err)
	}
}

func (m *Messenger) emitFriendAdded(peer domain.PeerKey, origin domain.TrustOrigin) {
	m.evMu.RLock()
	fn := m.onFriendAdded
	m.evMu.RUnlock()
	if fn != nil {
		fn(peer, origin)
	}
}

func (m *Messenger) emitTransport(peer domain.PeerKey, phase domain.LinkPhase) {
	m.evMu.RLock()
	fn := m.onTransport
	m.evMu.RUnlock()
	if fn != nil {
		fn(peer, phase)
	}
}
