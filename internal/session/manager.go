package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"sotto/internal/domain"
	"sotto/internal/engine"
	"sotto/internal/util/memzero"
)

var (
	// ErrAlreadyEstablished is returned by InitiateHandshake when a usable
	// session for the peer already exists.
	ErrAlreadyEstablished = errors.New("session: already established")

	// ErrNoSession is returned by EncryptFor when no session exists for the
	// peer.
	ErrNoSession = errors.New("session: no session with peer")

	// ErrUnknownSender is returned by DecryptFrom for ciphertext from a
	// peer without a session.
	ErrUnknownSender = errors.New("session: ciphertext from unknown sender")

	// ErrRoleOrdering is returned by EncryptFor on a responder session that
	// has not yet received the initiator's first message.
	ErrRoleOrdering = errors.New("session: responder cannot send before first received message")
)

// Manager owns every peer session: the handshake state machine, the
// in-memory registry, and the durable serialized state. It is the only
// writer of session records. Operations for one peer are serialized on a
// per-peer lock; different peers proceed concurrently.
type Manager struct {
	log     *slog.Logger
	engine  domain.CryptoEngine
	store   domain.SessionStore
	prekeys domain.PrekeyStore
	ident   domain.Identity

	mu    sync.Mutex
	slots map[domain.PeerKey]*slot
}

// slot is the registry entry for one peer.
type slot struct {
	mu      sync.Mutex
	role    domain.Role
	state   domain.SessionState
	version uint64
	created int64
	sess    domain.CipherSession
}

var _ domain.SessionManager = (*Manager)(nil)

// NewManager builds a manager for the given identity. Call RestoreAll
// before dispatching any signaling traffic.
func NewManager(
	log *slog.Logger,
	eng domain.CryptoEngine,
	store domain.SessionStore,
	prekeys domain.PrekeyStore,
	ident domain.Identity,
) *Manager {
	return &Manager{
		log:     log,
		engine:  eng,
		store:   store,
		prekeys: prekeys,
		ident:   ident,
		slots:   make(map[domain.PeerKey]*slot),
	}
}

// RestoreAll loads every stored session record into the registry. Corrupt
// records are skipped with an error log rather than blocking startup.
func (m *Manager) RestoreAll() (int, error) {
	records, err := m.store.AllSessionRecords()
	if err != nil {
		return 0, fmt.Errorf("load session records: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	restored := 0
	for peer, rec := range records {
		sess, err := m.engine.Deserialize(rec.Session)
		if err != nil {
			m.log.Error("skipping corrupt session record", "peer", peer, "error", err)
			continue
		}
		m.slots[peer] = &slot{
			role:    rec.Role,
			state:   rec.State,
			version: rec.Version,
			created: rec.CreatedUTC,
			sess:    sess,
		}
		restored++
	}
	m.log.Info("sessions restored", "count", restored)
	return restored, nil
}

// InitiateHandshake runs the initiator side of the key agreement against
// the bundle and registers an established session for its owner. The
// returned payload carries everything the responder needs.
func (m *Manager) InitiateHandshake(bundle domain.PrekeyBundle) (domain.HandshakeInitPayload, error) {
	peer := bundle.PeerKey()
	if peer == m.ident.PeerKey() {
		return domain.HandshakeInitPayload{}, fmt.Errorf("session: cannot initiate with self")
	}

	sl, created := m.getOrCreateSlot(peer)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.state.Usable() {
		return domain.HandshakeInitPayload{}, fmt.Errorf("%w: %s", ErrAlreadyEstablished, peer)
	}
	prev := sl.state
	sl.state = domain.StateHandshakeSent
	m.log.Debug("handshake initiated", "peer", peer)

	fail := func(err error) (domain.HandshakeInitPayload, error) {
		if created {
			m.dropSlot(peer)
		} else {
			sl.state = prev
		}
		return domain.HandshakeInitPayload{}, err
	}

	agreement, err := m.engine.InitiatorAgree(m.ident, bundle)
	if err != nil {
		return fail(fmt.Errorf("agree with %s: %w", peer, err))
	}
	sess, err := m.engine.InitInitiator(agreement.SharedSecret, bundle.SignedPrekey)
	memzero.Zero(agreement.SharedSecret)
	if err != nil {
		return fail(fmt.Errorf("init session with %s: %w", peer, err))
	}

	sl.role = domain.RoleInitiator
	sl.state = domain.StateEstablished
	sl.created = time.Now().Unix()
	sl.version = 0
	sl.sess = sess
	if err := m.persistLocked(peer, sl); err != nil {
		return fail(err)
	}
	m.log.Info("session established", "peer", peer, "role", sl.role)

	return domain.HandshakeInitPayload{
		InitiatorIdentityKey: m.ident.XPub,
		InitiatorSigningKey:  m.ident.EdPub,
		EphemeralKey:         agreement.EphemeralPub,
		SignedPrekeyID:       agreement.UsedSignedPrekey,
		OneTimePrekeyID:      agreement.UsedOneTimePrekey,
	}, nil
}

// AcceptHandshake runs the responder side for an inbound handshake-init.
// A duplicate for an already usable session is logged and ignored. The new
// session sits in the awaiting-first-message state until DecryptFrom
// succeeds once.
func (m *Manager) AcceptHandshake(from domain.PeerKey, init domain.HandshakeInitPayload) error {
	if domain.PeerKeyOf(init.InitiatorIdentityKey) != from {
		return fmt.Errorf("session: handshake identity key does not match sender %s", from)
	}

	sl, created := m.getOrCreateSlot(from)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.state.Usable() {
		m.log.Info("duplicate handshake ignored", "peer", from)
		return nil
	}
	prev := sl.state
	sl.state = domain.StateHandshakeReceived
	m.log.Debug("handshake received", "peer", from)

	fail := func(err error) error {
		if created {
			m.dropSlot(from)
		} else {
			sl.state = prev
		}
		return err
	}

	spk, ok, err := m.prekeys.LoadSignedPrekey(init.SignedPrekeyID)
	if err != nil {
		return fail(fmt.Errorf("load signed prekey: %w", err))
	}
	if !ok {
		return fail(fmt.Errorf("session: unknown signed prekey %q in handshake from %s", init.SignedPrekeyID, from))
	}

	var opk *domain.OneTimePrekeyPair
	if init.OneTimePrekeyID != "" {
		pair, ok, err := m.prekeys.ConsumeOneTimePrekey(init.OneTimePrekeyID)
		if err != nil {
			return fail(fmt.Errorf("consume one-time prekey: %w", err))
		}
		if !ok {
			return fail(fmt.Errorf("session: one-time prekey %q already consumed, handshake from %s cannot be accepted", init.OneTimePrekeyID, from))
		}
		opk = &pair
	}

	secret, err := m.engine.ResponderAgree(m.ident, spk, opk, init.InitiatorIdentityKey, init.EphemeralKey)
	if err != nil {
		m.restoreOneTimePrekey(opk)
		return fail(fmt.Errorf("agree with %s: %w", from, err))
	}
	sess, err := m.engine.InitResponder(secret, spk)
	memzero.Zero(secret)
	if err != nil {
		m.restoreOneTimePrekey(opk)
		return fail(fmt.Errorf("init session with %s: %w", from, err))
	}

	sl.role = domain.RoleResponder
	sl.state = domain.StateAwaitingFirstMessage
	sl.created = time.Now().Unix()
	sl.version = 0
	sl.sess = sess
	if err := m.persistLocked(from, sl); err != nil {
		m.restoreOneTimePrekey(opk)
		return fail(err)
	}
	m.log.Info("handshake accepted", "peer", from, "role", sl.role)
	return nil
}

// EncryptFor encrypts plaintext for peer and persists the advanced session
// state before returning the ciphertext.
func (m *Manager) EncryptFor(peer domain.PeerKey, plaintext []byte) ([]byte, error) {
	sl, ok := m.lookupSlot(peer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, peer)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, peer)
	}

	ct, err := sl.sess.Encrypt(plaintext)
	if err != nil {
		if errors.Is(err, engine.ErrNoSendKey) {
			return nil, fmt.Errorf("%w: %s must message first", ErrRoleOrdering, peer)
		}
		return nil, fmt.Errorf("encrypt for %s: %w", peer, err)
	}
	if err := m.persistLocked(peer, sl); err != nil {
		return nil, err
	}
	return ct, nil
}

// DecryptFrom decrypts a message from peer, advances the state machine on
// the responder's first successful decrypt, and persists the new state.
func (m *Manager) DecryptFrom(peer domain.PeerKey, message []byte) ([]byte, error) {
	sl, ok := m.lookupSlot(peer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSender, peer)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSender, peer)
	}

	pt, err := sl.sess.Decrypt(message)
	if err != nil {
		return nil, fmt.Errorf("decrypt from %s: %w", peer, err)
	}
	if sl.state == domain.StateAwaitingFirstMessage {
		sl.state = domain.StateEstablished
		m.log.Info("session established", "peer", peer, "role", sl.role)
	}
	if err := m.persistLocked(peer, sl); err != nil {
		return nil, err
	}
	return pt, nil
}

// SessionState reports the state machine position for peer.
func (m *Manager) SessionState(peer domain.PeerKey) domain.SessionState {
	sl, ok := m.lookupSlot(peer)
	if !ok {
		return domain.StateNoSession
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.state
}

// Sessions returns a snapshot of every registered session, ordered by peer.
func (m *Manager) Sessions() []domain.SessionInfo {
	m.mu.Lock()
	peers := make([]domain.PeerKey, 0, len(m.slots))
	slots := make([]*slot, 0, len(m.slots))
	for peer, sl := range m.slots {
		peers = append(peers, peer)
		slots = append(slots, sl)
	}
	m.mu.Unlock()

	infos := make([]domain.SessionInfo, 0, len(peers))
	for i, sl := range slots {
		sl.mu.Lock()
		infos = append(infos, domain.SessionInfo{
			Peer:       peers[i],
			Role:       sl.role,
			State:      sl.state,
			Version:    sl.version,
			CreatedUTC: sl.created,
		})
		sl.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Peer < infos[j].Peer })
	return infos
}

// EstablishedPeers lists the peers whose sessions can carry traffic.
func (m *Manager) EstablishedPeers() []domain.PeerKey {
	var peers []domain.PeerKey
	for _, info := range m.Sessions() {
		if info.State.Usable() {
			peers = append(peers, info.Peer)
		}
	}
	return peers
}

// RemoveSession drops the registry entry and deletes the stored record.
// Removing a peer without a session is a no-op.
func (m *Manager) RemoveSession(peer domain.PeerKey) error {
	m.mu.Lock()
	delete(m.slots, peer)
	m.mu.Unlock()
	if err := m.store.DeleteSessionRecord(peer); err != nil {
		return fmt.Errorf("delete session for %s: %w", peer, err)
	}
	m.log.Info("session removed", "peer", peer)
	return nil
}

// restoreOneTimePrekey puts a consumed one-time prekey back so a handshake
// that fails after consumption does not burn it.
func (m *Manager) restoreOneTimePrekey(opk *domain.OneTimePrekeyPair) {
	if opk == nil {
		return
	}
	if err := m.prekeys.SaveOneTimePrekeys([]domain.OneTimePrekeyPair{*opk}); err != nil {
		m.log.Error("restoring one-time prekey failed", "id", opk.ID, "error", err)
	}
}

// persistLocked serializes the session and writes the record. The caller
// holds the slot lock.
func (m *Manager) persistLocked(peer domain.PeerKey, sl *slot) error {
	blob, err := sl.sess.Serialize()
	if err != nil {
		return fmt.Errorf("serialize session for %s: %w", peer, err)
	}
	rec := domain.SessionRecord{
		Role:       sl.role,
		State:      sl.state,
		Version:    sl.version + 1,
		CreatedUTC: sl.created,
		Session:    blob,
	}
	if err := m.store.SaveSessionRecord(peer, rec); err != nil {
		return fmt.Errorf("save session for %s: %w", peer, err)
	}
	sl.version = rec.Version
	return nil
}

func (m *Manager) lookupSlot(peer domain.PeerKey) (*slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.slots[peer]
	return sl, ok
}

func (m *Manager) getOrCreateSlot(peer domain.PeerKey) (*slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sl, ok := m.slots[peer]; ok {
		return sl, false
	}
	sl := &slot{state: domain.StateNoSession}
	m.slots[peer] = sl
	return sl, true
}

func (m *Manager) dropSlot(peer domain.PeerKey) {
	m.mu.Lock()
	delete(m.slots, peer)
	m.mu.Unlock()
}
