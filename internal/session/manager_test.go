package session_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"sotto/internal/domain"
	"sotto/internal/engine"
	"sotto/internal/session"
	"sotto/internal/store"
)

// party is one side of a conversation with its own stores on disk, so
// restart behaviour can be tested by rebuilding the manager over the same
// directory.
type party struct {
	dir   string
	ident domain.Identity
	peer  domain.PeerKey
	mgr   *session.Manager
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newParty(t *testing.T) *party {
	t.Helper()
	dir := t.TempDir()
	eng := engine.New()

	ident, err := eng.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	prekeys := store.NewPrekeyFileStore(dir)
	spk, err := eng.GenerateSignedPrekey(ident)
	if err != nil {
		t.Fatalf("GenerateSignedPrekey: %v", err)
	}
	if err := prekeys.SaveSignedPrekey(spk); err != nil {
		t.Fatalf("SaveSignedPrekey: %v", err)
	}
	if err := prekeys.SetCurrentSignedPrekeyID(spk.ID); err != nil {
		t.Fatalf("SetCurrentSignedPrekeyID: %v", err)
	}
	opks, err := eng.GenerateOneTimePrekeys(2)
	if err != nil {
		t.Fatalf("GenerateOneTimePrekeys: %v", err)
	}
	if err := prekeys.SaveOneTimePrekeys(opks); err != nil {
		t.Fatalf("SaveOneTimePrekeys: %v", err)
	}

	p := &party{dir: dir, ident: ident, peer: ident.PeerKey()}
	p.mgr = p.rebuild(t)
	return p
}

// rebuild constructs a fresh manager over the party's on-disk state, as a
// process restart would.
func (p *party) rebuild(t *testing.T) *session.Manager {
	t.Helper()
	return session.NewManager(
		discardLogger(),
		engine.New(),
		store.NewSessionFileStore(p.dir),
		store.NewPrekeyFileStore(p.dir),
		p.ident,
	)
}

// bundle assembles the party's public prekey bundle from its stores.
func (p *party) bundle(t *testing.T) domain.PrekeyBundle {
	t.Helper()
	prekeys := store.NewPrekeyFileStore(p.dir)
	id, ok, err := prekeys.CurrentSignedPrekeyID()
	if err != nil || !ok {
		t.Fatalf("CurrentSignedPrekeyID: %v %v", ok, err)
	}
	spk, ok, err := prekeys.LoadSignedPrekey(id)
	if err != nil || !ok {
		t.Fatalf("LoadSignedPrekey: %v %v", ok, err)
	}
	opks, err := prekeys.ListOneTimePrekeyPublics()
	if err != nil {
		t.Fatalf("ListOneTimePrekeyPublics: %v", err)
	}
	return domain.PrekeyBundle{
		IdentityKey:           p.ident.XPub,
		SigningKey:            p.ident.EdPub,
		SignedPrekeyID:        spk.ID,
		SignedPrekey:          spk.Pub,
		SignedPrekeySignature: spk.Signature,
		OneTimePrekeys:        opks,
	}
}

// establish runs the full handshake from a to b.
func establish(t *testing.T, a, b *party) domain.HandshakeInitPayload {
	t.Helper()
	init, err := a.mgr.InitiateHandshake(b.bundle(t))
	if err != nil {
		t.Fatalf("InitiateHandshake: %v", err)
	}
	if err := b.mgr.AcceptHandshake(a.peer, init); err != nil {
		t.Fatalf("AcceptHandshake: %v", err)
	}
	return init
}

func TestHandshakeStatesAndFirstMessage(t *testing.T) {
	a, b := newParty(t), newParty(t)
	establish(t, a, b)

	if got := a.mgr.SessionState(b.peer); got != domain.StateEstablished {
		t.Fatalf("initiator state = %s, want established", got)
	}
	if got := b.mgr.SessionState(a.peer); got != domain.StateAwaitingFirstMessage {
		t.Fatalf("responder state = %s, want awaiting first message", got)
	}

	ct, err := a.mgr.EncryptFor(b.peer, []byte("hello"))
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}
	pt, err := b.mgr.DecryptFrom(a.peer, ct)
	if err != nil {
		t.Fatalf("DecryptFrom: %v", err)
	}
	if string(pt) != "hello" {
		t.Fatalf("got %q, want %q", pt, "hello")
	}

	// After the first delivered message both ends report established.
	if got := b.mgr.SessionState(a.peer); got != domain.StateEstablished {
		t.Fatalf("responder state after first message = %s, want established", got)
	}
}

func TestResponderCannotSendFirst(t *testing.T) {
	a, b := newParty(t), newParty(t)
	establish(t, a, b)

	if _, err := b.mgr.EncryptFor(a.peer, []byte("too early")); !errors.Is(err, session.ErrRoleOrdering) {
		t.Fatalf("responder EncryptFor before first receive: got %v, want ErrRoleOrdering", err)
	}

	ct, err := a.mgr.EncryptFor(b.peer, []byte("first"))
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}
	if _, err := b.mgr.DecryptFrom(a.peer, ct); err != nil {
		t.Fatalf("DecryptFrom: %v", err)
	}

	reply, err := b.mgr.EncryptFor(a.peer, []byte("now I can"))
	if err != nil {
		t.Fatalf("responder EncryptFor after first receive: %v", err)
	}
	pt, err := a.mgr.DecryptFrom(b.peer, reply)
	if err != nil {
		t.Fatalf("DecryptFrom reply: %v", err)
	}
	if string(pt) != "now I can" {
		t.Fatalf("got %q, want %q", pt, "now I can")
	}
}

func TestInitiateTwiceFails(t *testing.T) {
	a, b := newParty(t), newParty(t)
	establish(t, a, b)

	if _, err := a.mgr.InitiateHandshake(b.bundle(t)); !errors.Is(err, session.ErrAlreadyEstablished) {
		t.Fatalf("second InitiateHandshake: got %v, want ErrAlreadyEstablished", err)
	}
}

func TestDuplicateAcceptIgnored(t *testing.T) {
	a, b := newParty(t), newParty(t)
	init := establish(t, a, b)

	ct, err := a.mgr.EncryptFor(b.peer, []byte("payload"))
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}

	// A replayed handshake-init must not rebuild the session.
	if err := b.mgr.AcceptHandshake(a.peer, init); err != nil {
		t.Fatalf("duplicate AcceptHandshake: %v", err)
	}
	pt, err := b.mgr.DecryptFrom(a.peer, ct)
	if err != nil {
		t.Fatalf("DecryptFrom after duplicate accept: %v", err)
	}
	if string(pt) != "payload" {
		t.Fatalf("got %q, want %q", pt, "payload")
	}
}

func TestAcceptRejectsMismatchedSender(t *testing.T) {
	a, b := newParty(t), newParty(t)
	init, err := a.mgr.InitiateHandshake(b.bundle(t))
	if err != nil {
		t.Fatalf("InitiateHandshake: %v", err)
	}

	mallory := newParty(t)
	if err := b.mgr.AcceptHandshake(mallory.peer, init); err == nil {
		t.Fatal("AcceptHandshake accepted an identity key not matching the sender")
	}
	if got := b.mgr.SessionState(mallory.peer); got != domain.StateNoSession {
		t.Fatalf("state for spoofed sender = %s, want no-session", got)
	}
}

func TestUnknownPeers(t *testing.T) {
	a := newParty(t)
	stranger := newParty(t)

	if _, err := a.mgr.EncryptFor(stranger.peer, []byte("hi")); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("EncryptFor unknown peer: got %v, want ErrNoSession", err)
	}
	if _, err := a.mgr.DecryptFrom(stranger.peer, []byte("{}")); !errors.Is(err, session.ErrUnknownSender) {
		t.Fatalf("DecryptFrom unknown peer: got %v, want ErrUnknownSender", err)
	}
}

func TestTamperedCiphertextLeavesSessionIntact(t *testing.T) {
	a, b := newParty(t), newParty(t)
	establish(t, a, b)

	ct, err := a.mgr.EncryptFor(b.peer, []byte("intact"))
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}
	var wire struct {
		Header json.RawMessage `json:"header"`
		Cipher []byte          `json:"cipher"`
	}
	if err := json.Unmarshal(ct, &wire); err != nil {
		t.Fatalf("unmarshal ciphertext: %v", err)
	}
	wire.Cipher[0] ^= 0xff
	bad, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal tampered ciphertext: %v", err)
	}
	if _, err := b.mgr.DecryptFrom(a.peer, bad); !errors.Is(err, engine.ErrDecryptionFailed) {
		t.Fatalf("tampered DecryptFrom: got %v, want ErrDecryptionFailed", err)
	}

	pt, err := b.mgr.DecryptFrom(a.peer, ct)
	if err != nil {
		t.Fatalf("DecryptFrom original after tamper: %v", err)
	}
	if string(pt) != "intact" {
		t.Fatalf("got %q, want %q", pt, "intact")
	}
}

func TestRestartResumesConversation(t *testing.T) {
	a, b := newParty(t), newParty(t)
	establish(t, a, b)

	ct, err := a.mgr.EncryptFor(b.peer, []byte("before restart"))
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}
	if _, err := b.mgr.DecryptFrom(a.peer, ct); err != nil {
		t.Fatalf("DecryptFrom: %v", err)
	}

	// Both processes restart: fresh managers over the same stores.
	a.mgr = a.rebuild(t)
	b.mgr = b.rebuild(t)
	if n, err := a.mgr.RestoreAll(); err != nil || n != 1 {
		t.Fatalf("RestoreAll a: %d %v", n, err)
	}
	if n, err := b.mgr.RestoreAll(); err != nil || n != 1 {
		t.Fatalf("RestoreAll b: %d %v", n, err)
	}

	if got := b.mgr.SessionState(a.peer); got != domain.StateEstablished {
		t.Fatalf("restored responder state = %s, want established", got)
	}

	// The conversation continues in both directions.
	ct, err = b.mgr.EncryptFor(a.peer, []byte("after restart"))
	if err != nil {
		t.Fatalf("EncryptFor after restart: %v", err)
	}
	pt, err := a.mgr.DecryptFrom(b.peer, ct)
	if err != nil {
		t.Fatalf("DecryptFrom after restart: %v", err)
	}
	if string(pt) != "after restart" {
		t.Fatalf("got %q, want %q", pt, "after restart")
	}

	ct, err = a.mgr.EncryptFor(b.peer, []byte("and back"))
	if err != nil {
		t.Fatalf("EncryptFor back: %v", err)
	}
	if pt, err := b.mgr.DecryptFrom(a.peer, ct); err != nil || string(pt) != "and back" {
		t.Fatalf("DecryptFrom back: %v %q", err, pt)
	}
}

func TestSessionsAndRemove(t *testing.T) {
	a, b := newParty(t), newParty(t)
	establish(t, a, b)

	infos := a.mgr.Sessions()
	if len(infos) != 1 {
		t.Fatalf("got %d sessions, want 1", len(infos))
	}
	if infos[0].Peer != b.peer || infos[0].Role != domain.RoleInitiator {
		t.Fatalf("unexpected session info: %+v", infos[0])
	}
	if peers := a.mgr.EstablishedPeers(); len(peers) != 1 || peers[0] != b.peer {
		t.Fatalf("EstablishedPeers = %v", peers)
	}

	if err := a.mgr.RemoveSession(b.peer); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if got := a.mgr.SessionState(b.peer); got != domain.StateNoSession {
		t.Fatalf("state after remove = %s, want no-session", got)
	}

	// The record is gone from disk too.
	a.mgr = a.rebuild(t)
	if n, err := a.mgr.RestoreAll(); err != nil || n != 0 {
		t.Fatalf("RestoreAll after remove: %d %v", n, err)
	}

	// Removing again is a no-op.
	if err := a.mgr.RemoveSession(b.peer); err != nil {
		t.Fatalf("RemoveSession again: %v", err)
	}
}

func TestInitiateConsumesOneTimePrekey(t *testing.T) {
	a, b := newParty(t), newParty(t)
	init := establish(t, a, b)

	if init.OneTimePrekeyID == "" {
		t.Fatal("handshake did not select a one-time prekey")
	}
	prekeys := store.NewPrekeyFileStore(b.dir)
	if _, ok, _ := prekeys.ConsumeOneTimePrekey(init.OneTimePrekeyID); ok {
		t.Fatal("one-time prekey still stored after accept")
	}
}

func TestFailedAcceptRestoresOneTimePrekey(t *testing.T) {
	a, b := newParty(t), newParty(t)

	init, err := a.mgr.InitiateHandshake(b.bundle(t))
	if err != nil {
		t.Fatalf("InitiateHandshake: %v", err)
	}
	if init.OneTimePrekeyID == "" {
		t.Fatal("handshake did not select a one-time prekey")
	}

	// A forged ephemeral key passes the sender check but fails the key
	// agreement, after the one-time prekey has been consumed.
	forged := init
	forged.EphemeralKey = domain.X25519Public{}
	if err := b.mgr.AcceptHandshake(a.peer, forged); err == nil {
		t.Fatal("forged handshake accepted")
	}

	prekeys := store.NewPrekeyFileStore(b.dir)
	publics, err := prekeys.ListOneTimePrekeyPublics()
	if err != nil {
		t.Fatalf("ListOneTimePrekeyPublics: %v", err)
	}
	if len(publics) != 2 {
		t.Fatalf("%d one-time prekeys stored after failed accept, want 2", len(publics))
	}

	// The genuine handshake still completes against the restored prekey.
	if err := b.mgr.AcceptHandshake(a.peer, init); err != nil {
		t.Fatalf("genuine handshake after forged attempt: %v", err)
	}
	if got := b.mgr.SessionState(a.peer); got != domain.StateAwaitingFirstMessage {
		t.Fatalf("state = %s, want %s", got, domain.StateAwaitingFirstMessage)
	}
}
