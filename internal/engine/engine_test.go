package engine_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"sotto/internal/domain"
	"sotto/internal/engine"
)

type side struct {
	ident domain.Identity
	spk   domain.SignedPrekeyPair
	opks  []domain.OneTimePrekeyPair
}

// makeSide generates a full identity with one signed prekey and two
// one-time prekeys.
func makeSide(t *testing.T, e *engine.Engine) side {
	t.Helper()
	ident, err := e.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	spk, err := e.GenerateSignedPrekey(ident)
	if err != nil {
		t.Fatalf("GenerateSignedPrekey: %v", err)
	}
	opks, err := e.GenerateOneTimePrekeys(2)
	if err != nil {
		t.Fatalf("GenerateOneTimePrekeys: %v", err)
	}
	return side{ident: ident, spk: spk, opks: opks}
}

func (s side) bundle() domain.PrekeyBundle {
	b := domain.PrekeyBundle{
		IdentityKey:           s.ident.XPub,
		SigningKey:            s.ident.EdPub,
		SignedPrekeyID:        s.spk.ID,
		SignedPrekey:          s.spk.Pub,
		SignedPrekeySignature: s.spk.Signature,
	}
	for _, opk := range s.opks {
		b.OneTimePrekeys = append(b.OneTimePrekeys, domain.OneTimePrekeyPublic{ID: opk.ID, Pub: opk.Pub})
	}
	return b
}

// agree runs the full agreement for both sides and returns matching secrets.
func agree(t *testing.T, e *engine.Engine, alice, bob side) (aliceSecret, bobSecret []byte, agreement domain.InitiatorAgreement) {
	t.Helper()
	agreement, err := e.InitiatorAgree(alice.ident, bob.bundle())
	if err != nil {
		t.Fatalf("InitiatorAgree: %v", err)
	}

	var opk *domain.OneTimePrekeyPair
	for i := range bob.opks {
		if bob.opks[i].ID == agreement.UsedOneTimePrekey {
			opk = &bob.opks[i]
		}
	}
	bobSecret, err = e.ResponderAgree(bob.ident, bob.spk, opk, alice.ident.XPub, agreement.EphemeralPub)
	if err != nil {
		t.Fatalf("ResponderAgree: %v", err)
	}
	return agreement.SharedSecret, bobSecret, agreement
}

func TestAgreementBothSidesMatch(t *testing.T) {
	e := engine.New()
	alice := makeSide(t, e)
	bob := makeSide(t, e)

	aliceSecret, bobSecret, agreement := agree(t, e, alice, bob)
	if !bytes.Equal(aliceSecret, bobSecret) {
		t.Fatal("initiator and responder derived different secrets")
	}
	if agreement.UsedSignedPrekey != bob.spk.ID {
		t.Fatalf("UsedSignedPrekey = %q, want %q", agreement.UsedSignedPrekey, bob.spk.ID)
	}
	if agreement.UsedOneTimePrekey == "" {
		t.Fatal("expected a one-time prekey to be consumed")
	}
}

func TestAgreementWithoutOneTimePrekey(t *testing.T) {
	e := engine.New()
	alice := makeSide(t, e)
	bob := makeSide(t, e)
	bob.opks = nil

	aliceSecret, bobSecret, agreement := agree(t, e, alice, bob)
	if !bytes.Equal(aliceSecret, bobSecret) {
		t.Fatal("secrets differ when no one-time prekey is available")
	}
	if agreement.UsedOneTimePrekey != "" {
		t.Fatalf("UsedOneTimePrekey = %q, want empty", agreement.UsedOneTimePrekey)
	}
}

func TestInitiatorAgreeRejectsBadSignature(t *testing.T) {
	e := engine.New()
	alice := makeSide(t, e)
	bob := makeSide(t, e)

	bundle := bob.bundle()
	bundle.SignedPrekeySignature[0] ^= 0xff
	if _, err := e.InitiatorAgree(alice.ident, bundle); !errors.Is(err, engine.ErrSignatureInvalid) {
		t.Fatalf("InitiatorAgree with forged signature: got %v, want ErrSignatureInvalid", err)
	}
}

// sessions builds an established initiator/responder session pair.
func sessions(t *testing.T, e *engine.Engine) (a, b domain.CipherSession) {
	t.Helper()
	alice := makeSide(t, e)
	bob := makeSide(t, e)
	aliceSecret, bobSecret, _ := agree(t, e, alice, bob)

	a, err := e.InitInitiator(aliceSecret, bob.spk.Pub)
	if err != nil {
		t.Fatalf("InitInitiator: %v", err)
	}
	b, err = e.InitResponder(bobSecret, bob.spk)
	if err != nil {
		t.Fatalf("InitResponder: %v", err)
	}
	return a, b
}

func TestSessionEndToEnd(t *testing.T) {
	e := engine.New()
	a, b := sessions(t, e)

	msg, err := a.Encrypt([]byte("first contact"))
	if err != nil {
		t.Fatalf("Encrypt a->b: %v", err)
	}
	pt, err := b.Decrypt(msg)
	if err != nil {
		t.Fatalf("Decrypt a->b: %v", err)
	}
	if string(pt) != "first contact" {
		t.Fatalf("got %q, want %q", pt, "first contact")
	}

	reply, err := b.Encrypt([]byte("ack"))
	if err != nil {
		t.Fatalf("Encrypt b->a: %v", err)
	}
	pt, err = a.Decrypt(reply)
	if err != nil {
		t.Fatalf("Decrypt b->a: %v", err)
	}
	if string(pt) != "ack" {
		t.Fatalf("got %q, want %q", pt, "ack")
	}
}

func TestResponderEncryptBeforeFirstMessage(t *testing.T) {
	e := engine.New()
	_, b := sessions(t, e)

	if _, err := b.Encrypt([]byte("premature")); !errors.Is(err, engine.ErrNoSendKey) {
		t.Fatalf("responder Encrypt before first receive: got %v, want ErrNoSendKey", err)
	}
}

func TestSerializeRestoresSession(t *testing.T) {
	e := engine.New()
	a, b := sessions(t, e)

	msg, err := a.Encrypt([]byte("one"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(msg); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	// Snapshot both sides mid-conversation and continue on the restored
	// copies.
	aBlob, err := a.Serialize()
	if err != nil {
		t.Fatalf("Serialize a: %v", err)
	}
	bBlob, err := b.Serialize()
	if err != nil {
		t.Fatalf("Serialize b: %v", err)
	}
	a2, err := e.Deserialize(aBlob)
	if err != nil {
		t.Fatalf("Deserialize a: %v", err)
	}
	b2, err := e.Deserialize(bBlob)
	if err != nil {
		t.Fatalf("Deserialize b: %v", err)
	}

	msg, err = b2.Encrypt([]byte("two"))
	if err != nil {
		t.Fatalf("Encrypt restored b: %v", err)
	}
	pt, err := a2.Decrypt(msg)
	if err != nil {
		t.Fatalf("Decrypt restored a: %v", err)
	}
	if string(pt) != "two" {
		t.Fatalf("got %q, want %q", pt, "two")
	}
}

func TestTamperedMessageLeavesSessionUsable(t *testing.T) {
	e := engine.New()
	a, b := sessions(t, e)

	msg, err := a.Encrypt([]byte("intact"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Flip one ciphertext byte through the wire shape, keeping valid JSON.
	var wire struct {
		Header json.RawMessage `json:"header"`
		Cipher []byte          `json:"cipher"`
	}
	if err := json.Unmarshal(msg, &wire); err != nil {
		t.Fatalf("Unmarshal wire message: %v", err)
	}
	wire.Cipher[0] ^= 0xff
	bad, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("Marshal tampered message: %v", err)
	}

	if _, err := b.Decrypt(bad); !errors.Is(err, engine.ErrDecryptionFailed) {
		t.Fatalf("tampered Decrypt: got %v, want ErrDecryptionFailed", err)
	}

	pt, err := b.Decrypt(msg)
	if err != nil {
		t.Fatalf("Decrypt original after tamper attempt: %v", err)
	}
	if string(pt) != "intact" {
		t.Fatalf("got %q, want %q", pt, "intact")
	}
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	e := engine.New()
	if _, err := e.Deserialize([]byte("{not json")); err == nil {
		t.Fatal("Deserialize of garbage succeeded")
	}
}
