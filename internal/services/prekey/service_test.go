package prekey_test

import (
	"errors"
	"testing"

	"sotto/internal/engine"
	"sotto/internal/services/identity"
	"sotto/internal/services/prekey"
	"sotto/internal/store"
)

const passphrase = "Correct-Horse-Battery-9!"

func newService(t *testing.T) *prekey.Service {
	t.Helper()
	dir := t.TempDir()
	eng := engine.New()
	ids := store.NewIdentityFileStore(dir)
	if _, _, err := identity.New(eng, ids).GenerateIdentity(passphrase); err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	return prekey.New(eng, ids, store.NewPrekeyFileStore(dir))
}

func TestGeneratePrekeysAssemblesBundle(t *testing.T) {
	svc := newService(t)

	bundle, err := svc.GeneratePrekeys(passphrase, 5)
	if err != nil {
		t.Fatalf("GeneratePrekeys: %v", err)
	}
	if len(bundle.OneTimePrekeys) != 5 {
		t.Fatalf("bundle has %d one-time prekeys, want 5", len(bundle.OneTimePrekeys))
	}
	if len(bundle.SignedPrekeySignature) == 0 {
		t.Error("bundle signed prekey is unsigned")
	}

	again, err := svc.LocalBundle(passphrase)
	if err != nil {
		t.Fatalf("LocalBundle: %v", err)
	}
	if again.SignedPrekeyID != bundle.SignedPrekeyID {
		t.Errorf("signed prekey id = %s, want %s", again.SignedPrekeyID, bundle.SignedPrekeyID)
	}
}

func TestLocalBundleBeforeGenerate(t *testing.T) {
	svc := newService(t)
	if _, err := svc.LocalBundle(passphrase); !errors.Is(err, prekey.ErrNoSignedPrekey) {
		t.Fatalf("err = %v, want ErrNoSignedPrekey", err)
	}
}

func TestRotationKeepsOldSignedPrekeyLoadable(t *testing.T) {
	dir := t.TempDir()
	eng := engine.New()
	ids := store.NewIdentityFileStore(dir)
	if _, _, err := identity.New(eng, ids).GenerateIdentity(passphrase); err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	prekeys := store.NewPrekeyFileStore(dir)
	svc := prekey.New(eng, ids, prekeys)

	first, err := svc.GeneratePrekeys(passphrase, 1)
	if err != nil {
		t.Fatalf("first GeneratePrekeys: %v", err)
	}
	second, err := svc.GeneratePrekeys(passphrase, 1)
	if err != nil {
		t.Fatalf("second GeneratePrekeys: %v", err)
	}
	if first.SignedPrekeyID == second.SignedPrekeyID {
		t.Fatal("rotation did not mint a new signed prekey")
	}

	// Handshakes initiated against the old bundle still need its key.
	if _, ok, err := prekeys.LoadSignedPrekey(first.SignedPrekeyID); err != nil || !ok {
		t.Fatalf("old signed prekey unavailable: ok=%v err=%v", ok, err)
	}
	id, ok, err := prekeys.CurrentSignedPrekeyID()
	if err != nil || !ok {
		t.Fatalf("CurrentSignedPrekeyID: ok=%v err=%v", ok, err)
	}
	if id != second.SignedPrekeyID {
		t.Errorf("current signed prekey = %s, want %s", id, second.SignedPrekeyID)
	}
}
