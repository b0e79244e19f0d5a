package identity_test

import (
	"errors"
	"testing"

	"sotto/internal/engine"
	"sotto/internal/services/identity"
	"sotto/internal/store"
)

const goodPassphrase = "Correct-Horse-Battery-9!"

func newService(t *testing.T) *identity.Service {
	t.Helper()
	return identity.New(engine.New(), store.NewIdentityFileStore(t.TempDir()))
}

func TestGenerateAndLoadRoundTrip(t *testing.T) {
	svc := newService(t)

	id, fp, err := svc.GenerateIdentity(goodPassphrase)
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	if fp == "" {
		t.Fatal("empty fingerprint")
	}

	loaded, err := svc.LoadIdentity(goodPassphrase)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if loaded.PeerKey() != id.PeerKey() {
		t.Errorf("loaded peer key = %s, want %s", loaded.PeerKey(), id.PeerKey())
	}

	got, err := svc.FingerprintIdentity(goodPassphrase)
	if err != nil {
		t.Fatalf("FingerprintIdentity: %v", err)
	}
	if got != fp {
		t.Errorf("fingerprint = %s, want %s", got, fp)
	}
}

func TestWeakPassphrasesRejected(t *testing.T) {
	svc := newService(t)
	weak := []string{
		"",
		"short1!A",
		"alllowercaseletters1!", // no upper
		"ALLUPPERCASELETTERS1!", // no lower
		"NoDigitsAtAllHere!!",   // no digit
		"NoSymbolsAtAll12345",   // no symbol
	}
	for _, pass := range weak {
		if _, _, err := svc.GenerateIdentity(pass); !errors.Is(err, identity.ErrWeakPassphrase) {
			t.Errorf("passphrase %q: err = %v, want ErrWeakPassphrase", pass, err)
		}
	}
}

func TestResetIdentity(t *testing.T) {
	svc := newService(t)
	if _, _, err := svc.GenerateIdentity(goodPassphrase); err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	if err := svc.ResetIdentity(); err != nil {
		t.Fatalf("ResetIdentity: %v", err)
	}
	has, err := svc.HasIdentity()
	if err != nil {
		t.Fatalf("HasIdentity: %v", err)
	}
	if has {
		t.Error("identity survived reset")
	}
}
