package prekey

import (
	"errors"
	"fmt"

	"sotto/internal/domain"
)

// ErrNoSignedPrekey is returned by LocalBundle before any prekeys have
// been generated.
var ErrNoSignedPrekey = errors.New("prekey: no signed prekey available, run publish first")

// Service generates and stores prekeys and assembles the public bundle.
type Service struct {
	engine domain.CryptoEngine
	ids    domain.IdentityStore
	store  domain.PrekeyStore
}

// New returns a prekey service.
func New(eng domain.CryptoEngine, ids domain.IdentityStore, store domain.PrekeyStore) *Service {
	return &Service{engine: eng, ids: ids, store: store}
}

var _ domain.PrekeyService = (*Service)(nil)

// GeneratePrekeys creates a fresh signed prekey plus oneTimeCount one-time
// pairs, marks the signed prekey current, and returns the public bundle to
// publish. Earlier signed prekeys stay loadable so handshakes initiated
// against an old bundle still complete.
func (s *Service) GeneratePrekeys(passphrase string, oneTimeCount int) (domain.PrekeyBundle, error) {
	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.PrekeyBundle{}, err
	}

	spk, err := s.engine.GenerateSignedPrekey(id)
	if err != nil {
		return domain.PrekeyBundle{}, err
	}
	if err := s.store.SaveSignedPrekey(spk); err != nil {
		return domain.PrekeyBundle{}, err
	}
	if err := s.store.SetCurrentSignedPrekeyID(spk.ID); err != nil {
		return domain.PrekeyBundle{}, err
	}

	pairs, err := s.engine.GenerateOneTimePrekeys(oneTimeCount)
	if err != nil {
		return domain.PrekeyBundle{}, err
	}
	if err := s.store.SaveOneTimePrekeys(pairs); err != nil {
		return domain.PrekeyBundle{}, err
	}

	return s.assemble(id, spk)
}

// LocalBundle rebuilds the public bundle from the current signed prekey
// and the unconsumed one-time prekeys.
func (s *Service) LocalBundle(passphrase string) (domain.PrekeyBundle, error) {
	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.PrekeyBundle{}, err
	}

	spkID, ok, err := s.store.CurrentSignedPrekeyID()
	if err != nil {
		return domain.PrekeyBundle{}, err
	}
	if !ok {
		return domain.PrekeyBundle{}, ErrNoSignedPrekey
	}
	spk, found, err := s.store.LoadSignedPrekey(spkID)
	if err != nil {
		return domain.PrekeyBundle{}, err
	}
	if !found {
		return domain.PrekeyBundle{}, fmt.Errorf("%w: current id %s missing", ErrNoSignedPrekey, spkID)
	}
	return s.assemble(id, spk)
}

func (s *Service) assemble(id domain.Identity, spk domain.SignedPrekeyPair) (domain.PrekeyBundle, error) {
	oneTime, err := s.store.ListOneTimePrekeyPublics()
	if err != nil {
		return domain.PrekeyBundle{}, err
	}
	return domain.PrekeyBundle{
		IdentityKey:           id.XPub,
		SigningKey:            id.EdPub,
		SignedPrekeyID:        spk.ID,
		SignedPrekey:          spk.Pub,
		SignedPrekeySignature: spk.Signature,
		OneTimePrekeys:        oneTime,
	}, nil
}
