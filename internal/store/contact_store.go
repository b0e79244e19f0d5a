package store

import (
	"path/filepath"
	"sync"

	"sotto/internal/domain"
)

const contactsFilename = "contacts.json"

// ContactFileStore persists contact records keyed by peer key.
type ContactFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewContactFileStore returns a ContactFileStore rooted at dir.
func NewContactFileStore(dir string) *ContactFileStore {
	return &ContactFileStore{dir: dir}
}

var _ domain.ContactStore = (*ContactFileStore)(nil)

func (s *ContactFileStore) path() string { return filepath.Join(s.dir, contactsFilename) }

// SaveContact writes the record, replacing any existing one for the same key.
func (s *ContactFileStore) SaveContact(rec domain.ContactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := map[domain.PeerKey]domain.ContactRecord{}
	if err := readJSON(s.path(), &contacts); err != nil {
		return err
	}
	contacts[rec.PublicKey] = rec
	return writeJSON(s.path(), contacts, 0o600)
}

// LoadContact retrieves the record for key.
func (s *ContactFileStore) LoadContact(key domain.PeerKey) (domain.ContactRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := map[domain.PeerKey]domain.ContactRecord{}
	if err := readJSON(s.path(), &contacts); err != nil {
		return domain.ContactRecord{}, false, err
	}
	rec, ok := contacts[key]
	return rec, ok, nil
}

// AllContacts returns every stored record keyed by peer.
func (s *ContactFileStore) AllContacts() (map[domain.PeerKey]domain.ContactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := map[domain.PeerKey]domain.ContactRecord{}
	if err := readJSON(s.path(), &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// DeleteContact removes the record for key if present.
func (s *ContactFileStore) DeleteContact(key domain.PeerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := map[domain.PeerKey]domain.ContactRecord{}
	if err := readJSON(s.path(), &contacts); err != nil {
		return err
	}
	if _, ok := contacts[key]; !ok {
		return nil
	}
	delete(contacts, key)
	return writeJSON(s.path(), contacts, 0o600)
}
