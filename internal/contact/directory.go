package contact

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"sotto/internal/domain"
)

var (
	// ErrExists is returned by AddContact when a record for the key is
	// already present.
	ErrExists = errors.New("contact: already exists")

	// ErrNotFound is returned when no record exists for the key.
	ErrNotFound = errors.New("contact: not found")
)

// Directory maps peer keys to trust metadata. A record is created once and
// never silently overwritten: a second handshake from the same key keeps the
// original trust origin and timestamp.
type Directory struct {
	store domain.ContactStore
}

var _ domain.ContactDirectory = (*Directory)(nil)

// New returns a contact directory backed by the given store.
func New(s domain.ContactStore) *Directory { return &Directory{store: s} }

// EnsureContact creates the record if absent and reports whether it did.
// An existing record is left untouched.
func (d *Directory) EnsureContact(rec domain.ContactRecord) (bool, error) {
	if err := validate(rec); err != nil {
		return false, err
	}
	_, ok, err := d.store.LoadContact(rec.PublicKey)
	if err != nil {
		return false, fmt.Errorf("load contact: %w", err)
	}
	if ok {
		return false, nil
	}
	if rec.EstablishedAt == 0 {
		rec.EstablishedAt = time.Now().Unix()
	}
	if err := d.store.SaveContact(rec); err != nil {
		return false, fmt.Errorf("save contact: %w", err)
	}
	return true, nil
}

// AddContact creates the record, failing with ErrExists when one is already
// present for the key.
func (d *Directory) AddContact(rec domain.ContactRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	_, ok, err := d.store.LoadContact(rec.PublicKey)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrExists, rec.PublicKey)
	}
	if rec.EstablishedAt == 0 {
		rec.EstablishedAt = time.Now().Unix()
	}
	if err := d.store.SaveContact(rec); err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	return nil
}

// GetContact returns the record for the key or ErrNotFound.
func (d *Directory) GetContact(key domain.PeerKey) (domain.ContactRecord, error) {
	rec, ok, err := d.store.LoadContact(key)
	if err != nil {
		return domain.ContactRecord{}, fmt.Errorf("load contact: %w", err)
	}
	if !ok {
		return domain.ContactRecord{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return rec, nil
}

// HasContact reports whether a record exists for the key.
func (d *Directory) HasContact(key domain.PeerKey) (bool, error) {
	_, ok, err := d.store.LoadContact(key)
	if err != nil {
		return false, fmt.Errorf("load contact: %w", err)
	}
	return ok, nil
}

// ListContacts returns every record ordered by display name, then key.
func (d *Directory) ListContacts() ([]domain.ContactRecord, error) {
	all, err := d.store.AllContacts()
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	recs := make([]domain.ContactRecord, 0, len(all))
	for _, rec := range all {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].DisplayName != recs[j].DisplayName {
			return recs[i].DisplayName < recs[j].DisplayName
		}
		return recs[i].PublicKey < recs[j].PublicKey
	})
	return recs, nil
}

// RenameContact updates the display name of an existing record.
func (d *Directory) RenameContact(key domain.PeerKey, displayName string) error {
	rec, ok, err := d.store.LoadContact(key)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	rec.DisplayName = displayName
	if err := d.store.SaveContact(rec); err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	return nil
}

// RemoveContact deletes the record for the key or returns ErrNotFound.
func (d *Directory) RemoveContact(key domain.PeerKey) error {
	_, ok, err := d.store.LoadContact(key)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := d.store.DeleteContact(key); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

func validate(rec domain.ContactRecord) error {
	if _, err := domain.ParsePeerKey(string(rec.PublicKey)); err != nil {
		return fmt.Errorf("contact: invalid peer key: %w", err)
	}
	return nil
}
