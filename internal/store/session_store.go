package store

import (
	"path/filepath"
	"sync"

	"sotto/internal/domain"
)

const sessionsFilename = "sessions.json"

// SessionFileStore persists one serialized session record per peer. Writes
// go through a temp file and rename; when Save returns the record is on
// disk.
type SessionFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir.
func NewSessionFileStore(dir string) *SessionFileStore {
	return &SessionFileStore{dir: dir}
}

var _ domain.SessionStore = (*SessionFileStore)(nil)

func (s *SessionFileStore) path() string { return filepath.Join(s.dir, sessionsFilename) }

// SaveSessionRecord writes the record for peer.
func (s *SessionFileStore) SaveSessionRecord(peer domain.PeerKey, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := map[domain.PeerKey]domain.SessionRecord{}
	if err := readJSON(s.path(), &records); err != nil {
		return err
	}
	records[peer] = rec
	return writeJSON(s.path(), records, 0o600)
}

// LoadSessionRecord retrieves the stored record for peer.
func (s *SessionFileStore) LoadSessionRecord(peer domain.PeerKey) (domain.SessionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := map[domain.PeerKey]domain.SessionRecord{}
	if err := readJSON(s.path(), &records); err != nil {
		return domain.SessionRecord{}, false, err
	}
	rec, ok := records[peer]
	return rec, ok, nil
}

// AllSessionRecords returns every stored record keyed by peer.
func (s *SessionFileStore) AllSessionRecords() (map[domain.PeerKey]domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := map[domain.PeerKey]domain.SessionRecord{}
	if err := readJSON(s.path(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteSessionRecord removes the record for peer if present.
func (s *SessionFileStore) DeleteSessionRecord(peer domain.PeerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := map[domain.PeerKey]domain.SessionRecord{}
	if err := readJSON(s.path(), &records); err != nil {
		return err
	}
	if _, ok := records[peer]; !ok {
		return nil
	}
	delete(records, peer)
	return writeJSON(s.path(), records, 0o600)
}

// DeleteAllSessionRecords removes the sessions file entirely.
func (s *SessionFileStore) DeleteAllSessionRecords() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return removeFile(s.path())
}
