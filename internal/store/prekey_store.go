package store

import (
	"path/filepath"
	"sync"

	"sotto/internal/domain"
)

const prekeysFilename = "prekeys.json"

// prekeyFile is the on-disk shape: all prekey state in one file so consume
// and rotate are single atomic writes.
type prekeyFile struct {
	Current domain.SignedPrekeyID                               `json:"current_signed_prekey_id,omitempty"`
	Signed  map[domain.SignedPrekeyID]domain.SignedPrekeyPair   `json:"signed,omitempty"`
	OneTime map[domain.OneTimePrekeyID]domain.OneTimePrekeyPair `json:"one_time,omitempty"`
}

// PrekeyFileStore persists signed and one-time prekey state to disk.
type PrekeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPrekeyFileStore returns a PrekeyFileStore rooted at dir.
func NewPrekeyFileStore(dir string) *PrekeyFileStore {
	return &PrekeyFileStore{dir: dir}
}

var _ domain.PrekeyStore = (*PrekeyFileStore)(nil)

func (s *PrekeyFileStore) path() string { return filepath.Join(s.dir, prekeysFilename) }

func (s *PrekeyFileStore) load() (prekeyFile, error) {
	var pf prekeyFile
	if err := readJSON(s.path(), &pf); err != nil {
		return pf, err
	}
	if pf.Signed == nil {
		pf.Signed = make(map[domain.SignedPrekeyID]domain.SignedPrekeyPair)
	}
	if pf.OneTime == nil {
		pf.OneTime = make(map[domain.OneTimePrekeyID]domain.OneTimePrekeyPair)
	}
	return pf, nil
}

func (s *PrekeyFileStore) save(pf prekeyFile) error {
	return writeJSON(s.path(), pf, 0o600)
}

// SaveSignedPrekey stores a signed prekey pair by its id.
func (s *PrekeyFileStore) SaveSignedPrekey(pair domain.SignedPrekeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return err
	}
	pf.Signed[pair.ID] = pair
	return s.save(pf)
}

// LoadSignedPrekey retrieves a signed prekey pair by id.
func (s *PrekeyFileStore) LoadSignedPrekey(id domain.SignedPrekeyID) (domain.SignedPrekeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return domain.SignedPrekeyPair{}, false, err
	}
	pair, ok := pf.Signed[id]
	return pair, ok, nil
}

// SetCurrentSignedPrekeyID records which signed prekey id is current.
func (s *PrekeyFileStore) SetCurrentSignedPrekeyID(id domain.SignedPrekeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return err
	}
	pf.Current = id
	return s.save(pf)
}

// CurrentSignedPrekeyID returns the recorded current signed prekey id.
func (s *PrekeyFileStore) CurrentSignedPrekeyID() (domain.SignedPrekeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return "", false, err
	}
	return pf.Current, pf.Current != "", nil
}

// SaveOneTimePrekeys merges the provided one-time prekey pairs into the store.
func (s *PrekeyFileStore) SaveOneTimePrekeys(pairs []domain.OneTimePrekeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return err
	}
	for _, p := range pairs {
		pf.OneTime[p.ID] = p
	}
	return s.save(pf)
}

// ConsumeOneTimePrekey removes and returns a one-time prekey pair by id, so
// each pair is used at most once.
func (s *PrekeyFileStore) ConsumeOneTimePrekey(id domain.OneTimePrekeyID) (domain.OneTimePrekeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return domain.OneTimePrekeyPair{}, false, err
	}
	pair, ok := pf.OneTime[id]
	if !ok {
		return domain.OneTimePrekeyPair{}, false, nil
	}
	delete(pf.OneTime, id)
	if err := s.save(pf); err != nil {
		return domain.OneTimePrekeyPair{}, false, err
	}
	return pair, true, nil
}

// ListOneTimePrekeyPublics exposes only the public halves for bundling.
func (s *PrekeyFileStore) ListOneTimePrekeyPublics() ([]domain.OneTimePrekeyPublic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.OneTimePrekeyPublic, 0, len(pf.OneTime))
	for id, p := range pf.OneTime {
		out = append(out, domain.OneTimePrekeyPublic{ID: id, Pub: p.Pub})
	}
	return out, nil
}

// DeleteAllPrekeys removes the prekey file entirely.
func (s *PrekeyFileStore) DeleteAllPrekeys() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return removeFile(s.path())
}
