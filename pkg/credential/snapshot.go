package credential

import (
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/persistence"
	"github.com/solarlink/solarlink-go/pkg/secure"
)

// SnapshotVersion is the current version of the snapshot format.
const SnapshotVersion = 1

// Snapshot is the persisted form of a Store.
type Snapshot struct {
	Version     int                      `json:"version"`
	Credentials map[uuid.UUID]Credential `json:"credentials,omitempty"`
	Invitations map[uuid.UUID]Invitation `json:"invitations,omitempty"`
	Secrets     map[uuid.UUID]secure.Key `json:"secrets,omitempty"`
}

// IsConfigured reports whether an owner credential exists.
func (s *Snapshot) IsConfigured() bool {
	for _, c := range s.Credentials {
		if c.Permission == PermissionOwner {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		Version:     s.Version,
		Credentials: maps.Clone(s.Credentials),
		Invitations: maps.Clone(s.Invitations),
		Secrets:     maps.Clone(s.Secrets),
	}
}

func (s *Snapshot) init() {
	s.Version = SnapshotVersion
	if s.Credentials == nil {
		s.Credentials = make(map[uuid.UUID]Credential)
	}
	if s.Invitations == nil {
		s.Invitations = make(map[uuid.UUID]Invitation)
	}
	if s.Secrets == nil {
		s.Secrets = make(map[uuid.UUID]secure.Key)
	}
}

// Persister loads and atomically updates snapshots.
//
// Update applies fn to the current snapshot and makes the result durable
// before returning it. When fn fails, or the write fails, the stored snapshot
// is unchanged.
type Persister interface {
	Load() (*Snapshot, error)
	Update(fn func(*Snapshot) error) (*Snapshot, error)
}

// FileStore persists snapshots to a JSON file.
type FileStore struct {
	file *persistence.File[Snapshot]
}

// NewFileStore creates a file-backed persister.
func NewFileStore(path string) *FileStore {
	return &FileStore{file: persistence.NewFile[Snapshot](path)}
}

// Load implements Persister. A missing file yields an empty snapshot.
func (f *FileStore) Load() (*Snapshot, error) {
	snap, err := f.file.Load()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		snap = &Snapshot{}
	}
	snap.init()
	return snap, nil
}

// Update implements Persister.
func (f *FileStore) Update(fn func(*Snapshot) error) (*Snapshot, error) {
	snap, _, err := f.file.Update(func(s *Snapshot) error {
		s.init()
		return fn(s)
	})
	return snap, err
}

// MemoryStore keeps the snapshot in memory.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryStore creates an empty in-memory persister.
func NewMemoryStore() *MemoryStore {
	s := &Snapshot{}
	s.init()
	return &MemoryStore{snap: s}
}

// Load implements Persister.
func (m *MemoryStore) Load() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

// Update implements Persister.
func (m *MemoryStore) Update(fn func(*Snapshot) error) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.snap.Clone()
	next.init()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.snap = next
	return next.Clone(), nil
}

var (
	_ Persister = (*FileStore)(nil)
	_ Persister = (*MemoryStore)(nil)
)
