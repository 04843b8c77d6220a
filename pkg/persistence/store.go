package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Store is a synchronous key-value snapshot store for JSON-serializable
// blobs. Implementations are best-effort collaborators; callers decide how
// to handle failures.
type Store interface {
	// Load reads the value stored under key into `into`. Returns false when
	// nothing is stored under the key.
	Load(key string, into interface{}) (bool, error)
	// Save stores the value under key, replacing any previous value.
	Save(key string, value interface{}) error
}

// FileStore keeps one JSON file per key under a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Load(key string, into interface{}) (bool, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to read %s", s.path(key))
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, errors.Wrapf(err, "failed to parse %s", s.path(key))
	}
	return true, nil
}

func (s *FileStore) Save(key string, value interface{}) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", s.dir)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal value")
	}
	if err := os.WriteFile(s.path(key), data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", s.path(key))
	}
	return nil
}

var _ Store = (*FileStore)(nil)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string][]byte{}}
}

func (s *MemoryStore) Load(key string, into interface{}) (bool, error) {
	s.mu.RLock()
	data, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) Save(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values[key] = data
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
