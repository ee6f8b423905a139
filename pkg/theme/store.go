package theme

import (
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store persists the theme choice. Load returns "" when nothing is stored.
type Store interface {
	Load() (string, error)
	Save(t Theme) error
}

var bucketPreferences = []byte("preferences")

// BoltStore keeps the choice in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPreferences)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Load returns the stored value as written, valid or not.
func (s *BoltStore) Load() (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketPreferences).Get([]byte(StorageKey)); v != nil {
			value = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("read theme: %w", err)
	}
	return value, nil
}

// Save stores t.
func (s *BoltStore) Save(t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, t)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPreferences).Put([]byte(StorageKey), []byte(t))
	})
	if err != nil {
		return fmt.Errorf("write theme: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore keeps the choice in memory.
type MemoryStore struct {
	mu    sync.Mutex
	value string
}

// NewMemoryStore returns a store holding value.
func NewMemoryStore(value string) *MemoryStore {
	return &MemoryStore{value: value}
}

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

func (s *MemoryStore) Save(t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = string(t)
	return nil
}
