// Package catalogstore persists discovered tool catalogs so a restart, or an
// endpoint outage, can serve the last known listing instead of nothing.
package catalogstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"toolgate/internal/domain"
)

const catalogBucket = "catalogs"

var (
	ErrStoreClosed = errors.New("catalog store is closed")
	ErrNotFound    = errors.New("no catalog stored for endpoint")
)

// Entry is one persisted catalog together with the moment it was saved, so
// readers can judge staleness themselves.
type Entry struct {
	Endpoint string                  `json:"endpoint"`
	Tools    []domain.ToolDefinition `json:"tools"`
	SavedAt  time.Time               `json:"savedAt"`
}

type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool

	now func() time.Time
}

// Open creates or opens the catalog database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("catalog store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure catalog dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(catalogBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure catalog bucket: %w", err)
	}
	return &Store{db: db, path: trimmed, now: time.Now}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Save overwrites the stored catalog for an endpoint.
func (s *Store) Save(endpoint string, tools []domain.ToolDefinition) error {
	endpoint = domain.NormalizeEndpoint(endpoint)
	entry := Entry{
		Endpoint: endpoint,
		Tools:    domain.CloneToolDefinitions(tools),
		SavedAt:  s.now().UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(catalogBucket)).Put([]byte(endpoint), raw)
	})
}

// Load returns the stored catalog for an endpoint, or ErrNotFound.
func (s *Store) Load(endpoint string) (Entry, error) {
	endpoint = domain.NormalizeEndpoint(endpoint)
	var entry Entry
	err := s.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(catalogBucket)).Get([]byte(endpoint))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &entry)
	})
	return entry, err
}

// Delete removes the stored catalog for an endpoint. Removing a missing
// entry is not an error.
func (s *Store) Delete(endpoint string) error {
	endpoint = domain.NormalizeEndpoint(endpoint)
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(catalogBucket)).Delete([]byte(endpoint))
	})
}

// Endpoints lists every endpoint with a stored catalog.
func (s *Store) Endpoints() ([]string, error) {
	var endpoints []string
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(catalogBucket)).ForEach(func(key, _ []byte) error {
			endpoints = append(endpoints, string(key))
			return nil
		})
	})
	return endpoints, err
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}
