// Package cache implements the interception cache layer: a versioned store
// of network responses and an http.RoundTripper that serves cache hits
// immediately while refreshing them in the background.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one cached response: status, headers and body bytes. Entries are
// replaced wholesale, never patched.
type Entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Store is one named cache root on disk. Each generation is a subdirectory
// named by its version tag; each entry is a single JSON file keyed by the
// canonical request URL. File writes are whole-file replacements, so
// concurrent refreshes of the same key settle as last-writer-wins.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Put stores an entry under the given generation and key, replacing any
// previous entry wholesale.
func (s *Store) Put(generation, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, generation)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, entryFileName(key)), data, 0o600)
}

// Get retrieves the entry for key in the given generation, ErrNotFound if
// absent.
func (s *Store) Get(generation, key string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(s.root, generation, entryFileName(key)))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}

// Has reports whether an entry exists for key in the given generation.
func (s *Store) Has(generation, key string) bool {
	_, err := os.Stat(filepath.Join(s.root, generation, entryFileName(key)))
	return err == nil
}

// Generations enumerates all generation tags known to the store.
func (s *Store) Generations() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var gens []string
	for _, e := range entries {
		if e.IsDir() {
			gens = append(gens, e.Name())
		}
	}
	return gens, nil
}

// DeleteGeneration removes a generation and everything in it.
func (s *Store) DeleteGeneration(generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(filepath.Join(s.root, generation))
}

// CanonicalKey reduces a request URL to its cache identity: scheme, host
// and path+query, fragment stripped. The method is not part of the key
// because only GETs are ever cached.
func CanonicalKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

func entryFileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}
