// Package storage persists the client's two pieces of local state: the
// session credential and the vault of local-only items awaiting migration.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/akorchagin/stash/internal/models"
)

const (
	tokenFile = "token"
	vaultFile = "pending_items.json"
)

// LocalStore keeps client state as files under one directory. Writes are
// wholesale file replacements; the mutex serializes them within the process.
type LocalStore struct {
	dir string
	mu  sync.Mutex
}

// NewLocalStore returns a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Token returns the stored credential, or "" if none is stored.
func (s *LocalStore) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, tokenFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveToken stores the credential, replacing any previous one.
func (s *LocalStore) SaveToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(filepath.Join(s.dir, tokenFile), []byte(token), 0o600)
}

// ClearToken removes the stored credential. Clearing an absent credential
// is not an error.
func (s *LocalStore) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, tokenFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Vault returns the local-only items captured before authentication.
// An absent vault file means an empty vault.
func (s *LocalStore) Vault() ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readVault()
}

// AppendVault adds one item to the vault.
func (s *LocalStore) AppendVault(it models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readVault()
	if err != nil {
		return err
	}
	return s.writeVault(append(items, it))
}

// SaveVault replaces the vault contents wholesale.
func (s *LocalStore) SaveVault(items []models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeVault(items)
}

// ClearVault removes the vault file. Called exactly once, after a
// successful migration; a failed migration leaves the vault intact.
func (s *LocalStore) ClearVault() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, vaultFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) readVault() ([]models.Item, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, vaultFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []models.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode vault: %w", err)
	}
	return items, nil
}

func (s *LocalStore) writeVault(items []models.Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, vaultFile), data, 0o600)
}
