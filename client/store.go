package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoTokens is returned by a [TokenStore] when nothing is stored.
var ErrNoTokens = errors.New("no stored tokens")

// TokenPair is the durable client-side state: the two opaque token
// strings, never interpreted locally.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenStore persists a [TokenPair] across process restarts.
type TokenStore interface {
	Load() (TokenPair, error)
	Save(TokenPair) error
	Clear() error
}

// MemoryStore keeps the pair in process memory. Useful for tests and
// short-lived tools.
type MemoryStore struct {
	mu   sync.Mutex
	pair TokenPair
	set  bool
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return TokenPair{}, ErrNoTokens
	}
	return s.pair, nil
}

func (s *MemoryStore) Save(pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.set = true
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	s.set = false
	return nil
}

// FileStore persists the pair as a JSON file readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store at the given path. Parent directories are
// created on the first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return TokenPair{}, ErrNoTokens
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("read token file: %w", err)
	}

	var pair TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("decode token file: %w", err)
	}
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return TokenPair{}, ErrNoTokens
	}
	return pair, nil
}

func (s *FileStore) Save(pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	raw, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}

	// Write-then-rename keeps a concurrent reader from seeing a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
