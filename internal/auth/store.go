package auth

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/iliyamo/qr-attendance/internal/model"
)

// TokenStore holds the token pair of the signed-in user.  The Manager is its
// only writer; SwapAccess lets a refresh replace the access token only if no
// one replaced it in the meantime.
type TokenStore interface {
	Load(ctx context.Context) (model.TokenPair, error)
	Save(ctx context.Context, tp model.TokenPair) error
	// SwapAccess sets the access token to next when it currently equals prev.
	SwapAccess(ctx context.Context, prev, next string) (bool, error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu sync.Mutex
	tp model.TokenPair
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(context.Context) (model.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tp, nil
}

func (s *MemoryStore) Save(_ context.Context, tp model.TokenPair) error {
	s.mu.Lock()
	s.tp = tp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SwapAccess(_ context.Context, prev, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tp.AccessToken != prev {
		return false, nil
	}
	s.tp.AccessToken = next
	return true, nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.tp = model.TokenPair{}
	s.mu.Unlock()
	return nil
}

// FileStore persists tokens as JSON in a user-only file so the CLI stays
// signed in between runs.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore stores tokens in dir/tokens.json, creating dir with 0700.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{path: filepath.Join(dir, "tokens.json")}, nil
}

// Path returns the token file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(context.Context) (model.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) Save(_ context.Context, tp model.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(tp)
}

func (s *FileStore) SwapAccess(_ context.Context, prev, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tp, err := s.read()
	if err != nil {
		return false, err
	}
	if tp.AccessToken != prev {
		return false, nil
	}
	tp.AccessToken = next
	return true, s.write(tp)
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) read() (model.TokenPair, error) {
	var tp model.TokenPair
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return tp, nil
	}
	if err != nil {
		return tp, err
	}
	if err := json.Unmarshal(b, &tp); err != nil {
		return model.TokenPair{}, err
	}
	return tp, nil
}

// write replaces the file atomically via rename.
func (s *FileStore) write(tp model.TokenPair) error {
	b, err := json.MarshalIndent(tp, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
