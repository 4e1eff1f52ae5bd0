package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ProfileStore persists the advisory identity copy so a fresh process can
// show a provisional profile while me/ re-confirms it. Implementations
// must never be handed a credential; User carries none.
type ProfileStore interface {
	Save(user User) error
	Load() (*User, error)
	Clear() error
}

type MemoryProfileStore struct {
	mu   sync.Mutex
	user *User
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{}
}

func (m *MemoryProfileStore) Save(user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &user
	return nil
}

func (m *MemoryProfileStore) Load() (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil, nil
	}
	u := *m.user
	return &u, nil
}

func (m *MemoryProfileStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	return nil
}

// FileProfileStore keeps the advisory copy as a single JSON document on
// disk, the way the web client kept one localStorage key.
type FileProfileStore struct {
	path string
}

func NewFileProfileStore(path string) (*FileProfileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("no path provided")
	}
	return &FileProfileStore{path: path}, nil
}

func (f *FileProfileStore) Save(user User) error {
	b, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("could not marshal profile: %w", err)
	}

	if err := os.WriteFile(f.path, b, 0o600); err != nil {
		return fmt.Errorf("could not write profile: %w", err)
	}

	return nil
}

func (f *FileProfileStore) Load() (*User, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read profile: %w", err)
	}

	var user User
	if err := json.Unmarshal(b, &user); err != nil {
		// a corrupt advisory copy is worthless; drop it
		_ = os.Remove(f.path)
		return nil, nil
	}

	return &user, nil
}

func (f *FileProfileStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove profile: %w", err)
	}
	return nil
}
