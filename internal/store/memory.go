package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/boxrun/boxd/internal/identity"
)

// MemoryStore is a map-backed Store. Every command acquires the store's
// own RWMutex for the duration of the call; MemoryStore is, so reads take RLock and only
// mutations take the exclusive Lock.
type MemoryStore struct {
	mu     sync.RWMutex
	hasher identity.Hasher
	pepper []byte

	byEmail map[string]*identity.User
	nextID  int
	files   map[string][]byte // email -> opaque FileTree blob
}

// NewMemoryStore creates an empty MemoryStore. pepper is the process-wide
// configuration value loaded once at startup.
func NewMemoryStore(hasher identity.Hasher, pepper []byte) *MemoryStore {
	return &MemoryStore{
		hasher:  hasher,
		pepper:  pepper,
		byEmail: make(map[string]*identity.User),
		files:   make(map[string][]byte),
	}
}

// IsUserExist implements Store.
func (s *MemoryStore) IsUserExist(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

// GetUserID implements Store.
func (s *MemoryStore) GetUserID(_ context.Context, email string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byEmail[email]
	if !ok {
		return 0, ErrUserNotFound
	}
	return u.ID, nil
}

// IsPasswordOK implements Store. Per Design Note 9.3, the source's login
// path returns None (not False) on an unexpected error, but the client
// sees the same ERRR~101 surface either way because the response builder
// branches only on truthiness; callers here must preserve that by
// treating both "wrong password" and "lookup error" identically at the
// gateway boundary, not inside the store.
func (s *MemoryStore) IsPasswordOK(_ context.Context, email, password string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byEmail[email]
	if !ok {
		return false, ErrUserNotFound
	}
	if u.Disabled {
		return false, ErrUserDisabled
	}
	return identity.Verify(s.hasher, password, u.Salt, s.pepper, u.Digest), nil
}

// AddUser implements Store.
func (s *MemoryStore) AddUser(_ context.Context, email, password string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return 0, ErrUserExists
	}

	salt, err := identity.NewSalt()
	if err != nil {
		return 0, fmt.Errorf("generating salt: %w", err)
	}

	s.nextID++
	u := &identity.User{
		ID:        s.nextID,
		Email:     email,
		Salt:      salt,
		Digest:    s.hasher.Hash(password, salt, s.pepper),
		CreatedAt: time.Now(),
	}
	s.byEmail[email] = u
	return u.ID, nil
}

// SetUserFilesStruct implements Store.
func (s *MemoryStore) SetUserFilesStruct(_ context.Context, email string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; !ok {
		return ErrUserNotFound
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.files[email] = cp
	return nil
}

// GetUserFilesStruct implements Store.
func (s *MemoryStore) GetUserFilesStruct(_ context.Context, email string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byEmail[email]; !ok {
		return nil, ErrUserNotFound
	}
	return s.files[email], nil
}

// GetAllUsersString implements Store. Kept JSON (not CBOR) deliberately:
// this is a human-readable debug dump, never parsed back by any client.
func (s *MemoryStore) GetAllUsersString(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		ID    int    `json:"id"`
		Email string `json:"email"`
	}
	entries := make([]entry, 0, len(s.byEmail))
	for _, u := range s.byEmail {
		entries = append(entries, entry{ID: u.ID, Email: u.Email})
	}
	out, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
