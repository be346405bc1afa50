package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boxrun/boxd/internal/vfs"
)

// Session is the live association of one client transport with at
// most one authenticated identity. It is created on
// connect and destroyed on disconnect; it never outlives the
// transport. Execution bookkeeping (at most one running Execution)
// lives in the connection loop in gateway.go, not here — Session only
// tracks identity.
type Session struct {
	ID          string
	ConnectedAt time.Time

	mu            sync.Mutex
	userID        int
	email         string
	authenticated bool
	userFS        *vfs.UserFS
}

func newSession() *Session {
	return &Session{ID: uuid.NewString(), ConnectedAt: time.Now()}
}

// authenticate marks the session logged in as (userID, email) with fs
// as its virtual filesystem handle.
func (s *Session) authenticate(userID int, email string, fs *vfs.UserFS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.email = email
	s.authenticated = true
	s.userFS = fs
}

// logout clears authentication state (Design Note 9.2: OUTT unregisters
// the session; the gateway closes the transport separately).
func (s *Session) logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = ""
	s.authenticated = false
	s.userFS = nil
}

func (s *Session) isAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Email returns the logged-in email, or "" if not authenticated.
func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// UserFS returns the session's virtual filesystem handle, or nil if
// not authenticated.
func (s *Session) UserFS() *vfs.UserFS {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userFS
}
