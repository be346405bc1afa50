// Package identity defines the User type and the pure password-hashing
// function the rest of boxd treats as an external collaborator. The
// interface lives here; the implementation below is the minimal stdlib
// function available — there is no ecosystem password-hashing
// dependency wired elsewhere in the module to reuse instead (see
// DESIGN.md).
package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// User is one registered identity, with CreatedAt and Disabled added
// to track account lifecycle alongside add_user/get_all_users_string.
type User struct {
	ID        int
	Email     string
	Salt      []byte
	Digest    string // hex-encoded salted+peppered digest
	CreatedAt time.Time
	Disabled  bool
}

// Dirname returns the zero-padded-to-3-digits directory name derived
// from the user's id.
func (u User) Dirname() string {
	return fmt.Sprintf("user_%03d", u.ID)
}

// Hasher is the pure password-hashing function interface. Implementations
// must be deterministic given the same salt, pepper and password.
type Hasher interface {
	// Hash returns the hex-encoded digest of password salted with salt
	// and peppered with pepper.
	Hash(password string, salt, pepper []byte) string
}

// NewSalt returns a fresh random 16-byte salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// HMACHasher implements Hasher using HMAC-SHA256 over salt||password,
// keyed by the process-wide pepper. A pure function: same inputs always
// produce the same digest.
type HMACHasher struct{}

// Hash implements Hasher.
func (HMACHasher) Hash(password string, salt, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write(salt)
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether password, salted and peppered, matches digest.
func Verify(hasher Hasher, password string, salt []byte, pepper []byte, digest string) bool {
	computed := hasher.Hash(password, salt, pepper)
	return hmac.Equal([]byte(computed), []byte(digest))
}
