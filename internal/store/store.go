// Package store defines the credential/metadata collaborator the backend
// RPC server (component F) dispatches onto: the relational store backing
// the key/value service, specified only via interface. The in-memory
// implementation in memory.go stands in for it so the rest of the system
// (everything above component F) is fully exercised without a real
// database dependency.
package store

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when an operation references an email that
// has no registered User.
var ErrUserNotFound = errors.New("store: user not found")

// ErrUserExists is returned by AddUser when the email is already taken.
var ErrUserExists = errors.New("store: user already exists")

// ErrUserDisabled is returned when an operation is attempted against a
// disabled account (identity.User.Disabled).
var ErrUserDisabled = errors.New("store: user disabled")

// Store is the seven-command surface the backend RPC server (component F)
// dispatches onto, one method per allow-listed command name:
// is_user_exist, get_user_id, is_password_ok, add_user,
// set_user_files_struct, get_user_files_struct, get_all_users_string.
type Store interface {
	IsUserExist(ctx context.Context, email string) (bool, error)
	GetUserID(ctx context.Context, email string) (int, error)
	IsPasswordOK(ctx context.Context, email, password string) (bool, error)
	AddUser(ctx context.Context, email, password string) (int, error)
	SetUserFilesStruct(ctx context.Context, email string, blob []byte) error
	GetUserFilesStruct(ctx context.Context, email string) ([]byte, error)
	GetAllUsersString(ctx context.Context) (string, error)
}
