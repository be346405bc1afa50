// Package rpcserver implements the backend RPC server: it accepts handshake-complete transport.Conn sessions
// and dispatches the seven allow-listed commands onto an
// internal/store.Store via a closed switch, never reflection.
package rpcserver

import "errors"

// ErrUnknownCommand is returned (as a Response, not surfaced as a Go
// error to the caller) when a client sends a command name outside the
// seven-command allow-list.
var ErrUnknownCommand = errors.New("rpcserver: unknown command")
