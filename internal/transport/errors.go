// Package transport implements the secure framed backend transport:
// 4-byte length-prefixed framing, an RSA-OAEP → AES-CBC handshake, and
// a CBOR-encoded RPC envelope.
package transport

import "errors"

var (
	// ErrShortRead is returned when the peer closes before a full framed
	// payload has been read.
	ErrShortRead = errors.New("transport: short read, peer closed mid-frame")

	// ErrFrameTooLarge guards against a malicious or corrupt length
	// prefix forcing an unbounded allocation.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

	// ErrHandshakeFailed is returned when the RSA/AES handshake does not
	// complete successfully.
	ErrHandshakeFailed = errors.New("transport: handshake failed")

	// ErrIVReuse names the reuse of an IV within one Conn. Conn's
	// encryption never returns it: it draws a new IV whenever a random
	// one repeats.
	ErrIVReuse = errors.New("transport: IV reuse detected")
)
