package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame's payload to guard against a
// corrupt or hostile length prefix.
const maxFrameSize = 64 << 20 // 64 MiB

// WriteFrame writes a single length-prefixed frame: a 4-byte
// network-byte-order unsigned length followed by exactly that many
// payload bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads a single length-prefixed frame. A short read (the peer
// closing before the full payload arrives) is reported as ErrShortRead.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, ErrShortRead
		}
		return nil, fmt.Errorf("reading frame length: %w", err)
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, ErrShortRead
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}
