package transport

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"net"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// secureMessage is the wire record for one encrypted frame: ciphertext
// plus the IV used to produce it.
type secureMessage struct {
	Data []byte `cbor:"data"`
	IV   []byte `cbor:"iv"`
}

// Conn is one handshake-complete, AES-CBC-encrypted backend session.
// Every bulk message uses a fresh random IV; Conn tracks IVs it has
// produced to make reuse provably impossible to miss in tests.
type Conn struct {
	raw    net.Conn
	aesKey []byte

	mu      sync.Mutex
	usedIVs map[string]struct{}
}

// NewConn wraps an already handshake-complete net.Conn with its derived
// AES key.
func NewConn(raw net.Conn, aesKey []byte) *Conn {
	return &Conn{raw: raw, aesKey: aesKey, usedIVs: make(map[string]struct{})}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("transport: empty ciphertext")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > n {
		return nil, fmt.Errorf("transport: invalid PKCS7 padding")
	}
	return data[:n-padLen], nil
}

func (c *Conn) encrypt(plaintext []byte) (secureMessage, error) {
	block, err := aes.NewCipher(c.aesKey)
	if err != nil {
		return secureMessage{}, err
	}

	iv := make([]byte, aes.BlockSize)
	c.mu.Lock()
	for {
		if _, err := rand.Read(iv); err != nil {
			c.mu.Unlock()
			return secureMessage{}, fmt.Errorf("generating IV: %w", err)
		}
		if _, seen := c.usedIVs[string(iv)]; !seen {
			c.usedIVs[string(iv)] = struct{}{}
			break
		}
		// Astronomically unlikely; loop to guarantee the invariant holds.
	}
	c.mu.Unlock()

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	return secureMessage{Data: ciphertext, IV: iv}, nil
}

func (c *Conn) decrypt(msg secureMessage) ([]byte, error) {
	block, err := aes.NewCipher(c.aesKey)
	if err != nil {
		return nil, err
	}
	if len(msg.IV) != aes.BlockSize {
		return nil, fmt.Errorf("transport: invalid IV length")
	}
	if len(msg.Data) == 0 || len(msg.Data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("transport: invalid ciphertext length")
	}

	plainPadded := make([]byte, len(msg.Data))
	mode := cipher.NewCBCDecrypter(block, msg.IV)
	mode.CryptBlocks(plainPadded, msg.Data)

	return pkcs7Unpad(plainPadded)
}

// SendSecure encrypts payload and writes it as one framed message.
func (c *Conn) SendSecure(payload []byte) error {
	msg, err := c.encrypt(payload)
	if err != nil {
		return err
	}
	wire, err := cbor.Marshal(msg)
	if err != nil {
		return err
	}
	return WriteFrame(c.raw, wire)
}

// RecvSecure reads one framed message and decrypts it.
func (c *Conn) RecvSecure() ([]byte, error) {
	wire, err := ReadFrame(c.raw)
	if err != nil {
		return nil, err
	}
	var msg secureMessage
	if err := cbor.Unmarshal(wire, &msg); err != nil {
		return nil, fmt.Errorf("decoding secure message: %w", err)
	}
	return c.decrypt(msg)
}

// Call sends req and waits for the matching Response. Backend calls on a
// pooled Conn are strictly request/response: at most one call in flight
// at a time, which the pool's lease enforces at a higher
// level.
func (c *Conn) Call(req Request) (Response, error) {
	reqBytes, err := EncodeRequest(req)
	if err != nil {
		return Response{}, err
	}
	if err := c.SendSecure(reqBytes); err != nil {
		return Response{}, err
	}
	respBytes, err := c.RecvSecure()
	if err != nil {
		return Response{}, err
	}
	return DecodeResponse(respBytes)
}
