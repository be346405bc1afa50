package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/hkdf"
)

const aesKeySize = 32 // AES-256

// handshakeRequest is the single framed message a client sends to open a
// secured session: its freshly generated secret, RSA-OAEP-encrypted with
// the server's public key.
type handshakeRequest struct {
	AESKey []byte `cbor:"aes_key"`
}

// handshakeResponse acknowledges a successful handshake.
type handshakeResponse struct {
	Status string `cbor:"status"`
}

// LoadPublicKey reads an RSA public key from a PEM file.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s does not hold an RSA public key", path)
	}
	return rsaPub, nil
}

// LoadPrivateKey reads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		key2, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		rsaKey, ok := key2.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s does not hold an RSA private key", path)
		}
		return rsaKey, nil
	}
	return key, nil
}

// GenerateKeyPair creates a fresh RSA-2048 keypair and writes PEM files
// public_key.pem and private_key.pem under dir.
func GenerateKeyPair(dir string) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generating RSA key: %w", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(key)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})
	if err := os.WriteFile(dir+"/private_key.pem", privPEM, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshalling public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	if err := os.WriteFile(dir+"/public_key.pem", pubPEM, 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// deriveAESKey stretches the raw RSA-exchanged secret into the actual
// bulk-encryption key via HKDF-SHA256, rather than using the raw
// RSA-decrypted bytes directly as the AES key.
func deriveAESKey(secret []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, nil, []byte("boxd transport aes key"))
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("deriving AES key: %w", err)
	}
	return key, nil
}

// ClientHandshake performs the client side of the handshake over rw:
// generate a fresh secret, RSA-OAEP-encrypt it with pub, send it framed,
// and await the server's success ack. Returns the derived AES-256 key.
func ClientHandshake(rw io.ReadWriter, pub *rsa.PublicKey) ([]byte, error) {
	secret := make([]byte, aesKeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating session secret: %w", err)
	}

	encSecret, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, secret, nil)
	if err != nil {
		return nil, fmt.Errorf("RSA-OAEP encrypting secret: %w", err)
	}

	reqBytes, err := cbor.Marshal(handshakeRequest{AESKey: encSecret})
	if err != nil {
		return nil, fmt.Errorf("encoding handshake request: %w", err)
	}
	if err := WriteFrame(rw, reqBytes); err != nil {
		return nil, fmt.Errorf("sending handshake request: %w", err)
	}

	respBytes, err := ReadFrame(rw)
	if err != nil {
		return nil, fmt.Errorf("reading handshake response: %w", err)
	}
	var resp handshakeResponse
	if err := cbor.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("decoding handshake response: %w", err)
	}
	if resp.Status != "success" {
		return nil, ErrHandshakeFailed
	}

	return deriveAESKey(secret)
}

// ServerHandshake performs the server side of the handshake over rw using
// priv to decrypt the client's secret. Returns the derived AES-256 key,
// or ErrHandshakeFailed (and closes nothing itself — callers close rw).
func ServerHandshake(rw io.ReadWriter, priv *rsa.PrivateKey) ([]byte, error) {
	reqBytes, err := ReadFrame(rw)
	if err != nil {
		return nil, fmt.Errorf("reading handshake request: %w", err)
	}
	var req handshakeRequest
	if err := cbor.Unmarshal(reqBytes, &req); err != nil {
		return nil, ErrHandshakeFailed
	}

	secret, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, req.AESKey, nil)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	aesKey, err := deriveAESKey(secret)
	if err != nil {
		return nil, err
	}

	respBytes, err := cbor.Marshal(handshakeResponse{Status: "success"})
	if err != nil {
		return nil, err
	}
	if err := WriteFrame(rw, respBytes); err != nil {
		return nil, fmt.Errorf("sending handshake response: %w", err)
	}

	return aesKey, nil
}
