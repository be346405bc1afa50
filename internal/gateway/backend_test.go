package gateway

import (
	"context"
	"crypto/rsa"
	"net"
	"testing"
	"time"

	"github.com/boxrun/boxd/internal/identity"
	"github.com/boxrun/boxd/internal/pool"
	"github.com/boxrun/boxd/internal/rpcserver"
	"github.com/boxrun/boxd/internal/store"
	"github.com/boxrun/boxd/internal/transport"
)

// startTestBackend runs a real rpcserver.Server against a real
// in-memory store on an ephemeral localhost port, the same pattern
// rpcserver's own end-to-end test uses, so gateway tests exercise the
// genuine CBOR/RSA/AES wire path rather than a mocked backend.
func startTestBackend(t *testing.T) (addr string, pub *rsa.PublicKey) {
	t.Helper()
	dir := t.TempDir()
	if err := transport.GenerateKeyPair(dir); err != nil {
		t.Fatal(err)
	}
	priv, err := transport.LoadPrivateKey(dir + "/private_key.pem")
	if err != nil {
		t.Fatal(err)
	}
	pub, err = transport.LoadPublicKey(dir + "/public_key.pem")
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr = ln.Addr().String()
	ln.Close()

	st := store.NewMemoryStore(identity.HMACHasher{}, []byte("pepper"))
	srv := rpcserver.New(addr, priv, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-errCh
	})

	for i := 0; i < 50; i++ {
		if c, dialErr := net.Dial("tcp", addr); dialErr == nil {
			c.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return addr, pub
}

// startTestPool wraps startTestBackend's server in a real, small
// connection pool.
func startTestPool(t *testing.T, size int) *pool.Pool {
	t.Helper()
	addr, pub := startTestBackend(t)
	p, err := pool.New(context.Background(), size, pool.DialerWithKey(addr, pub), nil)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}
