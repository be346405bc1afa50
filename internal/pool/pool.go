package pool

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/boxrun/boxd/internal/transport"
)

// Dialer opens one fresh, handshake-complete backend connection. The
// pool calls it at construction time to fill every slot, and again
// whenever a leased connection comes back poisoned.
type Dialer func(ctx context.Context) (*transport.Conn, error)

// DialerWithKey builds the production Dialer: dial addr, then run the
// client side of the handshake using the backend's public key.
func DialerWithKey(addr string, pub *rsa.PublicKey) Dialer {
	return func(ctx context.Context) (*transport.Conn, error) {
		var d net.Dialer
		raw, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dialing backend %s: %w", addr, err)
		}
		aesKey, err := transport.ClientHandshake(raw, pub)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("handshake with backend %s: %w", addr, err)
		}
		return transport.NewConn(raw, aesKey), nil
	}
}

// Pool is a fixed-size set of leased backend connections. Acquire blocks (optionally with a deadline) until a slot is
// free; Release returns it, re-dialing and re-handshaking first if the
// caller reports the connection poisoned.
type Pool struct {
	dial Dialer
	log  *slog.Logger

	mu     sync.Mutex
	free   chan int
	slots  []*transport.Conn
	closed bool
}

// New creates a pool of size conns, each opened via dial. If any dial
// fails, already-opened connections are closed and the error returned.
func New(ctx context.Context, size int, dial Dialer, log *slog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool: size must be positive, got %d", size)
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Pool{
		dial:  dial,
		log:   log,
		free:  make(chan int, size),
		slots: make([]*transport.Conn, size),
	}

	for i := 0; i < size; i++ {
		conn, err := dial(ctx)
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("pool: filling slot %d: %w", i, err)
		}
		p.slots[i] = conn
		p.free <- i
	}

	return p, nil
}

func (p *Pool) closeAll() {
	for _, c := range p.slots {
		if c != nil {
			c.Close()
		}
	}
}

// Lease is one checked-out connection. Callers must call Release
// exactly once, normally via defer immediately after a successful
// Acquire, so the slot returns to the pool on every exit path
// including a panic unwinding through the deferred call.
type Lease struct {
	pool *Pool
	slot int
	conn *transport.Conn
}

// Conn returns the leased connection.
func (l *Lease) Conn() *transport.Conn {
	return l.conn
}

// Acquire blocks until a connection is available, ctx is done, or the
// pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	select {
	case slot, ok := <-p.free:
		if !ok {
			return nil, ErrClosed
		}
		return &Lease{pool: p, slot: slot, conn: p.slots[slot]}, nil
	case <-ctx.Done():
		return nil, ErrAcquireTimeout
	}
}

// AcquireTimeout is a convenience wrapper around Acquire with a
// deadline derived from d.
func (p *Pool) AcquireTimeout(ctx context.Context, d time.Duration) (*Lease, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return p.Acquire(ctx)
}

// Release returns the lease's slot to the pool. If callErr is non-nil
// the connection is assumed poisoned by a failed RPC: it is closed and
// replaced by a freshly dialed, freshly handshaken connection before
// the slot is marked free again. A re-dial failure is logged and the
// slot is still released, holding the stale (closed) connection; the
// next Acquire's caller will see the failure on its own Call and can
// poison again, so the pool self-heals instead of wedging permanently.
func (l *Lease) Release(ctx context.Context, callErr error) {
	p := l.pool
	if callErr != nil {
		l.conn.Close()
		fresh, err := p.dial(ctx)
		if err != nil {
			p.log.Error("pool: re-dial after poisoned connection failed", "slot", l.slot, "error", err)
		} else {
			p.mu.Lock()
			p.slots[l.slot] = fresh
			p.mu.Unlock()
		}
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.free <- l.slot
}

// Close closes every connection and marks the pool unusable. Safe to
// call once; a second call is a no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.free)
	p.closeAll()
	return nil
}

// Size reports the pool's fixed capacity.
func (p *Pool) Size() int {
	return len(p.slots)
}
