package rpcserver

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/boxrun/boxd/internal/logging"
	"github.com/boxrun/boxd/internal/store"
	"github.com/boxrun/boxd/internal/transport"
)

// Server accepts backend connections, completes the handshake, and
// services the per-connection command loop against a Store.
type Server struct {
	addr   string
	priv   *rsa.PrivateKey
	store  store.Store
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a Server bound to addr that decrypts handshakes with priv
// and dispatches commands onto st.
func New(addr string, priv *rsa.PrivateKey, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, priv: priv, store: st, logger: logger}
}

// Run listens on s.addr and serves connections until ctx is cancelled
// or Close is called.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("backend rpc server listening", slog.String("address", s.addr))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return ctx.Err()
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, raw)
		}()
	}
}

// Close stops accepting new connections; in-flight ones run to
// completion.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) serveConn(ctx context.Context, raw net.Conn) {
	defer raw.Close()

	aesKey, err := transport.ServerHandshake(raw, s.priv)
	if err != nil {
		s.logger.Warn("backend handshake failed", slog.String("remote", raw.RemoteAddr().String()), slog.String("error", err.Error()))
		return
	}

	conn := transport.NewConn(raw, aesKey)
	logger := s.logger.With(slog.String("remote", raw.RemoteAddr().String()))
	ctx = logging.NewContext(ctx, logger)

	for {
		reqBytes, err := conn.RecvSecure()
		if err != nil {
			if !errors.Is(err, transport.ErrShortRead) {
				logger.Warn("backend connection read failed", slog.String("error", err.Error()))
			}
			return
		}

		req, err := transport.DecodeRequest(reqBytes)
		if err != nil {
			logger.Warn("backend request decode failed", slog.String("error", err.Error()))
			return
		}

		resp := dispatch(ctx, s.store, req)

		respBytes, err := transport.EncodeResponse(resp)
		if err != nil {
			logger.Error("backend response encode failed", slog.String("error", err.Error()))
			return
		}
		if err := conn.SendSecure(respBytes); err != nil {
			logger.Warn("backend connection write failed", slog.String("error", err.Error()))
			return
		}
	}
}
