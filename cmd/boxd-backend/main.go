package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/boxrun/boxd/internal/config"
	"github.com/boxrun/boxd/internal/identity"
	"github.com/boxrun/boxd/internal/logging"
	"github.com/boxrun/boxd/internal/rpcserver"
	"github.com/boxrun/boxd/internal/store"
	"github.com/boxrun/boxd/internal/transport"
)

func main() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	priv, err := transport.LoadPrivateKey(filepath.Join(cfg.TrustDir, "private_key.pem"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading private key (run boxd-keygen first): %v\n", err)
		os.Exit(1)
	}

	pepper, err := resolvePepper(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error resolving pepper: %v\n", err)
		os.Exit(1)
	}

	st := store.NewMemoryStore(identity.HMACHasher{}, pepper)
	srv := rpcserver.New(cfg.Backend.Address, priv, st, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting boxd-backend", "address", cfg.Backend.Address)
	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("boxd-backend stopped")
}

// resolvePepper loads the process-wide password pepper: PepperFile takes
// precedence over BOXD_PEPPER, and a random pepper is generated as a
// last resort since MemoryStore's data doesn't outlive the process
// anyway. Either loaded form is base64-encoded at rest.
func resolvePepper(cfg config.Config) ([]byte, error) {
	if cfg.PepperFile != "" {
		raw, err := os.ReadFile(cfg.PepperFile)
		if err != nil {
			return nil, fmt.Errorf("reading pepper file: %w", err)
		}
		return base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	}
	if v := os.Getenv("BOXD_PEPPER"); v != "" {
		return base64.StdEncoding.DecodeString(strings.TrimSpace(v))
	}
	pepper := make([]byte, 32)
	if _, err := rand.Read(pepper); err != nil {
		return nil, fmt.Errorf("generating random pepper: %w", err)
	}
	return pepper, nil
}
