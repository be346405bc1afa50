package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/boxrun/boxd/internal/config"
	"github.com/boxrun/boxd/internal/gateway"
	"github.com/boxrun/boxd/internal/logging"
	"github.com/boxrun/boxd/internal/metrics"
	"github.com/boxrun/boxd/internal/pool"
	"github.com/boxrun/boxd/internal/sandbox"
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

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	pub, err := transport.LoadPublicKey(filepath.Join(cfg.TrustDir, "public_key.pem"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading public key (run boxd-keygen first): %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connPool, err := pool.New(ctx, cfg.Pool.Size, pool.DialerWithKey(cfg.Pool.BackendAddr, pub), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error connecting to backend: %v\n", err)
		os.Exit(1)
	}
	defer connPool.Close()

	supervisor := sandbox.NewSupervisor(sandbox.DockerRunner{}, cfg.Sandbox, logger, collector)

	gw := gateway.New(cfg, connPool, supervisor, logger, collector)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path)
		go func() {
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics server started", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	logger.Info("starting boxd gateway", "address", cfg.Gateway.Address, "backend", cfg.Pool.BackendAddr)
	if err := gw.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("boxd gateway stopped")
}
