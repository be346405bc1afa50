package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusServer exposes prometheus.DefaultGatherer over HTTP at path.
type PrometheusServer struct {
	srv *http.Server
}

// NewPrometheusServer builds a PrometheusServer bound to addr.
func NewPrometheusServer(addr, path string) *PrometheusServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &PrometheusServer{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start serves metrics until ctx is cancelled.
func (s *PrometheusServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.srv.Shutdown(context.Background())
	}()

	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

// Shutdown gracefully stops the metrics server.
func (s *PrometheusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
