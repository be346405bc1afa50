package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/boxrun/boxd/internal/config"
	"github.com/boxrun/boxd/internal/logging"
	"github.com/boxrun/boxd/internal/metrics"
	"github.com/boxrun/boxd/internal/pool"
	"github.com/boxrun/boxd/internal/sandbox"
)

// shutdownGrace bounds how long Run waits for the HTTP server to drain
// in-flight upgrades on context cancellation.
const shutdownGrace = 5 * time.Second

// Gateway is the client-facing session server (component A): one
// goroutine per connection, a sync.Mutex-guarded Session with an
// in-flight Execution tracked by the connection loop itself.
type Gateway struct {
	cfg        config.Config
	logger     *slog.Logger
	metrics    metrics.Collector
	pool       *pool.Pool
	supervisor *sandbox.Supervisor

	httpServer *http.Server
	limiter    *sessionLimiter

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a Gateway. logger/collector may be nil, installing
// slog.Default / metrics.NoopCollector.
func New(cfg config.Config, p *pool.Pool, sup *sandbox.Supervisor, logger *slog.Logger, collector metrics.Collector) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	return &Gateway{
		cfg:        cfg,
		logger:     logger,
		metrics:    collector,
		pool:       p,
		supervisor: sup,
		limiter:    newSessionLimiter(cfg.Gateway.MaxConnections),
		sessions:   make(map[string]*Session),
	}
}

// Run listens on cfg.Gateway.Address until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleUpgrade)
	g.httpServer = &http.Server{Addr: g.cfg.Gateway.Address, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return g.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Close shuts the gateway down immediately, without waiting for
// in-flight sessions to drain.
func (g *Gateway) Close() error {
	if g.httpServer == nil {
		return nil
	}
	return g.httpServer.Close()
}

// SessionCount reports the number of live sessions, for diagnostics.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Gateway) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !g.limiter.tryAcquire() {
		http.Error(w, "too many concurrent sessions", http.StatusServiceUnavailable)
		return
	}
	defer g.limiter.release()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sess := newSession()
	g.mu.Lock()
	g.sessions[sess.ID] = sess
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.sessions, sess.ID)
		g.mu.Unlock()
	}()

	g.metrics.ConnectionOpened()
	defer g.metrics.ConnectionClosed()

	ctx := logging.NewContext(r.Context(), g.logger.With(slog.String("session_id", sess.ID)))
	g.serveSession(ctx, conn, sess)
}

// serveSession runs one session's message loop until the client
// disconnects. Exactly one Execution may be in flight at a time; while
// one runs, the loop stops dispatching ordinary codes and instead
// forwards INPR frames to it, enforcing a single-flight contract.
func (g *Gateway) serveSession(ctx context.Context, conn *websocket.Conn, sess *Session) {
	logger := logging.FromContext(ctx)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	var writeMu sync.Mutex
	writeFrame := func(f Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.Write(ctx, websocket.MessageText, []byte(f.String()))
	}

	var execMu sync.Mutex
	var active *execStream
	var activeCancel context.CancelFunc

	logger.Info("gateway session connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			execMu.Lock()
			if activeCancel != nil {
				activeCancel()
			}
			execMu.Unlock()
			logger.Info("session disconnected", slog.String("error", err.Error()))
			return
		}

		frame, err := ParseFrame(string(data))
		if err != nil {
			_ = writeFrame(errFrame(codeGeneric))
			continue
		}

		if frame.Code == "OUTT" {
			sess.logout()
			logger.Info("session logged out")
			return
		}

		execMu.Lock()
		stream := active
		execMu.Unlock()

		if stream != nil {
			if frame.Code != "INPR" {
				_ = writeFrame(errFrame(codeGeneric))
				continue
			}
			arg, err := frame.Arg(0)
			if err != nil {
				_ = writeFrame(errFrame(codeGeneric))
				continue
			}
			line, err := decodeB64(arg)
			if err != nil {
				_ = writeFrame(errFrame(codeGeneric))
				continue
			}
			if !stream.deliverInput(string(line)) {
				_ = writeFrame(errFrame(codeGeneric))
			}
			continue
		}

		if frame.Code == "EXEC" || frame.Code == "RUNF" {
			if !sess.isAuthenticated() {
				_ = writeFrame(errFrame(codeNotAuthenticated))
				continue
			}

			execCtx, execCancel := context.WithCancel(ctx)
			s := newExecStream(writeFrame)

			execMu.Lock()
			active = s
			activeCancel = execCancel
			execMu.Unlock()

			g.runExecution(execCtx, sess, frame, s, writeFrame, func() {
				execCancel()
				execMu.Lock()
				active = nil
				activeCancel = nil
				execMu.Unlock()
			})
			continue
		}

		reply := g.dispatch(ctx, sess, frame)
		if err := writeFrame(reply); err != nil {
			logger.Info("write failed, closing session", slog.String("error", err.Error()))
			return
		}
	}
}

// runExecution validates and starts one EXEC/RUNF request in its own
// goroutine; onDone runs once the sandbox execution finishes and clears
// the session's in-flight state.
func (g *Gateway) runExecution(ctx context.Context, sess *Session, frame Frame, sink sandbox.Sink, writeFrame func(Frame) error, onDone func()) {
	opts := sandbox.StartOptions{Sink: sink}

	switch frame.Code {
	case "EXEC":
		arg, err := frame.Arg(0)
		if err != nil {
			onDone()
			_ = writeFrame(errFrame(codeGeneric))
			return
		}
		code, err := decodeB64(arg)
		if err != nil {
			onDone()
			_ = writeFrame(errFrame(codeGeneric))
			return
		}
		opts.Mode = sandbox.ModeInline
		opts.InlineCode = code
		g.metrics.CommandProcessed("EXEC")

	case "RUNF":
		path, err := frame.Arg(0)
		if err != nil {
			onDone()
			_ = writeFrame(errFrame(codeGeneric))
			return
		}
		userFS := sess.UserFS()
		if _, err := userFS.Tree().Find(path); err != nil {
			onDone()
			_ = writeFrame(errFrame(codeNotFound))
			return
		}
		opts.Mode = sandbox.ModeStored
		opts.StoredPath = path
		opts.UserDir = userFS.Root()
		g.metrics.CommandProcessed("RUNF")
	}

	go func() {
		defer onDone()
		code, err := g.supervisor.Execute(ctx, opts)
		if err != nil {
			g.logger.Warn("execution ended with error", slog.String("error", err.Error()))
		}
		_ = writeFrame(NewFrame("DONE", strconv.Itoa(code)))
	}()
}
