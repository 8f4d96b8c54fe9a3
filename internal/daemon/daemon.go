package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Aman-CERP/fsindex/internal/config"
	"github.com/Aman-CERP/fsindex/internal/engine"
	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/logging"
	"github.com/Aman-CERP/fsindex/internal/term"
)

// Daemon owns an engine and serves it on a Unix socket.
type Daemon struct {
	cfg       Config
	engineCfg *config.Config
	engine    *engine.Engine
	logger    *slog.Logger
	pidFile   *PIDFile

	mu          sync.Mutex
	cancel      context.CancelFunc
	metricsAddr string
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithEngine serves an existing engine instead of building one on Start.
// The daemon closes it on exit.
func WithEngine(e *engine.Engine) Option {
	return func(d *Daemon) {
		d.engine = e
	}
}

// WithEngineConfig sets the configuration the engine is built from.
func WithEngineConfig(cfg *config.Config) Option {
	return func(d *Daemon) {
		d.engineCfg = cfg
	}
}

// WithLogger sets the daemon logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		d.logger = l
	}
}

// NewDaemon creates a daemon. Nothing is started until Start.
func NewDaemon(cfg Config, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	d := &Daemon{
		cfg:     cfg,
		pidFile: NewPIDFile(cfg.PIDPath),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.Component(d.logger, "daemon")
	return d, nil
}

// Start claims the PID file, builds the engine and serves until ctx is
// cancelled or a client calls shutdown. It returns ctx.Err() when stopped
// by ctx and nil when stopped by shutdown.
func (d *Daemon) Start(ctx context.Context) (err error) {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.pidFile.Claim(); err != nil {
		return fserrors.New(fserrors.ErrCodeDaemonUnavailable, "failed to claim PID file", err).
			WithSuggestion("Run 'fsindex daemon stop' first")
	}
	defer func() {
		if rerr := d.pidFile.Remove(); rerr != nil {
			d.logger.Warn("failed to remove PID file", slog.String("error", rerr.Error()))
		}
	}()

	if d.engine == nil {
		if d.engineCfg == nil {
			d.engineCfg = config.NewConfig()
		}
		e, err := engine.New(d.engineCfg, d.logger)
		if err != nil {
			return err
		}
		d.engine = e
	}
	defer func() {
		if cerr := d.engine.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	srv, err := NewServer(d.cfg.SocketPath, d.logger)
	if err != nil {
		return err
	}
	srv.SetHandler(d)
	srv.SetShutdownFunc(d.Shutdown)

	if d.cfg.MetricsAddr != "" {
		stopMetrics, err := d.serveMetrics()
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	d.logger.Info("daemon started", slog.String("socket", d.cfg.SocketPath))
	serveErr := srv.ListenAndServe(serveCtx)
	d.logger.Info("daemon stopping")

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

// serveMetrics exposes the engine's Prometheus registry on MetricsAddr.
func (d *Daemon) serveMetrics() (func(), error) {
	ln, err := net.Listen("tcp", d.cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics address %s: %w", d.cfg.MetricsAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.engine.Metrics().Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Warn("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	d.mu.Lock()
	d.metricsAddr = ln.Addr().String()
	d.mu.Unlock()
	d.logger.Info("metrics listening", slog.String("addr", d.metricsAddr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownGracePeriod)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-done
	}, nil
}

// MetricsAddr returns the address the metrics endpoint is bound to, or ""
// when it is not serving.
func (d *Daemon) MetricsAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metricsAddr
}

// Shutdown stops a running daemon. Safe to call at any time.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// HandleRegister registers each path in turn.
func (d *Daemon) HandleRegister(ctx context.Context, paths []string) []PathResult {
	out := make([]PathResult, 0, len(paths))
	for _, p := range paths {
		res := d.engine.Register(ctx, p)
		out = append(out, PathResult{
			Path:    res.Path,
			Code:    res.Code.String(),
			Message: res.Message(),
			Success: res.Succeeded(),
		})
	}
	return out
}

// HandleUnregister unregisters each path in turn.
func (d *Daemon) HandleUnregister(ctx context.Context, paths []string) []PathResult {
	out := make([]PathResult, 0, len(paths))
	for _, p := range paths {
		res := d.engine.Unregister(ctx, p)
		out = append(out, PathResult{
			Path:    res.Path,
			Code:    res.Code.String(),
			Message: res.Message(),
			Success: res.Succeeded(),
		})
	}
	return out
}

// HandleSearch runs one search.
func (d *Daemon) HandleSearch(ctx context.Context, t term.Term) ([]string, error) {
	return d.engine.Search(ctx, t)
}

// HandleCancel requests cancellation of the walk rooted at path.
func (d *Daemon) HandleCancel(path string) PathResult {
	res := d.engine.CancelIndexing(path)
	return PathResult{
		Path:    path,
		Code:    res.String(),
		Message: res.Message(path),
		Success: true,
	}
}

// HandleReset drops all engine state.
func (d *Daemon) HandleReset() {
	d.engine.ResetState()
}

// EngineStatus reports the engine status.
func (d *Daemon) EngineStatus() engine.Status {
	return d.engine.Status()
}
