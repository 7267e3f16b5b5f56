package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	hooks   []func(context.Context) error
	reloads []func()

	done     chan struct{}
	doneOnce sync.Once
}

// NewHandler creates a shutdown handler whose hooks share timeout.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
}

// WithLogger sets the logger used to report signals and hook failures.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// OnReload registers a hook run on SIGHUP.
func (h *Handler) OnReload(hook func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads = append(h.reloads, hook)
}

// Wait blocks until SIGINT, SIGTERM or the end of ctx, then runs the
// shutdown hooks. The returned error joins every hook failure.
func (h *Handler) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

wait:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				h.logger.Info("reload requested")
				h.reload()
				continue
			}
			h.logger.Info("shutdown signal received", "signal", sig.String())
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	return h.Shutdown()
}

// Shutdown runs the shutdown hooks once. Later calls return nil.
func (h *Handler) Shutdown() error {
	var err error
	ran := false
	h.doneOnce.Do(func() {
		ran = true
		err = h.runHooks()
		close(h.done)
	})
	if !ran {
		return nil
	}
	return err
}

func (h *Handler) runHooks() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := append([]func(context.Context) error(nil), h.hooks...)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			h.logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) reload() {
	h.mu.Lock()
	reloads := append([]func(){}, h.reloads...)
	h.mu.Unlock()
	for _, fn := range reloads {
		fn()
	}
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
