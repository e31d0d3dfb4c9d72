package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown.
type ShutdownFunc func(context.Context) error

// ShutdownManager coordinates graceful shutdown. It waits for SIGINT or
// SIGTERM, drains the HTTP server if one was given, then runs every
// registered shutdown function concurrently under a shared deadline.
type ShutdownManager struct {
	log     *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []ShutdownFunc
}

// NewShutdownManager creates a manager. server may be nil when the caller
// registers the server drain as a shutdown function instead.
func NewShutdownManager(log *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		log:     log,
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc adds a function to run during shutdown. Functions
// run concurrently; registration order carries no meaning.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, fn)
}

// WaitForShutdown blocks until a termination signal arrives, then runs the
// shutdown sequence. It returns a non-nil error when the deadline was hit
// or any shutdown function failed.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	sm.log.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.log.WithError(err).Error("HTTP server shutdown failed")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	errCh := make(chan error, len(funcs))
	var wg sync.WaitGroup
	for _, fn := range funcs {
		wg.Add(1)
		go func(fn ShutdownFunc) {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				sm.log.WithError(err).Error("shutdown function failed")
				errCh <- err
			}
		}(fn)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.log.Warn("shutdown deadline reached before all resources were released")
		return fmt.Errorf("shutdown timed out after %s", sm.timeout)
	}

	close(errCh)
	failed := 0
	for range errCh {
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d failed resources", failed)
	}

	sm.log.Info("shutdown complete")
	return nil
}
