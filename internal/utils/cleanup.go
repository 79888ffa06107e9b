package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rpsarena/client/internal/logger"
)

// CleanupFunc represents a cleanup function
type CleanupFunc func() error

type cleanup struct {
	name string
	fn   CleanupFunc
}

// ResourceManager releases resources on shutdown in the reverse order they
// were acquired.
type ResourceManager struct {
	mu       sync.Mutex
	cleanups []cleanup
	done     bool
	log      *logger.Logger
}

// NewResourceManager creates a new resource manager
func NewResourceManager() *ResourceManager {
	return &ResourceManager{log: logger.Default().With("shutdown")}
}

// AddCleanupFunc adds a cleanup function to be executed during shutdown
func (rm *ResourceManager) AddCleanupFunc(name string, fn CleanupFunc) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.cleanups = append(rm.cleanups, cleanup{name: name, fn: fn})
}

// Cleanup runs every registered function once, newest first, and joins
// their errors. Later calls are no-ops.
func (rm *ResourceManager) Cleanup() error {
	rm.mu.Lock()
	if rm.done {
		rm.mu.Unlock()
		return nil
	}
	rm.done = true
	cleanups := rm.cleanups
	rm.cleanups = nil
	rm.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]
		if err := c.fn(); err != nil {
			rm.log.Warn("cleanup error", logger.Fields{"resource": c.name, "error": err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// HandleGracefulShutdown returns a context that is cancelled on SIGINT or
// SIGTERM. The caller runs Cleanup once it observes cancellation.
func (rm *ResourceManager) HandleGracefulShutdown(ctx context.Context) (context.Context, context.CancelFunc) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCtx.Done()
		if ctx.Err() == nil {
			rm.log.Info("shutdown signal received, cleaning up")
		}
	}()
	return sigCtx, stop
}
