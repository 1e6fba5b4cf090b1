// Package lifecycle coordinates graceful shutdown for the binaries.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultHookTimeout = 5 * time.Second

// Hook is one shutdown step. Each hook runs with its own timeout so a stuck
// dependency cannot hang process exit.
type Hook struct {
	Name    string
	Timeout time.Duration
	Handler func(context.Context) error
}

// Hooks is a registry of shutdown steps executed in reverse registration
// order, mirroring defer semantics: what was opened last closes first.
// Safe for concurrent registration.
type Hooks struct {
	mu     sync.Mutex
	logger *zap.Logger
	hooks  []Hook
}

// NewHooks creates an empty registry.
func NewHooks(logger *zap.Logger) *Hooks {
	return &Hooks{logger: logger}
}

// Add registers a handler under name with the default timeout.
func (h *Hooks) Add(name string, handler func(context.Context) error) {
	h.AddHook(Hook{Name: name, Handler: handler})
}

// AddHook registers a fully specified hook. A zero timeout gets the default.
func (h *Hooks) AddHook(hook Hook) {
	if hook.Timeout == 0 {
		hook.Timeout = defaultHookTimeout
	}

	h.mu.Lock()
	h.hooks = append(h.hooks, hook)
	h.mu.Unlock()

	h.logger.Debug("registered shutdown hook",
		zap.String("name", hook.Name),
		zap.Duration("timeout", hook.Timeout),
	)
}

// Run executes every hook in reverse registration order. A failing or
// timed-out hook is logged and the remaining hooks still run; the first
// error is returned.
func (h *Hooks) Run(ctx context.Context) error {
	h.mu.Lock()
	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	if len(hooks) == 0 {
		return nil
	}

	h.logger.Info("running shutdown hooks", zap.Int("count", len(hooks)))

	var firstErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		if err := h.runHook(ctx, hook); err != nil {
			h.logger.Error("shutdown hook failed",
				zap.String("name", hook.Name),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		h.logger.Debug("shutdown hook completed", zap.String("name", hook.Name))
	}
	return firstErr
}

// runHook executes a single hook with its timeout, recovering panics.
func (h *Hooks) runHook(ctx context.Context, hook Hook) error {
	hookCtx, cancel := context.WithTimeout(ctx, hook.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("hook panicked: %v", r)
			}
		}()
		done <- hook.Handler(hookCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("hook %s failed: %w", hook.Name, err)
		}
		return nil
	case <-hookCtx.Done():
		return fmt.Errorf("hook %s timed out after %v", hook.Name, hook.Timeout)
	}
}

// LogFlushHook returns a hook that flushes the logger's buffer.
// Register it first so it runs last, after everything else has logged.
func LogFlushHook(logger *zap.Logger) Hook {
	return Hook{
		Name:    "log_flush",
		Timeout: 2 * time.Second,
		Handler: func(context.Context) error {
			err := logger.Sync()
			// Syncing stderr/stdout fails on some platforms; nothing is lost.
			if err != nil && (strings.Contains(err.Error(), "/dev/stderr") ||
				strings.Contains(err.Error(), "/dev/stdout")) {
				return nil
			}
			return err
		},
	}
}
