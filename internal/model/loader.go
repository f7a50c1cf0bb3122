package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader manages the single active model handle. Concurrent loads of the
// same identifier coalesce into one materialization; every caller receives
// the same handle or the same failure. Loading a different identifier while
// one is active replaces it and releases the previous handle.
type Loader struct {
	registry *Registry
	logger   *slog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	active *Handle
}

// NewLoader creates a loader over the registry.
func NewLoader(registry *Registry, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{registry: registry, logger: logger}
}

// Active returns the current handle, or nil when nothing is loaded.
func (l *Loader) Active() *Handle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Load returns the active handle when it already matches name (cache hit),
// otherwise materializes the model at most once across concurrent callers
// and installs it as the active handle.
func (l *Loader) Load(ctx context.Context, name string) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is required")
	}

	if h := l.Active(); h != nil && h.Name() == name {
		return h, nil
	}

	v, err, shared := l.group.Do(name, func() (any, error) {
		// A concurrent caller may have installed the model while this
		// call waited on the flight group.
		if h := l.Active(); h != nil && h.Name() == name {
			return h, nil
		}

		h, err := l.registry.Materialize(ctx, name)
		if err != nil {
			return nil, err
		}
		l.install(h)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		l.logger.Debug("load coalesced with in-flight load", "model", name)
	}
	return v.(*Handle), nil
}

// Unload releases the active handle. Idempotent: unloading with nothing
// loaded is a no-op.
func (l *Loader) Unload() {
	l.mu.Lock()
	prev := l.active
	l.active = nil
	l.mu.Unlock()

	if prev != nil {
		l.logger.Info("model unloaded", "model", prev.Name())
		l.registry.Release(prev)
	}
}

func (l *Loader) install(h *Handle) {
	l.mu.Lock()
	prev := l.active
	l.active = h
	l.mu.Unlock()

	// The previous runtime is released immediately; single-active-model
	// keeps the memory ceiling to one resident model. In-flight encodes
	// against the old handle surface as encoding errors.
	if prev != nil && prev != h {
		l.logger.Info("model replaced",
			"previous", prev.Name(),
			"model", h.Name(),
		)
		l.registry.Release(prev)
	}
}
