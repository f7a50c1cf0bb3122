package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/embedworks/embedgate/internal/runtime"
)

// dimensionProbe is encoded once after load to discover the model's output
// dimension, mirroring the probe fallback of sentence-transformer stacks.
const dimensionProbe = "test"

// Registry materializes model handles. It owns the local model cache
// directory and, when configured, stages artifacts from an object store
// into it before constructing the runtime.
type Registry struct {
	factory   runtime.Factory
	artifacts *ArtifactStore
	cacheDir  string
	logger    *slog.Logger
}

// NewRegistry creates a registry; the cache directory is created if absent.
// artifacts may be nil when no object store is configured.
func NewRegistry(factory runtime.Factory, artifacts *ArtifactStore, cacheDir string, logger *slog.Logger) (*Registry, error) {
	if factory == nil {
		return nil, fmt.Errorf("registry: runtime factory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("registry: create cache dir %s: %w", cacheDir, err)
		}
	}
	return &Registry{
		factory:   factory,
		artifacts: artifacts,
		cacheDir:  cacheDir,
		logger:    logger,
	}, nil
}

// Materialize validates the identifier, stages artifacts if configured,
// constructs the runtime, and probes the embedding dimension with a single
// encode. The returned handle is ready for concurrent encodes.
func (r *Registry) Materialize(ctx context.Context, name string) (*Handle, error) {
	if err := runtime.ValidateModelName(name); err != nil {
		return nil, fmt.Errorf("invalid model name: %w", err)
	}

	if r.artifacts != nil {
		if err := r.artifacts.Stage(ctx, name, r.cacheDir); err != nil {
			return nil, err
		}
	}

	rt, err := r.factory.New(ctx, name)
	if err != nil {
		return nil, err
	}

	vectors, err := rt.Encode(ctx, []string{dimensionProbe})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		_ = rt.Close()
		return nil, fmt.Errorf("dimension probe returned %d vectors", len(vectors))
	}

	h := &Handle{
		name:     name,
		dims:     len(vectors[0]),
		loadedAt: time.Now(),
		rt:       rt,
	}
	r.logger.Info("model loaded",
		"model", name,
		"dimensions", h.dims,
	)
	return h, nil
}

// Release closes a handle's runtime. Safe on nil.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}
	if err := h.close(); err != nil {
		r.logger.Warn("failed to release model runtime",
			"model", h.Name(),
			"error", err,
		)
	}
}

// CacheDir returns the local model cache directory.
func (r *Registry) CacheDir() string { return r.cacheDir }
