// Package model owns the lifecycle of loaded embedding models: identifier
// validation, artifact staging, materialization, dimension discovery, and
// single-flight load coordination.
package model

import (
	"context"
	"time"

	"github.com/embedworks/embedgate/internal/runtime"
)

// Handle is a loaded model. Handles are immutable once returned by the
// loader; replacement or unload releases the underlying runtime.
type Handle struct {
	name     string
	dims     int
	loadedAt time.Time
	rt       runtime.Runtime
}

// Name returns the model identifier.
func (h *Handle) Name() string { return h.name }

// Dimensions returns the embedding dimension discovered at load time.
func (h *Handle) Dimensions() int { return h.dims }

// LoadedAt returns when the model finished loading.
func (h *Handle) LoadedAt() time.Time { return h.loadedAt }

// Encode delegates to the underlying runtime.
func (h *Handle) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return h.rt.Encode(ctx, texts)
}

func (h *Handle) close() error {
	return h.rt.Close()
}
