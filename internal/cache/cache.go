// Package cache provides best-effort caching of computed embedding vectors.
// A miss or backend failure only costs a recompute; the service never fails
// a request because of the cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Cache stores one vector per (model, normalize, sequence limit, text) key.
type Cache interface {
	// Get returns the cached vector for key, or nil when absent.
	Get(ctx context.Context, key string) ([]float32, error)

	// Set stores the vector under key with the backend's default TTL.
	Set(ctx context.Context, key string, vector []float32) error

	// Close releases backend resources.
	Close() error
}

// Key derives the cache key for one input text. The model identifier, the
// normalize flag, and the effective maximum sequence length are all part of
// the key because each changes the output vector for identical text; the
// limit in particular can move under config hot reload, and a vector
// computed under the old truncation length must not be served for the new
// one.
func Key(model string, normalize bool, maxSequenceLength int, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%t\x00%d\x00", model, normalize, maxSequenceLength)
	h.Write([]byte(text))
	return "emb:" + hex.EncodeToString(h.Sum(nil))
}
