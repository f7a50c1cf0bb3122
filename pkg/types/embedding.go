// Package types defines the wire types for the embedding service API.
package types

import "fmt"

// EmbeddingRequest is the body of POST /embeddings.
type EmbeddingRequest struct {
	// Texts is the ordered list of input texts to embed.
	Texts []string `json:"texts"`

	// ModelName optionally overrides the active model. When set to a model
	// other than the active one, the request triggers a synchronous model
	// switch; the first request against a new model is slower.
	ModelName string `json:"model_name,omitempty"`

	// Normalize scales each output vector to unit L2 norm. Defaults to true;
	// use a pointer so an absent field is distinguishable from false.
	Normalize *bool `json:"normalize,omitempty"`

	// BatchSize optionally overrides the configured batch size, bounded by
	// the configured maximum.
	BatchSize int `json:"batch_size,omitempty"`
}

// WantNormalize resolves the normalize flag with its default of true.
func (r *EmbeddingRequest) WantNormalize() bool {
	if r.Normalize == nil {
		return true
	}
	return *r.Normalize
}

// Validate checks the request against the protocol invariants.
func (r *EmbeddingRequest) Validate() error {
	if len(r.Texts) == 0 {
		return fmt.Errorf("texts cannot be empty")
	}
	if r.BatchSize < 0 {
		return fmt.Errorf("batch_size must be positive, got %d", r.BatchSize)
	}
	return nil
}

// EmbeddingResponse is the body returned by POST /embeddings.
// Embeddings are ordered one-to-one with the request texts.
type EmbeddingResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	ModelName  string      `json:"model_name"`
	Dimensions int         `json:"dimensions"`
	// ProcessingTime is the wall-clock encode duration in seconds.
	ProcessingTime float64 `json:"processing_time"`
	TotalTexts     int     `json:"total_texts"`
	// TruncatedTexts counts inputs that were silently truncated to the
	// maximum sequence length before encoding.
	TruncatedTexts int `json:"truncated_texts"`
}

// ModelInfo is the body returned by GET /model/info.
type ModelInfo struct {
	ModelName           string `json:"model_name"`
	ModelType           string `json:"model_type"`
	MaxSequenceLength   int    `json:"max_sequence_length"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	IsLoaded            bool   `json:"is_loaded"`
	State               string `json:"state"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status      string  `json:"status"` // healthy, degraded, unhealthy
	Version     string  `json:"version"`
	ModelLoaded bool    `json:"model_loaded"`
	ModelName   string  `json:"model_name,omitempty"`
	Dimensions  int     `json:"dimensions,omitempty"`
	Uptime      float64 `json:"uptime"`
	State       string  `json:"state"`
}

// Health status values reported by GET /health.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)
