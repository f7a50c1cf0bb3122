// Package encoder turns lists of texts into embedding vectors by batching
// them through a loaded model.
//
// Texts longer than the configured maximum sequence length are silently
// truncated before encoding; this is documented policy, not a defect. The
// number of truncated inputs is reported back so callers can surface it.
package encoder

import (
	"context"
	"fmt"

	"github.com/embedworks/embedgate/internal/tokenizer"
	svcerrors "github.com/embedworks/embedgate/pkg/errors"
)

// Model is the encode capability of a loaded model. The underlying
// architecture is opaque; only batch encoding and the discovered output
// dimension are visible here.
type Model interface {
	Name() string
	Dimensions() int
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Options control a single encode call.
type Options struct {
	// BatchSize is the maximum number of texts sent to the model at once.
	BatchSize int
	// MaxSequenceLength is the per-text token budget; longer texts truncate.
	MaxSequenceLength int
	// Normalize scales every output vector to unit L2 norm.
	Normalize bool
}

// Result carries the vectors for one encode call plus truncation metadata.
type Result struct {
	// Vectors is ordered one-to-one with the input texts.
	Vectors [][]float32
	// Truncated counts inputs shortened to the maximum sequence length.
	Truncated int
}

// Encode partitions texts into consecutive batches of at most
// opts.BatchSize, preserving input order, and encodes each batch with the
// model. Empty strings are valid inputs and produce the model's encoding of
// an empty string. Model failures surface as EncodingError and are not
// retried.
func Encode(ctx context.Context, m Model, texts []string, opts Options) (*Result, error) {
	if opts.BatchSize <= 0 {
		return nil, svcerrors.NewEncodingError(m.Name(), fmt.Sprintf("batch size must be positive, got %d", opts.BatchSize))
	}

	prepared := make([]string, len(texts))
	truncated := 0
	for i, text := range texts {
		cut, wasCut := tokenizer.Truncate(text, opts.MaxSequenceLength)
		prepared[i] = cut
		if wasCut {
			truncated++
		}
	}

	vectors := make([][]float32, 0, len(prepared))
	for start := 0; start < len(prepared); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(prepared))

		batch, err := m.Encode(ctx, prepared[start:end])
		if err != nil {
			return nil, svcerrors.NewEncodingError(m.Name(), fmt.Sprintf("encode batch starting at %d: %v", start, err))
		}
		if len(batch) != end-start {
			return nil, svcerrors.NewEncodingError(m.Name(), fmt.Sprintf("model returned %d vectors for %d texts", len(batch), end-start))
		}
		vectors = append(vectors, batch...)
	}

	dims := m.Dimensions()
	for i, v := range vectors {
		if dims > 0 && len(v) != dims {
			return nil, svcerrors.NewEncodingError(m.Name(), fmt.Sprintf("vector %d has %d dimensions, want %d", i, len(v), dims))
		}
		if opts.Normalize {
			NormalizeInPlace(v)
		}
	}

	return &Result{Vectors: vectors, Truncated: truncated}, nil
}
