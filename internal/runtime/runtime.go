// Package runtime abstracts the pretrained model capability behind a narrow
// encode interface. The service never inspects model internals; it only
// materializes a runtime for a model identifier and calls Encode on it.
package runtime

import (
	"context"
	"fmt"
	"strings"
)

// Runtime is a materialized model ready to encode text.
type Runtime interface {
	// Encode returns one vector per input text, in input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Close releases the model's resources. For remote runtimes this asks
	// the inference server to evict the model.
	Close() error
}

// Factory materializes runtimes for model identifiers. Materialization
// includes download-if-absent of the model into the runtime's cache.
type Factory interface {
	New(ctx context.Context, modelName string) (Runtime, error)
}

// ValidateModelName rejects identifiers the runtimes cannot handle before
// any network or disk work happens. Accepted characters follow the
// huggingface-style org/name convention plus tags.
func ValidateModelName(name string) error {
	if name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if len(name) > 256 {
		return fmt.Errorf("model name exceeds 256 characters")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case strings.ContainsRune("._/:-", r):
		default:
			return fmt.Errorf("model name contains invalid character %q", r)
		}
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("model name cannot start or end with a slash")
	}
	// Model names become paths under the cache directory.
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return fmt.Errorf("model name cannot contain a parent directory segment")
		}
	}
	return nil
}
