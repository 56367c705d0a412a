// Package embeddings wraps the external text/image analysis services the
// diagnostic core depends on: embedding text for tutorial search, and
// analyzing user input into symptom tags. The core never fabricates these
// results; when a provider is unreachable the error propagates as a
// retryable failure.
package embeddings

import (
	"context"
	"errors"
)

// ErrUnavailable wraps provider failures so callers can surface them as
// retryable external-service errors.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}
