// Package embedding turns query text into vectors for the vector
// retrieval stage.
package embedding

import (
	"context"
)

// Provider produces embeddings. Implementations must be safe for
// concurrent use and honor ctx deadlines.
type Provider interface {
	// Embed returns the embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions is the vector width this provider produces.
	Dimensions() int
	// ModelName identifies the model, for cache keys and logs.
	ModelName() string
}
