// Package embedding provides the pluggable embedding-vector contract used
// by the optional hybrid retrieval path (spec §4.G step 4, §9 Open
// Question "hybrid retrieval is optional; the ACB schema is identical
// either way").
package embedding

import "context"

// Provider turns text into a fixed-dimension embedding vector. Dimension
// reports the vector length a given provider produces, so callers can size
// storage/index structures without embedding a probe text first.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
