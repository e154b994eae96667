package embedding

import "context"

// NoopProvider is the default embedding provider: it produces no vectors,
// so the Retrieval component falls back to lexical-only ranking. Wiring a
// real Provider (e.g. GenAIProvider) is strictly additive — the ACB schema
// is identical either way (spec §9).
type NoopProvider struct{}

func (NoopProvider) Embed(context.Context, string) ([]float32, error)            { return nil, nil }
func (NoopProvider) EmbedBatch(context.Context, []string) ([][]float32, error)    { return nil, nil }
func (NoopProvider) Dimension() int                                              { return 0 }
