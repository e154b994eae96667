package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// maxBatchSize is the maximum number of texts GenAI accepts in a single
// EmbedContent batch request; larger batches are chunked sequentially.
const maxBatchSize = 100

const defaultDimension = 768

// GenAIProvider generates embeddings via Google's Gemini API.
type GenAIProvider struct {
	client    *genai.Client
	model     string
	taskType  string
	dimension int32
}

// NewGenAIProvider builds a GenAIProvider. model defaults to
// "gemini-embedding-001" and taskType to "SEMANTIC_SIMILARITY" when empty.
func NewGenAIProvider(ctx context.Context, apiKey, model, taskType string, dimension int32) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai embedding provider: api key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}
	if dimension <= 0 {
		dimension = defaultDimension
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIProvider{client: client, model: model, taskType: taskType, dimension: dimension}, nil
}

func (p *GenAIProvider) Dimension() int { return int(p.dimension) }

// Embed generates an embedding for a single chunk of text.
func (p *GenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("genai embed: no embeddings returned")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunking into
// maxBatchSize-sized requests and issuing them sequentially.
func (p *GenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := p.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (p *GenAIProvider) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &p.dimension,
	})
	if err != nil {
		slog.Error("genai embed request failed", "model", p.model, "batch_size", len(texts), "error", err)
		return nil, fmt.Errorf("genai embed: %w", err)
	}

	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
