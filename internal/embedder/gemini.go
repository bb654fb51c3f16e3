package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"docsync/internal/docsync"
)

// Gemini embeds text with the Gemini API.
type Gemini struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGemini creates a Gemini embedder. Model defaults to text-embedding-004.
func NewGemini(ctx context.Context, apiKey, model string, dimension int) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for Gemini embedder")
	}
	if model == "" {
		model = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, dimension: dimension}, nil
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	if g.dimension > 0 {
		dim := int32(g.dimension)
		cfg.OutputDimensionality = &dim
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini: %w", ErrEmptyEmbedding)
	}
	return resp.Embeddings[0].Values, nil
}

// Validate checks that the model exists.
func (g *Gemini) Validate(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return fmt.Errorf("embedding model %s not found: %w", g.model, err)
	}
	return nil
}

var (
	_ docsync.Embedder = (*Gemini)(nil)
	_ Validator        = (*Gemini)(nil)
)
