package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docsync/internal/docsync"
)

// OpenAI embeds text with the OpenAI embeddings API or a compatible server.
type OpenAI struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	dimension int
}

type openaiRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewOpenAI creates an OpenAI embedder. A non-zero dimension is sent for
// models that support shortened vectors.
func NewOpenAI(baseURL, apiKey, model string, dimension int, timeout time.Duration) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAI{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
	}, nil
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openaiRequest{Model: o.model, Input: []string{text}}
	if o.dimension > 0 && strings.HasPrefix(o.model, "text-embedding-3") {
		req.Dimensions = &o.dimension
	}
	header := http.Header{"Authorization": {"Bearer " + o.apiKey}}

	var resp openaiResponse
	if err := postJSON(ctx, o.client, o.baseURL+"/embeddings", header, req, &resp); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai: %w", ErrEmptyEmbedding)
	}
	return resp.Data[0].Embedding, nil
}

var _ docsync.Embedder = (*OpenAI)(nil)
