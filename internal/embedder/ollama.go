package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docsync/internal/docsync"
)

// Ollama embeds text with a local Ollama server.
type Ollama struct {
	client *http.Client
	host   string
	model  string
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllama creates an Ollama embedder. Host defaults to localhost:11434 and
// model to nomic-embed-text.
func NewOllama(host, model string, timeout time.Duration) *Ollama {
	if host == "" {
		host = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &Ollama{
		client: &http.Client{Timeout: timeout},
		host:   strings.TrimRight(host, "/"),
		model:  model,
	}
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaResponse
	err := postJSON(ctx, o.client, o.host+"/api/embeddings", nil, ollamaRequest{Model: o.model, Prompt: text}, &resp)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: %w", ErrEmptyEmbedding)
	}
	return resp.Embedding, nil
}

var _ docsync.Embedder = (*Ollama)(nil)
