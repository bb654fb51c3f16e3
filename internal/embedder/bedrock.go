package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"docsync/internal/docsync"
)

// modelInvoker is the part of the Bedrock runtime client used for embeddings.
type modelInvoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// modelCatalog is the part of the Bedrock control client used for validation.
type modelCatalog interface {
	GetFoundationModel(ctx context.Context, in *bedrock.GetFoundationModelInput, optFns ...func(*bedrock.Options)) (*bedrock.GetFoundationModelOutput, error)
}

// Bedrock embeds text with an Amazon Bedrock embedding model. Titan and
// Cohere request formats are supported.
type Bedrock struct {
	runtime   modelInvoker
	catalog   modelCatalog
	model     string
	dimension int
}

// NewBedrock creates a Bedrock embedder from an AWS config.
func NewBedrock(cfg aws.Config, model string, dimension int) *Bedrock {
	return newBedrock(bedrockruntime.NewFromConfig(cfg), bedrock.NewFromConfig(cfg), model, dimension)
}

func newBedrock(runtime modelInvoker, catalog modelCatalog, model string, dimension int) *Bedrock {
	return &Bedrock{runtime: runtime, catalog: catalog, model: model, dimension: dimension}
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

type cohereRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type cohereResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (b *Bedrock) Embed(ctx context.Context, text string) ([]float32, error) {
	cohere := strings.HasPrefix(b.model, "cohere.")

	var body any = titanRequest{InputText: text}
	if cohere {
		body = cohereRequest{Texts: []string{text}, InputType: "search_document"}
	} else if b.dimension > 0 && strings.Contains(b.model, "titan-embed-text-v2") {
		body = titanRequest{InputText: text, Dimensions: b.dimension}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding bedrock request: %w", err)
	}

	out, err := b.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("invoking %s: %w", b.model, err)
	}

	var vector []float32
	if cohere {
		var resp cohereResponse
		if err := json.Unmarshal(out.Body, &resp); err != nil {
			return nil, fmt.Errorf("decoding bedrock response: %w", err)
		}
		if len(resp.Embeddings) > 0 {
			vector = resp.Embeddings[0]
		}
	} else {
		var resp titanResponse
		if err := json.Unmarshal(out.Body, &resp); err != nil {
			return nil, fmt.Errorf("decoding bedrock response: %w", err)
		}
		vector = resp.Embedding
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("bedrock %s: %w", b.model, ErrEmptyEmbedding)
	}
	return vector, nil
}

// Validate checks that the model exists in the configured region.
func (b *Bedrock) Validate(ctx context.Context) error {
	if _, err := b.catalog.GetFoundationModel(ctx, &bedrock.GetFoundationModelInput{
		ModelIdentifier: aws.String(b.model),
	}); err != nil {
		return fmt.Errorf("embedding model %s not found: %w", b.model, err)
	}
	return nil
}

var (
	_ docsync.Embedder = (*Bedrock)(nil)
	_ Validator        = (*Bedrock)(nil)
)
