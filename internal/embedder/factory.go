package embedder

import (
	"context"
	"fmt"

	"docsync/internal/awsconf"
	"docsync/internal/config"
	"docsync/internal/docsync"
)

// NewEmbedderFromConfig creates the configured embedder, wrapped in a cache
// when cache_size is positive.
func NewEmbedderFromConfig(ctx context.Context, cfg config.EmbedderConfig) (docsync.Embedder, error) {
	var e docsync.Embedder
	switch cfg.Type {
	case "bedrock":
		awsCfg, err := awsconf.Load(ctx, awsconf.Options{Region: cfg.Region, Profile: cfg.Profile})
		if err != nil {
			return nil, err
		}
		e = NewBedrock(awsCfg, cfg.Model, cfg.Dimension)
	case "ollama":
		e = NewOllama(cfg.Host, cfg.Model, cfg.Timeout.Duration)
	case "openai":
		o, err := NewOpenAI(cfg.Host, cfg.APIKey, cfg.Model, cfg.Dimension, cfg.Timeout.Duration)
		if err != nil {
			return nil, err
		}
		e = o
	case "gemini":
		g, err := NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Dimension)
		if err != nil {
			return nil, err
		}
		e = g
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s", cfg.Type)
	}

	if cfg.CacheSize <= 0 {
		return e, nil
	}
	cached, err := NewCached(e, cfg.Model, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return cached, nil
}
