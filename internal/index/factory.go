// Package index provides the vector index backends: OpenSearch (managed or
// serverless), an embedded chromem index, and Qdrant.
package index

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/opensearchserverless"
	"github.com/opensearch-project/opensearch-go/v4/signer"
	requestsigner "github.com/opensearch-project/opensearch-go/v4/signer/awsv2"

	"docsync/internal/awsconf"
	"docsync/internal/config"
	"docsync/internal/docsync"
)

// NewIndexFromConfig creates the configured vector index. Backends that need
// a readiness check also implement Preparer.
func NewIndexFromConfig(ctx context.Context, cfg config.IndexConfig, logger docsync.Logger) (docsync.VectorIndex, error) {
	var (
		idx docsync.VectorIndex
		err error
	)
	switch cfg.Type {
	case "opensearch":
		idx, err = newOpenSearchFromConfig(ctx, cfg, logger)
	case "chromem":
		idx, err = NewChromem(cfg.Chromem.PersistPath, cfg.Chromem.Compress, cfg.Name)
	case "qdrant":
		idx, err = NewQdrant(cfg.Qdrant, cfg.Name)
	default:
		return nil, fmt.Errorf("unsupported index type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func newOpenSearchFromConfig(ctx context.Context, cfg config.IndexConfig, logger docsync.Logger) (*OpenSearch, error) {
	search := cfg.OpenSearch
	awsCfg, err := awsconf.Load(ctx, awsconf.Options{Region: search.Region, Profile: search.Profile})
	if err != nil {
		return nil, err
	}

	sign, err := NewSigner(awsCfg, search.Serverless)
	if err != nil {
		return nil, err
	}

	opts := OpenSearchOptions{
		Endpoint:    search.Endpoint,
		Index:       cfg.Name,
		Dimension:   search.Dimension,
		CreateIndex: search.CreateIndex,
		ReadyWait:   search.ReadyWait.Duration,
		Signer:      sign,
		Logger:      logger,
	}
	if search.Serverless && search.Collection != "" {
		opts.Resolver = NewCollection(opensearchserverless.NewFromConfig(awsCfg), search.Collection, awsCfg.Region)
	}
	if opts.Endpoint == "" && opts.Resolver == nil {
		return nil, fmt.Errorf("opensearch needs an endpoint or a serverless collection")
	}
	return NewOpenSearch(opts), nil
}

// NewSigner returns a SigV4 request signer for a managed domain or, when
// serverless is set, an OpenSearch Serverless collection.
func NewSigner(awsCfg aws.Config, serverless bool) (signer.Signer, error) {
	service := ServiceES
	if serverless {
		service = ServiceAOSS
	}
	sign, err := requestsigner.NewSignerWithService(awsCfg, service)
	if err != nil {
		return nil, fmt.Errorf("creating %s request signer: %w", service, err)
	}
	return sign, nil
}
