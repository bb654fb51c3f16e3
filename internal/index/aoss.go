package index

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/opensearchserverless"
	"github.com/aws/aws-sdk-go-v2/service/opensearchserverless/types"
)

// CollectionAPI is the part of the OpenSearch Serverless control plane used
// to look up collections.
type CollectionAPI interface {
	BatchGetCollection(ctx context.Context, params *opensearchserverless.BatchGetCollectionInput, optFns ...func(*opensearchserverless.Options)) (*opensearchserverless.BatchGetCollectionOutput, error)
}

// Collection validates an OpenSearch Serverless collection and resolves its
// data-plane endpoint.
type Collection struct {
	api    CollectionAPI
	name   string
	region string
}

func NewCollection(api CollectionAPI, name, region string) *Collection {
	return &Collection{api: api, name: name, region: region}
}

// Endpoint returns the collection endpoint after checking that the collection
// exists, is ACTIVE and is a VECTORSEARCH collection.
func (c *Collection) Endpoint(ctx context.Context) (string, error) {
	out, err := c.api.BatchGetCollection(ctx, &opensearchserverless.BatchGetCollectionInput{
		Names: []string{c.name},
	})
	if err != nil {
		return "", fmt.Errorf("looking up collection %q: %w", c.name, err)
	}
	if len(out.CollectionErrorDetails) > 0 {
		d := out.CollectionErrorDetails[0]
		return "", fmt.Errorf("collection %q: %s: %s", c.name, aws.ToString(d.ErrorCode), aws.ToString(d.ErrorMessage))
	}
	if len(out.CollectionDetails) == 0 {
		return "", fmt.Errorf("collection %q not found", c.name)
	}

	detail := out.CollectionDetails[0]
	if detail.Status != types.CollectionStatusActive {
		return "", fmt.Errorf("collection %q is %s, want %s", c.name, detail.Status, types.CollectionStatusActive)
	}
	if detail.Type != types.CollectionTypeVectorsearch {
		return "", fmt.Errorf("collection %q has type %s, want %s", c.name, detail.Type, types.CollectionTypeVectorsearch)
	}

	if endpoint := aws.ToString(detail.CollectionEndpoint); endpoint != "" {
		return endpoint, nil
	}
	id := aws.ToString(detail.Id)
	if id == "" {
		return "", fmt.Errorf("collection %q has no id", c.name)
	}
	return fmt.Sprintf("https://%s.%s.aoss.amazonaws.com", id, c.region), nil
}

var _ EndpointResolver = (*Collection)(nil)
