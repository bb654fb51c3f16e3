package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v4/signer"

	"docsync/internal/docsync"
)

// DefaultRequestTimeout bounds every OpenSearch request.
const DefaultRequestTimeout = 60 * time.Second

// Signing service names for managed OpenSearch and OpenSearch Serverless.
const (
	ServiceES   = "es"
	ServiceAOSS = "aoss"
)

// Preparer is implemented by backends that must check or create their index
// before the first cycle.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// EndpointResolver discovers the OpenSearch endpoint, for example from a
// serverless collection.
type EndpointResolver interface {
	Endpoint(ctx context.Context) (string, error)
}

// OpenSearchOptions configures an OpenSearch index.
type OpenSearchOptions struct {
	Endpoint    string // discovered through Resolver when empty
	Index       string
	Dimension   int
	CreateIndex bool
	ReadyWait   time.Duration
	Timeout     time.Duration

	// Signer signs requests for clusters behind IAM. Optional.
	Signer signer.Signer
	// Transport overrides the HTTP transport. Optional.
	Transport http.RoundTripper

	// Resolver validates the backing collection during Prepare. Optional.
	Resolver EndpointResolver

	Logger docsync.Logger
}

// OpenSearch writes documents to an OpenSearch (or OpenSearch Serverless)
// k-NN index.
type OpenSearch struct {
	index       string
	dimension   int
	createIndex bool
	readyWait   time.Duration
	timeout     time.Duration
	signer      signer.Signer
	transport   http.RoundTripper
	resolver    EndpointResolver
	logger      docsync.Logger

	mu       sync.RWMutex
	endpoint string
	client   *opensearchapi.Client
}

func NewOpenSearch(opts OpenSearchOptions) *OpenSearch {
	logger := opts.Logger
	if logger == nil {
		logger = docsync.NewNopLogger()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &OpenSearch{
		index:       opts.Index,
		dimension:   opts.Dimension,
		createIndex: opts.CreateIndex,
		readyWait:   opts.ReadyWait,
		timeout:     timeout,
		signer:      opts.Signer,
		transport:   opts.Transport,
		resolver:    opts.Resolver,
		logger:      logger,
		endpoint:    strings.TrimRight(opts.Endpoint, "/"),
	}
}

func (o *OpenSearch) Endpoint() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.endpoint
}

// api returns the client for the resolved endpoint, creating it on first use.
func (o *OpenSearch) api() (*opensearchapi.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.client != nil {
		return o.client, nil
	}
	if o.endpoint == "" {
		return nil, errors.New("opensearch: endpoint not resolved, call Prepare first")
	}
	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: []string{o.endpoint},
			Signer:    o.signer,
			Transport: o.transport,
			// Failed cycles are retried as a whole.
			DisableRetry: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}
	o.client = client
	return client, nil
}

// Prepare validates the collection (when a resolver is set), then makes sure
// the index exists, creating it with the k-NN mapping if allowed.
func (o *OpenSearch) Prepare(ctx context.Context) error {
	if o.resolver != nil {
		endpoint, err := o.resolver.Endpoint(ctx)
		if err != nil {
			return err
		}
		o.mu.Lock()
		if o.endpoint == "" {
			o.endpoint = strings.TrimRight(endpoint, "/")
		}
		o.mu.Unlock()
	}
	if o.Endpoint() == "" {
		return errors.New("opensearch: no endpoint configured")
	}

	exists, err := o.indexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		o.logger.Debug("index exists", "index", o.index)
		return nil
	}
	if !o.createIndex {
		return fmt.Errorf("opensearch: index %q does not exist", o.index)
	}
	if o.dimension <= 0 {
		return fmt.Errorf("opensearch: creating index %q requires a vector dimension", o.index)
	}

	if err := o.createKNNIndex(ctx); err != nil {
		return err
	}
	o.logger.Info("created index", "index", o.index, "dimension", o.dimension)

	if o.readyWait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.readyWait):
		}
	}
	return nil
}

func (o *OpenSearch) indexExists(ctx context.Context) (bool, error) {
	client, err := o.api()
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := client.Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Indices: []string{o.index}})
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusOK:
			return true, nil
		case http.StatusNotFound:
			return false, nil
		}
	}
	if err != nil {
		return false, fmt.Errorf("opensearch: checking index %q: %w", o.index, err)
	}
	return false, fmt.Errorf("opensearch: checking index %q: status %d", o.index, resp.StatusCode)
}

func (o *OpenSearch) createKNNIndex(ctx context.Context) error {
	client, err := o.api()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(knnMapping(o.dimension))
	if err != nil {
		return fmt.Errorf("encoding index mapping: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if _, err := client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: o.index,
		Body:  bytes.NewReader(payload),
	}); err != nil {
		return fmt.Errorf("opensearch: creating index %q: %w", o.index, err)
	}
	return nil
}

// knnMapping is the index definition used when the index is created on
// startup: an HNSW/faiss vector field plus keyword metadata.
func knnMapping(dimension int) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"knn":                      true,
				"knn.algo_param.ef_search": 512,
			},
		},
		"mappings": map[string]any{
			"dynamic_templates": []any{
				map[string]any{
					"metadata_loc": map[string]any{
						"path_match": "metadata.loc",
						"mapping":    map[string]any{"type": "object"},
					},
				},
				map[string]any{
					"metadata_acl": map[string]any{
						"path_match": "metadata.acl",
						"mapping":    map[string]any{"type": "object"},
					},
				},
				map[string]any{
					"metadata_strings": map[string]any{
						"path_match":         "metadata.*",
						"match_mapping_type": "string",
						"mapping":            map[string]any{"type": "keyword"},
					},
				},
			},
			"properties": map[string]any{
				"metadata": map[string]any{"type": "object"},
				"text":     map[string]any{"type": "text"},
				"vector_field": map[string]any{
					"type":      "knn_vector",
					"dimension": dimension,
					"method": map[string]any{
						"name":       "hnsw",
						"engine":     "faiss",
						"space_type": "l2",
						"parameters": map[string]any{
							"ef_construction": 512,
							"m":               16,
						},
					},
				},
			},
		},
	}
}

type indexedDocument struct {
	Text     string         `json:"text"`
	Vector   []float32      `json:"vector_field"`
	Metadata map[string]any `json:"metadata"`
}

func (o *OpenSearch) Write(ctx context.Context, doc *docsync.Document) (string, error) {
	client, err := o.api()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(indexedDocument{Text: doc.Text, Vector: doc.Vector, Metadata: doc.Metadata})
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := client.Index(ctx, opensearchapi.IndexReq{
		Index: o.index,
		Body:  bytes.NewReader(payload),
	})
	if err != nil {
		return "", fmt.Errorf("opensearch: indexing document: %w", err)
	}
	if resp.Result != "created" {
		return "", fmt.Errorf("opensearch: indexing document: result %q", resp.Result)
	}
	if resp.ID == "" {
		return "", errors.New("opensearch: index response has no _id")
	}
	return resp.ID, nil
}

func (o *OpenSearch) BulkUpdate(ctx context.Context, ids []string, partial map[string]any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		if err := enc.Encode(map[string]any{"update": bulkTarget{Index: o.index, ID: id}}); err != nil {
			return fmt.Errorf("encoding bulk update: %w", err)
		}
		if err := enc.Encode(map[string]any{"doc": partial}); err != nil {
			return fmt.Errorf("encoding bulk update: %w", err)
		}
	}
	return o.bulk(ctx, "update", ids, buf.Bytes())
}

func (o *OpenSearch) BulkDelete(ctx context.Context, ids []string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		if err := enc.Encode(map[string]any{"delete": bulkTarget{Index: o.index, ID: id}}); err != nil {
			return fmt.Errorf("encoding bulk delete: %w", err)
		}
	}
	return o.bulk(ctx, "delete", ids, buf.Bytes())
}

type bulkTarget struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

// bulk sends an ndjson body to _bulk and fails unless every item succeeded.
// A delete of a document that is already gone counts as success.
func (o *OpenSearch) bulk(ctx context.Context, op string, ids []string, payload []byte) error {
	if len(ids) == 0 {
		return nil
	}
	client, err := o.api()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := client.Bulk(ctx, opensearchapi.BulkReq{
		Body:   bytes.NewReader(payload),
		Header: http.Header{"Content-Type": []string{"application/x-ndjson"}},
	})
	if err != nil {
		return &docsync.BulkError{Op: op, Failed: len(ids), Total: len(ids), Reason: err.Error()}
	}

	succeeded := 0
	var reason string
	for _, entry := range resp.Items {
		item, ok := entry[op]
		if !ok {
			continue
		}
		switch {
		case item.Status >= 200 && item.Status < 300:
			succeeded++
		case op == "delete" && item.Status == http.StatusNotFound:
			succeeded++
		default:
			if reason == "" && item.Error != nil {
				reason = fmt.Sprintf("%s: %s: %s", item.ID, item.Error.Type, item.Error.Reason)
			}
		}
	}
	if succeeded != len(ids) {
		return &docsync.BulkError{Op: op, Failed: len(ids) - succeeded, Total: len(ids), Reason: reason}
	}
	return nil
}

var (
	_ docsync.VectorIndex = (*OpenSearch)(nil)
	_ Preparer            = (*OpenSearch)(nil)
)
