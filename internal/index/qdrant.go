package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"docsync/internal/config"
	"docsync/internal/docsync"
)

// Qdrant writes documents to a Qdrant collection over gRPC. Document text and
// metadata fields are stored as top-level payload keys.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

func NewQdrant(cfg config.QdrantConfig, collection string) (*Qdrant, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	return &Qdrant{client: client, collection: collection, dimension: cfg.Dimension}, nil
}

// Prepare creates the collection with cosine distance when it is missing.
func (q *Qdrant) Prepare(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("checking qdrant collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("creating qdrant collection %s requires a vector dimension", q.collection)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating qdrant collection %s: %w", q.collection, err)
	}
	return nil
}

func (q *Qdrant) Write(ctx context.Context, doc *docsync.Document) (string, error) {
	fields := make(map[string]any, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		fields[k] = v
	}
	fields["text"] = doc.Text

	payload, err := qdrantPayload(fields)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	wait := true
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(doc.Vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("qdrant: upserting point: %w", err)
	}
	return id, nil
}

// BulkUpdate sets the partial metadata keys on every point. Qdrant applies
// the request atomically, so a failure fails every id.
func (q *Qdrant) BulkUpdate(ctx context.Context, ids []string, partial map[string]any) error {
	if len(ids) == 0 {
		return nil
	}
	payload, err := qdrantPayload(metadataOf(partial))
	if err != nil {
		return err
	}

	wait := true
	_, err = q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Payload:        payload,
		PointsSelector: pointsSelector(ids),
	})
	if err != nil {
		return &docsync.BulkError{Op: "update", Failed: len(ids), Total: len(ids), Reason: err.Error()}
	}
	return nil
}

func (q *Qdrant) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	wait := true
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         pointsSelector(ids),
	})
	if err != nil {
		return &docsync.BulkError{Op: "delete", Failed: len(ids), Total: len(ids), Reason: err.Error()}
	}
	return nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

func pointsSelector(ids []string) *qdrant.PointsSelector {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}
	return &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: pointIDs},
		},
	}
}

func qdrantPayload(fields map[string]any) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(fields))
	for k, v := range fields {
		if m, ok := v.(map[string]any); ok && m == nil {
			v = nil
		}
		val, err := qdrant.NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("qdrant: encoding payload field %s: %w", k, err)
		}
		payload[k] = val
	}
	return payload, nil
}

var (
	_ docsync.VectorIndex = (*Qdrant)(nil)
	_ Preparer            = (*Qdrant)(nil)
)
