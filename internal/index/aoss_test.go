package index

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/opensearchserverless"
	"github.com/aws/aws-sdk-go-v2/service/opensearchserverless/types"

	"docsync/internal/docsync"
)

type fakeCollections struct {
	out   *opensearchserverless.BatchGetCollectionOutput
	names []string
}

func (f *fakeCollections) BatchGetCollection(_ context.Context, in *opensearchserverless.BatchGetCollectionInput, _ ...func(*opensearchserverless.Options)) (*opensearchserverless.BatchGetCollectionOutput, error) {
	f.names = in.Names
	return f.out, nil
}

func collection(status types.CollectionStatus, typ types.CollectionType, endpoint string) *fakeCollections {
	detail := types.CollectionDetail{
		Id:     aws.String("abc123"),
		Name:   aws.String("docs"),
		Status: status,
		Type:   typ,
	}
	if endpoint != "" {
		detail.CollectionEndpoint = aws.String(endpoint)
	}
	return &fakeCollections{out: &opensearchserverless.BatchGetCollectionOutput{
		CollectionDetails: []types.CollectionDetail{detail},
	}}
}

func TestCollection_Endpoint(t *testing.T) {
	t.Run("reported endpoint", func(t *testing.T) {
		api := collection(types.CollectionStatusActive, types.CollectionTypeVectorsearch, "https://custom.example")
		got, err := NewCollection(api, "docs", "eu-west-1").Endpoint(context.Background())
		if err != nil {
			t.Fatalf("Endpoint failed: %v", err)
		}
		if got != "https://custom.example" {
			t.Errorf("endpoint = %q", got)
		}
		if len(api.names) != 1 || api.names[0] != "docs" {
			t.Errorf("looked up %v", api.names)
		}
	})

	t.Run("derived from id", func(t *testing.T) {
		api := collection(types.CollectionStatusActive, types.CollectionTypeVectorsearch, "")
		got, err := NewCollection(api, "docs", "eu-west-1").Endpoint(context.Background())
		if err != nil {
			t.Fatalf("Endpoint failed: %v", err)
		}
		if got != "https://abc123.eu-west-1.aoss.amazonaws.com" {
			t.Errorf("endpoint = %q", got)
		}
	})

	t.Run("not active", func(t *testing.T) {
		api := collection(types.CollectionStatusCreating, types.CollectionTypeVectorsearch, "")
		if _, err := NewCollection(api, "docs", "eu-west-1").Endpoint(context.Background()); err == nil {
			t.Fatal("expected error for collection that is not ACTIVE")
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		api := collection(types.CollectionStatusActive, types.CollectionTypeSearch, "")
		if _, err := NewCollection(api, "docs", "eu-west-1").Endpoint(context.Background()); err == nil {
			t.Fatal("expected error for non-vector collection")
		}
	})

	t.Run("missing", func(t *testing.T) {
		api := &fakeCollections{out: &opensearchserverless.BatchGetCollectionOutput{}}
		if _, err := NewCollection(api, "docs", "eu-west-1").Endpoint(context.Background()); err == nil {
			t.Fatal("expected error for missing collection")
		}
	})
}

func TestNewSigner(t *testing.T) {
	var got *http.Request
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		b := new(strings.Builder)
		if _, err := io.Copy(b, r.Body); err != nil {
			t.Errorf("reading body: %v", err)
		}
		body = b.String()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_id":"os-1","result":"created"}`))
	}))
	defer srv.Close()

	awsCfg := aws.Config{
		Region:      "eu-west-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	}
	sign, err := NewSigner(awsCfg, true)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	idx := NewOpenSearch(OpenSearchOptions{
		Endpoint:  srv.URL,
		Index:     "docs",
		Timeout:   5 * time.Second,
		Signer:    sign,
		Transport: srv.Client().Transport,
	})
	if _, err := idx.Write(context.Background(), &docsync.Document{Text: "x"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	auth := got.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKID/") {
		t.Errorf("Authorization = %q", auth)
	}
	if !strings.Contains(auth, "/eu-west-1/aoss/aws4_request") {
		t.Errorf("Authorization scope = %q", auth)
	}
	if got.Header.Get("X-Amz-Date") == "" {
		t.Error("missing X-Amz-Date")
	}
	if !strings.Contains(body, `"text":"x"`) {
		t.Errorf("body = %q", body)
	}
}
