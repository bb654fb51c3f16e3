package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"docsync/internal/config"
)

func TestOllama_Embed(t *testing.T) {
	t.Run("posts model and prompt", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/embeddings" {
				t.Errorf("path = %s, want /api/embeddings", r.URL.Path)
			}
			var req ollamaRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding request: %v", err)
				return
			}
			if req.Model != "nomic-embed-text" || req.Prompt != "hello" {
				t.Errorf("request = %+v", req)
			}
			json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{0.1, 0.2}})
		}))
		defer srv.Close()

		o := NewOllama(srv.URL+"/", "", time.Second)
		v, err := o.Embed(context.Background(), "hello")
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if len(v) != 2 || v[1] != 0.2 {
			t.Errorf("Embed() = %v", v)
		}
	})

	t.Run("server errors are returned without retry", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewOllama(srv.URL, "m", time.Second).Embed(context.Background(), "x")
		if err == nil || !strings.Contains(err.Error(), "status 503") {
			t.Fatalf("Embed() error = %v, want status 503", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("empty embedding", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"embedding":[]}`))
		}))
		defer srv.Close()

		_, err := NewOllama(srv.URL, "m", time.Second).Embed(context.Background(), "x")
		if !errors.Is(err, ErrEmptyEmbedding) {
			t.Errorf("Embed() error = %v, want ErrEmptyEmbedding", err)
		}
	})
}

func TestOpenAI_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		if req.Model != "text-embedding-3-small" || len(req.Input) != 1 || req.Input[0] != "hello" {
			t.Errorf("request = %+v", req)
		}
		if req.Dimensions == nil || *req.Dimensions != 256 {
			t.Errorf("dimensions = %v, want 256", req.Dimensions)
		}
		w.Write([]byte(`{"data":[{"embedding":[0.5,0.25],"index":0}]}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI(srv.URL, "sk-test", "", 256, time.Second)
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	v, err := o.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(v) != 2 || v[0] != 0.5 {
		t.Errorf("Embed() = %v", v)
	}

	if _, err := NewOpenAI(srv.URL, "", "", 0, time.Second); err == nil {
		t.Error("NewOpenAI() expected error without API key")
	}
}

type fakeInvoker struct {
	body  []byte
	input *bedrockruntime.InvokeModelInput
	err   error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

type fakeCatalog struct {
	err error
}

func (f fakeCatalog) GetFoundationModel(context.Context, *bedrock.GetFoundationModelInput, ...func(*bedrock.Options)) (*bedrock.GetFoundationModelOutput, error) {
	return &bedrock.GetFoundationModelOutput{}, f.err
}

func TestBedrock_Embed(t *testing.T) {
	ctx := context.Background()

	t.Run("titan", func(t *testing.T) {
		inv := &fakeInvoker{body: []byte(`{"embedding":[1,2,3],"inputTextTokenCount":2}`)}
		b := newBedrock(inv, fakeCatalog{}, "amazon.titan-embed-text-v1", 0)

		v, err := b.Embed(ctx, "hello")
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if len(v) != 3 {
			t.Errorf("Embed() = %v", v)
		}
		if string(inv.input.Body) != `{"inputText":"hello"}` {
			t.Errorf("body = %s", inv.input.Body)
		}
		if *inv.input.ModelId != "amazon.titan-embed-text-v1" {
			t.Errorf("ModelId = %s", *inv.input.ModelId)
		}
	})

	t.Run("titan v2 with dimensions", func(t *testing.T) {
		inv := &fakeInvoker{body: []byte(`{"embedding":[1]}`)}
		b := newBedrock(inv, fakeCatalog{}, "amazon.titan-embed-text-v2:0", 512)

		if _, err := b.Embed(ctx, "hi"); err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if string(inv.input.Body) != `{"inputText":"hi","dimensions":512}` {
			t.Errorf("body = %s", inv.input.Body)
		}
	})

	t.Run("cohere", func(t *testing.T) {
		inv := &fakeInvoker{body: []byte(`{"embeddings":[[4,5]]}`)}
		b := newBedrock(inv, fakeCatalog{}, "cohere.embed-english-v3", 0)

		v, err := b.Embed(ctx, "hi")
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if len(v) != 2 || v[0] != 4 {
			t.Errorf("Embed() = %v", v)
		}
		if string(inv.input.Body) != `{"texts":["hi"],"input_type":"search_document"}` {
			t.Errorf("body = %s", inv.input.Body)
		}
	})

	t.Run("invoke failure", func(t *testing.T) {
		b := newBedrock(&fakeInvoker{err: errors.New("ThrottlingException")}, fakeCatalog{}, "amazon.titan-embed-text-v1", 0)
		if _, err := b.Embed(ctx, "hi"); err == nil {
			t.Error("Embed() expected error")
		}
	})
}

func TestBedrock_Validate(t *testing.T) {
	ok := newBedrock(&fakeInvoker{}, fakeCatalog{}, "amazon.titan-embed-text-v1", 0)
	if err := ok.Validate(context.Background()); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	missing := newBedrock(&fakeInvoker{}, fakeCatalog{err: errors.New("ResourceNotFoundException")}, "nope", 0)
	if err := missing.Validate(context.Background()); err == nil {
		t.Error("Validate() expected error for missing model")
	}
}

type countingEmbedder struct {
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return []float32{float32(len(text))}, nil
}

func TestCached(t *testing.T) {
	ctx := context.Background()
	next := &countingEmbedder{}
	c, err := NewCached(next, "m", 2)
	if err != nil {
		t.Fatalf("NewCached() error = %v", err)
	}

	v1, _ := c.Embed(ctx, "aa")
	v1[0] = 99
	v2, _ := c.Embed(ctx, "aa")
	if next.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", next.calls.Load())
	}
	if v2[0] != 2 {
		t.Errorf("cached vector was mutated through a returned slice: %v", v2)
	}

	c.Embed(ctx, "b")
	c.Embed(ctx, "ccc")
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	c.Embed(ctx, "aa")
	if next.calls.Load() != 4 {
		t.Errorf("provider calls = %d, want 4 after eviction", next.calls.Load())
	}

	if err := c.Validate(ctx); err != nil {
		t.Errorf("Validate() on non-validating embedder = %v", err)
	}
}

func TestNewEmbedderFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("ollama with cache", func(t *testing.T) {
		e, err := NewEmbedderFromConfig(ctx, config.EmbedderConfig{Type: "ollama", Model: "m", CacheSize: 10})
		if err != nil {
			t.Fatalf("NewEmbedderFromConfig() error = %v", err)
		}
		if _, ok := e.(*Cached); !ok {
			t.Errorf("embedder = %T, want *Cached", e)
		}
	})

	t.Run("openai without cache", func(t *testing.T) {
		e, err := NewEmbedderFromConfig(ctx, config.EmbedderConfig{Type: "openai", APIKey: "k"})
		if err != nil {
			t.Fatalf("NewEmbedderFromConfig() error = %v", err)
		}
		if _, ok := e.(*OpenAI); !ok {
			t.Errorf("embedder = %T, want *OpenAI", e)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewEmbedderFromConfig(ctx, config.EmbedderConfig{Type: "word2vec"}); err == nil {
			t.Error("NewEmbedderFromConfig() expected error")
		}
	})
}
