package jina_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/provider/jina"
)

type embedDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// newEmbedServer echoes each input's numeric suffix back as its vector
// so chunk order is observable in the merged result.
func newEmbedServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode embed request: %v", err)
		}
		if len(req.Input) > jina.EmbedItemsMaxLength {
			t.Errorf("request carries %d inputs, limit is %d", len(req.Input), jina.EmbedItemsMaxLength)
		}

		data := make([]embedDatum, 0, len(req.Input))
		for i, text := range req.Input {
			n, _ := strconv.Atoi(strings.TrimPrefix(text, "chunk-"))
			data = append(data, embedDatum{Index: i, Embedding: []float32{float32(n)}})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestEmbedDocumentsMergesParts(t *testing.T) {
	var calls atomic.Int64
	srv := newEmbedServer(t, &calls)
	defer srv.Close()

	p := jina.New(jina.WithEndpoint(srv.URL))

	chunks := make([]string, jina.EmbedItemsMaxLength+1)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("chunk-%d", i)
	}

	embeddings, err := p.EmbedDocuments(context.Background(), []*api.EmbedDocumentRequest{
		{Title: "big document", Chunks: chunks},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(embeddings) != 1 {
		t.Fatalf("got %d document embeddings, expected 1", len(embeddings))
	}
	if len(embeddings[0].Values) != len(chunks) {
		t.Fatalf("got %d vectors, expected %d", len(embeddings[0].Values), len(chunks))
	}
	for i, v := range embeddings[0].Values {
		if v[0] != float32(i) {
			t.Fatalf("vector %d out of order: got %f", i, v[0])
		}
	}
	if calls.Load() != 2 {
		t.Errorf("got %d embed calls, expected 2", calls.Load())
	}
}

func TestEmbedDocumentsShortResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []embedDatum{}})
	}))
	defer srv.Close()

	p := jina.New(jina.WithEndpoint(srv.URL))

	_, err := p.EmbedDocuments(context.Background(), []*api.EmbedDocumentRequest{
		{Title: "doc", Chunks: []string{"some text"}},
	})
	if err == nil {
		t.Fatal("expected an error for a response with missing vectors")
	}
}

func TestEmbedQueryEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []embedDatum{}})
	}))
	defer srv.Close()

	p := jina.New(jina.WithEndpoint(srv.URL))

	if _, err := p.EmbedQuery(context.Background(), "a query"); err == nil {
		t.Fatal("expected an error for an empty embed response")
	}
}

func TestChunkText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"chunks": []string{"First sentence. ", "# Heading\n", "Body under the heading.", "---"},
		})
	}))
	defer srv.Close()

	p := jina.New(jina.WithEndpoint(srv.URL))

	chunks, err := p.ChunkText(context.Background(), "some document text")
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, expected 2: %q", len(chunks), chunks)
	}
	if chunks[0] != "First sentence." {
		t.Errorf("got first chunk %q", chunks[0])
	}
	// Headings attach to the following chunk, separators are dropped.
	if !strings.HasPrefix(chunks[1], "# Heading") || !strings.Contains(chunks[1], "Body under the heading.") {
		t.Errorf("got second chunk %q", chunks[1])
	}
}
