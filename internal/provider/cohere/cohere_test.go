package cohere_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/provider/cohere"
)

// roundTripFunc serves canned embed responses without a live endpoint.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestEmbedDocumentsMergesBatches(t *testing.T) {
	var calls atomic.Int64

	// Echo each text's numeric suffix back as its vector so chunk
	// order is observable in the merged result.
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)

		var req struct {
			Texts []string `json:"texts"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("failed to decode embed request: %v", err)
		}
		if len(req.Texts) > cohere.EmbedMaxTexts {
			t.Errorf("request carries %d texts, limit is %d", len(req.Texts), cohere.EmbedMaxTexts)
		}

		vectors := make([][]float64, 0, len(req.Texts))
		for _, text := range req.Texts {
			n, _ := strconv.Atoi(strings.TrimPrefix(text, "chunk-"))
			vectors = append(vectors, []float64{float64(n)})
		}
		respBody, _ := json.Marshal(map[string]any{
			"id":         "test",
			"embeddings": map[string]any{"float": vectors},
		})
		return jsonResponse(http.StatusOK, string(respBody)), nil
	})}

	p := cohere.New(cohere.WithHTTPClient(client))

	chunks := make([]string, 100)
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

func TestEmbedDocumentsPropagatesErrors(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"message":"invalid request"}`), nil
	})}

	p := cohere.New(cohere.WithHTTPClient(client))

	embeddings, err := p.EmbedDocuments(context.Background(), []*api.EmbedDocumentRequest{
		{Title: "doc", Chunks: []string{"text"}},
	})
	if err == nil {
		t.Fatal("expected an error for a failing embed call")
	}
	if embeddings != nil {
		t.Errorf("got %d embeddings alongside the error", len(embeddings))
	}
}
