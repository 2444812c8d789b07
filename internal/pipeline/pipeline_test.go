// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package pipeline_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/pipeline"
	"github.com/alan-mat/vectra/internal/vector"
)

type fakeLoader struct {
	docs []*api.Document
}

func (l *fakeLoader) Load(_ context.Context) ([]*api.Document, error) {
	return l.docs, nil
}

func (l *fakeLoader) LoadIDs(_ context.Context, ids []string) ([]*api.Document, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	docs := make([]*api.Document, 0)
	for _, doc := range l.docs {
		if wanted[doc.ID] {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// fakeEmbedder returns a fixed-direction vector per chunk so tests can
// reason about similarity.
type fakeEmbedder struct {
	queryVector []float32
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, q string) ([]float32, error) {
	if e.queryVector != nil {
		return e.queryVector, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e *fakeEmbedder) EmbedDocuments(_ context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))
	for _, doc := range docs {
		values := make([][]float32, len(doc.Chunks))
		for i := range doc.Chunks {
			values[i] = []float32{1, 0, 0}
		}
		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: values,
		})
	}
	return embeddings, nil
}

func (e *fakeEmbedder) GetDimensions() uint { return 3 }

type fakeStore struct {
	mu          sync.Mutex
	collections map[string]vector.Collection
	indexes     map[string]vector.Index
	upserts     [][]*vector.Point
	queryResult []*vector.ScoredPoint
	lastQuery   *vector.QueryParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string]vector.Collection),
		indexes:     make(map[string]vector.Index),
	}
}

func (s *fakeStore) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *fakeStore) CreateCollection(_ context.Context, c vector.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[c.Name] = c
	return nil
}

func (s *fakeStore) CreateIndex(_ context.Context, name string, index vector.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[name] = index
	return nil
}

func (s *fakeStore) Upsert(_ context.Context, name string, points []*vector.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, points)
	return nil
}

func (s *fakeStore) Query(_ context.Context, params *vector.QueryParams) ([]*vector.ScoredPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = params
	return s.queryResult, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) points() []*vector.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*vector.Point, 0)
	for _, batch := range s.upserts {
		all = append(all, batch...)
	}
	return all
}

// fakeSegmenter chunks by splitting on spaces, counting invocations.
type fakeSegmenter struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeSegmenter) ChunkText(_ context.Context, text string) ([]string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return strings.Split(text, " "), nil
}

func f32(v float32) *float32 {
	return &v
}

func testDocs() []*api.Document {
	return []*api.Document{
		{ID: "1", Title: "first", Content: "some document content", Source: "docs"},
		{ID: "2", Title: "second", Content: "other document content", Source: "docs"},
		{ID: "3", Title: "empty", Content: "", Source: "docs"},
	}
}

func TestIngestorRun(t *testing.T) {
	store := newFakeStore()
	ing, err := pipeline.NewIngestor(&fakeLoader{docs: testDocs()}, &fakeEmbedder{}, store, "test-collection")
	if err != nil {
		t.Fatal(err)
	}

	report, err := ing.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.Documents != 3 {
		t.Errorf("got %d documents, expected 3", report.Documents)
	}
	if report.Skipped != 1 {
		t.Errorf("got %d skipped, expected 1", report.Skipped)
	}
	if report.Chunks != 2 {
		t.Errorf("got %d chunks, expected 2", report.Chunks)
	}

	c, ok := store.collections["test-collection"]
	if !ok {
		t.Fatal("collection was not created")
	}
	if c.Dimensions != 3 {
		t.Errorf("got %d dimensions, expected 3", c.Dimensions)
	}
	if _, ok := store.indexes["test-collection"]; !ok {
		t.Error("index was not created")
	}

	for _, p := range store.points() {
		if p.ID == "" {
			t.Error("point is missing an id")
		}
		if p.Payload["text"] == "" {
			t.Error("point is missing text payload")
		}
		if p.Payload["source"] != "docs" {
			t.Errorf("got source payload %v", p.Payload["source"])
		}
	}
}

func TestIngestorRunIDs(t *testing.T) {
	store := newFakeStore()
	ing, err := pipeline.NewIngestor(&fakeLoader{docs: testDocs()}, &fakeEmbedder{}, store, "test-collection")
	if err != nil {
		t.Fatal(err)
	}

	report, err := ing.RunIDs(context.Background(), []string{"2"})
	if err != nil {
		t.Fatal(err)
	}

	if report.Documents != 1 {
		t.Errorf("got %d documents, expected 1", report.Documents)
	}
	points := store.points()
	if len(points) != 1 {
		t.Fatalf("got %d points, expected 1", len(points))
	}
	if points[0].Payload["doc_id"] != "2" {
		t.Errorf("got doc_id %v, expected 2", points[0].Payload["doc_id"])
	}
}

func TestIngestorUsesSegmenter(t *testing.T) {
	store := newFakeStore()
	seg := &fakeSegmenter{}
	ing, err := pipeline.NewIngestor(&fakeLoader{docs: testDocs()}, &fakeEmbedder{}, store, "test-collection",
		pipeline.WithSegmenter(seg))
	if err != nil {
		t.Fatal(err)
	}

	report, err := ing.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// The segmenter splits each non-empty document into word chunks.
	if seg.calls != 2 {
		t.Errorf("segmenter was called %d times, expected 2", seg.calls)
	}
	if report.Chunks != 6 {
		t.Errorf("got %d chunks, expected 6", report.Chunks)
	}
	for _, p := range store.points() {
		if strings.Contains(p.Payload["text"].(string), " ") {
			t.Errorf("point text %q was not chunked by the segmenter", p.Payload["text"])
		}
	}
}

func TestNewIngestorValidation(t *testing.T) {
	store := newFakeStore()
	l := &fakeLoader{}
	e := &fakeEmbedder{}

	if _, err := pipeline.NewIngestor(nil, e, store, "c"); err != pipeline.ErrMissingLoader {
		t.Errorf("got %v, expected ErrMissingLoader", err)
	}
	if _, err := pipeline.NewIngestor(l, nil, store, "c"); err != pipeline.ErrMissingEmbedder {
		t.Errorf("got %v, expected ErrMissingEmbedder", err)
	}
	if _, err := pipeline.NewIngestor(l, e, nil, "c"); err != pipeline.ErrMissingStore {
		t.Errorf("got %v, expected ErrMissingStore", err)
	}
	if _, err := pipeline.NewIngestor(l, e, store, ""); err == nil {
		t.Error("expected error for empty collection name")
	}
}

func scoredPoints() []*vector.ScoredPoint {
	return []*vector.ScoredPoint{
		{ID: "p1", Score: 0.9, Payload: map[string]string{"text": "first hit", "title": "one", "source": "docs"}},
		{ID: "p2", Score: 0.8, Payload: map[string]string{"text": "second hit", "title": "two", "source": "docs"}},
	}
}

func TestSearcherSearch(t *testing.T) {
	store := newFakeStore()
	store.queryResult = scoredPoints()

	sr, err := pipeline.NewSearcher(&fakeEmbedder{}, store, "test-collection")
	if err != nil {
		t.Fatal(err)
	}

	docs, err := sr.Search(context.Background(), pipeline.SearchParams{Query: "what is a vector"})
	if err != nil {
		t.Fatal(err)
	}

	if len(docs) != 2 {
		t.Fatalf("got %d documents, expected 2", len(docs))
	}
	if docs[0].Content != "first hit" || docs[0].Title != "one" {
		t.Errorf("got unexpected first document %+v", docs[0])
	}
	if docs[0].Score < docs[1].Score {
		t.Error("documents are not ordered by descending score")
	}
}

func TestSearcherEmptyQuery(t *testing.T) {
	sr, err := pipeline.NewSearcher(&fakeEmbedder{}, newFakeStore(), "test-collection")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sr.Search(context.Background(), pipeline.SearchParams{}); err != pipeline.ErrEmptyQuery {
		t.Errorf("got %v, expected ErrEmptyQuery", err)
	}
}

func TestSearcherMMR(t *testing.T) {
	store := newFakeStore()
	store.queryResult = []*vector.ScoredPoint{
		{ID: "p1", Score: 0.99, Vector: []float32{1, 0.9, 0}, Payload: map[string]string{"text": "first"}},
		{ID: "p1-dup", Score: 0.98, Vector: []float32{1, 0.85, 0}, Payload: map[string]string{"text": "near duplicate"}},
		{ID: "p2", Score: 0.8, Vector: []float32{0.2, 1, 0}, Payload: map[string]string{"text": "different"}},
	}

	sr, err := pipeline.NewSearcher(&fakeEmbedder{queryVector: []float32{1, 1, 0}}, store, "test-collection")
	if err != nil {
		t.Fatal(err)
	}

	docs, err := sr.Search(context.Background(), pipeline.SearchParams{
		Query: "diverse results please",
		Limit: 2,
		MMR:   &pipeline.MMRParams{Lambda: f32(0.5)},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(docs) != 2 {
		t.Fatalf("got %d documents, expected 2", len(docs))
	}
	if docs[0].ID != "p1" {
		t.Errorf("got first document %s, expected p1", docs[0].ID)
	}
	if docs[1].ID == "p1-dup" {
		t.Error("diversity reordering kept a near-duplicate")
	}
}

// TestSearcherMMRLambdaZero checks that an explicit lambda of 0 means
// pure diversity rather than falling back to the default.
func TestSearcherMMRLambdaZero(t *testing.T) {
	// "related" ties with "orthogonal" at the default lambda but loses
	// at lambda 0, where only redundancy counts.
	points := []*vector.ScoredPoint{
		{ID: "p1", Score: 1, Vector: []float32{1, 0, 0}, Payload: map[string]string{"text": "exact"}},
		{ID: "p2", Score: 0.7, Vector: []float32{1, 1, 0}, Payload: map[string]string{"text": "related"}},
		{ID: "p3", Score: 0, Vector: []float32{0, 1, 1}, Payload: map[string]string{"text": "orthogonal"}},
	}

	store := newFakeStore()
	store.queryResult = points

	sr, err := pipeline.NewSearcher(&fakeEmbedder{queryVector: []float32{1, 0, 0}}, store, "test-collection")
	if err != nil {
		t.Fatal(err)
	}

	docs, err := sr.Search(context.Background(), pipeline.SearchParams{
		Query: "q",
		Limit: 2,
		MMR:   &pipeline.MMRParams{Lambda: f32(0)},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(docs) != 2 {
		t.Fatalf("got %d documents, expected 2", len(docs))
	}
	if docs[1].ID != "p3" {
		t.Errorf("got second document %s, expected the orthogonal p3", docs[1].ID)
	}
}

func TestSearcherReranks(t *testing.T) {
	store := newFakeStore()
	store.queryResult = scoredPoints()

	reranker := &fakeReranker{}
	sr, err := pipeline.NewSearcher(&fakeEmbedder{}, store, "test-collection", pipeline.WithReranker(reranker))
	if err != nil {
		t.Fatal(err)
	}

	docs, err := sr.Search(context.Background(), pipeline.SearchParams{Query: "q", Rerank: true})
	if err != nil {
		t.Fatal(err)
	}

	if len(docs) != 2 {
		t.Fatalf("got %d documents, expected 2", len(docs))
	}
	// The fake reranker reverses the order.
	if docs[0].Content != "second hit" {
		t.Errorf("got first document '%s', expected reranked order", docs[0].Content)
	}
	// Metadata from retrieval must survive the rerank pass.
	if docs[0].Title != "two" || docs[0].ID != "p2" {
		t.Errorf("reranked document lost metadata: %+v", docs[0])
	}
}

// fakeReranker reverses the documents and assigns descending scores.
type fakeReranker struct{}

func (r *fakeReranker) Rerank(_ context.Context, req api.RerankRequest) (*api.RerankResponse, error) {
	docs := make([]*api.ScoredDocument, 0, len(req.Documents))
	for i := len(req.Documents) - 1; i >= 0; i-- {
		docs = append(docs, &api.ScoredDocument{
			Content: req.Documents[i],
			Score:   float64(len(req.Documents)-len(docs)) / float64(len(req.Documents)+1),
		})
	}
	return &api.RerankResponse{Query: req.Query, Documents: docs}, nil
}
