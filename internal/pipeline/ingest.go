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

// Package pipeline wires loaders, summarizers, splitters, embedders and
// vector stores into ingestion and retrieval flows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/loader"
	"github.com/alan-mat/vectra/internal/provider"
	"github.com/alan-mat/vectra/internal/splitter"
	"github.com/alan-mat/vectra/internal/summary"
	"github.com/alan-mat/vectra/internal/transport"
	"github.com/alan-mat/vectra/internal/vector"
)

var (
	ErrMissingLoader   = errors.New("ingestor requires a document loader")
	ErrMissingEmbedder = errors.New("ingestor requires an embedder")
	ErrMissingStore    = errors.New("ingestor requires a vector store")
)

const defaultConcurrency = 4

// Ingestor runs the indexing flow: load documents, optionally summarize
// them, split their text into chunks, embed the chunks and upsert the
// resulting points into a vector store collection.
type Ingestor struct {
	loader     loader.Loader
	splitter   *splitter.Splitter
	segmenter  provider.Segmenter
	summarizer *summary.Summarizer
	embedder   provider.Embedder
	store      vector.Store
	stream     transport.MessageStream

	collection  string
	index       vector.Index
	concurrency int
}

type IngestorOption func(*Ingestor)

func NewIngestor(l loader.Loader, e provider.Embedder, s vector.Store, collection string, opts ...IngestorOption) (*Ingestor, error) {
	if l == nil {
		return nil, ErrMissingLoader
	}
	if e == nil {
		return nil, ErrMissingEmbedder
	}
	if s == nil {
		return nil, ErrMissingStore
	}
	if collection == "" {
		return nil, fmt.Errorf("ingestor requires a collection name")
	}

	sp, err := splitter.New()
	if err != nil {
		return nil, err
	}

	ing := &Ingestor{
		loader:      l,
		splitter:    sp,
		embedder:    e,
		store:       s,
		collection:  collection,
		index:       vector.DefaultIndex(),
		concurrency: defaultConcurrency,
	}

	for _, opt := range opts {
		opt(ing)
	}
	return ing, nil
}

func WithSplitter(sp *splitter.Splitter) IngestorOption {
	return func(ing *Ingestor) {
		ing.splitter = sp
	}
}

// WithSegmenter chunks documents through a remote segmenter provider
// instead of the local splitter.
func WithSegmenter(seg provider.Segmenter) IngestorOption {
	return func(ing *Ingestor) {
		ing.segmenter = seg
	}
}

func WithSummarizer(sm *summary.Summarizer) IngestorOption {
	return func(ing *Ingestor) {
		ing.summarizer = sm
	}
}

func WithIndex(index vector.Index) IngestorOption {
	return func(ing *Ingestor) {
		ing.index = index
	}
}

func WithConcurrency(n int) IngestorOption {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.concurrency = n
		}
	}
}

// WithProgressStream reports per-document progress over the given
// message stream while a run executes.
func WithProgressStream(ms transport.MessageStream) IngestorOption {
	return func(ing *Ingestor) {
		ing.stream = ms
	}
}

// WithStream returns a copy of the ingestor that reports progress on the
// given message stream. The receiver is left untouched, so one ingestor
// can serve concurrent runs with distinct streams.
func (ing *Ingestor) WithStream(ms transport.MessageStream) *Ingestor {
	c := *ing
	c.stream = ms
	return &c
}

// IngestReport summarises a completed run.
type IngestReport struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Skipped   int `json:"skipped"`
}

// Run ingests every document the loader yields.
func (ing *Ingestor) Run(ctx context.Context) (*IngestReport, error) {
	docs, err := ing.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	return ing.ingest(ctx, docs)
}

// RunIDs ingests only the documents with the given source ids.
func (ing *Ingestor) RunIDs(ctx context.Context, ids []string) (*IngestReport, error) {
	docs, err := ing.loader.LoadIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	return ing.ingest(ctx, docs)
}

func (ing *Ingestor) ingest(ctx context.Context, docs []*api.Document) (*IngestReport, error) {
	if err := ing.ensureCollection(ctx); err != nil {
		return nil, err
	}

	var chunkCount, skipped, processed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.concurrency)

	for _, doc := range docs {
		g.Go(func() error {
			n, err := ing.ingestDocument(gctx, doc)
			if err != nil {
				return err
			}
			if n == 0 {
				skipped.Add(1)
			}
			chunkCount.Add(int64(n))

			done := processed.Add(1)
			ing.reportProgress(gctx, int(done), len(docs))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &IngestReport{
		Documents: len(docs),
		Chunks:    int(chunkCount.Load()),
		Skipped:   int(skipped.Load()),
	}
	slog.Info("ingestion run complete",
		"collection", ing.collection,
		"documents", report.Documents,
		"chunks", report.Chunks,
		"skipped", report.Skipped,
	)
	return report, nil
}

// ingestDocument indexes a single document and returns the number of
// points written. All points of one document are upserted together.
func (ing *Ingestor) ingestDocument(ctx context.Context, doc *api.Document) (int, error) {
	if doc.Content == "" {
		slog.Debug("skipping empty document", "id", doc.ID, "source", doc.Source)
		return 0, nil
	}

	if ing.summarizer != nil {
		s, err := ing.summarizer.Summarize(ctx, doc.Content)
		if err != nil {
			return 0, fmt.Errorf("failed to summarize document '%s': %w", doc.ID, err)
		}
		doc.Summary = s
	}

	chunks, err := ing.chunk(ctx, doc.Content)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk document '%s': %w", doc.ID, err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	embeddings, err := ing.embedder.EmbedDocuments(ctx, []*api.EmbedDocumentRequest{
		{Title: doc.Title, Chunks: chunks},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to embed document '%s': %w", doc.ID, err)
	}
	if len(embeddings) != 1 || len(embeddings[0].Values) != len(chunks) {
		return 0, fmt.Errorf("embedder returned wrong number of vectors for document '%s'", doc.ID)
	}

	points := make([]*vector.Point, 0, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{
			"doc_id": doc.ID,
			"source": doc.Source,
			"title":  doc.Title,
			"text":   chunk,
			"chunk":  i,
		}
		if doc.Summary != "" {
			payload["summary"] = doc.Summary
		}

		points = append(points, &vector.Point{
			ID:      uuid.NewString(),
			Vector:  embeddings[0].Values[i],
			Payload: payload,
		})
	}

	if err := ing.store.Upsert(ctx, ing.collection, points); err != nil {
		return 0, fmt.Errorf("failed to upsert points for document '%s': %w", doc.ID, err)
	}

	return len(points), nil
}

func (ing *Ingestor) chunk(ctx context.Context, text string) ([]string, error) {
	if ing.segmenter != nil {
		return ing.segmenter.ChunkText(ctx, text)
	}
	return ing.splitter.Split(text), nil
}

func (ing *Ingestor) ensureCollection(ctx context.Context) error {
	exists, err := ing.store.CollectionExists(ctx, ing.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection '%s': %w", ing.collection, err)
	}

	if !exists {
		err = ing.store.CreateCollection(ctx, vector.Collection{
			Name:       ing.collection,
			Dimensions: ing.embedder.GetDimensions(),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection '%s': %w", ing.collection, err)
		}
	}

	if err := ing.store.CreateIndex(ctx, ing.collection, ing.index); err != nil {
		if errors.Is(err, vector.ErrUnsupportedIndexType) {
			slog.Warn("skipping index creation", "collection", ing.collection, "err", err)
			return nil
		}
		return fmt.Errorf("failed to create index on '%s': %w", ing.collection, err)
	}
	return nil
}

func (ing *Ingestor) reportProgress(ctx context.Context, processed, total int) {
	if ing.stream == nil {
		return
	}

	err := ing.stream.Send(ctx, transport.MessageStreamPayload{
		ID:     processed,
		Status: "OK",
		Type:   transport.MessageTypeProgress,
		Progress: transport.Progress{
			Processed: processed,
			Total:     total,
		},
	})
	if err != nil {
		slog.Debug("failed sending progress to message stream", "stream", ing.stream.GetID())
	}
}
