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

// Package worker runs the queue consumer executing ingestion and search
// tasks against the configured pipelines.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/alan-mat/vectra/internal/config"
	"github.com/alan-mat/vectra/internal/loader"
	"github.com/alan-mat/vectra/internal/pipeline"
	"github.com/alan-mat/vectra/internal/provider"
	"github.com/alan-mat/vectra/internal/registry"
	"github.com/alan-mat/vectra/internal/splitter"
	"github.com/alan-mat/vectra/internal/summary"
	"github.com/alan-mat/vectra/internal/tasks"
	"github.com/alan-mat/vectra/internal/transport"
	"github.com/alan-mat/vectra/internal/vector"
)

type Worker struct {
	config config.Config

	rdb         *redis.Client
	asynqServer *asynq.Server
	pool        *pgxpool.Pool

	transport   transport.Transport
	vectorStore vector.Store
	pipelines   *registry.Registry[string, *pipeline.Set]
}

func New(cfg config.Config) *Worker {
	return &Worker{
		config: cfg,
	}
}

func (w *Worker) Start() error {
	ctx := context.Background()

	w.rdb = redis.NewClient(&redis.Options{
		Addr:     w.config.Redis.Addr,
		Username: w.config.Redis.Username,
		Password: w.config.Redis.Password,
		DB:       w.config.Redis.DB,
	})
	defer w.rdb.Close()

	w.asynqServer = asynq.NewServerFromRedisClient(
		w.rdb,
		asynq.Config{
			Concurrency: w.config.Worker.Concurrency,
		},
	)

	w.transport = transport.NewRedisTransport(w.rdb)

	vs, err := NewStore(ctx, w.config)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	w.vectorStore = vs
	defer w.vectorStore.Close()

	pool, err := loader.Connect(ctx, w.config.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to document database: %w", err)
	}
	w.pool = pool
	defer w.pool.Close()

	if err := w.registerPipelines(); err != nil {
		return fmt.Errorf("failed to build pipelines: %w", err)
	}

	handler := tasks.NewTaskHandler(w.transport, w.pipelines)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeIngest, handler)
	mux.Handle(tasks.TypeSearch, handler)

	if err := w.asynqServer.Run(mux); err != nil {
		return err
	}
	return nil
}

// NewStore builds the vector store named by the config.
func NewStore(ctx context.Context, cfg config.Config) (vector.Store, error) {
	t, err := vector.ParseStoreType(cfg.VectorStore.Type)
	if err != nil {
		return nil, err
	}

	switch t {
	case vector.StoreTypeQdrant:
		return vector.NewQdrantStore(cfg.VectorStore.Host, cfg.VectorStore.Port)
	case vector.StoreTypePgvector:
		return vector.NewPgvectorStore(ctx, cfg.PgvectorDSN())
	default:
		return nil, vector.ErrInvalidStoreType
	}
}

func (w *Worker) registerPipelines() error {
	w.pipelines = registry.New[string, *pipeline.Set]()

	for name, pc := range w.config.Pipelines {
		set, err := w.buildPipeline(name, pc)
		if err != nil {
			return fmt.Errorf("pipeline '%s': %w", name, err)
		}
		w.pipelines.Register(name, set)
		slog.Info("registered pipeline", "name", name, "collection", set.Collection)
	}
	return nil
}

func (w *Worker) buildPipeline(name string, pc config.Pipeline) (*pipeline.Set, error) {
	collection := pc.Collection
	if collection == "" {
		collection = name
	}

	l, err := loader.NewPostgres(w.pool, loader.Params{
		Schema:      pc.Loader.Schema,
		Table:       pc.Loader.Table,
		Column:      pc.Loader.Column,
		IDColumn:    pc.Loader.IDColumn,
		TitleColumn: pc.Loader.TitleColumn,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(pc.Embedder)
	if err != nil {
		return nil, err
	}

	ingOpts := []pipeline.IngestorOption{
		pipeline.WithIndex(parseIndex(pc.Index)),
	}

	if pc.Splitter.Provider != "" {
		st, err := provider.ParseSegmenterType(pc.Splitter.Provider)
		if err != nil {
			return nil, err
		}
		seg, err := provider.NewSegmenter(st)
		if err != nil {
			return nil, err
		}
		ingOpts = append(ingOpts, pipeline.WithSegmenter(seg))
	} else if pc.Splitter != (config.SplitterConfig{}) {
		sp, err := newSplitter(pc.Splitter)
		if err != nil {
			return nil, err
		}
		ingOpts = append(ingOpts, pipeline.WithSplitter(sp))
	}

	if pc.Summary.Enabled {
		sm, err := newSummarizer(pc.Summary)
		if err != nil {
			return nil, err
		}
		ingOpts = append(ingOpts, pipeline.WithSummarizer(sm))
	}

	if pc.Concurrency > 0 {
		ingOpts = append(ingOpts, pipeline.WithConcurrency(pc.Concurrency))
	}

	ing, err := pipeline.NewIngestor(l, embedder, w.vectorStore, collection, ingOpts...)
	if err != nil {
		return nil, err
	}

	var searchOpts []pipeline.SearcherOption
	if pc.Rerank.Enabled {
		rname := pc.Rerank.Provider
		if rname == "" {
			rname = "cohere"
		}
		rt, err := provider.ParseRerankerType(rname)
		if err != nil {
			return nil, err
		}
		reranker, err := provider.NewReranker(rt)
		if err != nil {
			return nil, err
		}
		searchOpts = append(searchOpts, pipeline.WithReranker(reranker))
	}

	searcher, err := pipeline.NewSearcher(embedder, w.vectorStore, collection, searchOpts...)
	if err != nil {
		return nil, err
	}

	return &pipeline.Set{
		Name:       name,
		Collection: collection,
		Ingestor:   ing,
		Searcher:   searcher,
	}, nil
}

// NewEmbedder builds an embedding provider from its config section.
func NewEmbedder(ec config.EmbedderConfig) (provider.Embedder, error) {
	t, err := provider.ParseEmbedderType(ec.Provider)
	if err != nil {
		return nil, err
	}
	return provider.NewEmbedder(t, provider.EmbedderConfig{
		Model: ec.Model,
		Proxy: ec.Proxy,
	})
}

func newSplitter(sc config.SplitterConfig) (*splitter.Splitter, error) {
	opts := []splitter.Option{
		splitter.WithNormalizeWhitespace(sc.NormalizeWhitespace),
	}
	if sc.ChunkSize > 0 {
		opts = append(opts, splitter.WithChunkSize(sc.ChunkSize))
	}
	if sc.Overlap > 0 {
		opts = append(opts, splitter.WithOverlap(sc.Overlap))
	}
	return splitter.New(opts...)
}

func newSummarizer(sc config.SummaryConfig) (*summary.Summarizer, error) {
	lmProvider := sc.Provider
	if lmProvider == "" {
		lmProvider = "openai"
	}

	t, err := provider.ParseLMType(lmProvider)
	if err != nil {
		return nil, err
	}
	lm, err := provider.NewLM(t)
	if err != nil {
		return nil, err
	}

	params := summary.DefaultParams()
	if sc.Level != "" {
		params.Level = summary.Level(sc.Level)
	}
	if sc.Paragraphs > 0 {
		params.Paragraphs = sc.Paragraphs
	}
	if sc.Language != "" {
		params.Language = sc.Language
	}
	params.ModelName = sc.Model

	return summary.New(lm, params)
}

func parseIndex(ic config.IndexConfig) vector.Index {
	index := vector.DefaultIndex()
	if ic.Type != "" {
		index.Type = vector.IndexType(ic.Type)
	}
	if ic.M > 0 {
		index.M = ic.M
	}
	if ic.EfConstruct > 0 {
		index.EfConstruct = ic.EfConstruct
	}
	if ic.Lists > 0 {
		index.Lists = ic.Lists
	}
	return index
}
