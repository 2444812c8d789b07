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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/provider"
	"github.com/alan-mat/vectra/internal/vector"
)

var ErrEmptyQuery = errors.New("search query must not be empty")

const (
	defaultSearchLimit = 10

	// mmrFetchFactor sets how many candidates are pulled from the store
	// before diversity reordering, as a multiple of the requested limit.
	mmrFetchFactor = 4

	defaultMMRLambda = 0.5
)

// Searcher runs the retrieval flow: embed the query, search a vector
// store collection and optionally rerank the hits.
type Searcher struct {
	embedder   provider.Embedder
	store      vector.Store
	reranker   provider.Reranker
	collection string
}

type SearcherOption func(*Searcher)

func NewSearcher(e provider.Embedder, s vector.Store, collection string, opts ...SearcherOption) (*Searcher, error) {
	if e == nil {
		return nil, ErrMissingEmbedder
	}
	if s == nil {
		return nil, ErrMissingStore
	}
	if collection == "" {
		return nil, fmt.Errorf("searcher requires a collection name")
	}

	sr := &Searcher{
		embedder:   e,
		store:      s,
		collection: collection,
	}
	for _, opt := range opts {
		opt(sr)
	}
	return sr, nil
}

// WithReranker enables a rerank pass over retrieved documents.
func WithReranker(r provider.Reranker) SearcherOption {
	return func(sr *Searcher) {
		sr.reranker = r
	}
}

// MMRParams tunes diversity reordering.
type MMRParams struct {
	// Lambda balances relevance against diversity: 1 is pure relevance,
	// 0 pure diversity. Nil picks the default of 0.5.
	Lambda *float32 `json:"lambda,omitempty"`

	// FetchLimit caps how many candidates are retrieved before
	// reordering. Zero picks a multiple of the search limit.
	FetchLimit uint `json:"fetch_limit"`
}

type SearchParams struct {
	Query string `json:"query"`

	// Limit caps returned documents. Zero uses the default.
	Limit uint `json:"limit"`

	// ScoreThreshold drops hits scoring below the given similarity.
	ScoreThreshold *float32 `json:"score_threshold,omitempty"`

	// Filters restrict hits to points whose payload matches every entry.
	Filters []*vector.QueryMatch `json:"filters,omitempty"`

	// MMR switches the search to max-marginal-relevance reordering.
	MMR *MMRParams `json:"mmr,omitempty"`

	// Rerank runs the searcher's reranker over the hits, when present.
	Rerank bool `json:"rerank"`
}

// Search retrieves the documents most similar to the query. Results are
// ordered by descending score, or by selection order when MMR is set.
func (sr *Searcher) Search(ctx context.Context, params SearchParams) ([]*api.ScoredDocument, error) {
	if params.Query == "" {
		return nil, ErrEmptyQuery
	}
	if params.Limit == 0 {
		params.Limit = defaultSearchLimit
	}

	queryVector, err := sr.embedder.EmbedQuery(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var points []*vector.ScoredPoint
	if params.MMR != nil {
		points, err = sr.searchMMR(ctx, queryVector, params)
	} else {
		points, err = sr.search(ctx, queryVector, params)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query collection '%s': %w", sr.collection, err)
	}

	docs := vector.ScoredDocuments(points)

	if params.Rerank && sr.reranker != nil {
		docs, err = sr.rerank(ctx, params.Query, docs)
		if err != nil {
			return nil, err
		}
	}

	return docs, nil
}

func (sr *Searcher) search(ctx context.Context, queryVector []float32, params SearchParams) ([]*vector.ScoredPoint, error) {
	opts := []vector.QueryParamsOption{
		vector.WithPayload(true),
		vector.WithLimit(params.Limit),
	}
	if params.ScoreThreshold != nil {
		opts = append(opts, vector.WithScoreThreshold(*params.ScoreThreshold))
	}
	for _, f := range params.Filters {
		opts = append(opts, vector.WithFilter(f))
	}

	return sr.store.Query(ctx, vector.NewQueryParams(sr.collection, queryVector, opts...))
}

// searchMMR over-fetches candidates with their vectors, then reorders
// them for diversity and keeps the top limit.
func (sr *Searcher) searchMMR(ctx context.Context, queryVector []float32, params SearchParams) ([]*vector.ScoredPoint, error) {
	fetchLimit := params.MMR.FetchLimit
	if fetchLimit == 0 {
		fetchLimit = params.Limit * mmrFetchFactor
	}
	if fetchLimit < params.Limit {
		fetchLimit = params.Limit
	}

	lambda := float32(defaultMMRLambda)
	if params.MMR.Lambda != nil {
		lambda = *params.MMR.Lambda
	}

	opts := []vector.QueryParamsOption{
		vector.WithPayload(true),
		vector.WithVectors(true),
		vector.WithLimit(fetchLimit),
	}
	if params.ScoreThreshold != nil {
		opts = append(opts, vector.WithScoreThreshold(*params.ScoreThreshold))
	}
	for _, f := range params.Filters {
		opts = append(opts, vector.WithFilter(f))
	}

	candidates, err := sr.store.Query(ctx, vector.NewQueryParams(sr.collection, queryVector, opts...))
	if err != nil {
		return nil, err
	}

	return vector.MaxMarginalRelevance(queryVector, candidates, lambda, int(params.Limit)), nil
}

func (sr *Searcher) rerank(ctx context.Context, query string, docs []*api.ScoredDocument) ([]*api.ScoredDocument, error) {
	if len(docs) == 0 {
		return docs, nil
	}

	contents := make([]string, 0, len(docs))
	for _, doc := range docs {
		contents = append(contents, doc.Content)
	}

	resp, err := sr.reranker.Rerank(ctx, api.RerankRequest{
		Query:     query,
		Documents: contents,
	})
	if err != nil {
		slog.Warn("rerank pass failed, returning similarity order", "err", err)
		return docs, nil
	}

	// Rerankers only see document text, so restore ids and titles from
	// the retrieved set.
	byContent := make(map[string]*api.ScoredDocument, len(docs))
	for _, doc := range docs {
		byContent[doc.Content] = doc
	}

	reranked := make([]*api.ScoredDocument, 0, len(resp.Documents))
	for _, doc := range resp.Documents {
		if orig, ok := byContent[doc.Content]; ok {
			merged := orig.Copy()
			merged.Score = doc.Score
			reranked = append(reranked, merged)
			continue
		}
		reranked = append(reranked, doc)
	}

	return reranked, nil
}
