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

package vector

import (
	"context"
	"errors"

	"github.com/alan-mat/vectra/internal/api"
)

var (
	ErrInvalidStoreType      = errors.New("no vector store found for given type")
	ErrFailedStoreInitialize = errors.New("failed to initialise vector store")
	ErrUnsupportedIndexType  = errors.New("index type not supported by this store")
)

const (
	StoreTypeQdrant = iota
	StoreTypePgvector
)

var storeTypeMap = map[string]StoreType{
	"qdrant":   StoreTypeQdrant,
	"pgvector": StoreTypePgvector,
}

type StoreType int

func ParseStoreType(name string) (StoreType, error) {
	t, ok := storeTypeMap[name]
	if !ok {
		return 0, ErrInvalidStoreType
	}
	return t, nil
}

type Store interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, collection Collection) error

	// CreateIndex builds an approximate-nearest-neighbour index over the
	// collection's vectors.
	CreateIndex(ctx context.Context, collectionName string, index Index) error

	Upsert(ctx context.Context, collectionName string, points []*Point) error

	Query(ctx context.Context, params *QueryParams) ([]*ScoredPoint, error)

	Close() error
}

type Collection struct {
	Name       string
	Dimensions uint
}

type IndexType string

const (
	IndexTypeHNSW    IndexType = "hnsw"
	IndexTypeIVFFlat IndexType = "ivfflat"
)

// Index describes an ANN index request. Fields not used by the chosen
// index type are ignored by the backends.
type Index struct {
	Type IndexType

	// HNSW
	M           int
	EfConstruct int

	// IVFFlat
	Lists int
}

func DefaultIndex() Index {
	return Index{
		Type:        IndexTypeHNSW,
		M:           16,
		EfConstruct: 64,
		Lists:       100,
	}
}

type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]string

	// Vector is only populated when the query requested vectors.
	Vector []float32
}

// ScoredDocuments converts retrieved points into API documents, reading
// the well-known payload fields set at indexing time.
func ScoredDocuments(points []*ScoredPoint) []*api.ScoredDocument {
	docs := make([]*api.ScoredDocument, 0, len(points))
	for _, p := range points {
		text, ok := p.Payload["text"]
		if !ok {
			continue
		}
		docs = append(docs, &api.ScoredDocument{
			ID:      p.ID,
			Content: text,
			Score:   float64(p.Score),
			Title:   p.Payload["title"],
			Source:  p.Payload["source"],
		})
	}
	return docs
}

type QueryMatch struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type QueryParams struct {
	collection     string
	query          []float32
	withPayload    bool
	withVectors    bool
	limit          uint
	scoreThreshold *float32
	filters        []*QueryMatch
}

type QueryParamsOption func(*QueryParams)

func NewQueryParams(collection string, query []float32, opts ...QueryParamsOption) *QueryParams {
	qp := &QueryParams{
		collection:  collection,
		query:       query,
		withPayload: false,
		withVectors: false,
		limit:       0,
		filters:     make([]*QueryMatch, 0),
	}

	for _, opt := range opts {
		opt(qp)
	}
	return qp
}

func WithPayload(w bool) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.withPayload = w
	}
}

func WithVectors(w bool) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.withVectors = w
	}
}

func WithLimit(limit uint) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.limit = limit
	}
}

func WithScoreThreshold(threshold float32) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.scoreThreshold = &threshold
	}
}

func WithFilter(filter *QueryMatch) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.filters = append(qp.filters, filter)
	}
}
