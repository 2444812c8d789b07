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

package provider

import (
	"context"
	"errors"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/provider/cohere"
	"github.com/alan-mat/vectra/internal/provider/gemini"
	"github.com/alan-mat/vectra/internal/provider/jina"
	"github.com/alan-mat/vectra/internal/provider/ollama"
	"github.com/alan-mat/vectra/internal/provider/openai"
)

var (
	ErrInvalidLMType        = errors.New("no language model provider found for given type")
	ErrInvalidEmbedderType  = errors.New("no embedding provider found for given type")
	ErrInvalidSegmenterType = errors.New("no segmenter provider found for given type")
	ErrInvalidRerankerType  = errors.New("no reranker provider found for given type")
)

type LMType int
type EmbedderType int
type SegmenterType int
type RerankerType int

const (
	LMTypeOpenAI LMType = iota
	LMTypeGemini
	LMTypeCohere
	LMTypeOllama
)

const (
	EmbedderTypeOpenAI EmbedderType = iota
	EmbedderTypeGemini
	EmbedderTypeCohere
	EmbedderTypeJina
	EmbedderTypeOllama
)

const (
	SegmenterTypeJina SegmenterType = iota
)

const (
	RerankerTypeCohere RerankerType = iota
)

var lmTypeMap = map[string]LMType{
	"openai": LMTypeOpenAI,
	"gemini": LMTypeGemini,
	"cohere": LMTypeCohere,
	"ollama": LMTypeOllama,
}

var embedderTypeMap = map[string]EmbedderType{
	"openai": EmbedderTypeOpenAI,
	"gemini": EmbedderTypeGemini,
	"cohere": EmbedderTypeCohere,
	"jina":   EmbedderTypeJina,
	"ollama": EmbedderTypeOllama,
}

var segmenterTypeMap = map[string]SegmenterType{
	"jina": SegmenterTypeJina,
}

var rerankerTypeMap = map[string]RerankerType{
	"cohere": RerankerTypeCohere,
}

// LM generates text completions as a stream of chunks.
type LM interface {
	Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error)
}

// Embedder creates vector embeddings, either for a single query
// or for documents in batch.
type Embedder interface {
	EmbedQuery(ctx context.Context, q string) ([]float32, error)
	EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error)
	GetDimensions() uint
}

// Segmenter chunks raw text into retrieval-sized segments.
type Segmenter interface {
	ChunkText(ctx context.Context, text string) ([]string, error)
}

type Reranker interface {
	Rerank(ctx context.Context, req api.RerankRequest) (*api.RerankResponse, error)
}

// EmbedderConfig carries optional embedder parameters. The zero value
// uses each provider's defaults.
type EmbedderConfig struct {
	Model string
	Proxy string
}

func ParseLMType(name string) (LMType, error) {
	t, ok := lmTypeMap[name]
	if !ok {
		return 0, ErrInvalidLMType
	}
	return t, nil
}

func ParseEmbedderType(name string) (EmbedderType, error) {
	t, ok := embedderTypeMap[name]
	if !ok {
		return 0, ErrInvalidEmbedderType
	}
	return t, nil
}

func ParseSegmenterType(name string) (SegmenterType, error) {
	t, ok := segmenterTypeMap[name]
	if !ok {
		return 0, ErrInvalidSegmenterType
	}
	return t, nil
}

func ParseRerankerType(name string) (RerankerType, error) {
	t, ok := rerankerTypeMap[name]
	if !ok {
		return 0, ErrInvalidRerankerType
	}
	return t, nil
}

func NewLM(t LMType) (LM, error) {
	switch t {
	case LMTypeOpenAI:
		return openai.New(), nil
	case LMTypeGemini:
		return gemini.New(), nil
	case LMTypeCohere:
		return cohere.New(), nil
	case LMTypeOllama:
		return ollama.New(), nil
	default:
		return nil, ErrInvalidLMType
	}
}

func NewEmbedder(t EmbedderType, cfg EmbedderConfig) (Embedder, error) {
	switch t {
	case EmbedderTypeOpenAI:
		return openai.New(embedOpts(cfg, openai.WithEmbedModel, openai.WithProxy)...), nil
	case EmbedderTypeGemini:
		return gemini.New(embedOpts(cfg, gemini.WithEmbedModel, gemini.WithProxy)...), nil
	case EmbedderTypeCohere:
		return cohere.New(embedOpts(cfg, cohere.WithEmbedModel, cohere.WithProxy)...), nil
	case EmbedderTypeJina:
		return jina.New(embedOpts(cfg, jina.WithEmbedModel, jina.WithProxy)...), nil
	case EmbedderTypeOllama:
		return ollama.New(embedOpts(cfg, ollama.WithEmbedModel, ollama.WithProxy)...), nil
	default:
		return nil, ErrInvalidEmbedderType
	}
}

func NewSegmenter(t SegmenterType) (Segmenter, error) {
	switch t {
	case SegmenterTypeJina:
		return jina.New(), nil
	default:
		return nil, ErrInvalidSegmenterType
	}
}

func NewReranker(t RerankerType) (Reranker, error) {
	switch t {
	case RerankerTypeCohere:
		return cohere.New(), nil
	default:
		return nil, ErrInvalidRerankerType
	}
}

// embedOpts translates an EmbedderConfig into a provider's own option
// funcs, skipping unset fields.
func embedOpts[O any](cfg EmbedderConfig, model func(string) O, proxy func(string) O) []O {
	opts := make([]O, 0, 2)
	if cfg.Model != "" {
		opts = append(opts, model(cfg.Model))
	}
	if cfg.Proxy != "" {
		opts = append(opts, proxy(cfg.Proxy))
	}
	return opts
}
