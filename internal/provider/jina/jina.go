package jina

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/http"
	"golang.org/x/sync/errgroup"
)

const (
	Endpoint                = "https://api.jina.ai"
	SegmentMaxContentLength = 64000
	EmbedItemsMaxLength     = 2048
)

const defaultEmbedModel = "jina-embeddings-v3"

type segmentResponse struct {
	NumTokens int    `json:"num_tokens"`
	Tokenizer string `json:"tokenizer"`
	Usage     struct {
		Tokens int `json:"tokens"`
	} `json:"usage"`
	NumChunks      int      `json:"num_chunks"`
	ChunkPositions [][]int  `json:"chunk_positions"`
	Chunks         []string `json:"chunks"`
}

type embeddingResponse struct {
	Model     string `json:"model"`
	UsageInfo struct {
		TotalTokens  int `json:"total_tokens"`
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type JinaAIProvider struct {
	client     http.Client
	embedModel string
	vectorDims uint

	endpoint string
	proxy    string
}

type Option func(*JinaAIProvider)

func New(opts ...Option) *JinaAIProvider {
	p := &JinaAIProvider{
		embedModel: defaultEmbedModel,
		vectorDims: 1024,
		endpoint:   Endpoint,
	}

	for _, opt := range opts {
		opt(p)
	}

	clientOpts := []http.ClientOption{
		http.WithMaxRetries(3),
		http.WithApiKey(os.Getenv("JINA_API_KEY")),
	}
	if p.proxy != "" {
		clientOpts = append(clientOpts, http.WithProxy(p.proxy))
	}
	p.client = http.NewClient(p.endpoint, clientOpts...)

	return p
}

func WithEndpoint(endpoint string) Option {
	return func(p *JinaAIProvider) {
		p.endpoint = endpoint
	}
}

func WithEmbedModel(model string) Option {
	return func(p *JinaAIProvider) {
		p.embedModel = model
	}
}

func WithProxy(proxyUrl string) Option {
	return func(p *JinaAIProvider) {
		p.proxy = proxyUrl
	}
}

func (p JinaAIProvider) ChunkText(ctx context.Context, text string) ([]string, error) {
	contents := splitContentLen(SegmentMaxContentLength, text)

	responses := make([]*segmentResponse, len(contents))

	var g errgroup.Group
	for i, c := range contents {
		g.Go(func() error {
			resp, err := p.requestSegmenter(c)
			if err == nil {
				responses[i] = resp
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	regex := regexp.MustCompile(`\w+`)
	chunks := make([]string, 0, len(responses))
	var acc string
	for _, resp := range responses {
		for _, c := range resp.Chunks {
			if !regex.MatchString(c) {
				// no words, skip it
				continue
			}

			acc += c
			if strings.HasPrefix(strings.TrimSpace(c), "#") {
				// interpret # as markdown headings
				continue
			} else {
				chunks = append(chunks, strings.TrimSpace(acc))
				acc = ""
			}
		}
	}

	return chunks, nil
}

func (p JinaAIProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	resp, err := p.requestEmbedding([]string{q})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("failed to deserialize embeddings")
	}

	return resp.Data[0].Embedding, nil
}

// EmbedDocuments returns one DocumentEmbedding per requested document.
// Documents exceeding EmbedItemsMaxLength are embedded in several calls
// and their vectors merged back in chunk order.
func (p JinaAIProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		vals := make([][]float32, len(doc.Chunks))

		for start := 0; start < len(doc.Chunks); start += EmbedItemsMaxLength {
			end := min(start+EmbedItemsMaxLength, len(doc.Chunks))
			part := doc.Chunks[start:end]

			resp, err := p.requestEmbedding(part)
			if err != nil {
				return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
			}
			if len(resp.Data) != len(part) {
				return nil, fmt.Errorf("embed request failed: sent %d texts, received %d embeddings", len(part), len(resp.Data))
			}

			for _, e := range resp.Data {
				if e.Index < 0 || e.Index >= len(part) {
					return nil, fmt.Errorf("embed request failed: embedding index %d out of range", e.Index)
				}
				vals[start+e.Index] = e.Embedding
			}
		}

		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: vals,
		})
	}

	return embeddings, nil
}

func (p JinaAIProvider) GetDimensions() uint {
	return p.vectorDims
}

func (p JinaAIProvider) requestSegmenter(content string) (*segmentResponse, error) {
	requestData := map[string]any{
		"return_chunks":    true,
		"max_chunk_length": 768,
		"content":          content,
	}

	resp, err := p.client.Request(http.MethodPost, "/v1/segment", requestData)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}

	var segmentResponse segmentResponse
	err = json.Unmarshal(jsonData, &segmentResponse)
	if err != nil {
		return nil, err
	}

	return &segmentResponse, nil
}

func (p JinaAIProvider) requestEmbedding(input []string) (*embeddingResponse, error) {
	requestData := map[string]any{
		"input":      input,
		"model":      p.embedModel,
		"task":       "retrieval.passage",
		"dimensions": p.vectorDims,
	}

	resp, err := p.client.Request(http.MethodPost, "/v1/embeddings", requestData)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}

	var embeddingResponse embeddingResponse
	err = json.Unmarshal(jsonData, &embeddingResponse)
	if err != nil {
		return nil, err
	}

	return &embeddingResponse, nil
}

func splitContentLen(maxLen int, text string) []string {
	if len(text) < maxLen {
		return []string{text}
	}

	cts := make([]string, 0, (len(text)/maxLen)+1)
	paragraphs := strings.SplitAfter(text, "\n\n")

	acc := ""
	for _, paragraph := range paragraphs {
		if (len(acc) + len(paragraph)) >= maxLen {
			cts = append(cts, acc)
			acc = ""
		}

		acc += paragraph
	}
	if acc != "" {
		cts = append(cts, acc)
	}

	return cts
}
