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

package cohere

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alan-mat/vectra/internal/api"
	vhttp "github.com/alan-mat/vectra/internal/http"
	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	coherecore "github.com/cohere-ai/cohere-go/v2/core"
)

// EmbedMaxTexts is the maximum number of texts accepted
// by a single cohere embed call.
const EmbedMaxTexts = 96

const defaultEmbedModel = "embed-multilingual-v3.0"

type CohereProvider struct {
	client     *cohereclient.Client
	embedModel string

	proxy      string
	httpClient *http.Client
}

type Option func(*CohereProvider)

func New(opts ...Option) *CohereProvider {
	p := &CohereProvider{
		embedModel: defaultEmbedModel,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.httpClient == nil {
		p.httpClient = &http.Client{
			Timeout: 60 * time.Second,
		}
		if p.proxy != "" {
			p.httpClient = vhttp.NewProxyHTTPClient(p.proxy, 60*time.Second)
		}
	}

	p.client = cohereclient.NewClient(
		cohereclient.WithToken(os.Getenv("COHERE_API_KEY")),
		cohereclient.WithHTTPClient(p.httpClient),
	)
	return p
}

func WithEmbedModel(model string) Option {
	return func(p *CohereProvider) {
		p.embedModel = model
	}
}

func WithProxy(proxyUrl string) Option {
	return func(p *CohereProvider) {
		p.proxy = proxyUrl
	}
}

// WithHTTPClient replaces the underlying transport, taking precedence
// over WithProxy.
func WithHTTPClient(c *http.Client) Option {
	return func(p *CohereProvider) {
		p.httpClient = c
	}
}

func (p CohereProvider) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	temp := float64(req.Temperature)
	cohereReq := &cohere.V2ChatStreamRequest{
		Model:       "command-r-08-2024",
		Temperature: &temp,
	}

	if req.ModelName != "" {
		cohereReq.Model = req.ModelName
	}

	cohereReq.Messages = append(cohereReq.Messages, &cohere.ChatMessageV2{
		Role: "user",
		User: &cohere.UserMessage{Content: &cohere.UserMessageContent{
			String: req.Prompt,
		}},
	})

	stream, err := p.client.V2.ChatStream(ctx, cohereReq)
	if err != nil {
		return nil, fmt.Errorf("chat streaming request failed: %w", err)
	}

	return &CohereCompletionStream{stream: stream}, nil
}

func (p CohereProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	resp, err := p.client.V2.Embed(
		ctx,
		&cohere.V2EmbedRequest{
			Texts:          []string{q},
			Model:          p.embedModel,
			InputType:      cohere.EmbedInputTypeSearchQuery,
			EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}

	if resp.Embeddings == nil || len(resp.Embeddings.Float) == 0 {
		return nil, fmt.Errorf("embed request failed: empty response for model '%s'", p.embedModel)
	}

	f32 := make([]float32, 0, len(resp.Embeddings.Float[0]))
	for _, f := range resp.Embeddings.Float[0] {
		f32 = append(f32, float32(f))
	}

	return f32, nil
}

// EmbedDocuments returns one DocumentEmbedding per requested document.
// Documents exceeding EmbedMaxTexts are embedded in several calls and
// their vectors merged back in chunk order.
func (p CohereProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	docEmbeddings := make([]*api.DocumentEmbedding, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			values := make([][]float32, 0, len(doc.Chunks))

			for start := 0; start < len(doc.Chunks); start += EmbedMaxTexts {
				end := min(start+EmbedMaxTexts, len(doc.Chunks))
				texts := doc.Chunks[start:end]

				resp, err := p.client.V2.Embed(gctx, &cohere.V2EmbedRequest{
					Texts:          texts,
					Model:          p.embedModel,
					InputType:      cohere.EmbedInputTypeSearchDocument,
					EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
				})
				if err != nil {
					return fmt.Errorf("embed request for document '%s' failed: %w", doc.Title, err)
				}
				if resp.Embeddings == nil || len(resp.Embeddings.Float) != len(texts) {
					return fmt.Errorf("embed request for document '%s' failed: response is missing vectors", doc.Title)
				}

				for _, cohereVector := range resp.Embeddings.Float {
					vector := make([]float32, 0, len(cohereVector))
					for _, f64 := range cohereVector {
						vector = append(vector, float32(f64))
					}
					values = append(values, vector)
				}
			}

			docEmbeddings[i] = &api.DocumentEmbedding{
				Title:  doc.Title,
				Chunks: doc.Chunks,
				Values: values,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docEmbeddings, nil
}

func (p CohereProvider) GetDimensions() uint {
	return 1024
}

func (p CohereProvider) Rerank(ctx context.Context, req api.RerankRequest) (*api.RerankResponse, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("rerank request failed: missing parameter 'query' in request")
	}

	if len(req.Documents) == 0 {
		return nil, fmt.Errorf("rerank request failed: missing parameter 'documents' in request")
	}

	returnDocuments := true
	coReq := &cohere.V2RerankRequest{
		Query:           req.Query,
		Documents:       req.Documents,
		Model:           "rerank-v3.5",
		ReturnDocuments: &returnDocuments,
	}

	if req.ModelName != "" {
		coReq.Model = req.ModelName
	}

	if req.Limit != 0 {
		coReq.TopN = &req.Limit
	}

	threshold := float64(api.RerankScoreThreshold)
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	resp, err := p.client.V2.Rerank(ctx, coReq)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}

	scoredDocs := make([]*api.ScoredDocument, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.RelevanceScore >= threshold {
			scoredDocs = append(scoredDocs, &api.ScoredDocument{
				Content: result.Document.Text,
				Score:   result.RelevanceScore,
			})
		}
	}

	return &api.RerankResponse{
		Query:     req.Query,
		Documents: scoredDocs,
		ModelName: coReq.Model,
	}, nil
}

type CohereCompletionStream struct {
	stream *coherecore.Stream[cohere.StreamedChatResponseV2]
}

func (s CohereCompletionStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return "", err
		}

		if resp.ContentDelta != nil {
			return *resp.ContentDelta.Delta.Message.Content.Text, nil
		}
	}
}

func (s CohereCompletionStream) Close() error {
	return s.stream.Close()
}
