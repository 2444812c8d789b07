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

package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/alan-mat/vectra/internal/api"
	vhttp "github.com/alan-mat/vectra/internal/http"
	"google.golang.org/genai"
)

const defaultEmbedModel = "gemini-embedding-exp-03-07"

type GeminiProvider struct {
	client    *genai.Client
	clientErr error

	embedModel string
	vectorDims *int32

	proxy string
}

type Option func(*GeminiProvider)

func New(opts ...Option) *GeminiProvider {
	p := &GeminiProvider{
		embedModel: defaultEmbedModel,
		vectorDims: new(int32),
	}
	*(p.vectorDims) = 1536

	for _, opt := range opts {
		opt(p)
	}

	config := &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	}
	if p.proxy != "" {
		config.HTTPClient = vhttp.NewProxyHTTPClient(p.proxy, 60*time.Second)
	}

	// Construction can't return an error, so a failed client is
	// surfaced on first use instead.
	p.client, p.clientErr = genai.NewClient(context.Background(), config)

	return p
}

func WithEmbedModel(model string) Option {
	return func(p *GeminiProvider) {
		p.embedModel = model
	}
}

func WithProxy(proxyUrl string) Option {
	return func(p *GeminiProvider) {
		p.proxy = proxyUrl
	}
}

func (p GeminiProvider) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	if p.clientErr != nil {
		return nil, fmt.Errorf("gemini client unavailable: %w", p.clientErr)
	}

	config := &genai.GenerateContentConfig{
		Temperature: &req.Temperature,
	}

	var modelName string
	if req.ModelName != "" {
		modelName = req.ModelName
	} else {
		modelName = "gemini-2.0-flash"
	}

	contents := genai.Text(req.Prompt)
	i := p.client.Models.GenerateContentStream(ctx, modelName, contents, config)

	next, stop := iter.Pull2(i)
	return &GeminiCompletionStream{
		next: next,
		stop: stop,
	}, nil
}

func (p GeminiProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	if p.clientErr != nil {
		return nil, fmt.Errorf("gemini client unavailable: %w", p.clientErr)
	}

	contents := genai.Text(q)

	config := &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: p.vectorDims,
	}

	res, err := p.client.Models.EmbedContent(ctx, p.embedModel, contents, config)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("embed request failed: empty response for model '%s'", p.embedModel)
	}

	return res.Embeddings[0].Values, nil
}

func (p GeminiProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	if p.clientErr != nil {
		return nil, fmt.Errorf("gemini client unavailable: %w", p.clientErr)
	}

	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		contents := make([]*genai.Content, 0, len(doc.Chunks))
		for _, chunk := range doc.Chunks {
			content := genai.NewContentFromText(chunk, genai.RoleUser)
			contents = append(contents, content)
		}

		config := &genai.EmbedContentConfig{
			TaskType:             "RETRIEVAL_DOCUMENT",
			Title:                doc.Title,
			OutputDimensionality: p.vectorDims,
		}

		res, err := p.client.Models.EmbedContent(ctx, p.embedModel, contents, config)
		if err != nil {
			return nil, err
		}
		if len(res.Embeddings) != len(doc.Chunks) {
			return nil, fmt.Errorf("embed request failed: sent %d texts, received %d embeddings", len(doc.Chunks), len(res.Embeddings))
		}

		values := make([][]float32, 0, len(res.Embeddings))
		for _, rEmbedding := range res.Embeddings {
			values = append(values, rEmbedding.Values)
		}

		docEmbed := &api.DocumentEmbedding{
			Title:  doc.Title,
			Values: values,
			Chunks: doc.Chunks,
		}
		embeddings = append(embeddings, docEmbed)
	}

	return embeddings, nil
}

func (p GeminiProvider) GetDimensions() uint {
	return uint(*p.vectorDims)
}

type GeminiCompletionStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (s GeminiCompletionStream) Recv() (string, error) {
	res, err, valid := s.next()
	if !valid {
		// iterator is finished
		return "", io.EOF
	}

	if err != nil {
		return "", err
	}

	return res.Text(), nil
}

func (s GeminiCompletionStream) Close() error {
	s.stop()
	return nil
}
