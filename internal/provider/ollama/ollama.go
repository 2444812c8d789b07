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

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/http"
)

const (
	Endpoint = "http://localhost:11434"
)

const (
	defaultModel      = "gemma3:4b"
	defaultEmbedModel = "nomic-embed-text"
	defaultEmbedDims  = 768
)

type OllamaProvider struct {
	client       http.Client
	defaultModel string
	embedModel   string
	vectorDims   uint

	endpoint string
	proxy    string
}

type streamResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type Option func(*OllamaProvider)

func New(opts ...Option) *OllamaProvider {
	p := &OllamaProvider{
		defaultModel: defaultModel,
		embedModel:   defaultEmbedModel,
		vectorDims:   defaultEmbedDims,
		endpoint:     Endpoint,
	}

	for _, opt := range opts {
		opt(p)
	}

	clientOpts := []http.ClientOption{
		http.WithMaxRetries(3),
	}
	if p.proxy != "" {
		clientOpts = append(clientOpts, http.WithProxy(p.proxy))
	}
	p.client = http.NewClient(p.endpoint, clientOpts...)

	return p
}

func WithEndpoint(endpoint string) Option {
	return func(p *OllamaProvider) {
		p.endpoint = endpoint
	}
}

func WithEmbedModel(model string) Option {
	return func(p *OllamaProvider) {
		p.embedModel = model
	}
}

func WithEmbedDimensions(dims uint) Option {
	return func(p *OllamaProvider) {
		p.vectorDims = dims
	}
}

func WithProxy(proxyUrl string) Option {
	return func(p *OllamaProvider) {
		p.proxy = proxyUrl
	}
}

func (p OllamaProvider) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	var model string
	if req.ModelName != "" {
		model = req.ModelName
	} else {
		model = p.defaultModel
	}

	requestData := map[string]any{
		"model":  model,
		"prompt": req.Prompt,
		"options": map[string]any{
			"temperature": req.Temperature,
		},
	}

	respBody, err := p.client.RequestStream(http.MethodPost, "/api/generate", requestData)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	return NewOllamaCompletionStream(respBody), nil
}

func (p OllamaProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	resp, err := p.requestEmbedding([]string{q})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embed request failed: empty response for model '%s'", p.embedModel)
	}

	return resp.Embeddings[0], nil
}

func (p OllamaProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		resp, err := p.requestEmbedding(doc.Chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
		}

		if len(resp.Embeddings) != len(doc.Chunks) {
			return nil, fmt.Errorf("embed request failed: expected %d embeddings, received %d",
				len(doc.Chunks), len(resp.Embeddings))
		}

		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: resp.Embeddings,
		})
	}

	return embeddings, nil
}

func (p OllamaProvider) GetDimensions() uint {
	return p.vectorDims
}

func (p OllamaProvider) requestEmbedding(input []string) (*embedResponse, error) {
	requestData := map[string]any{
		"model": p.embedModel,
		"input": input,
	}

	resp, err := p.client.Request(http.MethodPost, "/api/embed", requestData)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}

	var embedResponse embedResponse
	err = json.Unmarshal(jsonData, &embedResponse)
	if err != nil {
		return nil, err
	}

	return &embedResponse, nil
}

type OllamaCompletionStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

func NewOllamaCompletionStream(body io.ReadCloser) *OllamaCompletionStream {
	reader := bufio.NewReader(body)
	s := &OllamaCompletionStream{
		body:   body,
		reader: reader,
	}
	return s
}

func (s OllamaCompletionStream) Recv() (string, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		return "", err
	}

	var response streamResponse
	err = json.Unmarshal(line, &response)
	if err != nil {
		return "", fmt.Errorf("failed to deserialize stream response: %w", err)
	}

	return response.Response, nil
}

func (s OllamaCompletionStream) Close() error {
	return s.body.Close()
}
