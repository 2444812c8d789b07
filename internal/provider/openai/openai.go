package openai

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alan-mat/vectra/internal/api"
	vhttp "github.com/alan-mat/vectra/internal/http"
	"github.com/sashabaranov/go-openai"
)

const embedMaxDocsLength = 2048

const defaultEmbedModel = "text-embedding-3-small"

type OpenAIProvider struct {
	client     *openai.Client
	embedModel string
	vectorDims int

	proxy string
}

type Option func(*OpenAIProvider)

func New(opts ...Option) *OpenAIProvider {
	p := &OpenAIProvider{
		embedModel: defaultEmbedModel,
		vectorDims: 1024,
	}

	for _, opt := range opts {
		opt(p)
	}

	config := openai.DefaultConfig(os.Getenv("OPENAI_API_KEY"))
	if p.proxy != "" {
		config.HTTPClient = vhttp.NewProxyHTTPClient(p.proxy, 60*time.Second)
	}
	p.client = openai.NewClientWithConfig(config)

	return p
}

func WithEmbedModel(model string) Option {
	return func(p *OpenAIProvider) {
		p.embedModel = model
	}
}

func WithProxy(proxyUrl string) Option {
	return func(p *OpenAIProvider) {
		p.proxy = proxyUrl
	}
}

func (p OpenAIProvider) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	openaiReq := openai.ChatCompletionRequest{
		Model:       openai.GPT4Dot1Nano,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
		Stream: true,
	}

	if req.ModelName != "" {
		openaiReq.Model = req.ModelName
	}

	s, err := p.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, err
	}

	completionStream := &OpenAIChatStream{
		stream: s,
	}
	return completionStream, nil
}

func (p OpenAIProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	openaiReq := &openai.EmbeddingRequestStrings{
		Input:          []string{q},
		Model:          openai.EmbeddingModel(p.embedModel),
		EncodingFormat: "float",
		Dimensions:     p.vectorDims,
	}

	res, err := p.client.CreateEmbeddings(ctx, openaiReq)
	if err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("embed request failed: empty response for model '%s'", p.embedModel)
	}

	return res.Data[0].Embedding, nil
}

func (p OpenAIProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	docEmbeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		if len(doc.Chunks) > embedMaxDocsLength {
			return nil, fmt.Errorf("length of chunks exceeds limit: accepts '%d', received '%d'", embedMaxDocsLength, len(doc.Chunks))
		}

		openaiReq := &openai.EmbeddingRequestStrings{
			Input:          doc.Chunks,
			Model:          openai.EmbeddingModel(p.embedModel),
			EncodingFormat: "float",
			Dimensions:     p.vectorDims,
		}

		res, err := p.client.CreateEmbeddings(ctx, openaiReq)
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
		}
		if len(res.Data) != len(doc.Chunks) {
			return nil, fmt.Errorf("embed request failed: sent %d texts, received %d embeddings", len(doc.Chunks), len(res.Data))
		}

		vals := make([][]float32, 0, len(res.Data))
		for _, e := range res.Data {
			vals = append(vals, e.Embedding)
		}

		docEmbeddings = append(docEmbeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: vals,
		})
	}

	return docEmbeddings, nil
}

func (p OpenAIProvider) GetDimensions() uint {
	return uint(p.vectorDims)
}

type OpenAIChatStream struct {
	stream *openai.ChatCompletionStream
}

func (s OpenAIChatStream) Recv() (string, error) {
	res, err := s.stream.Recv()
	if err != nil {
		return "", err
	}

	return res.Choices[0].Delta.Content, nil
}

func (s OpenAIChatStream) Close() error {
	return s.stream.Close()
}
