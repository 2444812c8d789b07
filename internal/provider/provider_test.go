package provider_test

import (
	"errors"
	"testing"

	"github.com/alan-mat/vectra/internal/provider"
)

func TestParseEmbedderType(t *testing.T) {
	tests := []struct {
		name     string
		expected provider.EmbedderType
		err      error
	}{
		{"openai", provider.EmbedderTypeOpenAI, nil},
		{"gemini", provider.EmbedderTypeGemini, nil},
		{"cohere", provider.EmbedderTypeCohere, nil},
		{"jina", provider.EmbedderTypeJina, nil},
		{"ollama", provider.EmbedderTypeOllama, nil},
		{"mistral", 0, provider.ErrInvalidEmbedderType},
		{"", 0, provider.ErrInvalidEmbedderType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := provider.ParseEmbedderType(tt.name)
			if !errors.Is(err, tt.err) {
				t.Fatalf("got error %v, expected %v", err, tt.err)
			}
			if err == nil && got != tt.expected {
				t.Errorf("got type %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestParseSegmenterType(t *testing.T) {
	got, err := provider.ParseSegmenterType("jina")
	if err != nil {
		t.Fatal(err)
	}
	if got != provider.SegmenterTypeJina {
		t.Errorf("got type %v, expected jina", got)
	}

	if _, err := provider.ParseSegmenterType("local"); !errors.Is(err, provider.ErrInvalidSegmenterType) {
		t.Errorf("got error %v, expected ErrInvalidSegmenterType", err)
	}
}

func TestParseRerankerType(t *testing.T) {
	got, err := provider.ParseRerankerType("cohere")
	if err != nil {
		t.Fatal(err)
	}
	if got != provider.RerankerTypeCohere {
		t.Errorf("got type %v, expected cohere", got)
	}

	if _, err := provider.ParseRerankerType("jina"); !errors.Is(err, provider.ErrInvalidRerankerType) {
		t.Errorf("got error %v, expected ErrInvalidRerankerType", err)
	}
}
