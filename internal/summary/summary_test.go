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

package summary_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/summary"
)

type fakeStream struct {
	chunks []string
	pos    int
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *fakeStream) Close() error { return nil }

type fakeLM struct {
	lastReq api.GenerationRequest
	chunks  []string
	err     error
}

func (lm *fakeLM) Generate(_ context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	lm.lastReq = req
	if lm.err != nil {
		return nil, lm.err
	}
	return &fakeStream{chunks: lm.chunks}, nil
}

func TestNewValidation(t *testing.T) {
	lm := &fakeLM{}

	tests := []struct {
		name   string
		params summary.Params
		err    error
	}{
		{"defaults", summary.DefaultParams(), nil},
		{"zero value fills defaults", summary.Params{}, nil},
		{"gist", summary.Params{Level: summary.LevelGist}, nil},
		{"bullets", summary.Params{Level: summary.LevelBullets}, nil},
		{"negative paragraphs", summary.Params{Paragraphs: -2}, summary.ErrInvalidParagraphs},
		{"unknown level", summary.Params{Level: "haiku"}, summary.ErrInvalidLevel{Level: "haiku"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := summary.New(lm, tt.params)
			if tt.err == nil {
				if err != nil {
					t.Errorf("got error %v, expected none", err)
				}
				return
			}

			var invalidLevel summary.ErrInvalidLevel
			switch {
			case errors.Is(err, summary.ErrInvalidParagraphs):
			case errors.As(err, &invalidLevel):
				if invalidLevel != tt.err {
					t.Errorf("got error %v, expected %v", err, tt.err)
				}
			default:
				t.Errorf("got error %v, expected %v", err, tt.err)
			}
		})
	}
}

func TestSummarizeJoinsStream(t *testing.T) {
	lm := &fakeLM{chunks: []string{"The document ", "is about ", "vectors.", "\n"}}

	s, err := summary.New(lm, summary.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Summarize(context.Background(), "some long document text")
	if err != nil {
		t.Fatal(err)
	}
	if got != "The document is about vectors." {
		t.Errorf("got summary '%s'", got)
	}
}

func TestSummarizePromptContainsDocument(t *testing.T) {
	lm := &fakeLM{chunks: []string{"ok"}}

	s, err := summary.New(lm, summary.Params{
		Level:    summary.LevelParagraph,
		Language: "german",
	})
	if err != nil {
		t.Fatal(err)
	}

	text := "an extremely specific document body"
	if _, err := s.Summarize(context.Background(), text); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(lm.lastReq.Prompt, text) {
		t.Error("prompt does not contain the document text")
	}
	if !strings.Contains(lm.lastReq.Prompt, "german") {
		t.Error("prompt does not contain the output language")
	}
}

func TestSummarizeParagraphInstruction(t *testing.T) {
	lm := &fakeLM{chunks: []string{"ok"}}

	s, err := summary.New(lm, summary.Params{
		Level:      summary.LevelParagraph,
		Paragraphs: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Summarize(context.Background(), "text"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(lm.lastReq.Prompt, "exactly 3 paragraphs") {
		t.Errorf("prompt misses paragraph instruction: %s", lm.lastReq.Prompt)
	}
}

func TestSummarizeProviderError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	lm := &fakeLM{err: wantErr}

	s, err := summary.New(lm, summary.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Summarize(context.Background(), "text"); !errors.Is(err, wantErr) {
		t.Errorf("got error %v, expected wrapped provider error", err)
	}
}
