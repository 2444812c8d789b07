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

// Package summary condenses document text through a language model
// provider before indexing.
package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/provider"
)

const summaryPrompt = `You are a summarization engine. Summarize the document below.

Rules:
- {{ .Instruction }}
- Write the summary in {{ .Language }}.
- Use only information present in the document.
- Do not add commentary, preamble or headings.

Document:
{{ .Text }}

Summary:
`

// Level selects the granularity of the produced summary.
type Level string

const (
	// LevelGist produces one or two sentences.
	LevelGist Level = "gist"
	// LevelParagraph produces full paragraphs, count set by Params.Paragraphs.
	LevelParagraph Level = "paragraph"
	// LevelBullets produces a bullet list, one bullet per key point.
	LevelBullets Level = "bullets"
)

var ErrInvalidParagraphs = errors.New("paragraph count must be at least 1")

type ErrInvalidLevel struct {
	Level Level
}

func (e ErrInvalidLevel) Error() string {
	return fmt.Sprintf("unrecognized summary level '%s'", e.Level)
}

// Params mirrors the summarization options exposed in pipeline configs:
// granularity level, paragraph count and output language.
type Params struct {
	Level      Level
	Paragraphs int
	Language   string

	// ModelName overrides the provider's default generation model.
	ModelName string
}

func DefaultParams() Params {
	return Params{
		Level:      LevelParagraph,
		Paragraphs: 1,
		Language:   "english",
	}
}

type Summarizer struct {
	lm     provider.LM
	params Params
	tmpl   *template.Template
}

func New(lm provider.LM, params Params) (*Summarizer, error) {
	if params.Paragraphs == 0 {
		params.Paragraphs = 1
	}
	if params.Paragraphs < 1 {
		return nil, ErrInvalidParagraphs
	}
	if params.Language == "" {
		params.Language = "english"
	}

	switch params.Level {
	case LevelGist, LevelParagraph, LevelBullets:
	case "":
		params.Level = LevelParagraph
	default:
		return nil, ErrInvalidLevel{Level: params.Level}
	}

	tmpl := template.Must(template.New("summaryPrompt").Parse(summaryPrompt))

	return &Summarizer{
		lm:     lm,
		params: params,
		tmpl:   tmpl,
	}, nil
}

func (s *Summarizer) Params() Params {
	return s.params
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	type templatePayload struct {
		Instruction string
		Language    string
		Text        string
	}
	tp := templatePayload{
		Instruction: s.instruction(),
		Language:    s.params.Language,
		Text:        text,
	}

	var buf bytes.Buffer
	err := s.tmpl.Execute(&buf, tp)
	if err != nil {
		return "", fmt.Errorf("failed to parse summary prompt template: %w", err)
	}

	req := api.GenerationRequest{
		Prompt:      buf.String(),
		ModelName:   s.params.ModelName,
		Temperature: 0.2,
	}
	cs, err := s.lm.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}

	resp, err := api.StreamReadAll(ctx, cs)
	if err != nil {
		return "", fmt.Errorf("failed to read summary response stream: %w", err)
	}

	return strings.TrimSpace(resp), nil
}

func (s *Summarizer) instruction() string {
	switch s.params.Level {
	case LevelGist:
		return "Write a gist of at most two sentences."
	case LevelBullets:
		return "Write a bullet list, one bullet per key point."
	default:
		plural := ""
		if s.params.Paragraphs > 1 {
			plural = "s"
		}
		return fmt.Sprintf("Write exactly %d paragraph%s.", s.params.Paragraphs, plural)
	}
}
