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

// Package splitter divides document text into retrieval-sized chunks
// without calling out to a remote segmenter.
package splitter

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidChunkSize = errors.New("chunk size must be greater than zero")
	ErrInvalidOverlap   = errors.New("overlap must be smaller than chunk size")
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
	normalize  bool
}

type Option func(*Splitter)

func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		chunkSize:  768,
		overlap:    0,
		separators: defaultSeparators,
		normalize:  false,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if s.overlap < 0 || s.overlap >= s.chunkSize {
		return nil, ErrInvalidOverlap
	}

	return s, nil
}

func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		s.chunkSize = size
	}
}

func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.overlap = overlap
	}
}

func WithSeparators(separators []string) Option {
	return func(s *Splitter) {
		s.separators = separators
	}
}

func WithNormalizeWhitespace(normalize bool) Option {
	return func(s *Splitter) {
		s.normalize = normalize
	}
}

// Split divides text into chunks of at most the configured chunk size,
// preferring to break at the earliest separator that keeps pieces whole.
func (s *Splitter) Split(text string) []string {
	if s.normalize {
		text = Normalize(text)
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	if len([]rune(text)) <= s.chunkSize {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}

	sep, rest := pickSeparator(text, separators)
	if sep == "" {
		return s.splitRunes(text)
	}

	chunks := make([]string, 0, 1)
	fitting := make([]string, 0)

	for _, piece := range strings.SplitAfter(text, sep) {
		if len([]rune(piece)) > s.chunkSize {
			chunks = append(chunks, s.merge(fitting)...)
			fitting = fitting[:0]
			chunks = append(chunks, s.split(piece, rest)...)
			continue
		}
		fitting = append(fitting, piece)
	}
	chunks = append(chunks, s.merge(fitting)...)

	return chunks
}

// merge greedily joins adjacent pieces into chunks up to the chunk size,
// carrying the configured overlap between consecutive chunks.
func (s *Splitter) merge(pieces []string) []string {
	chunks := make([]string, 0, len(pieces))
	acc := ""

	for _, piece := range pieces {
		if acc != "" && len([]rune(acc))+len([]rune(piece)) > s.chunkSize {
			if t := strings.TrimSpace(acc); t != "" {
				chunks = append(chunks, t)
			}
			acc = s.overlapTail(acc)
		}
		acc += piece
	}

	if t := strings.TrimSpace(acc); t != "" {
		chunks = append(chunks, t)
	}
	return chunks
}

func (s *Splitter) overlapTail(chunk string) string {
	if s.overlap == 0 {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) <= s.overlap {
		return chunk
	}
	return string(runes[len(runes)-s.overlap:])
}

func (s *Splitter) splitRunes(text string) []string {
	runes := []rune(text)
	step := s.chunkSize - s.overlap

	chunks := make([]string, 0, (len(runes)/step)+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if t := strings.TrimSpace(string(runes[start:end])); t != "" {
			chunks = append(chunks, t)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// Normalize collapses runs of spaces and tabs, trims trailing whitespace
// on every line and reduces blank-line runs to a single paragraph break.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	text = strings.Join(lines, "\n")

	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
