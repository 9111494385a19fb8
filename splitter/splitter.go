// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package splitter breaks document content into ordered text chunks for
// embedding. Splitting is deterministic: the same content always yields
// the same chunk sequence, which keeps chunk point ids stable across runs.
package splitter

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter turns document content into a finite, ordered sequence of text
// chunks. Empty content yields zero chunks, not an error.
type Splitter interface {
	Split(content string) ([]string, error)
}

// RecursiveSplitter splits on paragraph, line, word and character
// boundaries in that order of preference, targeting a fixed chunk size
// with overlap between adjacent chunks.
type RecursiveSplitter struct {
	inner textsplitter.RecursiveCharacter
}

// Option configures a RecursiveSplitter.
type Option func(*config)

type config struct {
	chunkSize    int
	chunkOverlap int
}

// WithChunkSize sets the target chunk size in characters. Default is 512.
func WithChunkSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithChunkOverlap sets the overlap between adjacent chunks in characters.
// Default is 64.
func WithChunkOverlap(overlap int) Option {
	return func(c *config) {
		if overlap >= 0 {
			c.chunkOverlap = overlap
		}
	}
}

// NewRecursiveSplitter creates a splitter with the given options.
func NewRecursiveSplitter(opts ...Option) *RecursiveSplitter {
	cfg := &config{chunkSize: 512, chunkOverlap: 64}
	for _, opt := range opts {
		opt(cfg)
	}
	return &RecursiveSplitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.chunkSize),
			textsplitter.WithChunkOverlap(cfg.chunkOverlap),
		),
	}
}

var _ Splitter = (*RecursiveSplitter)(nil)

// Split breaks content into ordered chunks. Whitespace-only content is
// treated as empty.
func (s *RecursiveSplitter) Split(content string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	chunks, err := s.inner.SplitText(content)
	if err != nil {
		return nil, err
	}

	// Drop chunks the underlying splitter reduced to nothing.
	out := chunks[:0]
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	return out, nil
}
