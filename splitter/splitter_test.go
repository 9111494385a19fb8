package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyContent(t *testing.T) {
	s := NewRecursiveSplitter()

	for _, content := range []string{"", "   ", "\n\t\n"} {
		chunks, err := s.Split(content)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestSplitShortContentSingleChunk(t *testing.T) {
	s := NewRecursiveSplitter()

	chunks, err := s.Split("a short note")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short note", chunks[0])
}

func TestSplitLongContentOrdered(t *testing.T) {
	s := NewRecursiveSplitter(WithChunkSize(64), WithChunkOverlap(0))

	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("every paragraph talks about something different here.\n\n")
	}

	chunks, err := s.Split(b.String())
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
		assert.LessOrEqual(t, len(chunk), 128)
	}
}

func TestSplitDeterministic(t *testing.T) {
	s := NewRecursiveSplitter(WithChunkSize(100), WithChunkOverlap(10))
	content := strings.Repeat("deterministic splitting keeps point ids stable. ", 20)

	first, err := s.Split(content)
	require.NoError(t, err)
	second, err := s.Split(content)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
