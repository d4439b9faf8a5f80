package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajwalprabhu/File-Chat/internal/models"
)

func newAssembler(t *testing.T) *ContextAssembler {
	t.Helper()
	a, err := NewContextAssembler(byteTokenizer{})
	require.NoError(t, err)
	return a
}

func chunks(texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, t := range texts {
		out[i] = models.Chunk{Text: t}
	}
	return out
}

func TestAssembleFits(t *testing.T) {
	a := newAssembler(t)

	got := a.Assemble(chunks("first", "second"), 100)
	assert.Equal(t, "first\n\nsecond", got)
	assert.Equal(t, got, a.Assemble(chunks("first", "second"), 100))
}

func TestAssembleTruncates(t *testing.T) {
	a := newAssembler(t)

	assert.Equal(t, "first\n\nse", a.Assemble(chunks("first", "second"), 9))
}

func TestAssembleDropsPartialRune(t *testing.T) {
	a := newAssembler(t)

	// "é" is two bytes, the cut falls between them
	assert.Equal(t, "ab", a.Assemble(chunks("abé"), 3))
}

func TestAssembleUnbounded(t *testing.T) {
	a := newAssembler(t)

	assert.Equal(t, "a\n\nb", a.Assemble(chunks("a", "b"), 0))
	assert.Empty(t, a.Assemble(nil, 10))
}

func TestTiktokenTokenizer(t *testing.T) {
	tok, err := NewTiktoken("cl100k_base")
	require.NoError(t, err)
	a, err := NewContextAssembler(tok)
	require.NoError(t, err)
	text := "The quick brown fox jumps over the lazy dog."

	assert.Equal(t, text, a.Assemble(chunks(text), 1000))
	cut := a.Assemble(chunks(text), 3)
	require.NotEmpty(t, cut)
	assert.True(t, len(cut) < len(text))
	assert.Equal(t, text[:len(cut)], cut)
	assert.Len(t, tok.Encode(cut), 3)
}

func TestTiktokenUnknownEncoding(t *testing.T) {
	_, err := NewTiktoken("no_such_encoding")
	assert.Error(t, err)
}

func TestAssemblerRequiresTokenizer(t *testing.T) {
	_, err := NewContextAssembler(nil)
	assert.ErrorIs(t, err, ErrNoTokenizer)
}
