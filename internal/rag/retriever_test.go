package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajwalprabhu/File-Chat/internal/models"
	"github.com/prajwalprabhu/File-Chat/internal/testutil"
	"github.com/prajwalprabhu/File-Chat/internal/vectorstore"
)

func TestRetrieveCutsToK(t *testing.T) {
	ctx := context.Background()
	emb := testutil.NewFakeEmbedder()
	m := vectorstore.NewManager(t.TempDir(), emb)

	var cs []models.Chunk
	for i := 0; i < 8; i++ {
		cs = append(cs, models.Chunk{
			Text:     "shared words",
			Metadata: models.ChunkMetadata{OwnerID: 1, SourceFileName: "doc.txt", Sequence: i},
		})
	}
	_, _, err := m.AddChunks(ctx, 1, cs)
	require.NoError(t, err)

	r := NewRetriever(m, emb)
	got, err := r.Retrieve(ctx, 1, "shared words", 3)
	require.NoError(t, err)
	require.Len(t, got.Chunks, 3)
	assert.Equal(t, "doc.txt", got.TopSource)
	// equal scores keep insertion order
	for i, c := range got.Chunks {
		assert.Equal(t, i, c.Metadata.Sequence)
	}

	none, err := r.Retrieve(ctx, 1, "shared words", 0)
	require.NoError(t, err)
	assert.Empty(t, none.Chunks)
}

func TestRetrieveSkipsPlaceholder(t *testing.T) {
	ctx := context.Background()
	emb := testutil.NewFakeEmbedder()
	m := vectorstore.NewManager(t.TempDir(), emb)

	_, _, err := m.AddChunks(ctx, 1, []models.Chunk{{Text: "old", Metadata: models.ChunkMetadata{OwnerID: 1, SourceFileName: "old.txt"}}})
	require.NoError(t, err)
	_, err = m.RemoveSourceFile(ctx, 1, "old.txt")
	require.NoError(t, err)
	_, _, err = m.AddChunks(ctx, 1, []models.Chunk{{Text: "new text", Metadata: models.ChunkMetadata{OwnerID: 1, SourceFileName: "new.txt"}}})
	require.NoError(t, err)

	got, err := NewRetriever(m, emb).Retrieve(ctx, 1, "placeholder", 1)
	require.NoError(t, err)
	require.Len(t, got.Chunks, 1)
	assert.Equal(t, "new.txt", got.TopSource)
}
