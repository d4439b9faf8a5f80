package rag

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/prajwalprabhu/File-Chat/internal/models"
	"github.com/prajwalprabhu/File-Chat/internal/vectorstore"
)

// IndexLoader is the read side of the index manager.
type IndexLoader interface {
	Load(ctx context.Context, owner int64) (*vectorstore.Index, error)
}

// Retrieval is the ranked context for one query. TopSource names the file
// of the best hit and is empty when nothing was found.
type Retrieval struct {
	Chunks    []models.Chunk
	TopSource string
}

type Retriever struct {
	indices  IndexLoader
	embedder embeddings.Embedder
}

func NewRetriever(indices IndexLoader, embedder embeddings.Embedder) *Retriever {
	return &Retriever{indices: indices, embedder: embedder}
}

// Retrieve returns the k chunks of owner's index most similar to query.
// A missing index is reported as vectorstore.ErrIndexNotFound. An index
// holding only placeholders yields an empty Retrieval without embedding the
// query.
func (r *Retriever) Retrieve(ctx context.Context, owner int64, query string, k int) (*Retrieval, error) {
	ix, err := r.indices.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if k <= 0 || ix.RealLen() == 0 {
		return &Retrieval{}, nil
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := ix.Search(ctx, vec, k+ix.PlaceholderCount())
	if err != nil {
		return nil, err
	}

	out := &Retrieval{Chunks: make([]models.Chunk, 0, k)}
	for _, h := range hits {
		if h.Placeholder {
			continue
		}
		if len(out.Chunks) == k {
			break
		}
		out.Chunks = append(out.Chunks, h.Chunk)
	}
	if len(out.Chunks) > 0 {
		out.TopSource = out.Chunks[0].Metadata.SourceFileName
	}
	log.Debug().Int64("owner_id", owner).Int("chunks", len(out.Chunks)).Str("file", out.TopSource).Msg("Retrieved context")
	return out, nil
}
