package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/prajwalprabhu/File-Chat/internal/helper"
	"github.com/prajwalprabhu/File-Chat/internal/models"
)

var (
	ErrIndexNotFound     = errors.New("index not found")
	ErrIndexCorrupt      = errors.New("index corrupt")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrOwnerMismatch     = errors.New("chunk owner does not match index owner")
	ErrEmptyIndex        = errors.New("refusing to persist an empty index")
)

// Entry is one stored vector and the chunk it was computed from.
type Entry struct {
	ID          string       `msgpack:"id"`
	Seq         uint64       `msgpack:"seq"`
	Embedding   []float32    `msgpack:"embedding"`
	Chunk       models.Chunk `msgpack:"chunk"`
	Placeholder bool         `msgpack:"placeholder,omitempty"`
}

// Hit is a search result. Higher Score means more similar.
type Hit struct {
	Chunk       models.Chunk
	Score       float32
	Placeholder bool
}

// Index is the vector index of one owner: insertion ordered entries plus a
// chromem collection used as the search structure. An Index is not safe for
// concurrent mutation; the Manager serializes writers per owner.
type Index struct {
	owner     int64
	model     string
	dimension int
	nextSeq   uint64
	entries   []Entry
	byID      map[string]int
	coll      *chromem.Collection
}

// precomputed is handed to chromem so a missing vector fails loudly instead
// of reaching out to a default embedding service.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errors.New("vectorstore: embeddings must be computed before insert")
}

func newCollection(owner int64) (*chromem.Collection, error) {
	db := chromem.NewDB()
	coll, err := db.CreateCollection("owner-"+strconv.FormatInt(owner, 10), nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return coll, nil
}

// New returns an empty index for owner.
func New(owner int64, model string) (*Index, error) {
	coll, err := newCollection(owner)
	if err != nil {
		return nil, err
	}
	return &Index{owner: owner, model: model, byID: map[string]int{}, coll: coll}, nil
}

func (ix *Index) Owner() int64   { return ix.owner }
func (ix *Index) Model() string  { return ix.model }
func (ix *Index) Dimension() int { return ix.dimension }

// Len counts all entries, placeholders included.
func (ix *Index) Len() int { return len(ix.entries) }

func (ix *Index) PlaceholderCount() int {
	n := 0
	for _, e := range ix.entries {
		if e.Placeholder {
			n++
		}
	}
	return n
}

// RealLen counts entries that came from uploaded documents.
func (ix *Index) RealLen() int { return len(ix.entries) - ix.PlaceholderCount() }

// Insert appends one entry per chunk. Existing entries are left untouched.
// Nothing is inserted if any chunk or vector is invalid.
func (ix *Index) Insert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(chunks) == 0 {
		return nil
	}

	dim := ix.dimension
	if dim == 0 {
		dim = len(vectors[0])
	}
	entries := make([]Entry, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk.Metadata.OwnerID != ix.owner {
			return fmt.Errorf("%w: chunk owner %d, index owner %d", ErrOwnerMismatch, chunk.Metadata.OwnerID, ix.owner)
		}
		if len(vectors[i]) != dim || dim == 0 {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d", ErrDimensionMismatch, i, len(vectors[i]), dim)
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			ID:        id,
			Seq:       ix.nextSeq + uint64(i),
			Embedding: vectors[i],
			Chunk:     chunk,
		})
	}

	if err := addToCollection(ctx, ix.coll, entries); err != nil {
		return err
	}
	ix.dimension = dim
	ix.nextSeq += uint64(len(entries))
	for _, e := range entries {
		ix.byID[e.ID] = len(ix.entries)
		ix.entries = append(ix.entries, e)
	}
	return nil
}

// RemoveBySourceFile drops every entry of fileName and rebuilds the search
// structure from the surviving vectors. If nothing survives a placeholder
// entry is inserted so the index stays loadable.
func (ix *Index) RemoveBySourceFile(ctx context.Context, fileName string) (int, error) {
	return ix.removeWhere(ctx, func(e Entry) bool {
		return e.Chunk.Metadata.SourceFileName == fileName
	})
}

// RemoveByIDs drops the entries with the given ids, the same way
// RemoveBySourceFile does. Unknown ids are ignored.
func (ix *Index) RemoveByIDs(ctx context.Context, ids []string) (int, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return ix.removeWhere(ctx, func(e Entry) bool {
		_, ok := drop[e.ID]
		return ok
	})
}

func (ix *Index) removeWhere(ctx context.Context, match func(Entry) bool) (int, error) {
	survivors := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		if !e.Placeholder && match(e) {
			continue
		}
		survivors = append(survivors, e)
	}
	removed := len(ix.entries) - len(survivors)
	if removed == 0 {
		return 0, nil
	}

	if len(survivors) == 0 {
		p, err := ix.placeholder()
		if err != nil {
			return 0, err
		}
		survivors = append(survivors, p)
	}
	if err := ix.rebuild(ctx, survivors); err != nil {
		return 0, err
	}
	return removed, nil
}

func (ix *Index) placeholder() (Entry, error) {
	if ix.dimension == 0 {
		return Entry{}, fmt.Errorf("%w: cannot build a placeholder without a dimension", ErrDimensionMismatch)
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return Entry{}, err
	}
	vec := make([]float32, ix.dimension)
	vec[0] = 1
	e := Entry{
		ID:        id,
		Seq:       ix.nextSeq,
		Embedding: vec,
		Chunk: models.Chunk{
			Text:     models.PlaceholderText,
			Metadata: models.ChunkMetadata{OwnerID: ix.owner, Offset: -1},
		},
		Placeholder: true,
	}
	ix.nextSeq++
	return e, nil
}

func (ix *Index) rebuild(ctx context.Context, entries []Entry) error {
	coll, err := newCollection(ix.owner)
	if err != nil {
		return err
	}
	if err := addToCollection(ctx, coll, entries); err != nil {
		return err
	}
	ix.coll = coll
	ix.entries = entries
	ix.byID = make(map[string]int, len(entries))
	for i, e := range entries {
		ix.byID[e.ID] = i
	}
	return nil
}

func addToCollection(ctx context.Context, coll *chromem.Collection, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Chunk.Text,
			Embedding: e.Embedding,
			Metadata: map[string]string{
				"source_file_name": e.Chunk.Metadata.SourceFileName,
				"seq":              strconv.FormatUint(e.Seq, 10),
			},
		}
	}
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to k entries ordered by cosine similarity to query,
// ties broken by insertion order.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 || len(ix.entries) == 0 {
		return nil, nil
	}
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), ix.dimension)
	}
	if isZero(query) {
		return nil, errors.New("query vector has zero magnitude")
	}

	results, err := ix.coll.QueryEmbedding(ctx, query, ix.coll.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	type ranked struct {
		hit Hit
		seq uint64
	}
	ordered := make([]ranked, 0, len(results))
	for _, r := range results {
		pos, ok := ix.byID[r.ID]
		if !ok {
			continue
		}
		e := ix.entries[pos]
		ordered = append(ordered, ranked{
			hit: Hit{Chunk: e.Chunk, Score: r.Similarity, Placeholder: e.Placeholder},
			seq: e.Seq,
		})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].hit.Score != ordered[j].hit.Score {
			return ordered[i].hit.Score > ordered[j].hit.Score
		}
		return ordered[i].seq < ordered[j].seq
	})
	if len(ordered) > k {
		ordered = ordered[:k]
	}

	hits := make([]Hit, len(ordered))
	for i, r := range ordered {
		hits[i] = r.hit
	}
	return hits, nil
}

func isZero(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum) == 0
}
