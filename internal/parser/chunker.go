package parser

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/prajwalprabhu/File-Chat/internal/models"
)

// Segment is one piece of a split text and its byte offset in that text.
type Segment struct {
	Text   string
	Offset int
}

// Provenance is stamped on every chunk produced from one upload.
type Provenance struct {
	OwnerID    int64
	FileName   string
	SourcePath string
	CreatedAt  time.Time
}

// Chunker splits text recursively on a list of separators, coarsest first,
// into pieces of at most Size characters that overlap by up to Overlap.
// A piece only exceeds Size when none of the separators can split it.
type Chunker struct {
	Size    int
	Overlap int

	separators []string
	splitter   textsplitter.RecursiveCharacter
}

func NewChunker(size, overlap int, separators []string) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	if len(separators) == 0 {
		return nil, fmt.Errorf("at least one separator is required")
	}
	return &Chunker{
		Size:       size,
		Overlap:    overlap,
		separators: append([]string(nil), separators...),
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

// Split returns the segments of text in document order. Every segment is a
// substring of text starting at Offset.
func (c *Chunker) Split(text string) ([]Segment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	segments := make([]Segment, 0, len(pieces))
	cursor := 0
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		// pieces never start before the previous one, but may share its start
		idx := strings.Index(text[cursor:], piece)
		if idx < 0 {
			return nil, fmt.Errorf("failed to locate chunk %q after offset %d", truncate(piece, 32), cursor)
		}
		cursor += idx
		segments = append(segments, c.bound(piece, cursor, c.separators)...)
	}

	// re-split pieces can interleave with the overlap of the next piece
	slices.SortStableFunc(segments, func(a, b Segment) int {
		return cmp.Or(cmp.Compare(a.Offset, b.Offset), cmp.Compare(len(a.Text), len(b.Text)))
	})
	return slices.Compact(segments), nil
}

// bound re-splits piece, found at off, until every segment fits Size. The
// merge step of the recursive splitter can overshoot when overlap is kept,
// so its output is not trusted to honor the limit.
func (c *Chunker) bound(piece string, off int, seps []string) []Segment {
	if utf8.RuneCountInString(piece) <= c.Size {
		return trimmed(piece, off)
	}
	at := -1
	for i, s := range seps {
		if s == "" || strings.Contains(piece, s) {
			at = i
			break
		}
	}
	if at < 0 {
		return trimmed(piece, off)
	}
	sep := seps[at]
	if sep == "" {
		return c.splitRunes(piece, off)
	}

	var out []Segment
	start, end := -1, -1
	flush := func() {
		if start >= 0 {
			out = append(out, trimmed(piece[start:end], off+start)...)
			start = -1
		}
	}
	pos := 0
	for _, part := range strings.Split(piece, sep) {
		ps, pe := pos, pos+len(part)
		pos = pe + len(sep)
		if strings.TrimSpace(part) == "" {
			continue
		}
		if start >= 0 && utf8.RuneCountInString(strings.TrimSpace(piece[start:pe])) <= c.Size {
			end = pe
			continue
		}
		flush()
		if utf8.RuneCountInString(strings.TrimSpace(part)) > c.Size {
			out = append(out, c.bound(part, off+ps, seps[at+1:])...)
			continue
		}
		start, end = ps, pe
	}
	flush()
	return out
}

// splitRunes cuts s into windows of Size runes.
func (c *Chunker) splitRunes(s string, off int) []Segment {
	var out []Segment
	start, n := 0, 0
	for i := range s {
		if n == c.Size {
			out = append(out, trimmed(s[start:i], off+start)...)
			start, n = i, 0
		}
		n++
	}
	return append(out, trimmed(s[start:], off+start)...)
}

// trimmed drops surrounding whitespace from s and shifts off to match.
func trimmed(s string, off int) []Segment {
	left := strings.TrimLeftFunc(s, unicode.IsSpace)
	t := strings.TrimRightFunc(left, unicode.IsSpace)
	if t == "" {
		return nil
	}
	return []Segment{{Text: t, Offset: off + len(s) - len(left)}}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SplitDocuments chunks every loader record of one upload. Sequence numbers
// run 0..N-1 across all records.
func (c *Chunker) SplitDocuments(docs []schema.Document, prov Provenance) ([]models.Chunk, error) {
	createdAt := prov.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var chunks []models.Chunk
	for _, doc := range docs {
		segments, err := c.Split(doc.PageContent)
		if err != nil {
			return nil, err
		}
		page := pageOf(doc)
		for _, seg := range segments {
			chunks = append(chunks, models.Chunk{
				Text: seg.Text,
				Metadata: models.ChunkMetadata{
					OwnerID:        prov.OwnerID,
					SourceFileName: prov.FileName,
					Sequence:       len(chunks),
					SourcePath:     prov.SourcePath,
					CreatedAt:      createdAt,
					Page:           page,
					Offset:         seg.Offset,
				},
			})
		}
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}
	return chunks, nil
}
