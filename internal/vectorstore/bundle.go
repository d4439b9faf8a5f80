package vectorstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// On disk an index is a single file: a 6 byte header followed by the
// msgpack encoded bundle, gzip compressed when flagGzip is set.
const (
	bundleMagic   = "FCVS"
	bundleVersion = 1
	flagGzip      = 1 << 0
)

type bundle struct {
	Owner     int64   `msgpack:"owner"`
	Model     string  `msgpack:"model"`
	Dimension int     `msgpack:"dimension"`
	NextSeq   uint64  `msgpack:"next_seq"`
	Entries   []Entry `msgpack:"entries"`
}

func writeBundle(w io.Writer, ix *Index, compress bool) error {
	var flags byte
	if compress {
		flags |= flagGzip
	}
	header := append([]byte(bundleMagic), bundleVersion, flags)
	if _, err := w.Write(header); err != nil {
		return err
	}

	out := w
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(w)
		out = gz
	}
	b := bundle{
		Owner:     ix.owner,
		Model:     ix.model,
		Dimension: ix.dimension,
		NextSeq:   ix.nextSeq,
		Entries:   ix.entries,
	}
	if err := msgpack.NewEncoder(out).Encode(&b); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if gz != nil {
		return gz.Close()
	}
	return nil
}

// readBundle decodes and validates a bundle written for owner. Every format
// or consistency problem is reported as ErrIndexCorrupt.
func readBundle(r io.Reader, owner int64) (*bundle, error) {
	header := make([]byte, len(bundleMagic)+2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrIndexCorrupt, err)
	}
	if !bytes.Equal(header[:len(bundleMagic)], []byte(bundleMagic)) {
		return nil, fmt.Errorf("%w: bad magic", ErrIndexCorrupt)
	}
	if v := header[len(bundleMagic)]; v != bundleVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrIndexCorrupt, v)
	}

	in := r
	if header[len(bundleMagic)+1]&flagGzip != 0 {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		defer gz.Close()
		in = gz
	}

	var b bundle
	if err := msgpack.NewDecoder(in).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	if err := b.validate(owner); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *bundle) validate(owner int64) error {
	if b.Owner != owner {
		return fmt.Errorf("%w: bundle belongs to owner %d, expected %d", ErrIndexCorrupt, b.Owner, owner)
	}
	if len(b.Entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrIndexCorrupt)
	}
	if b.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", ErrIndexCorrupt, b.Dimension)
	}
	seen := make(map[string]struct{}, len(b.Entries))
	for i, e := range b.Entries {
		if e.ID == "" {
			return fmt.Errorf("%w: entry %d has no id", ErrIndexCorrupt, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate entry id %s", ErrIndexCorrupt, e.ID)
		}
		seen[e.ID] = struct{}{}
		if len(e.Embedding) != b.Dimension {
			return fmt.Errorf("%w: entry %s has %d dimensions, expected %d", ErrIndexCorrupt, e.ID, len(e.Embedding), b.Dimension)
		}
		if e.Chunk.Metadata.OwnerID != owner {
			return fmt.Errorf("%w: entry %s belongs to owner %d", ErrIndexCorrupt, e.ID, e.Chunk.Metadata.OwnerID)
		}
		if e.Seq >= b.NextSeq {
			return fmt.Errorf("%w: entry %s has sequence %d beyond %d", ErrIndexCorrupt, e.ID, e.Seq, b.NextSeq)
		}
	}
	return nil
}

func (b *bundle) index(ctx context.Context) (*Index, error) {
	ix, err := New(b.Owner, b.Model)
	if err != nil {
		return nil, err
	}
	ix.dimension = b.Dimension
	ix.nextSeq = b.NextSeq
	if err := ix.rebuild(ctx, b.Entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	return ix, nil
}
