package vectorstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/prajwalprabhu/File-Chat/internal/helper"
	"github.com/prajwalprabhu/File-Chat/internal/models"
)

// FileName is the name of the persisted index inside an owner's directory.
const FileName = "vectorstore"

var ErrInvalidOwner = errors.New("owner id must be positive")

// Manager loads, mutates and saves per-owner indices under root/{owner}.
// Writers of the same owner are serialized; different owners never block
// each other.
type Manager struct {
	root     string
	embedder embeddings.Embedder
	model    string
	compress bool
	locks    *xsync.MapOf[int64, *sync.Mutex]
}

type Option func(*Manager)

// WithCompression gzips bundles on save.
func WithCompression(on bool) Option {
	return func(m *Manager) { m.compress = on }
}

// WithModel records the embedding model name in saved bundles.
func WithModel(name string) Option {
	return func(m *Manager) { m.model = name }
}

func NewManager(root string, embedder embeddings.Embedder, opts ...Option) *Manager {
	m := &Manager{
		root:     root,
		embedder: embedder,
		locks:    xsync.NewMapOf[int64, *sync.Mutex](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Dir(owner int64) string {
	return filepath.Join(m.root, strconv.FormatInt(owner, 10))
}

// Path is where the index of owner is persisted.
func (m *Manager) Path(owner int64) string {
	return filepath.Join(m.Dir(owner), FileName)
}

func (m *Manager) lock(owner int64) func() {
	mu, _ := m.locks.LoadOrCompute(owner, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}

// Load reads the persisted index of owner. It returns ErrIndexNotFound if
// none was ever saved and ErrIndexCorrupt if the file is unreadable.
func (m *Manager) Load(ctx context.Context, owner int64) (*Index, error) {
	if owner <= 0 {
		return nil, ErrInvalidOwner
	}
	f, err := os.Open(m.Path(owner))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: owner %d", ErrIndexNotFound, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	b, err := readBundle(bufio.NewReader(f), owner)
	if err != nil {
		return nil, err
	}
	if m.model != "" && b.Model != "" && b.Model != m.model {
		log.Warn().Int64("owner_id", owner).Str("index_model", b.Model).Str("model", m.model).
			Msg("Index was built with a different embedding model")
	}
	return b.index(ctx)
}

// LoadOrCreate is Load for the update path: a missing or corrupt index is
// replaced by a new empty one.
func (m *Manager) LoadOrCreate(ctx context.Context, owner int64) (*Index, error) {
	ix, err := m.Load(ctx, owner)
	switch {
	case err == nil:
		return ix, nil
	case errors.Is(err, ErrIndexNotFound):
		return New(owner, m.model)
	case errors.Is(err, ErrIndexCorrupt):
		log.Warn().Err(err).Int64("owner_id", owner).Msg("Discarding corrupt index")
		return New(owner, m.model)
	default:
		return nil, err
	}
}

// Upsert embeds chunks in one batch and appends them to ix.
func (m *Manager) Upsert(ctx context.Context, ix *Index, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := m.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}
	return ix.Insert(ctx, chunks, vectors)
}

// Save writes ix next to its final path and renames it into place, so a
// concurrent Load sees either the previous or the new index.
func (m *Manager) Save(ctx context.Context, ix *Index) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ix.Len() == 0 {
		return ErrEmptyIndex
	}
	dir := m.Dir(ix.owner)
	if err := helper.CreateFolder(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, FileName+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = writeBundle(w, ix, m.compress); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), m.Path(ix.owner)); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

// AddChunks runs load, upsert and save for owner under the owner's lock. It
// returns the index path and the ids of the inserted entries. Nothing is
// saved if embedding fails.
func (m *Manager) AddChunks(ctx context.Context, owner int64, chunks []models.Chunk) (string, []string, error) {
	if owner <= 0 {
		return "", nil, ErrInvalidOwner
	}
	unlock := m.lock(owner)
	defer unlock()

	ix, err := m.LoadOrCreate(ctx, owner)
	if err != nil {
		return "", nil, err
	}
	before := ix.Len()
	if err := m.Upsert(ctx, ix, chunks); err != nil {
		return "", nil, err
	}
	if ix.Len() == before {
		return m.Path(owner), nil, nil
	}
	if err := m.Save(ctx, ix); err != nil {
		return "", nil, err
	}
	ids := make([]string, 0, ix.Len()-before)
	for _, e := range ix.entries[before:] {
		ids = append(ids, e.ID)
	}
	log.Info().Int64("owner_id", owner).Int("chunks", len(chunks)).Int("entries", ix.Len()).Msg("Index updated")
	return m.Path(owner), ids, nil
}

// RemoveSourceFile deletes every entry of fileName from the owner's index.
// An owner without an index has nothing to remove.
func (m *Manager) RemoveSourceFile(ctx context.Context, owner int64, fileName string) (int, error) {
	removed, err := m.remove(ctx, owner, func(ix *Index) (int, error) {
		return ix.RemoveBySourceFile(ctx, fileName)
	})
	if err != nil || removed == 0 {
		return removed, err
	}
	log.Info().Int64("owner_id", owner).Str("file", fileName).Int("removed", removed).Msg("Index entries removed")
	return removed, nil
}

// RemoveEntries deletes the entries with the given ids, as returned by
// AddChunks, from the owner's index.
func (m *Manager) RemoveEntries(ctx context.Context, owner int64, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	removed, err := m.remove(ctx, owner, func(ix *Index) (int, error) {
		return ix.RemoveByIDs(ctx, ids)
	})
	if err != nil || removed == 0 {
		return removed, err
	}
	log.Info().Int64("owner_id", owner).Int("removed", removed).Msg("Index entries removed")
	return removed, nil
}

func (m *Manager) remove(ctx context.Context, owner int64, drop func(*Index) (int, error)) (int, error) {
	if owner <= 0 {
		return 0, ErrInvalidOwner
	}
	unlock := m.lock(owner)
	defer unlock()

	ix, err := m.Load(ctx, owner)
	if errors.Is(err, ErrIndexNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed, err := drop(ix)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}
	if err := m.Save(ctx, ix); err != nil {
		return 0, err
	}
	return removed, nil
}
