package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"github.com/prajwalprabhu/File-Chat/internal/config"
	"github.com/prajwalprabhu/File-Chat/internal/db"
	"github.com/prajwalprabhu/File-Chat/internal/helper"
	"github.com/prajwalprabhu/File-Chat/internal/models"
	"github.com/prajwalprabhu/File-Chat/internal/parser"
	"github.com/prajwalprabhu/File-Chat/internal/render"
	"github.com/prajwalprabhu/File-Chat/internal/vectorstore"
)

var (
	ErrInvalidFileName = errors.New("invalid file name")
	ErrEmptyQuery      = errors.New("query is empty")
)

// Store is everything the service persists in the relational database.
type Store interface {
	TranscriptStore
	CreateFile(ctx context.Context, f *db.File) error
	GetFile(ctx context.Context, userID, fileID int64) (*db.File, error)
	ListFiles(ctx context.Context, userID int64) ([]db.File, error)
	DeleteFile(ctx context.Context, userID, fileID int64) error
	GetChat(ctx context.Context, userID, chatID int64) (*db.Chat, error)
	ListChats(ctx context.Context, userID int64) ([]db.Chat, error)
	LatestChat(ctx context.Context, userID int64) (*db.Chat, error)
	Messages(ctx context.Context, chatID int64) ([]db.ChatMessage, error)
	DeleteChat(ctx context.Context, userID, chatID int64) error
}

// Service ties the upload path and the query path together.
type Service struct {
	cfg          config.RAGConfig
	uploadDir    string
	store        Store
	chunker      *parser.Chunker
	indices      *vectorstore.Manager
	retriever    *Retriever
	assembler    *ContextAssembler
	orchestrator *Orchestrator
}

// Deps are the external clients a Service is built from.
type Deps struct {
	Store     Store
	Embedder  embeddings.Embedder
	LLM       llms.Model
	Tokenizer Tokenizer
	Renderer  *render.Renderer
}

func NewService(cfg *config.Config, deps Deps) (*Service, error) {
	chunker, err := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.Separators)
	if err != nil {
		return nil, err
	}
	assembler, err := NewContextAssembler(deps.Tokenizer)
	if err != nil {
		return nil, err
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = render.New()
	}
	indices := vectorstore.NewManager(cfg.Storage.EmbeddingsDir, deps.Embedder,
		vectorstore.WithModel(cfg.EmbedLLM.Model),
		vectorstore.WithCompression(cfg.Storage.CompressIndex),
	)
	return &Service{
		cfg:          cfg.RAG,
		uploadDir:    cfg.Storage.UploadDir,
		store:        deps.Store,
		chunker:      chunker,
		indices:      indices,
		retriever:    NewRetriever(indices, deps.Embedder),
		assembler:    assembler,
		orchestrator: NewOrchestrator(deps.LLM, deps.Store, renderer, cfg.RAG.HistoryDepth, cfg.RAG.TitleMaxChars),
	}, nil
}

// Indices exposes the index manager, mostly for inspection from the CLI.
func (s *Service) Indices() *vectorstore.Manager {
	return s.indices
}

// UploadPath is where fileName of owner is stored.
func (s *Service) UploadPath(owner int64, fileName string) string {
	return filepath.Join(s.uploadDir, strconv.FormatInt(owner, 10), fileName)
}

// ProcessUpload loads, chunks and embeds the file at filePath and adds it to
// the owner's index. It returns the index path.
func (s *Service) ProcessUpload(ctx context.Context, owner int64, filePath, fileName string) (string, error) {
	path, _, err := s.processUpload(ctx, owner, filePath, filePath, fileName)
	return path, err
}

// Chunk loads and splits the file without touching the index.
func (s *Service) Chunk(ctx context.Context, owner int64, filePath, fileName string) ([]models.Chunk, error) {
	return s.chunk(ctx, owner, filePath, filePath, fileName)
}

// chunk reads the file at readPath and stamps sourcePath on its chunks, so
// an upload can be indexed before it is moved to its final place.
func (s *Service) chunk(ctx context.Context, owner int64, readPath, sourcePath, fileName string) ([]models.Chunk, error) {
	if owner <= 0 {
		return nil, vectorstore.ErrInvalidOwner
	}
	docs, err := parser.Load(ctx, readPath, fileName)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunker.SplitDocuments(docs, parser.Provenance{
		OwnerID:    owner,
		FileName:   fileName,
		SourcePath: sourcePath,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %s: %w", fileName, err)
	}
	return chunks, nil
}

func (s *Service) processUpload(ctx context.Context, owner int64, readPath, sourcePath, fileName string) (string, []string, error) {
	chunks, err := s.chunk(ctx, owner, readPath, sourcePath, fileName)
	if err != nil {
		return "", nil, err
	}
	path, ids, err := s.indices.AddChunks(ctx, owner, chunks)
	if err != nil {
		return "", nil, err
	}
	log.Info().Int64("owner_id", owner).Str("file", fileName).Int("chunks", len(chunks)).Msg("Document indexed")
	return path, ids, nil
}

// Upload stores r as fileName of owner, indexes it and records it. The body
// is staged in a temp file and only renamed over the stored file once the
// index and the database record are both written. On failure a previous
// upload of the same name keeps its file and its index entries.
func (s *Service) Upload(ctx context.Context, owner int64, fileName string, r io.Reader) (*db.File, error) {
	if owner <= 0 {
		return nil, vectorstore.ErrInvalidOwner
	}
	name := helper.SafeFileName(fileName)
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFileName, fileName)
	}
	if _, err := parser.LoaderFor(name); err != nil {
		return nil, err
	}

	dest := s.UploadPath(owner, name)
	staged, err := stageFile(filepath.Dir(dest), name, r)
	if err != nil {
		return nil, err
	}
	defer removeQuietly(staged)

	indexPath, ids, err := s.processUpload(ctx, owner, staged, dest, name)
	if err != nil {
		return nil, err
	}

	rec := &db.File{
		UserID:         owner,
		FileName:       name,
		FilePath:       dest,
		EmbeddingsPath: indexPath,
		Chunks:         len(ids),
	}
	if err := s.store.CreateFile(ctx, rec); err != nil {
		s.rollbackEntries(ctx, owner, name, ids)
		return nil, err
	}
	if err := os.Rename(staged, dest); err != nil {
		if derr := s.store.DeleteFile(ctx, owner, rec.ID); derr != nil {
			log.Error().Err(derr).Int64("owner_id", owner).Int64("file_id", rec.ID).Msg("Error rolling back file record")
		}
		s.rollbackEntries(ctx, owner, name, ids)
		return nil, fmt.Errorf("failed to store %s: %w", dest, err)
	}
	return rec, nil
}

func (s *Service) rollbackEntries(ctx context.Context, owner int64, name string, ids []string) {
	if _, err := s.indices.RemoveEntries(context.WithoutCancel(ctx), owner, ids); err != nil {
		log.Error().Err(err).Int64("owner_id", owner).Str("file", name).Msg("Error rolling back index entries")
	}
}

// stageFile copies r into a new temp file in dir whose name keeps the
// extension of name.
func stageFile(dir, name string, r io.Reader) (path string, err error) {
	if err := helper.CreateFolder(dir); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, ".upload-*"+filepath.Ext(name))
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			removeQuietly(f.Name())
		}
	}()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", f.Name(), err)
	}
	return f.Name(), nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Error removing file")
	}
}

// AnswerQuery answers query in chat chatID of owner, or in a new chat when
// chatID is 0. An owner without documents still gets an answer, flagged
// with NoDocuments.
func (s *Service) AnswerQuery(ctx context.Context, owner, chatID int64, query string) (*Exchange, error) {
	if owner <= 0 {
		return nil, vectorstore.ErrInvalidOwner
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	chat := &db.Chat{UserID: owner}
	if chatID != 0 {
		c, err := s.store.GetChat(ctx, owner, chatID)
		if err != nil {
			return nil, err
		}
		chat = c
	}

	retrieval, err := s.retriever.Retrieve(ctx, owner, query, s.cfg.TopK)
	switch {
	case errors.Is(err, vectorstore.ErrIndexNotFound):
		log.Debug().Int64("owner_id", owner).Msg("No documents uploaded yet")
		retrieval = &Retrieval{}
	case err != nil:
		return nil, err
	}

	contextText := s.assembler.Assemble(retrieval.Chunks, s.cfg.MaxContextTokens)
	ex, err := s.orchestrator.Answer(ctx, chat, query, contextText, retrieval.TopSource)
	if err != nil {
		return nil, err
	}
	ex.NoDocuments = len(retrieval.Chunks) == 0
	return ex, nil
}

// RemoveFile drops fileName from the owner's index and deletes the stored
// source file.
func (s *Service) RemoveFile(ctx context.Context, owner int64, fileName string) error {
	return s.removeFile(ctx, owner, fileName, s.UploadPath(owner, fileName))
}

func (s *Service) removeFile(ctx context.Context, owner int64, fileName, sourcePath string) error {
	removed, err := s.indices.RemoveSourceFile(ctx, owner, fileName)
	if err != nil {
		return err
	}
	removeQuietly(sourcePath)
	log.Info().Int64("owner_id", owner).Str("file", fileName).Int("chunks", removed).Msg("Document removed")
	return nil
}

// DeleteFile removes a recorded file from the index, the disk and the database.
func (s *Service) DeleteFile(ctx context.Context, owner, fileID int64) error {
	f, err := s.store.GetFile(ctx, owner, fileID)
	if err != nil {
		return err
	}
	if err := s.removeFile(ctx, owner, f.FileName, f.FilePath); err != nil {
		return err
	}
	return s.store.DeleteFile(ctx, owner, fileID)
}

func (s *Service) ListFiles(ctx context.Context, owner int64) ([]db.File, error) {
	return s.store.ListFiles(ctx, owner)
}

func (s *Service) ListChats(ctx context.Context, owner int64) ([]db.Chat, error) {
	return s.store.ListChats(ctx, owner)
}

func (s *Service) LatestChat(ctx context.Context, owner int64) (*db.Chat, error) {
	return s.store.LatestChat(ctx, owner)
}

// ChatMessages returns the turns of a chat owned by owner, oldest first.
func (s *Service) ChatMessages(ctx context.Context, owner, chatID int64) ([]db.ChatMessage, error) {
	if _, err := s.store.GetChat(ctx, owner, chatID); err != nil {
		return nil, err
	}
	return s.store.Messages(ctx, chatID)
}

func (s *Service) DeleteChat(ctx context.Context, owner, chatID int64) error {
	return s.store.DeleteChat(ctx, owner, chatID)
}
