package main

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/prajwalprabhu/File-Chat/internal/config"
	"github.com/prajwalprabhu/File-Chat/internal/db"
	"github.com/prajwalprabhu/File-Chat/internal/embedding"
	"github.com/prajwalprabhu/File-Chat/internal/llmservice"
	"github.com/prajwalprabhu/File-Chat/internal/rag"
	"github.com/prajwalprabhu/File-Chat/internal/render"
)

type app struct {
	svc *rag.Service
	db  *bun.DB
}

// newApp builds the service from cfg. Without withDB the service has no
// store and only the index operations work.
func newApp(ctx context.Context, cfg *config.Config, withDB bool) (*app, error) {
	embedder, err := embedding.NewEmbedder(cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}
	llm, err := llmservice.NewModel(cfg.InferenceLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing llm: %w", err)
	}
	tok, err := rag.NewTiktoken(cfg.RAG.TokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("error initializing tokenizer: %w", err)
	}

	a := &app{}
	deps := rag.Deps{
		Embedder:  embedder,
		LLM:       llm,
		Tokenizer: tok,
		Renderer:  render.New(),
	}
	if withDB {
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("error connecting to database: %w", err)
		}
		a.db = db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, a.db); err != nil {
			a.db.Close()
			return nil, fmt.Errorf("error initializing database: %w", err)
		}
		deps.Store = db.NewStore(a.db)
	}

	a.svc, err = rag.NewService(cfg, deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
