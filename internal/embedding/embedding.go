package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/prajwalprabhu/File-Chat/internal/config"
)

var (
	ErrEmbeddingProvider = errors.New("embedding provider failed")
	ErrEmptyInput        = errors.New("embedding input is empty")
)

// Provider wraps a langchaingo embedder with input guards, error
// classification and an optional query cache.
type Provider struct {
	embedder embeddings.Embedder
	model    string
	cache    *expirable.LRU[string, []float32]
}

var _ embeddings.Embedder = (*Provider)(nil)

// NewProvider wraps embedder. A positive cacheSize enables caching of query
// embeddings for cfg.CacheTTL.
func NewProvider(embedder embeddings.Embedder, cfg config.LLMConfig) *Provider {
	p := &Provider{embedder: embedder, model: cfg.Model}
	if cfg.CacheSize > 0 {
		p.cache = expirable.NewLRU[string, []float32](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return p
}

// NewEmbedder builds the provider described by cfg.
func NewEmbedder(cfg config.LLMConfig) (*Provider, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		client = llm
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embedder: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewProvider(embedder, cfg), nil
}

// Model is the embedding model name recorded alongside persisted vectors.
func (p *Provider) Model() string {
	return p.model
}

// EmbedDocuments embeds texts in one batched request. An empty list is an error.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingProvider, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingProvider, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector for text %d", ErrEmbeddingProvider, i)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single text, serving repeated queries from the cache.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	key := p.cacheKey(text)
	if p.cache != nil {
		if v, ok := p.cache.Get(key); ok {
			return v, nil
		}
	}
	v, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingProvider, err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbeddingProvider)
	}
	if p.cache != nil {
		p.cache.Add(key, v)
	}
	return v, nil
}

func (p *Provider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(p.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
