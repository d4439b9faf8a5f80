package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig   `yaml:"server"`
	Log          LogConfig      `yaml:"log"`
	Database     DatabaseConfig `yaml:"database"`
	Storage      StorageConfig  `yaml:"storage"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	RAG          RAGConfig      `yaml:"rag"`
}

type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	MaxUploadBytes int           `yaml:"max_upload_bytes"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type DatabaseConfig struct {
	// Driver selects the database/sql driver: "pgdriver" (bun) or "postgres" (lib/pq).
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

type StorageConfig struct {
	UploadDir     string `yaml:"upload_dir"`
	EmbeddingsDir string `yaml:"embeddings_dir"`
	CompressIndex bool   `yaml:"compress_index"`
}

// LLMConfig describes one model endpoint, either for embeddings or for inference.
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Key       string        `yaml:"key"`
	BatchSize int           `yaml:"batch_size"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type RAGConfig struct {
	ChunkSize        int      `yaml:"chunk_size"`
	ChunkOverlap     int      `yaml:"chunk_overlap"`
	Separators       []string `yaml:"separators"`
	TopK             int      `yaml:"top_k"`
	MaxContextTokens int      `yaml:"max_context_tokens"`
	TokenEncoding    string   `yaml:"token_encoding"`
	HistoryDepth     int      `yaml:"history_depth"`
	TitleMaxChars    int      `yaml:"title_max_chars"`
}

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	DriverPG       = "pgdriver"
	DriverPostgres = "postgres"
)

const (
	defaultListenAddr       = ":8080"
	defaultTokenTTL         = 24 * time.Hour
	defaultMaxUploadBytes   = 32 << 20
	defaultLogLevel         = "info"
	defaultUploadDir        = "uploads"
	defaultEmbeddingsDir    = "embeddings"
	defaultChunkSize        = 1000
	defaultChunkOverlap     = 200
	defaultTopK             = 5
	defaultMaxContextTokens = 2000
	defaultTokenEncoding    = "cl100k_base"
	defaultHistoryDepth     = 2
	defaultTitleMaxChars    = 50
	defaultBatchSize        = 64
	defaultCacheTTL         = 10 * time.Minute
)

// DefaultSeparators are tried from coarsest (paragraph) to finest (character).
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// LoadConfig reads the YAML file at path, expands ${VAR} references against the
// environment and fills unset fields with defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration populated only with defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Server.TokenTTL == 0 {
		c.Server.TokenTTL = defaultTokenTTL
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPG
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = defaultUploadDir
	}
	if c.Storage.EmbeddingsDir == "" {
		c.Storage.EmbeddingsDir = defaultEmbeddingsDir
	}
	for _, llm := range []*LLMConfig{&c.EmbedLLM, &c.InferenceLLM} {
		if llm.Provider == "" {
			llm.Provider = ProviderOpenAI
		}
		if llm.BatchSize == 0 {
			llm.BatchSize = defaultBatchSize
		}
		if llm.CacheTTL == 0 {
			llm.CacheTTL = defaultCacheTTL
		}
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if len(c.RAG.Separators) == 0 {
		c.RAG.Separators = append([]string(nil), DefaultSeparators...)
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.MaxContextTokens == 0 {
		c.RAG.MaxContextTokens = defaultMaxContextTokens
	}
	if c.RAG.TokenEncoding == "" {
		c.RAG.TokenEncoding = defaultTokenEncoding
	}
	if c.RAG.HistoryDepth == 0 {
		c.RAG.HistoryDepth = defaultHistoryDepth
	}
	if c.RAG.TitleMaxChars == 0 {
		c.RAG.TitleMaxChars = defaultTitleMaxChars
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK))
	}
	if c.RAG.MaxContextTokens <= 0 {
		errs = append(errs, fmt.Errorf("rag.max_context_tokens must be positive, got %d", c.RAG.MaxContextTokens))
	}
	if c.RAG.HistoryDepth < 0 {
		errs = append(errs, fmt.Errorf("rag.history_depth must not be negative, got %d", c.RAG.HistoryDepth))
	}
	for name, llm := range map[string]LLMConfig{"embed_llm": c.EmbedLLM, "inference_llm": c.InferenceLLM} {
		if llm.Provider != ProviderOpenAI && llm.Provider != ProviderOllama {
			errs = append(errs, fmt.Errorf("%s.provider %q is not supported", name, llm.Provider))
		}
	}
	if c.Database.Driver != DriverPG && c.Database.Driver != DriverPostgres {
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	return errors.Join(errs...)
}
