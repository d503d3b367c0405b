package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	LLM      LLMConfig      `yaml:"llm"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Index    IndexConfig    `yaml:"index"`
	Database DatabaseConfig `yaml:"database"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Sessions SessionConfig  `yaml:"sessions"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	UploadDir      string        `yaml:"upload_dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	EnableMCP      bool          `yaml:"enable_mcp"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// LLMConfig describes one model endpoint. Provider is one of
// azure, openai, ollama or local (embeddings only).
type LLMConfig struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	Key        string `yaml:"key"`
	Model      string `yaml:"model"`
	APIVersion string `yaml:"api_version"`
	Dimensions int    `yaml:"dimensions"`
}

type RAGConfig struct {
	TopK         int    `yaml:"top_k"`
	HistoryLimit int    `yaml:"history_limit"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	EmbedModelID string `yaml:"embed_model_id"`
	Mode         string `yaml:"mode"` // direct or tools
	Concurrency  int    `yaml:"concurrency"`
}

type IndexConfig struct {
	Backend string `yaml:"backend"` // chromem, pgvector or qdrant
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // pgdriver or pq
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	TTL         time.Duration `yaml:"ttl"`
}

const (
	ModeDirect = "direct"
	ModeTools  = "tools"

	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
	BackendQdrant   = "qdrant"

	DefaultThreadID = "default"
)

// Default returns a config usable without any file: local embeddings,
// in-memory chromem index and an Azure chat deployment read from env.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":5000",
			UploadDir:      "uploads",
			MaxUploadBytes: 32 << 20,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   120 * time.Second,
			EnableMCP:      true,
		},
		Log: LogConfig{Level: "debug", Format: "console"},
		LLM: LLMConfig{
			Provider:   "azure",
			Model:      "gpt-4.1-mini",
			APIVersion: "2024-10-21",
		},
		EmbedLLM: LLMConfig{
			Provider:   "local",
			Model:      "sentence-transformers/all-MiniLM-L6-v2",
			Dimensions: 384,
		},
		RAG: RAGConfig{
			TopK:         5,
			HistoryLimit: 10,
			EmbedModelID: "sentence-transformers/all-MiniLM-L6-v2",
			Mode:         ModeDirect,
		},
		Index:    IndexConfig{Backend: BackendChromem},
		Database: DatabaseConfig{Driver: "pgdriver"},
		Qdrant:   QdrantConfig{Host: "localhost", Port: 6334},
		Sessions: SessionConfig{MaxSessions: 1000, TTL: 24 * time.Hour},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	applyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg, cfg.Validate()
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		ApplyEnv(cfg)
		return cfg, cfg.Validate()
	}
	return LoadConfig(path)
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = def.Server.UploadDir
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = def.Server.MaxUploadBytes
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = def.RAG.TopK
	}
	if cfg.RAG.HistoryLimit <= 0 {
		cfg.RAG.HistoryLimit = def.RAG.HistoryLimit
	}
	if cfg.RAG.EmbedModelID == "" {
		cfg.RAG.EmbedModelID = def.RAG.EmbedModelID
	}
	if cfg.RAG.Mode == "" {
		cfg.RAG.Mode = def.RAG.Mode
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = def.Index.Backend
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = def.EmbedLLM.Provider
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
}

// ApplyEnv overlays model credentials and endpoints from the environment.
func ApplyEnv(cfg *Config) {
	switch cfg.LLM.Provider {
	case "azure":
		if v := os.Getenv("AZURE_OPENAI_API_KEY"); v != "" {
			cfg.LLM.Key = v
		}
		if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" {
			cfg.LLM.BaseURL = v
		}
	case "openai":
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.Key = v
		}
	}
	if cfg.EmbedLLM.Provider == "openai" && cfg.EmbedLLM.Key == "" {
		cfg.EmbedLLM.Key = os.Getenv("OPENAI_API_KEY")
	}
	// embedding fan-out follows the tokenizer parallelism switch
	if strings.EqualFold(os.Getenv("TOKENIZERS_PARALLELISM"), "false") {
		cfg.RAG.Concurrency = 1
	}
}

func (c *Config) Validate() error {
	switch c.RAG.Mode {
	case ModeDirect, ModeTools:
	default:
		return fmt.Errorf("unknown rag mode %q", c.RAG.Mode)
	}
	switch c.Index.Backend {
	case BackendChromem, BackendQdrant:
	case BackendPgvector:
		if c.Database.DSN == "" {
			return fmt.Errorf("index backend %q requires database.dsn", c.Index.Backend)
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	if c.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must not be negative")
	}
	return nil
}
