package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"

	DriverPG = "pgdriver"
	DriverPQ = "pq"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Source   SourceConfig   `yaml:"source"`
	RAG      RAGConfig      `yaml:"rag"`
	ChatLLM  LLMConfig      `yaml:"chat_llm"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// SourceConfig points at the single document ingested at startup.
type SourceConfig struct {
	Location string `yaml:"location"`
}

type RAGConfig struct {
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	TopK           int    `yaml:"top_k"`
	Backend        string `yaml:"backend"`
	CollectionName string `yaml:"collection_name"`
	PersistDir     string `yaml:"persist_dir"`
	ExportPath     string `yaml:"export_path"`
	EncryptionKey  string `yaml:"encryption_key"`
	Contextualize  bool   `yaml:"contextualize"`
	BatchSize      int    `yaml:"batch_size"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	Key         string        `yaml:"key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Dimensions  int           `yaml:"dimensions"`
	Timeout     time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// LoadConfig reads the YAML file at path. A .env file in the working
// directory is loaded first and ${VAR} references in the file are expanded
// from the environment.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML over the defaults and expands environment
// references. Keys missing from the file keep their default; keys set to
// zero stay zero.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	llmDefaults(&cfg.ChatLLM, "gpt-4o-mini")
	llmDefaults(&cfg.EmbedLLM, "text-embedding-3-small")
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			CORSOrigins:  []string{"*"},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		RAG: RAGConfig{
			ChunkSize:      1000,
			ChunkOverlap:   150,
			TopK:           4,
			Backend:        BackendChromem,
			CollectionName: "health_documents",
			BatchSize:      32,
		},
		ChatLLM:  LLMConfig{Provider: ProviderOpenAI, Timeout: 60 * time.Second},
		EmbedLLM: LLMConfig{Provider: ProviderOpenAI, Timeout: 60 * time.Second},
		Database: DatabaseConfig{Driver: DriverPG},
	}
}

// llmDefaults fills the provider dependent settings, which cannot be known
// before the provider is decoded.
func llmDefaults(c *LLMConfig, model string) {
	if c.Model == "" && c.Provider == ProviderOpenAI {
		c.Model = model
	}
	if c.BaseURL == "" {
		switch c.Provider {
		case ProviderOpenAI:
			c.BaseURL = "https://api.openai.com/v1"
		case ProviderOllama:
			c.BaseURL = "http://localhost:11434"
		}
	}
	if c.Key == "" && c.Provider == ProviderOpenAI {
		c.Key = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate reports the first setting that would stop the service from starting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source.Location) == "" {
		return fmt.Errorf("source.location is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size)")
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive")
	}
	if c.RAG.ExportPath != "" && c.RAG.EncryptionKey != "" && len(c.RAG.EncryptionKey) != 32 {
		return fmt.Errorf("rag.encryption_key must be 32 bytes")
	}

	switch c.RAG.Backend {
	case BackendChromem:
	case BackendPGVector:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the pgvector backend")
		}
		if c.EmbedLLM.Dimensions <= 0 {
			return fmt.Errorf("embed_llm.dimensions is required for the pgvector backend")
		}
		if c.Database.Driver != DriverPG && c.Database.Driver != DriverPQ {
			return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown rag backend: %s", c.RAG.Backend)
	}

	if err := c.ChatLLM.validate("chat_llm"); err != nil {
		return err
	}
	return c.EmbedLLM.validate("embed_llm")
}

func (c *LLMConfig) validate(name string) error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.Key == "" {
			return fmt.Errorf("%s.key is required for the openai provider", name)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unknown %s provider: %s", name, c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("%s.model is required", name)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	c.ChatLLM.Key = redact(c.ChatLLM.Key)
	c.EmbedLLM.Key = redact(c.EmbedLLM.Key)
	c.Database.Password = redact(c.Database.Password)
	c.Database.DSN = redactDSN(c.Database.DSN)
	c.RAG.EncryptionKey = redact(c.RAG.EncryptionKey)
	return c
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

var dsnPasswordRe = regexp.MustCompile(`password=\S+`)

// redactDSN masks the password of a URL or key=value connection string.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return redact(dsn)
		}
		return u.Redacted()
	}
	return dsnPasswordRe.ReplaceAllString(dsn, "password=****")
}
