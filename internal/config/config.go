// Package config provides configuration loading and structs for the pdfinsight server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Env        string           `yaml:"env"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Memory     MemoryConfig     `yaml:"memory"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxUploadMB    int           `yaml:"max_upload_mb"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// MaxUploadBytes returns the upload cap in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) * 1024 * 1024
}

// StorageConfig holds on-disk locations. UploadDir, IndexDir and HistoryPath
// default to subpaths of DataDir.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	UploadDir   string `yaml:"upload_dir"`
	IndexDir    string `yaml:"index_dir"`
	HistoryPath string `yaml:"history_path"`
}

// EmbeddingConfig selects and parameterizes the embedding backend.
// ModelID is recorded in every index and must not change between build and query.
type EmbeddingConfig struct {
	Backend    string `yaml:"backend"` // "onnx" or "hash"
	ModelID    string `yaml:"model_id"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// GenerationConfig holds the chat-completions backend settings.
type GenerationConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	FallbackModel     string        `yaml:"fallback_model"`
	Temperature       float64       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	PromptVersion     string        `yaml:"prompt_version"`
}

// ChunkingConfig holds chunk sizing in characters.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds top-k bounds and the loaded-index cache size.
type RetrievalConfig struct {
	DefaultTopK    int `yaml:"default_top_k"`
	MaxTopK        int `yaml:"max_top_k"`
	IndexCacheSize int `yaml:"index_cache_size"`
	SnippetChars   int `yaml:"snippet_chars"`
}

// MemoryConfig selects the conversation history backend.
type MemoryConfig struct {
	Backend         string        `yaml:"backend"` // "memory", "sqlite" or "redis"
	Redis           RedisConfig   `yaml:"redis"`
	MaxIdle         time.Duration `yaml:"max_idle"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// RedisConfig holds connection settings for the redis history backend.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// WatchConfig holds inbox directories whose PDFs are ingested automatically.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to false when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return false
}

// Load reads and parses the config file at path, applies environment overrides,
// expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := finalize(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration built only from defaults and environment
// variables. Relative paths resolve against the working directory.
func Default() (*Config, error) {
	var cfg Config
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if err := finalize(&cfg, cwd); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finalize(cfg *Config, configDir string) error {
	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return err
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	// Derived storage paths hang off the expanded data dir.
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	ApplyDefaults(cfg)

	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	cfg.Storage.HistoryPath = expandPath(cfg.Storage.HistoryPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
	return nil
}

// ApplyEnv overrides cfg from environment variables. getenv is usually os.Getenv.
// Returns an error when a numeric variable cannot be parsed.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}
	if v := getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("DEFAULT_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := getenv("FALLBACK_MODEL"); v != "" {
		cfg.Generation.FallbackModel = v
	}
	if v := getenv("GROQ_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := getenv("MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid int for MAX_UPLOAD_MB: %s", v)
		}
		cfg.Server.MaxUploadMB = n
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
