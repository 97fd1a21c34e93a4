package config

import (
	"path/filepath"
	"time"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 25
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = filepath.Join(cfg.Storage.DataDir, "uploads")
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = filepath.Join(cfg.Storage.DataDir, "index")
	}
	if cfg.Storage.HistoryPath == "" {
		cfg.Storage.HistoryPath = filepath.Join(cfg.Storage.DataDir, "history.db")
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "onnx"
	}
	if cfg.Embedding.ModelID == "" {
		cfg.Embedding.ModelID = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Backend == "onnx" {
		cfg.Embedding.ModelPath = filepath.Join(cfg.Storage.DataDir, "models", "all-MiniLM-L6-v2.onnx")
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "llama-3.1-8b-instant"
	}
	if cfg.Generation.FallbackModel == "" {
		cfg.Generation.FallbackModel = "llama-3.3-70b-versatile"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 60 * time.Second
	}
	if cfg.Generation.RequestsPerMinute == 0 {
		cfg.Generation.RequestsPerMinute = 30
	}
	if cfg.Generation.PromptVersion == "" {
		cfg.Generation.PromptVersion = "v2"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 150
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 5
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 12
	}
	if cfg.Retrieval.IndexCacheSize == 0 {
		cfg.Retrieval.IndexCacheSize = 32
	}
	if cfg.Retrieval.SnippetChars == 0 {
		cfg.Retrieval.SnippetChars = 220
	}
	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = "memory"
	}
	if cfg.Memory.Redis.Addr == "" {
		cfg.Memory.Redis.Addr = "localhost:6379"
	}
	if cfg.Memory.Redis.KeyPrefix == "" {
		cfg.Memory.Redis.KeyPrefix = "pdfinsight:history:"
	}
}
