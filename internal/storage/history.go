package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/pdfinsight/internal/config"
	"github.com/hyperjump/pdfinsight/internal/memory"
)

// OpenHistory returns the conversation store selected by cfg.Memory.Backend.
func OpenHistory(ctx context.Context, cfg *config.Config) (memory.Store, error) {
	switch cfg.Memory.Backend {
	case "", "memory":
		return memory.NewInMemoryStore(), nil
	case "sqlite":
		return NewSQLiteHistory(cfg.Storage.HistoryPath)
	case "redis":
		rc := cfg.Memory.Redis
		return DialRedisHistory(ctx, rc.Addr, rc.Password, rc.DB, rc.KeyPrefix, rc.TTL)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}
