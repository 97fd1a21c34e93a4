package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/hyperjump/pdfinsight/internal/config"
	"github.com/hyperjump/pdfinsight/internal/memory"
)

func TestOpenHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		backend string
		check   func(memory.Store) bool
		wantErr bool
	}{
		{"default", "", func(s memory.Store) bool { _, ok := s.(*memory.InMemoryStore); return ok }, false},
		{"memory", "memory", func(s memory.Store) bool { _, ok := s.(*memory.InMemoryStore); return ok }, false},
		{"sqlite", "sqlite", func(s memory.Store) bool { _, ok := s.(*SQLiteHistory); return ok }, false},
		{"redis", "redis", func(s memory.Store) bool { _, ok := s.(*RedisHistory); return ok }, false},
		{"unknown", "etcd", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Memory.Backend = tt.backend
			cfg.Memory.Redis.Addr = mr.Addr()
			cfg.Storage.HistoryPath = filepath.Join(t.TempDir(), "history.db")

			store, err := OpenHistory(ctx, cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer store.Close()
			if !tt.check(store) {
				t.Errorf("unexpected store type %T", store)
			}
		})
	}
}
