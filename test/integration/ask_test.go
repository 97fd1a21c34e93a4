// Package integration runs ingestion and the answer pipeline in-process
// against real storage backends.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/hyperjump/pdfinsight/internal/config"
	"github.com/hyperjump/pdfinsight/internal/embedding"
	"github.com/hyperjump/pdfinsight/internal/extract"
	"github.com/hyperjump/pdfinsight/internal/extract/pdftest"
	"github.com/hyperjump/pdfinsight/internal/generation"
	"github.com/hyperjump/pdfinsight/internal/indexer"
	"github.com/hyperjump/pdfinsight/internal/memory"
	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/internal/rag"
	"github.com/hyperjump/pdfinsight/internal/storage"
	"github.com/hyperjump/pdfinsight/internal/vector"
)

type echoGenerator struct {
	last generation.Request
}

func (g *echoGenerator) Generate(_ context.Context, req generation.Request) (generation.Result, error) {
	g.last = req
	return generation.Result{Text: "The notice period is one month.", Kind: generation.Primary, Model: "echo"}, nil
}

func TestIntegration_IngestAndAskWithRedisHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	cfg := &config.Config{
		Storage:   config.StorageConfig{DataDir: dir},
		Embedding: config.EmbeddingConfig{Backend: "hash", Dimensions: 256},
		Chunking:  config.ChunkingConfig{ChunkSize: 200, ChunkOverlap: 20},
		Memory: config.MemoryConfig{
			Backend: "redis",
			Redis:   config.RedisConfig{Addr: mr.Addr(), TTL: time.Hour},
		},
	}
	config.ApplyDefaults(cfg)
	ctx := context.Background()

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		t.Fatal(err)
	}
	defer embedder.Close()

	indexes := vector.NewStore(cfg.Storage.IndexDir, embedder)
	manifests := storage.NewManifestStore(cfg.Storage.IndexDir, nil)
	ingestor := indexer.NewIngestor(extract.NewExtractor(),
		indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap),
		indexes, manifests, cfg.Storage.UploadDir)

	pdfPath := filepath.Join(dir, "contract.pdf")
	pdf := pdftest.Build(
		"Employment contract between company and employee.",
		"Either party may terminate with a notice period of one month.",
	)
	if err := os.WriteFile(pdfPath, pdf, 0644); err != nil {
		t.Fatal(err)
	}
	m, err := ingestor.IngestFile(ctx, pdfPath)
	if err != nil {
		t.Fatal(err)
	}
	if m.Chunks != 2 {
		t.Fatalf("chunks = %d, want 2", m.Chunks)
	}

	history, err := storage.OpenHistory(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	conv := memory.NewConversations(history)
	defer conv.Close()
	gen := &echoGenerator{}
	pipeline := rag.NewPipeline(indexes, conv, gen)

	resp, err := pipeline.Ask(ctx, models.AskRequest{
		DocID: m.DocID, SessionID: "hr", Question: "What is the notice period?", TopK: 1, Language: "en",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "The notice period is one month." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Page == nil || *resp.Sources[0].Page != 2 {
		t.Fatalf("sources = %+v, want page 2", resp.Sources)
	}
	if resp.Sources[0].Source != "contract.pdf" {
		t.Errorf("source = %q", resp.Sources[0].Source)
	}

	// A fresh registry over the same redis sees the stored exchange.
	history2, err := storage.OpenHistory(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	conv2 := memory.NewConversations(history2)
	defer conv2.Close()
	pipeline2 := rag.NewPipeline(indexes, conv2, gen)
	if _, err := pipeline2.Ask(ctx, models.AskRequest{
		DocID: m.DocID, SessionID: "hr", Question: "And for managers?", TopK: 1, Language: "en",
	}); err != nil {
		t.Fatal(err)
	}
	if len(gen.last.History) != 2 {
		t.Fatalf("history = %d messages, want 2", len(gen.last.History))
	}
	if gen.last.History[0].Content != "What is the notice period?" {
		t.Errorf("history[0] = %q", gen.last.History[0].Content)
	}
	if ttl := mr.TTL(cfg.Memory.Redis.KeyPrefix + m.DocID + ":hr"); ttl != time.Hour {
		t.Errorf("history ttl = %v, want 1h", ttl)
	}
}
