package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/pdfinsight/internal/models"
)

func TestSQLiteHistory_AppendLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteHistory(filepath.Join(dir, "nested", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	key := models.NewSessionKey("doc1", "s1")
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	if err := store.Append(ctx, key,
		models.Turn{Role: models.RoleUser, Content: "What is covered?", CreatedAt: now},
		models.Turn{Role: models.RoleAssistant, Content: "Parts and labour.", CreatedAt: now},
	); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, key, models.Turn{Role: models.RoleUser, Content: "For how long?"}); err != nil {
		t.Fatal(err)
	}

	turns, err := store.Load(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant || turns[2].Content != "For how long?" {
		t.Errorf("unexpected turns: %+v", turns)
	}
	if !turns[0].CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", turns[0].CreatedAt, now)
	}
}

func TestSQLiteHistory_persistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	key := models.NewSessionKey("doc1", "")

	store, err := NewSQLiteHistory(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, key, models.Turn{Role: models.RoleUser, Content: "hello"}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewSQLiteHistory(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	turns, err := reopened.Load(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Content != "hello" {
		t.Errorf("got %+v", turns)
	}
}

func TestSQLiteHistory_isolationKeysDelete(t *testing.T) {
	store, err := NewSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	a := models.NewSessionKey("doc", "a")
	b := models.NewSessionKey("doc", "b")
	for _, k := range []models.SessionKey{b, a} {
		if err := store.Append(ctx, k, models.Turn{Role: models.RoleUser, Content: k.SessionID}); err != nil {
			t.Fatal(err)
		}
	}

	turns, _ := store.Load(ctx, a)
	if len(turns) != 1 || turns[0].Content != "a" {
		t.Errorf("session a leaked: %+v", turns)
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != a || keys[1] != b {
		t.Errorf("keys = %v", keys)
	}

	if err := store.Delete(ctx, a); err != nil {
		t.Fatal(err)
	}
	turns, _ = store.Load(ctx, a)
	if len(turns) != 0 {
		t.Errorf("expected empty history after delete, got %+v", turns)
	}
	turns, _ = store.Load(ctx, b)
	if len(turns) != 1 {
		t.Errorf("delete touched another session: %+v", turns)
	}
}
