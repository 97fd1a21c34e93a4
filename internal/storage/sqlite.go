package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/pdfinsight/internal/memory"
	"github.com/hyperjump/pdfinsight/internal/models"
)

var _ memory.Store = (*SQLiteHistory)(nil)

// SQLiteHistory implements memory.Store using SQLite, so conversations survive restarts.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteHistory(dbPath string) (*SQLiteHistory, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY between sessions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteHistory{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		doc_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (doc_id, session_id, seq)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Load returns the turns for key in insertion order.
func (s *SQLiteHistory) Load(ctx context.Context, key models.SessionKey) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM history
		 WHERE doc_id = ? AND session_id = ? ORDER BY seq`,
		key.DocID, key.SessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]models.Turn, 0)
	for rows.Next() {
		var t models.Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Append inserts turns in one transaction after the key's current last turn.
func (s *SQLiteHistory) Append(ctx context.Context, key models.SessionKey, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM history WHERE doc_id = ? AND session_id = ?`,
		key.DocID, key.SessionID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO history (doc_id, session_id, seq, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range turns {
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, key.DocID, key.SessionID, next+int64(i), string(t.Role), t.Content, createdAt); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	return tx.Commit()
}

// Delete removes every turn for key.
func (s *SQLiteHistory) Delete(ctx context.Context, key models.SessionKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE doc_id = ? AND session_id = ?`, key.DocID, key.SessionID)
	return err
}

// Keys lists every key with stored turns, ordered by doc id then session id.
func (s *SQLiteHistory) Keys(ctx context.Context) ([]models.SessionKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT doc_id, session_id FROM history ORDER BY doc_id, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]models.SessionKey, 0)
	for rows.Next() {
		var k models.SessionKey
		if err := rows.Scan(&k.DocID, &k.SessionID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}
