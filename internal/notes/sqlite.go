package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"notechat/internal/domain"
)

// SQLiteStore keeps notes in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates the notes table.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("notes: sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS notes (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            path TEXT NOT NULL,
            content TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("notes: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Put inserts or replaces a note.
func (s *SQLiteStore) Put(ctx context.Context, n domain.Note) error {
	if n.ID == "" {
		return errors.New("notes: note id required")
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes(id, title, path, content, updated_at) VALUES(?,?,?,?,?)
         ON CONFLICT(id) DO UPDATE SET title=excluded.title, path=excluded.path,
         content=excluded.content, updated_at=excluded.updated_at`,
		n.ID, n.Title, n.Path, n.Content, n.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Delete removes a note. Deleting a missing note is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	return err
}

// List returns all notes ordered by path.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, path, content, updated_at FROM notes ORDER BY path, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Note
	for rows.Next() {
		var n domain.Note
		var updated string
		if err := rows.Scan(&n.ID, &n.Title, &n.Path, &n.Content, &updated); err != nil {
			return nil, err
		}
		n.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Import copies every note of src into the database and returns how many were written.
func (s *SQLiteStore) Import(ctx context.Context, src domain.NoteStore) (int, error) {
	list, err := src.List(ctx)
	if err != nil {
		return 0, err
	}
	for i, n := range list {
		if err := s.Put(ctx, n); err != nil {
			return i, fmt.Errorf("notes: import %s: %w", n.Path, err)
		}
	}
	return len(list), nil
}
