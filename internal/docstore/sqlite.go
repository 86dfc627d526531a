package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	language   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore persists documents in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path. Use ":memory:" for
// a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, id string) (Document, error) {
	var doc Document
	var updated int64
	err := q.QueryRowContext(ctx,
		"SELECT id, name, content, language, updated_at FROM documents WHERE id = ?", id,
	).Scan(&doc.ID, &doc.Name, &doc.Content, &doc.Language, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("query document: %w", err)
	}
	doc.UpdatedAt = time.UnixMilli(updated).UTC()
	return doc, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Document, error) {
	return getDocument(ctx, s.db, id)
}

func (s *SQLiteStore) Content(ctx context.Context, id string) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

func (s *SQLiteStore) SetContent(ctx context.Context, id, content string) error {
	_, err := s.Update(ctx, id, func(string) (string, error) { return content, nil })
	return err
}

func (s *SQLiteStore) LineRange(ctx context.Context, id string, start, end int) (Range, error) {
	content, err := s.Content(ctx, id)
	if err != nil {
		return Range{}, err
	}
	return SliceLines(content, start, end)
}

func (s *SQLiteStore) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, language, updated_at FROM documents ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var updated int64
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Language, &updated); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		doc.UpdatedAt = time.UnixMilli(updated).UTC()
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) Create(ctx context.Context, name, content string) (Document, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		ID:        uuid.NewString(),
		Name:      name,
		Content:   content,
		Language:  LanguageFor(name),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (id, name, content, language, updated_at) VALUES (?, ?, ?, ?, ?)",
		doc.ID, doc.Name, doc.Content, doc.Language, doc.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return Document{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn UpdateFunc) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	doc, err := getDocument(ctx, tx, id)
	if err != nil {
		return Document{}, err
	}
	next, err := fn(doc.Content)
	if err != nil {
		return Document{}, err
	}
	if next == doc.Content {
		return doc, nil
	}
	doc.Content = next
	doc.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET content = ?, updated_at = ? WHERE id = ?",
		doc.Content, doc.UpdatedAt.UnixMilli(), id,
	); err != nil {
		return Document{}, fmt.Errorf("update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit update: %w", err)
	}
	return doc, nil
}
