// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package sqlite implements store.DocumentStore on an embedded SQLite
// database with cascading chunk deletes.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/store"
	"github.com/poiesic/kbsync/store/sqlite/migrations"
)

// Store is a SQLite-backed document store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	closed atomic.Bool
}

var _ store.DocumentStore = (*Store)(nil)

// NewStore opens (or creates) the database file at path and applies pending
// migrations. WAL mode keeps readers unblocked during sync transactions.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "sqlite-store"),
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection. Calls after the first return nil;
// any other use of a closed store returns store.ErrStorageClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every pending migration in version order.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := migrationVersion(name)
		if err != nil {
			return err
		}

		var applied int
		err = s.db.QueryRow("SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&applied)
		if err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(script)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.logger.Info("applied migration", "name", name)
	}

	return nil
}

// migrationVersion parses the numeric prefix of a migration filename.
func migrationVersion(name string) (int, error) {
	base := strings.TrimSuffix(name, ".sql")
	prefix, _, _ := strings.Cut(base, "_")
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("migration %s has no numeric version prefix", name)
	}
	return version, nil
}

// GetDocumentByTitle fetches a document row by title.
func (s *Store) GetDocumentByTitle(ctx context.Context, title string) (*core.Document, error) {
	if s.closed.Load() {
		return nil, store.ErrStorageClosed
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, content_hash, index_dirty, source_modified_at, created_at, updated_at
		FROM documents WHERE title = ?`, title)

	var (
		doc        core.Document
		modifiedAt sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.ContentHash, &doc.IndexDirty, &modifiedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc.SourceModifiedAt = parseTime(modifiedAt.String)
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}

// ListDocuments returns every document ordered by title.
func (s *Store) ListDocuments(ctx context.Context) ([]core.Document, error) {
	if s.closed.Load() {
		return nil, store.ErrStorageClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, content_hash, index_dirty, source_modified_at, created_at, updated_at
		FROM documents ORDER BY title ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []core.Document
	for rows.Next() {
		var (
			doc        core.Document
			modifiedAt sql.NullString
			createdAt  string
			updatedAt  string
		)
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.ContentHash, &doc.IndexDirty, &modifiedAt, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		doc.SourceModifiedAt = parseTime(modifiedAt.String)
		doc.CreatedAt = parseTime(createdAt)
		doc.UpdatedAt = parseTime(updatedAt)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetChunksByDocument returns a document's chunks ordered by index.
func (s *Store) GetChunksByDocument(ctx context.Context, documentID string) ([]core.Chunk, error) {
	if s.closed.Load() {
		return nil, store.ErrStorageClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, chunk_index, content, token_count, content_hash, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []core.Chunk
	for rows.Next() {
		var (
			c         core.Chunk
			createdAt string
		)
		if err := rows.Scan(&c.DocumentID, &c.Index, &c.Content, &c.TokenCount, &c.ContentHash, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ApplySync persists a reconciliation outcome atomically.
func (s *Store) ApplySync(ctx context.Context, doc *core.Document, upserts, deletes []core.Chunk) error {
	if s.closed.Load() {
		return store.ErrStorageClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, content_hash, index_dirty, source_modified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			index_dirty = excluded.index_dirty,
			source_modified_at = excluded.source_modified_at,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Title, doc.Content, doc.ContentHash, doc.IndexDirty,
		formatNullableTime(doc.SourceModifiedAt), formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: upsert document %s: %v", core.ErrStoreWrite, doc.Title, err)
	}

	for _, c := range upserts {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (document_id, chunk_index, content, token_count, content_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(document_id, chunk_index) DO UPDATE SET
				content = excluded.content,
				token_count = excluded.token_count,
				content_hash = excluded.content_hash,
				created_at = excluded.created_at`,
			c.DocumentID, c.Index, c.Content, c.TokenCount, c.ContentHash, formatTime(now))
		if err != nil {
			return fmt.Errorf("%w: upsert chunk %d of %s: %v", core.ErrStoreWrite, c.Index, doc.Title, err)
		}
	}

	for _, c := range deletes {
		_, err = tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ? AND chunk_index = ?`,
			c.DocumentID, c.Index)
		if err != nil {
			return fmt.Errorf("%w: delete chunk %d of %s: %v", core.ErrStoreWrite, c.Index, doc.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrStoreWrite, err)
	}

	s.logger.Debug("applied sync",
		"title", doc.Title, "upserts", len(upserts), "deletes", len(deletes))
	return nil
}

// DeleteDocument removes a document row; chunks cascade.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	if s.closed.Load() {
		return store.ErrStorageClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %v", core.ErrStoreWrite, documentID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetIndexDirty flags or clears a document whose vector writes did not
// complete.
func (s *Store) SetIndexDirty(ctx context.Context, documentID string, dirty bool) error {
	if s.closed.Load() {
		return store.ErrStorageClosed
	}
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET index_dirty = ? WHERE id = ?`, dirty, documentID)
	if err != nil {
		return fmt.Errorf("%w: flag document %s: %v", core.ErrStoreWrite, documentID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
