// Package search wraps the full-text index over archived statuses.
//
// The index is a derived, rebuildable projection held in a SQLite FTS5
// virtual table in its own database file; the archive store stays
// authoritative. Query parsing and ranking are SQLite's contract, not ours.
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/tootsearch/tootsearch/pkg/logging"
)

// ErrUnavailable wraps index open/write failures. The run aborts but the
// archive store remains correct and the next run rebuilds the index.
var ErrUnavailable = errors.New("search index unavailable")

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS statuses USING fts5(
	id UNINDEXED,
	account,
	spoiler_text,
	content
);
`

// Document is the indexed projection of one archived status. Content holds
// the rendered plain text, not the raw HTML fragment.
type Document struct {
	ID          int64
	Account     string
	SpoilerText string
	Content     string
}

// Index wraps the SQLite connection to the full-text index.
type Index struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens the index database at path, creating the FTS5 schema if it
// does not exist yet.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrUnavailable, path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create schema: %v", ErrUnavailable, err)
	}
	return &Index{
		db:     db,
		logger: logging.GetLogger().With(zap.String("component", "search")),
	}, nil
}

// Close closes the underlying database connection.
func (i *Index) Close() error {
	return i.db.Close()
}

// Upsert writes one document keyed by its id, replacing any previous version.
// FTS5 tables have no unique constraint, so the upsert is a delete plus
// insert inside one transaction.
func (i *Index) Upsert(ctx context.Context, doc Document) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin upsert %d: %v", ErrUnavailable, doc.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM statuses WHERE id = ?`, doc.ID); err != nil {
		return fmt.Errorf("%w: delete %d: %v", ErrUnavailable, doc.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO statuses(id, account, spoiler_text, content) VALUES(?, ?, ?, ?)`,
		doc.ID, doc.Account, doc.SpoilerText, doc.Content); err != nil {
		return fmt.Errorf("%w: insert %d: %v", ErrUnavailable, doc.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %d: %v", ErrUnavailable, doc.ID, err)
	}
	return nil
}

// Search runs a free-text query and returns matching ids, best match first.
func (i *Index) Search(ctx context.Context, query string) ([]int64, error) {
	match := sanitizeQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := i.db.QueryContext(ctx,
		`SELECT id FROM statuses WHERE statuses MATCH ? ORDER BY rank`, match)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %v", ErrUnavailable, query, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan result: %v", ErrUnavailable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read results: %v", ErrUnavailable, err)
	}
	return ids, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM statuses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrUnavailable, err)
	}
	return n, nil
}

// sanitizeQuery wraps each term in quotes so FTS5 syntax characters in user
// input cannot break the MATCH expression.
func sanitizeQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
