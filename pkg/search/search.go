// Package search maintains the catalog's full-text index as an FTS5 table in
// the catalog database. Documents are rebuilt wholesale by the index builder;
// writes are idempotent, a rebuild that produces a byte-identical document
// touches nothing.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS search_documents (
	id       TEXT PRIMARY KEY,
	rank     INTEGER NOT NULL,
	document TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS search_fts USING fts5(
	id UNINDEXED,
	owner,
	github_owner,
	repo,
	kind,
	version,
	github_description,
	bower_description,
	npm_description,
	bower_keywords,
	npm_keywords,
	prefix_matches,
	element,
	behavior,
	weighted_fields
);
`

// Document is one library's search entry. Repo appears ten times and
// elements and behaviors five times each in WeightedFields, which is the
// scoring handle at query time.
type Document struct {
	ID                string `json:"id"`
	Owner             string `json:"owner"`
	GithubOwner       string `json:"github_owner"`
	Repo              string `json:"repo"`
	Kind              string `json:"kind"`
	Version           string `json:"version"`
	GithubDescription string `json:"github_description"`
	BowerDescription  string `json:"bower_description"`
	NpmDescription    string `json:"npm_description"`
	BowerKeywords     string `json:"bower_keywords"`
	NpmKeywords       string `json:"npm_keywords"`
	PrefixMatches     string `json:"prefix_matches"`
	Element           string `json:"element"`
	Behavior          string `json:"behavior"`
	WeightedFields    string `json:"weighted_fields"`
	Rank              int64  `json:"rank"`
}

// Index is the FTS5-backed search index.
type Index struct {
	db *sql.DB
}

// NewIndex prepares the index tables on db.
func NewIndex(db *sql.DB) (*Index, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create search schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Put writes a document, replacing any previous entry for the same id. It
// reports whether the index actually changed; rebuilding an identical
// document is a no-op.
func (i *Index) Put(ctx context.Context, doc *Document) (bool, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
	}

	var existing string
	err = i.db.QueryRowContext(ctx,
		`SELECT document FROM search_documents WHERE id = ?`, doc.ID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to read document %s: %w", doc.ID, err)
	}
	if existing == string(encoded) {
		return false, nil
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO search_documents (id, rank, document) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET rank = excluded.rank, document = excluded.document`,
		doc.ID, doc.Rank, string(encoded)); err != nil {
		return false, fmt.Errorf("failed to store document %s: %w", doc.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_fts WHERE id = ?`, doc.ID); err != nil {
		return false, fmt.Errorf("failed to clear index entry %s: %w", doc.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO search_fts (
			id, owner, github_owner, repo, kind, version,
			github_description, bower_description, npm_description,
			bower_keywords, npm_keywords, prefix_matches,
			element, behavior, weighted_fields
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Owner, doc.GithubOwner, doc.Repo, doc.Kind, doc.Version,
		doc.GithubDescription, doc.BowerDescription, doc.NpmDescription,
		doc.BowerKeywords, doc.NpmKeywords, doc.PrefixMatches,
		doc.Element, doc.Behavior, doc.WeightedFields); err != nil {
		return false, fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	return true, tx.Commit()
}

// Get loads a document by id, returning nil when absent.
func (i *Index) Get(ctx context.Context, id string) (*Document, error) {
	var encoded string
	err := i.db.QueryRowContext(ctx,
		`SELECT document FROM search_documents WHERE id = ?`, id).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(encoded), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return &doc, nil
}

// Delete removes a document. Deleting an absent document is a no-op.
func (i *Index) Delete(ctx context.Context, id string) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM search_documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete index entry %s: %w", id, err)
	}
	return tx.Commit()
}

// DeleteAll clears the index.
func (i *Index) DeleteAll(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM search_documents`); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	if _, err := i.db.ExecContext(ctx, `DELETE FROM search_fts`); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	return nil
}

// Result is one search hit.
type Result struct {
	ID    string
	Score float64
	Rank  int64
}

// Search runs a full-text query. Relevance comes from bm25 with the weighted
// fields dominating; the freshness rank breaks ties.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := i.db.QueryContext(ctx, `
		SELECT f.id, bm25(search_fts), d.rank
		FROM search_fts f
		JOIN search_documents d ON d.id = f.id
		WHERE search_fts MATCH ?
		ORDER BY bm25(search_fts), d.rank DESC
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search for %q failed: %w", query, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var result Result
		if err := rows.Scan(&result.ID, &result.Score, &result.Rank); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
