package datastore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GetAuthor loads an author by name, returning nil when absent.
func (t *Tx) GetAuthor(name string) (*Author, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT name, metadata, metadata_etag, metadata_updated, status, error, updated
		 FROM authors WHERE name = ?`, strings.ToLower(name))

	var a Author
	var metadata, etag, errStr sql.NullString
	var metadataUpdated sql.NullTime
	err := row.Scan(&a.Name, &metadata, &etag, &metadataUpdated, &a.Status, &errStr, &a.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan author: %w", err)
	}
	a.Metadata = fromNullString(metadata)
	a.MetadataEtag = fromNullString(etag)
	a.MetadataUpdated = fromNullTime(metadataUpdated)
	a.Error = fromNullString(errStr)
	return &a, nil
}

// GetOrInsertAuthor loads an author, creating a pending entity when absent.
func (t *Tx) GetOrInsertAuthor(name string) (*Author, error) {
	name = strings.ToLower(name)
	author, err := t.GetAuthor(name)
	if err != nil || author != nil {
		return author, err
	}
	author = &Author{Name: name, Status: StatusPending}
	if err := t.PutAuthor(author); err != nil {
		return nil, err
	}
	return author, nil
}

// PutAuthor upserts an author row.
func (t *Tx) PutAuthor(a *Author) error {
	a.Updated = t.now()
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO authors (name, metadata, metadata_etag, metadata_updated, status, error, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			metadata = excluded.metadata,
			metadata_etag = excluded.metadata_etag,
			metadata_updated = excluded.metadata_updated,
			status = excluded.status,
			error = excluded.error,
			updated = excluded.updated`,
		a.Name, nullString(a.Metadata), nullString(a.MetadataEtag), nullTime(a.MetadataUpdated),
		a.Status, nullString(a.Error), a.Updated)
	if err != nil {
		return fmt.Errorf("failed to put author %s: %w", a.Name, err)
	}
	return nil
}

// DeleteAuthor removes an author row.
func (t *Tx) DeleteAuthor(name string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM authors WHERE name = ?`, strings.ToLower(name)); err != nil {
		return fmt.Errorf("failed to delete author %s: %w", name, err)
	}
	return nil
}

// AuthorNames pages through all author names in key order.
func (t *Tx) AuthorNames(cursor string, limit int) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT name FROM authors WHERE name > ? ORDER BY name LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
