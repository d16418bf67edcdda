package datastore

import (
	"database/sql"
	"errors"
	"fmt"
)

func scanVersion(row *sql.Row) (*Version, error) {
	var v Version
	var url, errStr sql.NullString
	err := row.Scan(&v.LibraryID, &v.Tag, &v.Sha, &url, &v.Preview, &v.Status, &errStr, &v.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}
	v.URL = fromNullString(url)
	v.Error = fromNullString(errStr)
	return &v, nil
}

// GetVersion loads one version, returning nil when it does not exist.
func (t *Tx) GetVersion(libraryID, tag string) (*Version, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT library_id, tag, sha, url, preview, status, error, updated
		 FROM versions WHERE library_id = ? AND tag = ?`, libraryID, tag)
	return scanVersion(row)
}

// PutVersion upserts a version row.
func (t *Tx) PutVersion(v *Version) error {
	v.Updated = t.now()
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO versions (library_id, tag, sha, url, preview, status, error, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (library_id, tag) DO UPDATE SET
			sha = excluded.sha,
			url = excluded.url,
			preview = excluded.preview,
			status = excluded.status,
			error = excluded.error,
			updated = excluded.updated`,
		v.LibraryID, v.Tag, v.Sha, nullString(v.URL), v.Preview, v.Status, nullString(v.Error), v.Updated)
	if err != nil {
		return fmt.Errorf("failed to put version %s/%s: %w", v.LibraryID, v.Tag, err)
	}
	return nil
}

// DeleteVersionTree removes a version and its content entities.
func (t *Tx) DeleteVersionTree(libraryID, tag string) error {
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM contents WHERE library_id = ? AND tag = ?`, libraryID, tag); err != nil {
		return fmt.Errorf("failed to delete contents for %s/%s: %w", libraryID, tag, err)
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM versions WHERE library_id = ? AND tag = ?`, libraryID, tag); err != nil {
		return fmt.Errorf("failed to delete version %s/%s: %w", libraryID, tag, err)
	}
	return nil
}

// VersionsByStatus lists versions of a library with the given status in tag
// key order.
func (t *Tx) VersionsByStatus(libraryID, status string) ([]*Version, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT library_id, tag, sha, url, preview, status, error, updated
		 FROM versions WHERE library_id = ? AND status = ? ORDER BY tag`, libraryID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		var v Version
		var url, errStr sql.NullString
		if err := rows.Scan(&v.LibraryID, &v.Tag, &v.Sha, &url, &v.Preview, &v.Status, &errStr, &v.Updated); err != nil {
			return nil, err
		}
		v.URL = fromNullString(url)
		v.Error = fromNullString(errStr)
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}
