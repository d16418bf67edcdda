package datastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webcomponents/catalog/pkg/versiontag"
)

// VersionsForLibrary returns the cached list of ready versions for a library,
// sorted ascending. The read path never scans Version rows directly; this
// cache is the contract.
func (t *Tx) VersionsForLibrary(libraryID string) ([]string, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT versions FROM version_caches WHERE library_id = ?`, libraryID)

	var encoded string
	err := row.Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read version cache: %w", err)
	}

	var versions []string
	if err := json.Unmarshal([]byte(encoded), &versions); err != nil {
		return nil, fmt.Errorf("failed to decode version cache: %w", err)
	}
	return versions, nil
}

// DefaultVersionForLibrary returns the default version according to the
// cache, or "" when the library has no ready versions.
func (t *Tx) DefaultVersionForLibrary(libraryID string) (string, error) {
	versions, err := t.VersionsForLibrary(libraryID)
	if err != nil {
		return "", err
	}
	return versiontag.DefaultVersion(versions), nil
}

// RefreshVersionCache rebuilds the cache from the ready versions with valid
// tags, sorted. It reports whether the default version changed, which is the
// single signal that a search index update is needed.
func (t *Tx) RefreshVersionCache(libraryID string) (bool, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT tag FROM versions WHERE library_id = ? AND status = ?`, libraryID, StatusReady)
	if err != nil {
		return false, fmt.Errorf("failed to scan versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return false, err
		}
		if versiontag.IsValid(tag) {
			versions = append(versions, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	versiontag.Sort(versions)

	cached, err := t.VersionsForLibrary(libraryID)
	if err != nil {
		return false, err
	}
	if equalStrings(cached, versions) {
		return false, nil
	}

	oldDefault := versiontag.DefaultVersion(cached)
	newDefault := versiontag.DefaultVersion(versions)

	encoded, err := json.Marshal(versions)
	if err != nil {
		return false, fmt.Errorf("failed to encode version cache: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO version_caches (library_id, versions) VALUES (?, ?)
		ON CONFLICT (library_id) DO UPDATE SET versions = excluded.versions`,
		libraryID, string(encoded)); err != nil {
		return false, fmt.Errorf("failed to write version cache: %w", err)
	}

	return oldDefault != newDefault, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
