package datastore

import (
	"database/sql"
	"fmt"
)

// EnsureCollectionReference upserts the inverse edge recording that
// memberLibraryID appears in collectionID at collectionTag with the given
// range.
func (t *Tx) EnsureCollectionReference(memberLibraryID, collectionID, collectionTag, semverRange string) error {
	refID := collectionID + "/" + collectionTag
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO collection_references (library_id, ref_id, semver) VALUES (?, ?, ?)
		ON CONFLICT (library_id, ref_id) DO UPDATE SET semver = excluded.semver`,
		memberLibraryID, refID, nullString(semverRange))
	if err != nil {
		return fmt.Errorf("failed to ensure collection reference %s -> %s: %w", memberLibraryID, refID, err)
	}
	return nil
}

// CollectionReferences lists the collections a library appears in.
func (t *Tx) CollectionReferences(libraryID string) ([]*CollectionReference, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT library_id, ref_id, semver FROM collection_references WHERE library_id = ? ORDER BY ref_id`,
		libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection references: %w", err)
	}
	defer rows.Close()

	var refs []*CollectionReference
	for rows.Next() {
		var ref CollectionReference
		var semverRange sql.NullString
		if err := rows.Scan(&ref.LibraryID, &ref.RefID, &semverRange); err != nil {
			return nil, err
		}
		ref.Semver = fromNullString(semverRange)
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

// DeleteCollectionReference removes a stale reference. References are lazily
// deleted when the collection version they point at no longer exists.
func (t *Tx) DeleteCollectionReference(libraryID, refID string) error {
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM collection_references WHERE library_id = ? AND ref_id = ?`, libraryID, refID); err != nil {
		return fmt.Errorf("failed to delete collection reference %s -> %s: %w", libraryID, refID, err)
	}
	return nil
}
