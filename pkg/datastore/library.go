package datastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const libraryColumns = `id, scope, package, kind, status, error, shallow_ingestion,
	github_owner, github_repo, github_access_token, spdx_identifier,
	metadata, metadata_etag, metadata_updated,
	contributors, contributors_etag, contributors_updated,
	participation, participation_etag, participation_updated,
	registry_metadata, registry_metadata_updated,
	tags, tag_map, tags_etag, tags_updated,
	collection_sequence_number, npm_package, migrated_from_bower, updated`

func scanLibrary(row *sql.Row) (*Library, error) {
	var l Library
	var errStr, githubOwner, githubRepo, token, spdx sql.NullString
	var metadata, metadataEtag, contributors, contributorsEtag sql.NullString
	var participation, participationEtag, registryMetadata sql.NullString
	var tags, tagMap, tagsEtag, npmPackage sql.NullString
	var metadataUpdated, contributorsUpdated, participationUpdated sql.NullTime
	var registryMetadataUpdated, tagsUpdated sql.NullTime

	err := row.Scan(&l.ID, &l.Scope, &l.Package, &l.Kind, &l.Status, &errStr, &l.ShallowIngestion,
		&githubOwner, &githubRepo, &token, &spdx,
		&metadata, &metadataEtag, &metadataUpdated,
		&contributors, &contributorsEtag, &contributorsUpdated,
		&participation, &participationEtag, &participationUpdated,
		&registryMetadata, &registryMetadataUpdated,
		&tags, &tagMap, &tagsEtag, &tagsUpdated,
		&l.CollectionSequenceNumber, &npmPackage, &l.MigratedFromBower, &l.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan library: %w", err)
	}

	l.Error = fromNullString(errStr)
	l.GithubOwner = fromNullString(githubOwner)
	l.GithubRepo = fromNullString(githubRepo)
	l.GithubAccessToken = fromNullString(token)
	l.SpdxIdentifier = fromNullString(spdx)
	l.Metadata = fromNullString(metadata)
	l.MetadataEtag = fromNullString(metadataEtag)
	l.MetadataUpdated = fromNullTime(metadataUpdated)
	l.Contributors = fromNullString(contributors)
	l.ContributorsEtag = fromNullString(contributorsEtag)
	l.ContributorsUpdated = fromNullTime(contributorsUpdated)
	l.Participation = fromNullString(participation)
	l.ParticipationEtag = fromNullString(participationEtag)
	l.ParticipationUpdated = fromNullTime(participationUpdated)
	l.RegistryMetadata = fromNullString(registryMetadata)
	l.RegistryMetadataUpdated = fromNullTime(registryMetadataUpdated)
	l.TagsEtag = fromNullString(tagsEtag)
	l.TagsUpdated = fromNullTime(tagsUpdated)
	l.NpmPackage = fromNullString(npmPackage)

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &l.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode library tags: %w", err)
		}
	}
	if tagMap.Valid && tagMap.String != "" {
		if err := json.Unmarshal([]byte(tagMap.String), &l.TagMap); err != nil {
			return nil, fmt.Errorf("failed to decode library tag map: %w", err)
		}
	}
	return &l, nil
}

// GetLibrary loads a library by id, returning nil when it does not exist.
func (t *Tx) GetLibrary(id string) (*Library, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+libraryColumns+` FROM libraries WHERE id = ?`, id)
	return scanLibrary(row)
}

// GetOrInsertLibrary loads a library, creating an empty pending entity when
// it is absent.
func (t *Tx) GetOrInsertLibrary(scope, pkg string) (*Library, error) {
	id := LibraryID(scope, pkg)
	library, err := t.GetLibrary(id)
	if err != nil || library != nil {
		return library, err
	}

	library = &Library{
		ID:      id,
		Scope:   scope,
		Package: pkg,
		Kind:    KindElement,
		Status:  StatusPending,
	}
	if err := t.PutLibrary(library); err != nil {
		return nil, err
	}
	return library, nil
}

// PutLibrary writes the full library row and bumps its updated timestamp.
func (t *Tx) PutLibrary(l *Library) error {
	l.Updated = t.now()

	var tags, tagMap any
	if l.Tags != nil {
		encoded, err := json.Marshal(l.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode library tags: %w", err)
		}
		tags = string(encoded)
	}
	if l.TagMap != nil {
		encoded, err := json.Marshal(l.TagMap)
		if err != nil {
			return fmt.Errorf("failed to encode library tag map: %w", err)
		}
		tagMap = string(encoded)
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO libraries (`+libraryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			scope = excluded.scope,
			package = excluded.package,
			kind = excluded.kind,
			status = excluded.status,
			error = excluded.error,
			shallow_ingestion = excluded.shallow_ingestion,
			github_owner = excluded.github_owner,
			github_repo = excluded.github_repo,
			github_access_token = excluded.github_access_token,
			spdx_identifier = excluded.spdx_identifier,
			metadata = excluded.metadata,
			metadata_etag = excluded.metadata_etag,
			metadata_updated = excluded.metadata_updated,
			contributors = excluded.contributors,
			contributors_etag = excluded.contributors_etag,
			contributors_updated = excluded.contributors_updated,
			participation = excluded.participation,
			participation_etag = excluded.participation_etag,
			participation_updated = excluded.participation_updated,
			registry_metadata = excluded.registry_metadata,
			registry_metadata_updated = excluded.registry_metadata_updated,
			tags = excluded.tags,
			tag_map = excluded.tag_map,
			tags_etag = excluded.tags_etag,
			tags_updated = excluded.tags_updated,
			collection_sequence_number = excluded.collection_sequence_number,
			npm_package = excluded.npm_package,
			migrated_from_bower = excluded.migrated_from_bower,
			updated = excluded.updated`,
		l.ID, l.Scope, l.Package, l.Kind, l.Status, nullString(l.Error), l.ShallowIngestion,
		nullString(l.GithubOwner), nullString(l.GithubRepo), nullString(l.GithubAccessToken), nullString(l.SpdxIdentifier),
		nullString(l.Metadata), nullString(l.MetadataEtag), nullTime(l.MetadataUpdated),
		nullString(l.Contributors), nullString(l.ContributorsEtag), nullTime(l.ContributorsUpdated),
		nullString(l.Participation), nullString(l.ParticipationEtag), nullTime(l.ParticipationUpdated),
		nullString(l.RegistryMetadata), nullTime(l.RegistryMetadataUpdated),
		tags, tagMap, nullString(l.TagsEtag), nullTime(l.TagsUpdated),
		l.CollectionSequenceNumber, nullString(l.NpmPackage), l.MigratedFromBower, l.Updated)
	if err != nil {
		return fmt.Errorf("failed to put library %s: %w", l.ID, err)
	}
	return nil
}

// DeleteLibraryTree removes a library and every descendant entity: versions,
// contents, collection references, and the version cache. The caller is
// responsible for removing the search document.
func (t *Tx) DeleteLibraryTree(id string) error {
	statements := []string{
		`DELETE FROM contents WHERE library_id = ?`,
		`DELETE FROM versions WHERE library_id = ?`,
		`DELETE FROM collection_references WHERE library_id = ?`,
		`DELETE FROM version_caches WHERE library_id = ?`,
		`DELETE FROM libraries WHERE id = ?`,
	}
	for _, stmt := range statements {
		if _, err := t.tx.ExecContext(t.ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete library %s: %w", id, err)
		}
	}
	return nil
}

// LibraryIDs pages through all library ids in key order. Pass the last id of
// the previous page as cursor, or "" to start.
func (t *Tx) LibraryIDs(cursor string, limit int) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id FROM libraries WHERE id > ? ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReadyLibraryIDs lists fully ingested libraries of one kind, for sitemap
// builds.
func (t *Tx) ReadyLibraryIDs(kind string) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id FROM libraries
		 WHERE kind = ? AND status = ? AND shallow_ingestion = 0
		 ORDER BY id`, kind, StatusReady)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready libraries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
