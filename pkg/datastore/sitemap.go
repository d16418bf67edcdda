package datastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PutSitemap stores the page list for one sitemap kind.
func (t *Tx) PutSitemap(kind string, pages []string) error {
	if pages == nil {
		pages = []string{}
	}
	encoded, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("failed to encode sitemap: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO sitemaps (kind, pages) VALUES (?, ?)
		ON CONFLICT (kind) DO UPDATE SET pages = excluded.pages`,
		kind, string(encoded)); err != nil {
		return fmt.Errorf("failed to put sitemap %s: %w", kind, err)
	}
	return nil
}

// GetSitemap returns the page list for one sitemap kind, nil when absent.
func (t *Tx) GetSitemap(kind string) ([]string, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT pages FROM sitemaps WHERE kind = ?`, kind)

	var encoded string
	err := row.Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sitemap: %w", err)
	}

	var pages []string
	if err := json.Unmarshal([]byte(encoded), &pages); err != nil {
		return nil, fmt.Errorf("failed to decode sitemap: %w", err)
	}
	return pages, nil
}
