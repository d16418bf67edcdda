package datastore

import (
	"bytes"
	"compress/zlib"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Content is a child of Version keyed by role. Exactly one of the text body
// and the JSON body is set; JSON bodies are stored compressed.
type Content struct {
	LibraryID string
	Tag       string
	Role      string

	bodyText string
	bodyJSON []byte // zlib-compressed JSON

	Etag    string
	Status  string
	Error   string
	Updated time.Time
}

// NewContent returns an empty pending content entity.
func NewContent(libraryID, tag, role string) *Content {
	return &Content{LibraryID: libraryID, Tag: tag, Role: role, Status: StatusPending}
}

// SetText stores a text body, clearing any JSON body.
func (c *Content) SetText(text string) {
	c.bodyText = text
	c.bodyJSON = nil
}

// Text returns the text body.
func (c *Content) Text() string {
	return c.bodyText
}

// SetJSON stores raw JSON, compressed, clearing any text body. Invalid JSON
// is rejected. A nil raw clears both bodies.
func (c *Content) SetJSON(raw []byte) error {
	if raw == nil {
		c.bodyText = ""
		c.bodyJSON = nil
		return nil
	}
	if !json.Valid(raw) {
		return fmt.Errorf("content %s is not valid JSON", c.Role)
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to compress content: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to compress content: %w", err)
	}
	c.bodyText = ""
	c.bodyJSON = buf.Bytes()
	return nil
}

// HasJSON reports whether a JSON body is present.
func (c *Content) HasJSON() bool {
	return c.bodyJSON != nil
}

// JSON decompresses and returns the raw JSON body, or nil when none is set.
func (c *Content) JSON() ([]byte, error) {
	if c.bodyJSON == nil {
		return nil, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(c.bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress content: %w", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress content: %w", err)
	}
	return raw, nil
}

// DecodeJSON unmarshals the JSON body into dst.
func (c *Content) DecodeJSON(dst any) error {
	raw, err := c.JSON()
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("content %s has no JSON body", c.Role)
	}
	return json.Unmarshal(raw, dst)
}

// GetContent loads one content entity, returning nil when it does not exist.
func (t *Tx) GetContent(libraryID, tag, role string) (*Content, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT library_id, tag, role, body_text, body_json, etag, status, error, updated
		 FROM contents WHERE library_id = ? AND tag = ? AND role = ?`, libraryID, tag, role)

	var c Content
	var text, etag, errStr sql.NullString
	var body []byte
	err := row.Scan(&c.LibraryID, &c.Tag, &c.Role, &text, &body, &etag, &c.Status, &errStr, &c.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan content: %w", err)
	}
	c.bodyText = fromNullString(text)
	c.bodyJSON = body
	c.Etag = fromNullString(etag)
	c.Error = fromNullString(errStr)
	return &c, nil
}

// PutContent upserts a content entity.
func (t *Tx) PutContent(c *Content) error {
	c.Updated = t.now()
	var text any
	if c.bodyText != "" {
		text = c.bodyText
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO contents (library_id, tag, role, body_text, body_json, etag, status, error, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (library_id, tag, role) DO UPDATE SET
			body_text = excluded.body_text,
			body_json = excluded.body_json,
			etag = excluded.etag,
			status = excluded.status,
			error = excluded.error,
			updated = excluded.updated`,
		c.LibraryID, c.Tag, c.Role, text, c.bodyJSON, nullString(c.Etag), c.Status, nullString(c.Error), c.Updated)
	if err != nil {
		return fmt.Errorf("failed to put content %s/%s/%s: %w", c.LibraryID, c.Tag, c.Role, err)
	}
	return nil
}
