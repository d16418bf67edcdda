// Package registry talks to the npm registry and to unpkg. Responses follow
// the same conditional-GET contract as the GitHub adapter so ingestion can
// classify them uniformly.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/fetch"
	"github.com/webcomponents/catalog/pkg/httpclient"
)

const (
	defaultBase  = "https://registry.npmjs.org"
	defaultUnpkg = "https://unpkg.com"
)

// Client fetches package metadata and readmes.
type Client struct {
	base  string
	unpkg string
	http  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBase overrides the registry base URL.
func WithBase(base string) Option {
	return func(c *Client) {
		c.base = strings.TrimSuffix(base, "/")
	}
}

// WithUnpkgBase overrides the unpkg base URL.
func WithUnpkgBase(base string) Option {
	return func(c *Client) {
		c.unpkg = strings.TrimSuffix(base, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// NewClient creates a registry client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		base:  defaultBase,
		unpkg: defaultUnpkg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.Get()
	}
	return c
}

// packageName renders the registry name for a scope and package. Unscoped
// packages carry the placeholder scope, which never reaches the wire.
func packageName(scope, pkg string) string {
	if scope == datastore.NpmScope {
		return pkg
	}
	return scope + "/" + pkg
}

// GetPackage fetches full package metadata, including the registry revision
// used for change detection.
func (c *Client) GetPackage(ctx context.Context, scope, pkg, etag string) (*fetch.Response, error) {
	target := fmt.Sprintf("%s/%s", c.base, packageName(scope, pkg))
	return fetch.Get(ctx, c.http, target, etag, nil)
}

// Readme fetches a package file from unpkg at an exact version.
func (c *Client) Readme(ctx context.Context, scope, pkg, version, path string) (*fetch.Response, error) {
	target := fmt.Sprintf("%s/%s@%s/%s", c.unpkg, packageName(scope, pkg), version, strings.TrimPrefix(path, "/"))
	return fetch.Get(ctx, c.http, target, "", nil)
}
