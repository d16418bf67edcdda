package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/webcomponents/catalog/pkg/fetch"
)

// get performs a conditional GET against the REST API.
func (c *Client) get(ctx context.Context, path, etag string, params url.Values) (*fetch.Response, error) {
	target := c.apiBase + "/" + strings.TrimPrefix(path, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	header := http.Header{}
	header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	return fetch.Get(ctx, c.http, target, etag, header)
}

// Repo fetches repository metadata.
func (c *Client) Repo(ctx context.Context, owner, repo, etag string) (*fetch.Response, error) {
	return c.get(ctx, fmt.Sprintf("repos/%s/%s", owner, repo), etag, nil)
}

// Tags lists the repository's tags.
func (c *Client) Tags(ctx context.Context, owner, repo, etag string) (*fetch.Response, error) {
	return c.get(ctx, fmt.Sprintf("repos/%s/%s/tags", owner, repo), etag, nil)
}

// MasterRef fetches the head of the master branch. Collections version off it
// instead of off tags.
func (c *Client) MasterRef(ctx context.Context, owner, repo, etag string) (*fetch.Response, error) {
	return c.get(ctx, fmt.Sprintf("repos/%s/%s/git/refs/heads/master", owner, repo), etag, nil)
}

// Contributors lists repository contributors.
func (c *Client) Contributors(ctx context.Context, owner, repo, etag string) (*fetch.Response, error) {
	return c.get(ctx, fmt.Sprintf("repos/%s/%s/contributors", owner, repo), etag, nil)
}

// Participation fetches weekly commit counts. GitHub answers 202 while it
// computes the stats, which callers treat as "try again next sweep".
func (c *Client) Participation(ctx context.Context, owner, repo, etag string) (*fetch.Response, error) {
	return c.get(ctx, fmt.Sprintf("repos/%s/%s/stats/participation", owner, repo), etag, nil)
}

// User fetches a user's public profile.
func (c *Client) User(ctx context.Context, login, etag string) (*fetch.Response, error) {
	return c.get(ctx, fmt.Sprintf("users/%s", login), etag, nil)
}

// Readme fetches the repository readme at a specific commit.
func (c *Client) Readme(ctx context.Context, owner, repo, ref string) (*fetch.Response, error) {
	return c.get(ctx, fmt.Sprintf("repos/%s/%s/readme", owner, repo), "", url.Values{"ref": {ref}})
}

// Contents fetches a file's metadata and base64 body at a specific commit.
func (c *Client) Contents(ctx context.Context, owner, repo, path, ref string) (*fetch.Response, error) {
	return c.get(ctx, fmt.Sprintf("repos/%s/%s/contents/%s", owner, repo, path), "", url.Values{"ref": {ref}})
}

// RawContent fetches a file from the raw content host, bypassing the API
// quota.
func (c *Client) RawContent(ctx context.Context, owner, repo, ref, path string) (*fetch.Response, error) {
	target := fmt.Sprintf("%s/%s/%s/%s/%s", c.rawBase, owner, repo, ref, path)
	return fetch.Get(ctx, c.http, target, "", nil)
}
