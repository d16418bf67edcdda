package github

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	gogithub "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/webcomponents/catalog/pkg/httpclient"
)

const (
	defaultAPIBase = "https://api.github.com"
	defaultRawBase = "https://raw.githubusercontent.com"
)

// Client wraps both raw conditional-GET access to the GitHub REST API and the
// typed go-github client. The raw path is what ingestion uses: it needs etags
// and rate-limit headers verbatim, which the typed client hides.
type Client struct {
	apiBase     string
	rawBase     string
	token       string
	tokenSource string
	http        *http.Client
	rest        *gogithub.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBase overrides the REST API base URL. Tests point it at a local
// httptest server.
func WithAPIBase(base string) Option {
	return func(c *Client) {
		c.apiBase = strings.TrimSuffix(base, "/")
	}
}

// WithRawBase overrides the raw content base URL.
func WithRawBase(base string) Option {
	return func(c *Client) {
		c.rawBase = strings.TrimSuffix(base, "/")
	}
}

// WithToken sets an explicit access token instead of resolving one from the
// environment.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
		c.tokenSource = "explicit"
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

var (
	defaultInstance *Client
	defaultOnce     sync.Once
)

// Default returns the process-wide client, resolving a token from the
// environment on first use.
func Default() *Client {
	defaultOnce.Do(func() {
		defaultInstance = NewClient()
	})
	return defaultInstance
}

// NewClient creates a GitHub client. Without WithToken it tries each known
// environment variable and uses the first non-empty value.
func NewClient(opts ...Option) *Client {
	c := &Client{
		apiBase: defaultAPIBase,
		rawBase: defaultRawBase,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		for _, pattern := range []string{"${GITHUB_TOKEN}", "${GH_TOKEN}", "${GITHUB_ACCESS_TOKEN}"} {
			expanded := os.ExpandEnv(pattern)
			if expanded != "" && expanded != pattern {
				c.token = expanded
				c.tokenSource = strings.TrimSuffix(strings.TrimPrefix(pattern, "${"), "}")
				break
			}
		}
	}

	if c.http == nil {
		c.http = httpclient.Get()
	}

	if c.token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token})
		c.rest = gogithub.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		c.rest = gogithub.NewClient(nil)
	}
	if c.apiBase != defaultAPIBase {
		if base, err := url.Parse(c.apiBase + "/"); err == nil {
			c.rest.BaseURL = base
		}
	}

	return c
}

// TokenSource reports where the access token came from, for the status
// endpoint.
func (c *Client) TokenSource() string {
	if c.token == "" {
		return "none"
	}
	return c.tokenSource
}

// Rest returns the typed go-github client for APIs where the raw path is not
// needed.
func (c *Client) Rest() *gogithub.Client {
	return c.rest
}

// userClient builds a typed client authenticated as an end user rather than
// with the service token. Webhook registration and commit statuses act on the
// user's behalf.
func (c *Client) userClient(ctx context.Context, userToken string) *gogithub.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: userToken})
	client := gogithub.NewClient(oauth2.NewClient(ctx, ts))
	if c.apiBase != defaultAPIBase {
		if base, err := url.Parse(c.apiBase + "/"); err == nil {
			client.BaseURL = base
		}
	}
	return client
}
