package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcomponents/catalog/pkg/fetch"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(
		WithAPIBase(server.URL),
		WithRawBase(server.URL),
		WithToken("test-token"),
		WithHTTPClient(server.Client()),
	)
}

func TestConditionalGet(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("ETag", `"fresh"`)
		w.Header().Set("X-RateLimit-Remaining", "4999")
		if r.Header.Get("If-None-Match") == `"stale"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte(`{"name":"repo"}`))
	}))

	ctx := context.Background()

	response, err := client.Repo(ctx, "owner", "repo", "")
	require.NoError(t, err)
	assert.True(t, response.OK())
	assert.Equal(t, `"fresh"`, response.Etag)
	assert.Equal(t, 4999, response.RateLimitRemaining)
	assert.JSONEq(t, `{"name":"repo"}`, string(response.Body))

	response, err = client.Repo(ctx, "owner", "repo", `"stale"`)
	require.NoError(t, err)
	assert.True(t, response.NotModified())
}

func TestQuotaError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.Tags(context.Background(), "owner", "repo", "")
	var quota *fetch.QuotaError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, 0, quota.Remaining)
}

func TestReadmeRef(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/readme", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("ref"))
		w.Write([]byte(`{}`))
	}))

	response, err := client.Readme(context.Background(), "owner", "repo", "abc123")
	require.NoError(t, err)
	assert.True(t, response.OK())
}

func TestRawContent(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/owner/repo/v1.0.0/bower.json", r.URL.Path)
		w.Write([]byte(`{"name":"element"}`))
	}))

	response, err := client.RawContent(context.Background(), "owner", "repo", "v1.0.0", "bower.json")
	require.NoError(t, err)
	assert.True(t, response.OK())
}

func TestMarkdownAppliesInlineDemoTransform(t *testing.T) {
	var rendered string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/markdown", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		rendered = payload["text"]
		w.Write([]byte("<p>html</p>"))
	}))

	source := "intro\n<!---\n```html\n<custom-element-demo>\n</custom-element-demo>\n```\n-->\noutro"
	response, err := client.Markdown(context.Background(), source)
	require.NoError(t, err)
	assert.True(t, response.OK())
	assert.Equal(t, "intro\n```html\n<custom-element-demo>\n</custom-element-demo>\n```\noutro", rendered)
}

func TestInlineDemoTransform(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     string
	}{
		{
			name:     "unwraps commented demo",
			markdown: "<!--\n```html\n<custom-element-demo toolbar>\n```\n-->",
			want:     "```html\n<custom-element-demo toolbar>\n```",
		},
		{
			name:     "unwraps three-dash comment",
			markdown: "<!---\n```\n<custom-element-demo>\n```\n-->",
			want:     "```\n<custom-element-demo>\n```",
		},
		{
			name:     "leaves ordinary comments alone",
			markdown: "<!-- just a note -->",
			want:     "<!-- just a note -->",
		},
		{
			name:     "leaves uncommented fences alone",
			markdown: "```html\n<custom-element-demo>\n```",
			want:     "```html\n<custom-element-demo>\n```",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, InlineDemoTransform(test.markdown))
		})
	}
}

func TestNotFoundIsAResponse(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	response, err := client.User(context.Background(), "ghost", "")
	require.NoError(t, err)
	assert.True(t, response.NotFound())
}
