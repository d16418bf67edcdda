package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcomponents/catalog/pkg/datastore"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(WithBase(server.URL), WithUnpkgBase(server.URL), WithHTTPClient(server.Client()))
}

func TestGetPackagePaths(t *testing.T) {
	var path string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"_rev":"3-abc"}`))
	}))
	ctx := context.Background()

	response, err := client.GetPackage(ctx, "@polymer", "paper-button", "")
	require.NoError(t, err)
	assert.True(t, response.OK())
	assert.Equal(t, "/@polymer/paper-button", path)

	_, err = client.GetPackage(ctx, datastore.NpmScope, "lit-element", "")
	require.NoError(t, err)
	assert.Equal(t, "/lit-element", path)
}

func TestReadmePath(t *testing.T) {
	var path string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte("# readme"))
	}))

	_, err := client.Readme(context.Background(), "@polymer", "paper-button", "3.0.1", "README.md")
	require.NoError(t, err)
	assert.Equal(t, "/@polymer/paper-button@3.0.1/README.md", path)
}

func TestParsePackage(t *testing.T) {
	metadata, err := ParsePackage([]byte(`{
		"_rev": "12-deadbeef",
		"name": "@polymer/paper-button",
		"description": "A button",
		"keywords": ["web-components"],
		"license": "BSD-3-Clause",
		"readmeFilename": "README.md",
		"versions": {"3.0.1": {"dist": {"shasum": "abc123"}}},
		"repository": {"url": "git+https://github.com/PolymerElements/paper-button.git"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "12-deadbeef", metadata.Rev)
	assert.Equal(t, License("BSD-3-Clause"), metadata.License)
	assert.Equal(t, "abc123", metadata.Versions["3.0.1"].Dist.Shasum)
	assert.Equal(t, "git+https://github.com/PolymerElements/paper-button.git", metadata.Repository.URL)
	assert.Equal(t, "", metadata.Versions["3.0.1"].GitHead)
}

func TestParsePackageRepositoryShorthand(t *testing.T) {
	metadata, err := ParsePackage([]byte(`{"repository": "PolymerElements/paper-button"}`))
	require.NoError(t, err)
	assert.Equal(t, "PolymerElements/paper-button", metadata.Repository.URL)
}

func TestParsePackageLegacyLicense(t *testing.T) {
	metadata, err := ParsePackage([]byte(`{"license": {"type": "MIT", "url": "https://example.com"}}`))
	require.NoError(t, err)
	assert.Equal(t, License("MIT"), metadata.License)

	_, err = ParsePackage([]byte(`not json`))
	assert.Error(t, err)
}
