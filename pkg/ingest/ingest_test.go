package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcomponents/catalog/pkg/analysis"
	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/fetch"
	"github.com/webcomponents/catalog/pkg/github"
	"github.com/webcomponents/catalog/pkg/registry"
	"github.com/webcomponents/catalog/pkg/search"
	"github.com/webcomponents/catalog/pkg/task"
)

// fakeHost serves canned responses by exact path. Handlers can be swapped
// between pipeline runs to simulate upstream drift.
type fakeHost struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
}

func newFakeHost() *fakeHost {
	return &fakeHost{handlers: map[string]http.HandlerFunc{}}
}

func (f *fakeHost) set(path string, handler http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = handler
}

func (f *fakeHost) json(path string, value interface{}) {
	f.set(path, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(value)
		w.Write(body)
	})
}

func (f *fakeHost) status(path string, code int) {
	f.set(path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func (f *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	handler, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

type fixture struct {
	svc   *Service
	store *datastore.Store
	host  *fakeHost
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	host := newFakeHost()
	server := httptest.NewServer(host)
	t.Cleanup(server.Close)

	store, err := datastore.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index, err := search.NewIndex(store.DB())
	require.NoError(t, err)

	gh := github.NewClient(
		github.WithAPIBase(server.URL),
		github.WithRawBase(server.URL),
		github.WithToken("test-token"),
		github.WithHTTPClient(server.Client()),
	)
	reg := registry.NewClient(
		registry.WithBase(server.URL+"/registry"),
		registry.WithUnpkgBase(server.URL+"/unpkg"),
		registry.WithHTTPClient(server.Client()),
	)

	return &fixture{
		svc:   NewService(store, gh, reg, index, analysis.NopPublisher{}),
		store: store,
		host:  host,
		ctx:   context.Background(),
	}
}

// serveElementRepo registers the standard upstream surface of a healthy
// GitHub element with the given tags.
func (f *fixture) serveElementRepo(owner, repo string, tags map[string]string) {
	f.host.json("/repos/"+owner+"/"+repo, map[string]interface{}{
		"name":           repo,
		"owner":          map[string]string{"login": owner},
		"description":    "An element",
		"default_branch": "master",
		"license":        map[string]string{"spdx_id": "MIT"},
	})
	f.host.json("/repos/"+owner+"/"+repo+"/contributors", []map[string]string{{"login": owner}})
	f.host.json("/repos/"+owner+"/"+repo+"/stats/participation", map[string][]int{"all": {1, 2}})
	f.host.json("/"+owner+"/"+repo+"/master/bower.json", map[string]interface{}{
		"name":        repo,
		"description": "A trivial manifest",
	})

	var listed []map[string]interface{}
	for tag, sha := range tags {
		listed = append(listed, map[string]interface{}{
			"name":   tag,
			"commit": map[string]string{"sha": sha},
		})
	}
	f.host.json("/repos/"+owner+"/"+repo+"/tags", listed)
}

func (f *fixture) library(t *testing.T, id string) *datastore.Library {
	t.Helper()
	var library *datastore.Library
	err := f.store.RunInTransaction(f.ctx, func(tx *datastore.Tx) error {
		var err error
		library, err = tx.GetLibrary(id)
		return err
	})
	require.NoError(t, err)
	return library
}

func (f *fixture) version(t *testing.T, id, tag string) *datastore.Version {
	t.Helper()
	var version *datastore.Version
	err := f.store.RunInTransaction(f.ctx, func(tx *datastore.Tx) error {
		var err error
		version, err = tx.GetVersion(id, tag)
		return err
	})
	require.NoError(t, err)
	return version
}

func (f *fixture) queuedURLs(t *testing.T, queue string) []string {
	t.Helper()
	tasks, err := f.store.QueuedTasks(f.ctx, queue)
	require.NoError(t, err)
	return lo.Map(tasks, func(queued *datastore.Task, _ int) string { return queued.URL })
}

func (f *fixture) drainQueues(t *testing.T) {
	t.Helper()
	for _, queue := range task.Queues {
		for {
			claimed, err := f.store.ClaimTask(f.ctx, queue)
			require.NoError(t, err)
			if claimed == nil {
				break
			}
			require.NoError(t, f.store.CompleteTask(f.ctx, claimed.ID))
		}
	}
}

func TestIngestLibraryFresh(t *testing.T) {
	f := newFixture(t)
	f.serveElementRepo("org", "repo", map[string]string{"v0.5.0": "sha-0.5", "v1.0.0": "sha-1.0"})

	require.NoError(t, f.svc.AddLibrary(f.ctx, "org", "repo"))
	assert.Equal(t, []string{"/task/ingest/org/repo"}, f.queuedURLs(t, task.QueueDefault))
	f.drainQueues(t)

	require.NoError(t, f.svc.IngestLibrary(f.ctx, "org", "repo"))

	library := f.library(t, "org/repo")
	require.NotNil(t, library)
	assert.Equal(t, datastore.StatusReady, library.Status)
	assert.Equal(t, "MIT", library.SpdxIdentifier)
	assert.Equal(t, datastore.KindElement, library.Kind)
	assert.Equal(t, []string{"v0.5.0", "v1.0.0"}, library.Tags)
	assert.Equal(t, map[string]string{"v0.5.0": "sha-0.5", "v1.0.0": "sha-1.0"}, library.TagMap)

	// Only the default version is staged on first ingest.
	version := f.version(t, "org/repo", "v1.0.0")
	require.NotNil(t, version)
	assert.Equal(t, datastore.StatusPending, version.Status)
	assert.Equal(t, "sha-1.0", version.Sha)
	assert.Nil(t, f.version(t, "org/repo", "v0.5.0"))

	assert.Equal(t, []string{"/task/ensure-author/org", "/task/ingest/org/repo/v1.0.0"}, f.queuedURLs(t, task.QueueDefault))
	assert.Equal(t, []string{"/task/analysis/org/repo/v1.0.0"}, f.queuedURLs(t, task.QueueAnalysis))
}

func TestUpdateLibraryIncremental(t *testing.T) {
	f := newFixture(t)
	f.serveElementRepo("org", "repo", map[string]string{"v0.5.0": "sha-0.5", "v1.0.0": "sha-1.0"})
	require.NoError(t, f.svc.IngestLibrary(f.ctx, "org", "repo"))
	f.drainQueues(t)

	// v1.0.0 finished ingesting; v2.0.0 already has a pending record.
	ingested := f.version(t, "org/repo", "v1.0.0")
	require.NotNil(t, ingested)
	err := f.store.RunInTransaction(f.ctx, func(tx *datastore.Tx) error {
		ingested.Status = datastore.StatusReady
		if err := tx.PutVersion(ingested); err != nil {
			return err
		}
		if err := tx.PutVersion(&datastore.Version{
			LibraryID: "org/repo", Tag: "v2.0.0", Sha: "sha-2.0", Status: datastore.StatusPending,
		}); err != nil {
			return err
		}
		_, err := tx.RefreshVersionCache("org/repo")
		return err
	})
	require.NoError(t, err)

	f.serveElementRepo("org", "repo", map[string]string{
		"v1.0.0": "sha-1.0", "v2.0.0": "sha-2.0", "v3.0.0": "sha-3.0",
	})
	require.NoError(t, f.svc.UpdateLibrary(f.ctx, "org", "repo"))

	// Only the newest tag is ingested; the pending v2.0.0 is left alone.
	version := f.version(t, "org/repo", "v3.0.0")
	require.NotNil(t, version)
	assert.Equal(t, datastore.StatusPending, version.Status)

	urls := f.queuedURLs(t, task.QueueDefault)
	assert.Contains(t, urls, "/task/ingest/org/repo/v3.0.0")
	assert.NotContains(t, urls, "/task/ingest/org/repo/v2.0.0")
	assert.NotContains(t, urls, "/task/delete/org/repo/v1.0.0")
}

func TestCollectionVersionBump(t *testing.T) {
	f := newFixture(t)

	f.host.json("/repos/org/coll", map[string]interface{}{
		"name":           "coll",
		"owner":          map[string]string{"login": "org"},
		"default_branch": "master",
		"license":        "MIT",
	})
	f.host.json("/repos/org/coll/contributors", []map[string]string{})
	f.host.json("/repos/org/coll/stats/participation", map[string][]int{"all": {}})
	f.host.json("/org/coll/master/bower.json", map[string]interface{}{
		"keywords": []string{"element-collection"},
	})
	f.host.json("/repos/org/coll/git/refs/heads/master", map[string]interface{}{
		"ref":    "refs/heads/master",
		"object": map[string]string{"sha": "new-master"},
	})

	err := f.store.RunInTransaction(f.ctx, func(tx *datastore.Tx) error {
		library, err := tx.GetOrInsertLibrary("org", "coll")
		if err != nil {
			return err
		}
		library.Kind = datastore.KindCollection
		library.Status = datastore.StatusReady
		library.SpdxIdentifier = "MIT"
		library.Metadata = `{"name":"coll","owner":{"login":"org"},"default_branch":"master","license":"MIT"}`
		library.CollectionSequenceNumber = 1
		library.Tags = []string{"v0.0.1"}
		library.TagMap = map[string]string{"v0.0.1": "old-master"}
		return tx.PutLibrary(library)
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateLibrary(f.ctx, "org", "coll"))

	library := f.library(t, "org/coll")
	assert.Equal(t, 2, library.CollectionSequenceNumber)
	assert.Equal(t, []string{"v0.0.2"}, library.Tags)
	assert.Equal(t, map[string]string{"v0.0.2": "new-master"}, library.TagMap)

	version := f.version(t, "org/coll", "v0.0.2")
	require.NotNil(t, version)
	assert.Equal(t, "new-master", version.Sha)
	assert.Equal(t, datastore.StatusPending, version.Status)

	assert.Contains(t, f.queuedURLs(t, task.QueueDefault), "/task/ingest/org/coll/v0.0.2")
	assert.Contains(t, f.queuedURLs(t, task.QueueAnalysis), "/task/analysis/org/coll/v0.0.2?sha=new-master")
}

func TestRenameCascade(t *testing.T) {
	f := newFixture(t)
	f.host.json("/repos/org/repo", map[string]interface{}{
		"name":    "newname",
		"owner":   map[string]string{"login": "neworg"},
		"license": "MIT",
	})

	err := f.svc.IngestLibrary(f.ctx, "org", "repo")
	var permanent *task.PermanentError
	require.ErrorAs(t, err, &permanent)

	assert.Nil(t, f.library(t, "org/repo"))
	assert.Equal(t, []string{"/task/ensure/neworg/newname"}, f.queuedURLs(t, task.QueueDefault))

	doc, err := f.svc.Index.Get(f.ctx, "org/repo")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestAnalysisReplyRace(t *testing.T) {
	f := newFixture(t)

	err := f.store.RunInTransaction(f.ctx, func(tx *datastore.Tx) error {
		if _, err := tx.GetOrInsertLibrary("org", "repo"); err != nil {
			return err
		}
		for _, tag := range []string{"v1.0.0", "v1.0.1"} {
			if err := tx.PutVersion(&datastore.Version{
				LibraryID: "org/repo", Tag: tag, Sha: "sha-" + tag, Status: datastore.StatusReady,
			}); err != nil {
				return err
			}
		}
		if err := tx.PutContent(datastore.NewContent("org/repo", "v1.0.0", datastore.RoleAnalysis)); err != nil {
			return err
		}
		_, err := tx.RefreshVersionCache("org/repo")
		return err
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.IngestAnalysis(f.ctx, pushBody(t, "org", "repo", "v1.0.0", "", `{"elementsByTagName":{"x-el":{}}}`)))

	err = f.store.RunInTransaction(f.ctx, func(tx *datastore.Tx) error {
		content, err := tx.GetContent("org/repo", "v1.0.0", datastore.RoleAnalysis)
		require.NoError(t, err)
		require.NotNil(t, content)
		assert.Equal(t, datastore.StatusReady, content.Status)
		assert.True(t, content.HasJSON())
		return nil
	})
	require.NoError(t, err)

	// The reply was for the non-default version, so no index rebuild.
	assert.Empty(t, f.queuedURLs(t, task.QueueDefault))
}

func TestIngestPreview(t *testing.T) {
	f := newFixture(t)
	f.host.json("/repos/org/repo", map[string]interface{}{
		"name":    "repo",
		"owner":   map[string]string{"login": "org"},
		"license": map[string]string{"spdx_id": "MIT"},
	})
	f.host.json("/repos/org/repo/contributors", []map[string]string{})
	f.host.json("/repos/org/repo/stats/participation", map[string][]int{"all": {}})
	f.host.status("/org/repo/master/bower.json", http.StatusNotFound)

	require.NoError(t, f.svc.IngestPreview(f.ctx, "org", "repo", "c0ffee", "https://pr.example/1"))

	library := f.library(t, "org/repo")
	require.NotNil(t, library)
	assert.True(t, library.ShallowIngestion)
	assert.Equal(t, datastore.StatusReady, library.Status)

	version := f.version(t, "org/repo", "c0ffee")
	require.NotNil(t, version)
	assert.True(t, version.Preview)
	assert.Equal(t, "c0ffee", version.Sha)
	assert.Equal(t, "https://pr.example/1", version.URL)

	// No author ensure and no tag enumeration on preview ingestion.
	urls := f.queuedURLs(t, task.QueueDefault)
	assert.NotContains(t, urls, "/task/ensure-author/org")
	assert.Contains(t, urls, "/task/ingest/org/repo/c0ffee")
}

func TestUpdateLibraryAllNotModified(t *testing.T) {
	f := newFixture(t)
	f.serveElementRepo("org", "repo", map[string]string{"v1.0.0": "sha-1.0"})
	require.NoError(t, f.svc.IngestLibrary(f.ctx, "org", "repo"))
	ingested := f.version(t, "org/repo", "v1.0.0")
	require.NotNil(t, ingested)
	err := f.store.RunInTransaction(f.ctx, func(tx *datastore.Tx) error {
		ingested.Status = datastore.StatusReady
		if err := tx.PutVersion(ingested); err != nil {
			return err
		}
		_, err := tx.RefreshVersionCache("org/repo")
		return err
	})
	require.NoError(t, err)
	f.drainQueues(t)
	before := f.library(t, "org/repo")

	// Every conditional fetch now answers 304.
	for _, path := range []string{
		"/repos/org/repo", "/repos/org/repo/contributors",
		"/repos/org/repo/stats/participation", "/repos/org/repo/tags",
	} {
		f.status(path, http.StatusNotModified)
	}

	require.NoError(t, f.svc.UpdateLibrary(f.ctx, "org", "repo"))

	after := f.library(t, "org/repo")
	assert.Equal(t, before.Updated, after.Updated, "an all-304 update writes nothing")
	assert.Empty(t, f.queuedURLs(t, task.QueueDefault))
	assert.Empty(t, f.queuedURLs(t, task.QueueAnalysis))
}

func TestUpdateLibraryGone(t *testing.T) {
	f := newFixture(t)
	f.serveElementRepo("org", "repo", map[string]string{"v1.0.0": "sha-1.0"})
	require.NoError(t, f.svc.IngestLibrary(f.ctx, "org", "repo"))
	f.drainQueues(t)

	f.status("/repos/org/repo", http.StatusNotFound)

	err := f.svc.UpdateLibrary(f.ctx, "org", "repo")
	var permanent *task.PermanentError
	require.ErrorAs(t, err, &permanent)

	assert.Nil(t, f.library(t, "org/repo"))
	assert.Nil(t, f.version(t, "org/repo", "v1.0.0"))
	assert.Empty(t, f.queuedURLs(t, task.QueueDefault))
}

func TestQuotaExhaustionIsTransient(t *testing.T) {
	f := newFixture(t)
	f.host.set("/repos/org/repo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	})

	err := f.svc.IngestLibrary(f.ctx, "org", "repo")
	var quota *fetch.QuotaError
	require.ErrorAs(t, err, &quota)

	// The library stays pending for the redelivery.
	library := f.library(t, "org/repo")
	require.NotNil(t, library)
	assert.Equal(t, datastore.StatusPending, library.Status)
}

func TestMissingLicenseIsPermanent(t *testing.T) {
	f := newFixture(t)
	f.host.json("/repos/org/repo", map[string]interface{}{
		"name":  "repo",
		"owner": map[string]string{"login": "org"},
	})
	f.host.json("/repos/org/repo/contributors", []map[string]string{})
	f.host.json("/repos/org/repo/stats/participation", map[string][]int{"all": {}})
	f.status("/org/repo/master/bower.json", http.StatusNotFound)

	err := f.svc.IngestLibrary(f.ctx, "org", "repo")
	var permanent *task.PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.Equal(t, task.CodeLibraryLicense, permanent.Code)

	library := f.library(t, "org/repo")
	require.NotNil(t, library)
	assert.Equal(t, datastore.StatusError, library.Status)
	assert.Contains(t, library.Error, `"code":5`)
}

// status is a shorthand on fixture for swapping a path to a bare status.
func (f *fixture) status(path string, code int) {
	f.host.status(path, code)
}

// pushBody builds a Pub/Sub push delivery carrying one analysis reply.
func pushBody(t *testing.T, owner, repo, version, errText, data string) []byte {
	t.Helper()
	attributes := map[string]string{"owner": owner, "repo": repo, "version": version}
	if errText != "" {
		attributes["error"] = errText
	}
	body, err := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{
			"data":       base64.StdEncoding.EncodeToString([]byte(data)),
			"attributes": attributes,
		},
	})
	require.NoError(t, err)
	return body
}
