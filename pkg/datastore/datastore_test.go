package datastore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLibraryRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx *Tx) error {
		library, err := tx.GetOrInsertLibrary("polymerelements", "iron-ajax")
		require.NoError(t, err)
		assert.Equal(t, "polymerelements/iron-ajax", library.ID)
		assert.Equal(t, StatusPending, library.Status)
		assert.Equal(t, KindElement, library.Kind)

		library.Kind = KindCollection
		library.SpdxIdentifier = "MIT"
		library.Tags = []string{"v1.0.0", "v1.1.0"}
		library.TagMap = map[string]string{"v1.0.0": "aaa", "v1.1.0": "bbb"}
		library.MetadataEtag = `"etag-1"`
		library.CollectionSequenceNumber = 3
		return tx.PutLibrary(library)
	})
	require.NoError(t, err)

	err = store.RunInTransaction(ctx, func(tx *Tx) error {
		library, err := tx.GetLibrary("polymerelements/iron-ajax")
		require.NoError(t, err)
		require.NotNil(t, library)
		assert.Equal(t, KindCollection, library.Kind)
		assert.Equal(t, "MIT", library.SpdxIdentifier)
		assert.Equal(t, []string{"v1.0.0", "v1.1.0"}, library.Tags)
		assert.Equal(t, "bbb", library.TagMap["v1.1.0"])
		assert.Equal(t, `"etag-1"`, library.MetadataEtag)
		assert.Equal(t, 3, library.CollectionSequenceNumber)
		assert.False(t, library.Updated.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestGetLibraryAbsent(t *testing.T) {
	store := openTestStore(t)

	err := store.RunInTransaction(context.Background(), func(tx *Tx) error {
		library, err := tx.GetLibrary("nobody/nothing")
		require.NoError(t, err)
		assert.Nil(t, library)
		return nil
	})
	require.NoError(t, err)
}

func TestVersionCacheRefresh(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	const id = "org/element"

	put := func(tag, status string) {
		err := store.RunInTransaction(ctx, func(tx *Tx) error {
			return tx.PutVersion(&Version{LibraryID: id, Tag: tag, Sha: "sha-" + tag, Status: status})
		})
		require.NoError(t, err)
	}

	put("v1.0.0", StatusReady)
	put("v0.5.0", StatusReady)
	put("v2.0.0", StatusPending)
	put("not-a-tag", StatusReady)

	err := store.RunInTransaction(ctx, func(tx *Tx) error {
		changed, err := tx.RefreshVersionCache(id)
		require.NoError(t, err)
		assert.True(t, changed, "first refresh establishes a default")

		versions, err := tx.VersionsForLibrary(id)
		require.NoError(t, err)
		assert.Equal(t, []string{"v0.5.0", "v1.0.0"}, versions, "pending and invalid tags are excluded")
		return nil
	})
	require.NoError(t, err)

	// A refresh with no changes reports no index update.
	err = store.RunInTransaction(ctx, func(tx *Tx) error {
		changed, err := tx.RefreshVersionCache(id)
		require.NoError(t, err)
		assert.False(t, changed)
		return nil
	})
	require.NoError(t, err)

	// A new non-default version changes the cache but not the default.
	put("v0.9.0", StatusReady)
	err = store.RunInTransaction(ctx, func(tx *Tx) error {
		changed, err := tx.RefreshVersionCache(id)
		require.NoError(t, err)
		assert.False(t, changed, "default is still v1.0.0")

		defaultVersion, err := tx.DefaultVersionForLibrary(id)
		require.NoError(t, err)
		assert.Equal(t, "v1.0.0", defaultVersion)
		return nil
	})
	require.NoError(t, err)

	// Promoting v2.0.0 changes the default.
	put("v2.0.0", StatusReady)
	err = store.RunInTransaction(ctx, func(tx *Tx) error {
		changed, err := tx.RefreshVersionCache(id)
		require.NoError(t, err)
		assert.True(t, changed)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteLibraryTree(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	const id = "org/element"

	err := store.RunInTransaction(ctx, func(tx *Tx) error {
		_, err := tx.GetOrInsertLibrary("org", "element")
		require.NoError(t, err)
		require.NoError(t, tx.PutVersion(&Version{LibraryID: id, Tag: "v1.0.0", Sha: "abc", Status: StatusReady}))

		readme := NewContent(id, "v1.0.0", RoleReadme)
		readme.SetText("# hello")
		require.NoError(t, tx.PutContent(readme))

		require.NoError(t, tx.EnsureCollectionReference(id, "org/collection", "v0.0.1", "^1.0.0"))
		_, err = tx.RefreshVersionCache(id)
		return err
	})
	require.NoError(t, err)

	err = store.RunInTransaction(ctx, func(tx *Tx) error {
		return tx.DeleteLibraryTree(id)
	})
	require.NoError(t, err)

	err = store.RunInTransaction(ctx, func(tx *Tx) error {
		library, err := tx.GetLibrary(id)
		require.NoError(t, err)
		assert.Nil(t, library)

		version, err := tx.GetVersion(id, "v1.0.0")
		require.NoError(t, err)
		assert.Nil(t, version)

		content, err := tx.GetContent(id, "v1.0.0", RoleReadme)
		require.NoError(t, err)
		assert.Nil(t, content)

		refs, err := tx.CollectionReferences(id)
		require.NoError(t, err)
		assert.Empty(t, refs)

		versions, err := tx.VersionsForLibrary(id)
		require.NoError(t, err)
		assert.Empty(t, versions)
		return nil
	})
	require.NoError(t, err)
}

func TestContentBodies(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx *Tx) error {
		content := NewContent("org/element", "v1.0.0", RoleBower)
		require.NoError(t, content.SetJSON([]byte(`{"name":"element","dependencies":{}}`)))
		content.Status = StatusReady
		require.NoError(t, tx.PutContent(content))

		loaded, err := tx.GetContent("org/element", "v1.0.0", RoleBower)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.True(t, loaded.HasJSON())
		assert.Empty(t, loaded.Text())

		raw, err := loaded.JSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"element","dependencies":{}}`, string(raw))

		// Switching to a text body clears the JSON body.
		loaded.SetText("plain")
		assert.False(t, loaded.HasJSON())
		assert.Equal(t, "plain", loaded.Text())

		// Invalid JSON is rejected.
		assert.Error(t, loaded.SetJSON([]byte(`{"broken`)))
		return nil
	})
	require.NoError(t, err)
}

func TestTaskOutbox(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// A task enqueued in a rolled-back transaction is never visible.
	sentinel := assert.AnError
	err := store.RunInTransaction(ctx, func(tx *Tx) error {
		require.NoError(t, tx.EnqueueTask("default", "/task/ingest/org/rollback"))
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	count, err := store.PendingTasks(ctx, "default")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.EnqueueTask(ctx, "default", "/task/ingest/org/element"))
	require.NoError(t, store.EnqueueTask(ctx, "update", "/task/update/org/element"))

	count, err = store.PendingTasks(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	task, err := store.ClaimTask(ctx, "default")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "/task/ingest/org/element", task.URL)
	assert.Equal(t, 1, task.Attempts)

	// A claimed task is not handed out again.
	again, err := store.ClaimTask(ctx, "default")
	require.NoError(t, err)
	assert.Nil(t, again)

	// Retrying with zero backoff makes it immediately claimable again.
	require.NoError(t, store.RetryTask(ctx, task.ID, 0))
	task, err = store.ClaimTask(ctx, "default")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 2, task.Attempts)

	require.NoError(t, store.CompleteTask(ctx, task.ID))
	count, err = store.PendingTasks(ctx, "default")
	require.NoError(t, err)
	assert.Zero(t, count)

	// The other queue is untouched.
	count, err = store.PendingTasks(ctx, "update")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSitemapRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx *Tx) error {
		require.NoError(t, tx.PutSitemap(SitemapElements, []string{"a/b", "c/d"}))
		pages, err := tx.GetSitemap(SitemapElements)
		require.NoError(t, err)
		assert.Equal(t, []string{"a/b", "c/d"}, pages)

		missing, err := tx.GetSitemap(SitemapAuthors)
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)
}
