package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcomponents/catalog/pkg/datastore"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	store, err := datastore.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index, err := NewIndex(store.DB())
	require.NoError(t, err)
	return index
}

func testDocument(id string) *Document {
	return &Document{
		ID:                id,
		Owner:             "polymerelements",
		GithubOwner:       "PolymerElements",
		Repo:              "iron-ajax",
		Kind:              "element",
		Version:           "v2.1.3",
		GithubDescription: "Makes it easy to make ajax calls",
		PrefixMatches:     "iro iron aja ajax",
		Element:           "iron-ajax iron-request",
		WeightedFields:    "iron-ajax iron-ajax iron-ajax",
		Rank:              1234,
	}
}

func TestPutGetDelete(t *testing.T) {
	index := openTestIndex(t)
	ctx := context.Background()

	changed, err := index.Put(ctx, testDocument("polymerelements/iron-ajax"))
	require.NoError(t, err)
	assert.True(t, changed)

	doc, err := index.Get(ctx, "polymerelements/iron-ajax")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "iron-ajax", doc.Repo)
	assert.Equal(t, int64(1234), doc.Rank)

	require.NoError(t, index.Delete(ctx, "polymerelements/iron-ajax"))
	doc, err = index.Get(ctx, "polymerelements/iron-ajax")
	require.NoError(t, err)
	assert.Nil(t, doc)

	// Deleting again is fine.
	require.NoError(t, index.Delete(ctx, "polymerelements/iron-ajax"))
}

func TestPutIsIdempotent(t *testing.T) {
	index := openTestIndex(t)
	ctx := context.Background()

	changed, err := index.Put(ctx, testDocument("a/b"))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = index.Put(ctx, testDocument("a/b"))
	require.NoError(t, err)
	assert.False(t, changed, "identical rebuild must not touch the index")

	doc := testDocument("a/b")
	doc.Rank = 9999
	changed, err = index.Put(ctx, doc)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestSearch(t *testing.T) {
	index := openTestIndex(t)
	ctx := context.Background()

	_, err := index.Put(ctx, testDocument("polymerelements/iron-ajax"))
	require.NoError(t, err)

	other := testDocument("other/paper-button")
	other.Repo = "paper-button"
	other.GithubDescription = "A material design button"
	other.Element = "paper-button"
	other.WeightedFields = "paper-button"
	_, err = index.Put(ctx, other)
	require.NoError(t, err)

	results, err := index.Search(ctx, "ajax", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "polymerelements/iron-ajax", results[0].ID)

	results, err = index.Search(ctx, "button", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "other/paper-button", results[0].ID)
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"iron-ajax", []string{"iron", "ajax"}},
		{"PaperButton", []string{"paperbutton", "paper", "button"}},
		{"Makes ajax calls", []string{"makes", "ajax", "calls"}},
		{"", nil},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, SplitWords(test.text), test.text)
	}
}

func TestPrefixes(t *testing.T) {
	prefixes := Prefixes([]string{"ajax", "io"})
	assert.Equal(t, []string{"aja", "ajax"}, prefixes, "words shorter than three characters produce nothing")

	// Duplicates collapse.
	assert.Equal(t, []string{"but", "butt", "butto", "button"}, Prefixes([]string{"button", "button"}))
}
