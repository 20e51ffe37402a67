package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheer/internal/engine"
)

const testIndex = "content"

func newTestEngine(t *testing.T, path string, shards int) *Engine {
	t.Helper()
	e, err := New(path, shards, nil)
	require.NoError(t, err)
	return e
}

func seed(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	docs := []Document{
		{Type: "post", ID: "1", Source: map[string]any{"title": "Learning golang", "date": "2014-01-01T00:00:00Z", "comments": float64(3)}},
		{Type: "post", ID: "2", Source: map[string]any{"title": "Bleve internals", "date": "2014-02-01T00:00:00Z", "comments": float64(1)}},
		{Type: "post", ID: "3", Source: map[string]any{"title": "More golang", "date": "2014-03-01T00:00:00Z", "comments": float64(0)}},
		{Type: "page", ID: "about", Source: map[string]any{"title": "About golang people"}},
	}
	require.NoError(t, e.BulkIndex(ctx, testIndex, docs))
}

func TestIndexAndSearch(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), 3)
	defer e.Close()
	seed(t, e)

	resp, err := e.Search(context.Background(), engine.SearchRequest{
		Index:  testIndex,
		Params: engine.Params{"q": "golang"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.TotalHits())

	resp, err = e.Search(context.Background(), engine.SearchRequest{
		Index:  testIndex,
		Params: engine.Params{"q": "golang", "doc_type": "post", "sort": "date:desc"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), resp.TotalHits())
	require.Len(t, resp.Hits.Hits, 2)

	first := resp.Hits.Hits[0]
	assert.Equal(t, "3", first.ID)
	assert.Equal(t, "post", first.Type)
	assert.Equal(t, testIndex, first.Index)
	assert.Equal(t, "More golang", first.Source["title"])
	assert.Nil(t, first.Fields)
}

func TestSearchPaging(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), 2)
	defer e.Close()
	seed(t, e)

	resp, err := e.Search(context.Background(), engine.SearchRequest{
		Index:  testIndex,
		Params: engine.Params{"doc_type": "post", "sort": "date:asc", "size": "2", "from_": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.TotalHits())
	require.Len(t, resp.Hits.Hits, 1)
	assert.Equal(t, "3", resp.Hits.Hits[0].ID)
}

func TestSearchBodyAndFields(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), 1)
	defer e.Close()
	seed(t, e)

	resp, err := e.Search(context.Background(), engine.SearchRequest{
		Index: testIndex,
		Body: map[string]any{"query": map[string]any{
			"bool": map[string]any{
				"must":     map[string]any{"match": map[string]any{"title": "golang"}},
				"must_not": []any{map[string]any{"term": map[string]any{"_type": "page"}}},
			},
		}},
		Params: engine.Params{"fields": "title", "sort": "date:asc"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits.Hits, 2)
	assert.Equal(t, "1", resp.Hits.Hits[0].ID)
	assert.Equal(t, []any{"Learning golang"}, resp.Hits.Hits[0].Fields["title"])
}

func TestSearchUnsupportedClause(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), 1)
	defer e.Close()
	seed(t, e)

	_, err := e.Search(context.Background(), engine.SearchRequest{
		Index: testIndex,
		Body:  map[string]any{"query": map[string]any{"fuzzy_like_this": map[string]any{}}},
	})
	assert.Error(t, err)
}

func TestSearchMissingIndex(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), 1)
	defer e.Close()

	resp, err := e.Search(context.Background(), engine.SearchRequest{Index: "nope"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.TotalHits())
	assert.Empty(t, resp.Hits.Hits)
}

func TestGetMapping(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), 1)
	defer e.Close()
	seed(t, e)

	m, err := e.GetMapping(context.Background(), testIndex, "post")
	require.NoError(t, err)
	assert.Equal(t, "date", m.Datatype(testIndex, "post", "date"))
	assert.Equal(t, "long", m.Datatype(testIndex, "post", "comments"))
	assert.Equal(t, "string", m.Datatype(testIndex, "post", "title"))

	all, err := e.GetMapping(context.Background(), testIndex, "")
	require.NoError(t, err)
	assert.Len(t, all[testIndex].Mappings, 2)

	_, err = e.GetMapping(context.Background(), "nope", "post")
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
}

func TestReopenKeepsDocumentsAndMapping(t *testing.T) {
	path := t.TempDir()
	e := newTestEngine(t, path, 2)
	require.NoError(t, e.IndexDocument(context.Background(), testIndex, "post", "1", map[string]any{
		"title": "persisted",
		"date":  "2014-01-01T00:00:00Z",
	}))
	require.NoError(t, e.Close())

	e = newTestEngine(t, path, 5)
	defer e.Close()

	assert.Equal(t, []string{testIndex}, e.ListIndices())
	idx := e.GetIndex(testIndex)
	require.NotNil(t, idx)
	assert.Equal(t, 2, idx.GetMetadata().NumShards)

	doc, err := idx.Get("post", "1")
	require.NoError(t, err)
	assert.Equal(t, "persisted", doc["title"])

	m, err := e.GetMapping(context.Background(), testIndex, "post")
	require.NoError(t, err)
	assert.Equal(t, "date", m.Datatype(testIndex, "post", "date"))
}

func TestGetAndDelete(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), 3)
	defer e.Close()
	seed(t, e)
	idx := e.GetIndex(testIndex)

	doc, err := idx.Get("page", "about")
	require.NoError(t, err)
	assert.Equal(t, "About golang people", doc["title"])

	// same id under another type is a different document
	doc, err = idx.Get("post", "about")
	require.NoError(t, err)
	assert.Nil(t, doc)

	require.NoError(t, idx.Delete("page", "about"))
	doc, err = idx.Get("page", "about")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestCreateIndexTwice(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), 1)
	defer e.Close()

	_, err := e.CreateIndex("logs", 2)
	require.NoError(t, err)
	_, err = e.CreateIndex("logs", 2)
	assert.ErrorIs(t, err, engine.ErrIndexExists)

	md := e.GetIndex("logs").GetMetadata()
	assert.Equal(t, []string{"shard_0", "shard_1"}, md.Shards)
}

func TestSortOrder(t *testing.T) {
	assert.Equal(t, []string{"-date", "title"}, sortOrder("date:desc, title:asc"))
	assert.Equal(t, []string{"-date"}, sortOrder([]any{"date:DESC"}))
	assert.Empty(t, sortOrder(nil))
}

func TestSplitKey(t *testing.T) {
	docType, id := splitKey(docKey("post", "a/b"))
	assert.Equal(t, "post", docType)
	assert.Equal(t, "a/b", id)

	docType, id = splitKey("bare")
	assert.Equal(t, "", docType)
	assert.Equal(t, "bare", id)
}

func TestClosedIndexRejectsOperations(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), 2)
	defer e.Close()
	seed(t, e)
	idx := e.GetIndex(testIndex)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err := e.Search(context.Background(), engine.SearchRequest{Index: testIndex})
	assert.ErrorIs(t, err, ErrIndexClosed)
	assert.ErrorIs(t, idx.Index("post", "4", map[string]any{"title": "late"}), ErrIndexClosed)
	assert.ErrorIs(t, idx.BatchIndex([]Document{{Type: "post", ID: "5"}}), ErrIndexClosed)
	_, err = idx.Get("post", "1")
	assert.ErrorIs(t, err, ErrIndexClosed)
	assert.ErrorIs(t, idx.Delete("post", "1"), ErrIndexClosed)
}
