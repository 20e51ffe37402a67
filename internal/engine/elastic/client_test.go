package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheer/internal/engine"
)

func TestSearchGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/content/post,page/_search", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("from"))
		assert.Equal(t, "10", r.URL.Query().Get("size"))
		assert.Equal(t, "date:desc", r.URL.Query().Get("sort"))
		assert.Empty(t, r.URL.Query().Get("from_"))
		assert.Empty(t, r.URL.Query().Get("doc_type"))

		w.Write([]byte(`{"took":3,"hits":{"total":{"value":1},"hits":[
			{"_index":"content","_type":"post","_id":"1","_source":{"title":"t"},"fields":{"title":["t"]}}
		]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	resp, err := c.Search(context.Background(), engine.SearchRequest{
		Index: "content",
		Params: engine.Params{
			"doc_type": []any{"post", "page"},
			"from_":    20,
			"size":     float64(10),
			"sort":     "date:desc",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.TotalHits())
	require.Len(t, resp.Hits.Hits, 1)
	assert.Equal(t, "post", resp.Hits.Hits[0].Type)
	assert.Equal(t, []any{"t"}, resp.Hits.Hits[0].Fields["title"])
}

func TestSearchPostsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/content/_search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "query")

		w.Write([]byte(`{"hits":{"total":0,"hits":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	resp, err := c.Search(context.Background(), engine.SearchRequest{
		Index: "content",
		Body:  map[string]any{"query": map[string]any{"match_all": map[string]any{}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.TotalHits())
}

func TestSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"search_phase_execution_exception","reason":"all shards failed"},"status":400}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Search(context.Background(), engine.SearchRequest{Index: "content"})
	require.Error(t, err)

	var engErr *engine.Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, OpSearch, engErr.Op)
	assert.Equal(t, http.StatusBadRequest, engErr.Status)
	assert.Contains(t, err.Error(), "all shards failed")
}

func TestGetMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/content/_mapping/post":
			w.Write([]byte(`{"content":{"mappings":{"post":{"properties":{"date":{"type":"date"}}}}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"IndexMissingException[[missing] missing]","status":404}`))
		}
	}))
	defer srv.Close()
	c := New(srv.URL, time.Second)

	m, err := c.GetMapping(context.Background(), "content", "post")
	require.NoError(t, err)
	assert.Equal(t, "date", m.Datatype("content", "post", "date"))

	_, err = c.GetMapping(context.Background(), "missing", "post")
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
}

func TestIndexDocument(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/content/post/hello", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"created":true}`))
	}))
	defer srv.Close()

	err := New(srv.URL, time.Second).IndexDocument(context.Background(), "content", "post", "hello", map[string]any{"title": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", got["title"])
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "bad", errorReason([]byte(`{"error":{"reason":"bad"}}`)))
	assert.Equal(t, "flat", errorReason([]byte(`{"error":"flat"}`)))
	assert.Equal(t, "<html>oops</html>", errorReason([]byte("<html>oops</html>\n")))
	assert.Equal(t, "empty response", errorReason(nil))
}

func TestEncodeParams(t *testing.T) {
	assert.Equal(t, "fields=title%2Cdate&from=5&q=go", encodeParams(engine.Params{
		"from_":  5,
		"fields": []string{"title", "date"},
		"q":      "go",
	}))
}
