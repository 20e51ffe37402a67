package query

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"sheer/internal/engine"
	"sheer/internal/permalink"
)

const testIndex = "content"

// fakeEngine records every search and serves a canned response and mapping.
type fakeEngine struct {
	mu       sync.Mutex
	requests []engine.SearchRequest

	response   *engine.Response
	searchErr  error
	mappings   map[string]engine.Mapping
	mappingErr error

	mappingCalls atomic.Int32
}

func (f *fakeEngine) Search(_ context.Context, req engine.SearchRequest) (*engine.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.response == nil {
		return &engine.Response{Hits: &engine.Hits{}}, nil
	}
	// each call gets its own copy so Query can be attached freely
	resp := *f.response
	return &resp, nil
}

func (f *fakeEngine) GetMapping(_ context.Context, _ string, docType string) (engine.Mapping, error) {
	f.mappingCalls.Add(1)
	if f.mappingErr != nil {
		return nil, f.mappingErr
	}
	if m, ok := f.mappings[docType]; ok {
		return m, nil
	}
	return engine.Mapping{}, nil
}

func (f *fakeEngine) lastRequest(t *testing.T) engine.SearchRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests, "no search issued")
	return f.requests[len(f.requests)-1]
}

func (f *fakeEngine) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// typeMapping builds the mapping the engine reports for one document type.
func typeMapping(docType string, fields map[string]string) engine.Mapping {
	props := make(map[string]engine.FieldMapping, len(fields))
	for name, datatype := range fields {
		props[name] = engine.FieldMapping{Type: datatype}
	}
	return engine.Mapping{testIndex: {Mappings: map[string]engine.TypeMapping{
		docType: {Properties: props},
	}}}
}

func newTestApp(t *testing.T, eng engine.Engine) *App {
	t.Helper()
	rules, err := permalink.FromPatterns(map[string]string{"post": "/blog/<id>/"})
	require.NoError(t, err)
	return NewApp(eng, testIndex, t.TempDir(), rules, nil)
}

// writeTemplate stores a template called name under dir and returns its path.
func writeTemplate(t *testing.T, dir, name, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name+".json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func postHits(n int) []engine.RawHit {
	hits := make([]engine.RawHit, n)
	for i := range hits {
		hits[i] = engine.RawHit{
			Index:  testIndex,
			Type:   "post",
			ID:     string(rune('a' + i)),
			Source: map[string]any{"title": "post", "comments": float64(i)},
		}
	}
	return hits
}
