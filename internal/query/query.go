// Package query turns stored JSON search templates into engine searches and
// decorates the responses with pagination and schema-typed field access.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"sheer/internal/engine"
	"sheer/internal/metrics"
)

var ErrInvalidPage = errors.New("invalid page argument")

// Query is a named search template stored as JSON on disk. The file is read
// on every search so edits are picked up without a restart.
type Query struct {
	app      *App
	name     string
	filename string

	mu      sync.Mutex
	results *ResultSet
}

func NewQuery(app *App, name, filename string) *Query {
	return &Query{app: app, name: name, filename: filename}
}

func (q *Query) Name() string     { return q.name }
func (q *Query) Filename() string { return q.filename }

func (q *Query) load() (engine.Params, error) {
	data, err := os.ReadFile(q.filename)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", q.name, err)
	}
	var p engine.Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", q.name, err)
	}
	if p == nil {
		p = engine.Params{}
	}
	return p, nil
}

// Search runs the template with overrides merged on top and sort defaulting
// to date:desc. Every call hits the engine.
func (q *Query) Search(ctx context.Context, overrides engine.Params) (*ResultSet, error) {
	params, err := q.load()
	if err != nil {
		return nil, err
	}
	params[indexKey] = q.app.Index
	params.Merge(overrides)
	if _, ok := params[sortKey]; !ok {
		params[sortKey] = defaultSort
	}

	dispatch := params.Clone()
	index, _ := dispatch[indexKey].(string)
	delete(dispatch, indexKey)
	body := takeBody(dispatch)

	resp, err := q.dispatch(ctx, engine.SearchRequest{Index: index, Body: body, Params: dispatch})
	if err != nil {
		return nil, err
	}
	resp.Query = params
	return NewResultSet(q.app, resp, 1)
}

// SearchWithURLArguments is Search with the request's query arguments merged
// over overrides. A page argument becomes a from_ offset. Only allow-listed
// parameters reach the engine.
func (q *Query) SearchWithURLArguments(ctx context.Context, req Request, overrides engine.Params) (*ResultSet, error) {
	params, err := q.load()
	if err != nil {
		return nil, err
	}
	params.Merge(overrides)
	if _, ok := params[sortKey]; !ok {
		params[sortKey] = defaultSort
	}

	// body is a template clause, never a request argument
	body := takeBody(params.Clone())

	page := 1
	args := req.flatArgs()
	delete(args, bodyKey)
	if raw, ok := args[pageArg]; ok {
		page, err = strconv.Atoi(raw.(string))
		if err != nil || page < 1 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPage, raw)
		}
		size, err := params.Int(sizeKey, defaultSize)
		if err != nil {
			return nil, err
		}
		args[fromKey] = size * (page - 1)
	}
	params.Merge(args)

	dispatch := filterAllowed(params)
	resp, err := q.dispatch(ctx, engine.SearchRequest{Index: q.app.Index, Body: body, Params: dispatch})
	if err != nil {
		return nil, err
	}
	resp.Query = params
	return NewResultSet(q.app, resp, page)
}

func (q *Query) dispatch(ctx context.Context, req engine.SearchRequest) (*engine.Response, error) {
	start := time.Now()
	resp, err := q.app.Engine.Search(ctx, req)
	metrics.ObserveSearch(q.name, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.name, err)
	}
	q.app.Logger.Debug("search executed",
		zap.String("template", q.name),
		zap.String("index", req.Index),
		zap.Any("params", req.Params),
		zap.Int64("total", resp.TotalHits()),
	)
	return resp, nil
}

// takeBody removes and returns the body clause from p.
func takeBody(p engine.Params) map[string]any {
	raw, ok := p[bodyKey]
	if !ok {
		return nil
	}
	delete(p, bodyKey)
	body, _ := raw.(map[string]any)
	return body
}

// Results runs Search without overrides once and returns the memoized raw
// response on every later call. It does not reflect overrides passed to
// Search.
func (q *Query) Results(ctx context.Context) (*engine.Response, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.results == nil {
		rs, err := q.Search(ctx, nil)
		if err != nil {
			return nil, err
		}
		q.results = rs
	}
	return q.results.Response(), nil
}

// IterateResults yields each memoized hit as a plain dictionary with its
// fields block merged into the top level.
func (q *Query) IterateResults(ctx context.Context) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		resp, err := q.Results(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		if resp.Hits == nil {
			return
		}
		for _, h := range resp.Hits.Hits {
			if !yield(h.Flatten(), nil) {
				return
			}
		}
	}
}
