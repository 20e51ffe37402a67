// Package engine defines the contract between the query pipeline and a
// document-search engine, together with the raw shapes the engine returns.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrIndexNotFound = errors.New("engine: index not found")
	ErrIndexExists   = errors.New("engine: index already exists")
)

// Error wraps a failed engine call with the operation name and, for remote
// engines, the HTTP status returned.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Params is a set of named search parameters.
type Params map[string]any

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge copies every key of other into p, overwriting existing keys.
func (p Params) Merge(other Params) {
	for k, v := range other {
		p[k] = v
	}
}

// Int reads key as an integer. Numbers and numeric strings are accepted; a
// missing key yields def.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("parameter %q: unsupported type %T", key, v)
	}
}

// SearchRequest is one search dispatched to an engine. Body carries the
// query clauses and facets, Params the engine parameters.
type SearchRequest struct {
	Index  string
	Body   map[string]any
	Params Params
}

// Engine is the search engine client consumed by the query pipeline.
type Engine interface {
	Search(ctx context.Context, req SearchRequest) (*Response, error)
	GetMapping(ctx context.Context, index, docType string) (Mapping, error)
}

// Indexer is implemented by engines that accept documents directly.
type Indexer interface {
	IndexDocument(ctx context.Context, index, docType, id string, doc map[string]any) error
}
