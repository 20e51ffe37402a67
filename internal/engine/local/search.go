package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"sheer/internal/engine"
)

const defaultSize = 10

// Search translates req into a bleve request and runs it across every
// shard of the index. A missing index yields an empty response.
func (e *Engine) Search(ctx context.Context, req engine.SearchRequest) (*engine.Response, error) {
	idx := e.GetIndex(req.Index)
	if idx == nil {
		return &engine.Response{Hits: &engine.Hits{Hits: []engine.RawHit{}}}, nil
	}
	resp, err := idx.Search(ctx, req)
	if err != nil {
		return nil, &engine.Error{Op: "search", Err: err}
	}
	return resp, nil
}

// GetMapping reports the sniffed mapping of docType, or of every type when
// docType is empty, in the engine's index/mappings/type/properties shape.
func (e *Engine) GetMapping(_ context.Context, index, docType string) (engine.Mapping, error) {
	idx := e.GetIndex(index)
	if idx == nil {
		return nil, &engine.Error{Op: "get_mapping", Err: fmt.Errorf("%w: %s", engine.ErrIndexNotFound, index)}
	}

	types := []string{docType}
	if docType == "" {
		types = idx.Mapping.Types()
	}
	mappings := make(map[string]engine.TypeMapping, len(types))
	for _, t := range types {
		fields, ok := idx.Mapping.Properties(t)
		if !ok {
			continue
		}
		props := make(map[string]engine.FieldMapping, len(fields))
		for name, datatype := range fields {
			props[name] = engine.FieldMapping{Type: datatype}
		}
		mappings[t] = engine.TypeMapping{Properties: props}
	}
	return engine.Mapping{index: {Mappings: mappings}}, nil
}

func (idx *Index) Search(ctx context.Context, req engine.SearchRequest) (*engine.Response, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, ErrIndexClosed
	}

	q, err := buildQuery(req)
	if err != nil {
		return nil, err
	}
	size, err := req.Params.Int("size", defaultSize)
	if err != nil {
		return nil, err
	}
	from, err := req.Params.Int("from_", 0)
	if err != nil {
		return nil, err
	}

	sreq := bleve.NewSearchRequestOptions(q, size, from, false)
	if order := sortOrder(req.Params["sort"]); len(order) > 0 {
		sreq.SortBy(order)
	}
	requested := splitList(req.Params["fields"])
	sreq.Fields = append([]string{sourceField, typeField}, requested...)

	res, err := idx.alias.SearchInContext(ctx, sreq)
	if err != nil {
		return nil, err
	}

	hits := make([]engine.RawHit, 0, len(res.Hits))
	for _, dm := range res.Hits {
		docType, id := splitKey(dm.ID)
		src, err := decodeSource(dm.Fields)
		if err != nil {
			return nil, fmt.Errorf("hit %s: %w", dm.ID, err)
		}
		score := dm.Score
		hit := engine.RawHit{Index: idx.Name, Type: docType, ID: id, Score: &score, Source: src}
		if len(requested) > 0 {
			hit.Fields = fieldsBlock(dm.Fields, requested)
		}
		hits = append(hits, hit)
	}

	maxScore := res.MaxScore
	return &engine.Response{
		Took: res.Took.Milliseconds(),
		Hits: &engine.Hits{
			Total:    engine.Total(res.Total),
			MaxScore: &maxScore,
			Hits:     hits,
		},
	}, nil
}

// fieldsBlock returns the requested stored fields, each as a list.
func fieldsBlock(stored map[string]any, requested []string) map[string]any {
	out := make(map[string]any)
	add := func(name string, v any) {
		if list, ok := v.([]any); ok {
			out[name] = list
			return
		}
		out[name] = []any{v}
	}
	for _, name := range requested {
		if name == "*" {
			for k, v := range stored {
				if k != sourceField && k != typeField {
					add(k, v)
				}
			}
			continue
		}
		if v, ok := stored[name]; ok {
			add(name, v)
		}
	}
	return out
}

func buildQuery(req engine.SearchRequest) (query.Query, error) {
	var base query.Query
	if q := listString(req.Params["q"]); q != "" {
		base = bleve.NewQueryStringQuery(q)
	} else {
		clause, _ := req.Body["query"].(map[string]any)
		var err error
		if base, err = parseClause(clause); err != nil {
			return nil, err
		}
	}

	types := splitList(req.Params["doc_type"])
	if len(types) == 0 {
		return base, nil
	}
	byType := make([]query.Query, len(types))
	for i, t := range types {
		tq := bleve.NewTermQuery(t)
		tq.SetField(typeField)
		byType[i] = tq
	}
	return bleve.NewConjunctionQuery(base, bleve.NewDisjunctionQuery(byType...)), nil
}

// parseClause understands match_all, query_string, match, term and bool.
func parseClause(clause map[string]any) (query.Query, error) {
	if len(clause) == 0 {
		return bleve.NewMatchAllQuery(), nil
	}
	if len(clause) > 1 {
		return nil, fmt.Errorf("query clause must have exactly one key, got %d", len(clause))
	}
	for kind, arg := range clause {
		body, _ := arg.(map[string]any)
		switch kind {
		case "match_all":
			return bleve.NewMatchAllQuery(), nil
		case "query_string":
			qs, _ := body["query"].(string)
			if qs == "" {
				return bleve.NewMatchAllQuery(), nil
			}
			return bleve.NewQueryStringQuery(qs), nil
		case "match":
			for field, v := range body {
				text := listString(v)
				if m, ok := v.(map[string]any); ok {
					text = listString(m["query"])
				}
				mq := bleve.NewMatchQuery(text)
				mq.SetField(field)
				return mq, nil
			}
			return nil, fmt.Errorf("match clause without field")
		case "term":
			for field, v := range body {
				tq := bleve.NewTermQuery(listString(v))
				tq.SetField(field)
				return tq, nil
			}
			return nil, fmt.Errorf("term clause without field")
		case "bool":
			must, err := parseClauses(body["must"])
			if err != nil {
				return nil, err
			}
			should, err := parseClauses(body["should"])
			if err != nil {
				return nil, err
			}
			mustNot, err := parseClauses(body["must_not"])
			if err != nil {
				return nil, err
			}
			if len(must) == 0 && len(should) == 0 {
				must = []query.Query{bleve.NewMatchAllQuery()}
			}
			return query.NewBooleanQuery(must, should, mustNot), nil
		default:
			return nil, fmt.Errorf("unsupported query clause %q", kind)
		}
	}
	return nil, nil
}

// parseClauses accepts a single clause object or a list of them.
func parseClauses(v any) ([]query.Query, error) {
	var raw []any
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		raw = []any{t}
	case []any:
		raw = t
	default:
		return nil, fmt.Errorf("bool clause: unexpected %T", v)
	}
	out := make([]query.Query, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("bool clause: unexpected %T", r)
		}
		q, err := parseClause(m)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// sortOrder turns "date:desc,title" style specs into bleve sort keys.
func sortOrder(v any) []string {
	specs := splitList(v)
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		field, dir, _ := strings.Cut(s, ":")
		if field == "" {
			continue
		}
		if strings.EqualFold(dir, "desc") {
			field = "-" + field
		}
		out = append(out, field)
	}
	return out
}

// splitList accepts a comma-separated string or a list of strings.
func splitList(v any) []string {
	var parts []string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(t, ",")
	case []string:
		parts = t
	case []any:
		for _, e := range t {
			parts = append(parts, listString(e))
		}
	default:
		parts = []string{listString(t)}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func listString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
