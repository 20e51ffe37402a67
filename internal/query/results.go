package query

import (
	"context"
	"iter"
	"net/url"
	"strconv"

	"sheer/internal/engine"
)

// ResultSet decorates a raw search response with pagination and typed hits.
type ResultSet struct {
	app  *App
	resp *engine.Response

	Total       int
	Size        int
	From        int
	Pages       int
	CurrentPage int
}

// NewResultSet derives pagination from resp and the parameters attached to
// it under Query. page < 1 is treated as the first page.
func NewResultSet(app *App, resp *engine.Response, page int) (*ResultSet, error) {
	if page < 1 {
		page = 1
	}
	size, err := resp.Query.Int(sizeKey, defaultSize)
	if err != nil {
		return nil, err
	}
	from, err := startOffset(resp.Query)
	if err != nil {
		return nil, err
	}
	total := int(resp.TotalHits())
	return &ResultSet{
		app:         app,
		resp:        resp,
		Total:       total,
		Size:        size,
		From:        from,
		Pages:       pageCount(total, size),
		CurrentPage: page,
	}, nil
}

func startOffset(p engine.Params) (int, error) {
	if _, ok := p[fromKey]; ok {
		return p.Int(fromKey, 1)
	}
	return p.Int("from", 1)
}

func pageCount(total, size int) int {
	if size <= 0 {
		return 0
	}
	pages := total / size
	if total%size > 0 {
		pages++
	}
	return pages
}

// Response returns the raw response the set was built from.
func (rs *ResultSet) Response() *engine.Response { return rs.resp }

// Hits yields one Hit per raw hit in engine order. A response without a
// hits block yields nothing. Iteration stops at the first mapping failure.
func (rs *ResultSet) Hits(ctx context.Context) iter.Seq2[*Hit, error] {
	return func(yield func(*Hit, error) bool) {
		if rs.resp == nil || rs.resp.Hits == nil {
			return
		}
		for _, raw := range rs.resp.Hits.Hits {
			h, err := NewHit(ctx, rs.app, raw)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(h, nil) {
				return
			}
		}
	}
}

// All collects Hits into a slice.
func (rs *ResultSet) All(ctx context.Context) ([]*Hit, error) {
	var hits []*Hit
	for h, err := range rs.Hits(ctx) {
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// ToSerializable renders {total, size, from, pages, results}. Zero size,
// from and pages are left out.
func (rs *ResultSet) ToSerializable(ctx context.Context) (map[string]any, error) {
	out := map[string]any{"total": rs.Total}
	if rs.Size != 0 {
		out["size"] = rs.Size
	}
	if rs.From != 0 {
		out["from"] = rs.From
	}
	if rs.Pages != 0 {
		out["pages"] = rs.Pages
	}
	results := make([]map[string]any, 0)
	for h, err := range rs.Hits(ctx) {
		if err != nil {
			return nil, err
		}
		m, err := h.ToSerializable(ctx)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	out["results"] = results
	return out, nil
}

// HasNext reports whether a page follows the current one.
func (rs *ResultSet) HasNext() bool { return rs.CurrentPage < rs.Pages }

func (rs *ResultSet) HasPrevious() bool { return rs.CurrentPage > 1 }

// URLForPage returns req's path with its query arguments and page set to n.
// The first page carries no page argument.
func (rs *ResultSet) URLForPage(req Request, n int) string {
	args := url.Values{}
	for k, vs := range req.Args {
		args[k] = append([]string(nil), vs...)
	}
	if n != 1 {
		args.Set(pageArg, strconv.Itoa(n))
	} else {
		args.Del(pageArg)
	}
	encoded := args.Encode()
	if encoded == "" {
		return req.Path
	}
	return req.Path + "?" + encoded
}
