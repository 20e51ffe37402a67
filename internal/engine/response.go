package engine

import (
	"bytes"
	"encoding/json"
)

// Response is a raw search response. Query is not produced by the engine;
// the pipeline attaches the parameters it issued so pagination can be
// derived later.
type Response struct {
	Took         int64          `json:"took,omitempty"`
	TimedOut     bool           `json:"timed_out,omitempty"`
	Hits         *Hits          `json:"hits,omitempty"`
	Facets       map[string]any `json:"facets,omitempty"`
	Aggregations map[string]any `json:"aggregations,omitempty"`
	Query        Params         `json:"query,omitempty"`
}

// TotalHits returns hits.total, or zero when the response carries no hits.
func (r *Response) TotalHits() int64 {
	if r == nil || r.Hits == nil {
		return 0
	}
	return int64(r.Hits.Total)
}

type Hits struct {
	Total    Total    `json:"total"`
	MaxScore *float64 `json:"max_score,omitempty"`
	Hits     []RawHit `json:"hits"`
}

// Total accepts both the bare number and the {"value": n} object form.
type Total int64

func (t *Total) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Value int64 `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*t = Total(obj.Value)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Total(n)
	return nil
}

// RawHit is one matched document as returned by the engine.
type RawHit struct {
	Index  string         `json:"_index,omitempty"`
	Type   string         `json:"_type,omitempty"`
	ID     string         `json:"_id"`
	Score  *float64       `json:"_score,omitempty"`
	Source map[string]any `json:"_source,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Lookup returns the raw value for field, preferring the fields block over
// _source.
func (h RawHit) Lookup(field string) (any, bool) {
	if v, ok := h.Fields[field]; ok {
		return v, true
	}
	if v, ok := h.Source[field]; ok {
		return v, true
	}
	return nil, false
}

// FieldNames lists the fields block keys, or the _source keys when no
// fields block is present.
func (h RawHit) FieldNames() []string {
	src := h.Fields
	if len(src) == 0 {
		src = h.Source
	}
	names := make([]string, 0, len(src))
	for k := range src {
		names = append(names, k)
	}
	return names
}

// Flatten returns the hit as a single dictionary with the fields block
// merged into the top level.
func (h RawHit) Flatten() map[string]any {
	out := map[string]any{
		"_index": h.Index,
		"_type":  h.Type,
		"_id":    h.ID,
	}
	if h.Score != nil {
		out["_score"] = *h.Score
	}
	if h.Source != nil {
		out["_source"] = h.Source
	}
	for k, v := range h.Fields {
		out[k] = v
	}
	return out
}
