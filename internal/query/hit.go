package query

import (
	"context"
	"fmt"
	"sync"

	"sheer/internal/engine"
	"sheer/internal/permalink"
)

// Hit wraps one raw search hit. Field values are coerced on first access
// using the schema mapping of the hit's document type.
type Hit struct {
	raw        engine.RawHit
	index      string
	mapping    engine.Mapping
	permalinks permalink.Rules

	mu     sync.Mutex
	values map[string]Value
}

// NewHit resolves the mapping for raw's document type through the app's
// mapping cache.
func NewHit(ctx context.Context, app *App, raw engine.RawHit) (*Hit, error) {
	m, err := app.Mappings.ForType(ctx, raw.Type)
	if err != nil {
		return nil, err
	}
	return &Hit{
		raw:        raw,
		index:      app.Index,
		mapping:    m,
		permalinks: app.Permalinks,
		values:     make(map[string]Value),
	}, nil
}

func (h *Hit) ID() string              { return h.raw.ID }
func (h *Hit) Type() string            { return h.raw.Type }
func (h *Hit) Raw() engine.RawHit      { return h.raw }
func (h *Hit) Mapping() engine.Mapping { return h.mapping }

// Permalink returns the canonical URL for the hit, if a rule is registered
// for its document type.
func (h *Hit) Permalink() (string, bool) {
	return h.permalinks.URL(h.raw.Type, h.raw.ID)
}

// Datatype returns the declared datatype of name, "string" when undeclared.
func (h *Hit) Datatype(name string) string {
	return h.mapping.Datatype(h.index, h.raw.Type, name)
}

// Field resolves name from the fields block, then _source, and coerces it
// to its declared datatype. An absent field yields a null Value.
func (h *Hit) Field(name string) (Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if v, ok := h.values[name]; ok {
		return v, nil
	}
	var v Value
	raw, ok := h.raw.Lookup(name)
	datatype := h.Datatype(name)
	if ok {
		var err error
		v, err = Coerce(raw, datatype)
		if err != nil {
			return Value{}, fmt.Errorf("hit %s field %q: %w", h.raw.ID, name, err)
		}
	} else if _, known := converters[datatype]; !known {
		return Value{}, fmt.Errorf("hit %s field %q: %w: %q", h.raw.ID, name, ErrUnknownDatatype, datatype)
	}
	h.values[name] = v
	return v, nil
}

// ToSerializable projects every field present in the fields block (or the
// _source keys when there is none) to its coerced value.
func (h *Hit) ToSerializable(context.Context) (map[string]any, error) {
	names := h.raw.FieldNames()
	out := make(map[string]any, len(names))
	for _, name := range names {
		v, err := h.Field(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
