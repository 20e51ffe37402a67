package query

import (
	"context"
	"encoding/json"
	"time"
)

// Serializer is implemented by result types that project themselves to
// JSON-compatible maps.
type Serializer interface {
	ToSerializable(ctx context.Context) (map[string]any, error)
}

var (
	_ Serializer = (*ResultSet)(nil)
	_ Serializer = (*Hit)(nil)
)

// Project replaces result sets, hits and dates in v with JSON-compatible
// values, descending into maps and slices. Anything else is left for
// encoding/json, which may reject it.
func Project(ctx context.Context, v any) (any, error) {
	switch t := v.(type) {
	case Serializer:
		return t.ToSerializable(ctx)
	case time.Time:
		return t.Format(DateLayout), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return t.Format(DateLayout), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			p, err := Project(ctx, e)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			p, err := Project(ctx, e)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	default:
		return v, nil
	}
}

// Marshal encodes v to JSON after projecting it.
func Marshal(ctx context.Context, v any) ([]byte, error) {
	p, err := Project(ctx, v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}
