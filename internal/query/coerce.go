package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	ErrUnknownDatatype = errors.New("unknown datatype")
	ErrUncoercible     = errors.New("value cannot be coerced")
)

// DateLayout renders dates with as many fractional seconds as they carry.
const DateLayout = time.RFC3339Nano

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindDate
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindNumber:
		return "number"
	default:
		return "null"
	}
}

// Value is a coerced field value: a string, a date or a number. The zero
// Value is null and stands for an absent field.
type Value struct {
	kind Kind
	str  string
	t    time.Time
	num  float64
}

func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func DateValue(t time.Time) Value { return Value{kind: KindDate, t: t} }
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }
func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) Time() time.Time   { return v.t }
func (v Value) Float() float64    { return v.num }

// String renders the value as text regardless of its kind.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindDate:
		return v.t.Format(DateLayout)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Interface returns the underlying string, time.Time, float64 or nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindDate:
		return v.t
	case KindNumber:
		return v.num
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindDate:
		return json.Marshal(v.t.Format(DateLayout))
	case KindNumber:
		return json.Marshal(v.num)
	default:
		return []byte("null"), nil
	}
}

type converter func(any) (Value, error)

var converters = map[string]converter{
	"string": toString,
	"date":   toDate,
	"long":   toNumber,
}

// Coerce converts a raw engine value into a typed Value using the declared
// datatype. Multi-valued fields collapse to their first element; an empty
// list yields the empty string.
func Coerce(raw any, datatype string) (Value, error) {
	conv, ok := converters[datatype]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownDatatype, datatype)
	}
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return StringValue(""), nil
		}
		raw = list[0]
	}
	if raw == nil {
		return Value{}, nil
	}
	return conv(raw)
}

func toString(raw any) (Value, error) {
	switch v := raw.(type) {
	case string:
		return StringValue(v), nil
	case float64:
		return StringValue(strconv.FormatFloat(v, 'f', -1, 64)), nil
	case bool:
		return StringValue(strconv.FormatBool(v)), nil
	case json.Number:
		return StringValue(v.String()), nil
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(b)), nil
	default:
		return StringValue(fmt.Sprint(v)), nil
	}
}

func toDate(raw any) (Value, error) {
	switch v := raw.(type) {
	case time.Time:
		return DateValue(v), nil
	case string:
		t, err := dateparse.ParseAny(strings.TrimSpace(v))
		if err != nil {
			return Value{}, fmt.Errorf("%w: date %q: %v", ErrUncoercible, v, err)
		}
		return DateValue(t), nil
	case float64:
		// epoch milliseconds, as the engine stores dates
		return DateValue(time.UnixMilli(int64(v)).UTC()), nil
	case int64:
		return DateValue(time.UnixMilli(v).UTC()), nil
	default:
		return Value{}, fmt.Errorf("%w: date from %T", ErrUncoercible, raw)
	}
}

func toNumber(raw any) (Value, error) {
	switch v := raw.(type) {
	case float64:
		return NumberValue(v), nil
	case int:
		return NumberValue(float64(v)), nil
	case int64:
		return NumberValue(float64(v)), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %q: %v", ErrUncoercible, v, err)
		}
		return NumberValue(f), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %q: %v", ErrUncoercible, v, err)
		}
		return NumberValue(f), nil
	default:
		return Value{}, fmt.Errorf("%w: number from %T", ErrUncoercible, raw)
	}
}
