package mapping

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	TypeString = "string"
	TypeLong   = "long"
	TypeDate   = "date"
)

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// Mapping records the datatype of every field seen per document type. The
// first datatype observed for a field sticks.
type Mapping struct {
	mu    sync.RWMutex
	types map[string]map[string]string
}

func NewMapping() *Mapping {
	return &Mapping{types: make(map[string]map[string]string)}
}

// Sniff records the datatypes of doc's fields under docType and reports
// whether anything new was learned.
func (m *Mapping) Sniff(docType string, doc map[string]any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	fields, ok := m.types[docType]
	if !ok {
		fields = make(map[string]string)
		m.types[docType] = fields
		changed = true
	}

	for k, v := range doc {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		detected, ok := Detect(v)
		if !ok {
			continue
		}
		if _, ok := fields[k]; !ok {
			fields[k] = detected
			changed = true
		}
	}
	return changed
}

// Detect infers a datatype from a decoded JSON value. Lists are typed by
// their first element.
func Detect(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if isDate(t) {
			return TypeDate, true
		}
		return TypeString, true
	case float64, int, int64, json.Number:
		return TypeLong, true
	case []any:
		if len(t) == 0 {
			return "", false
		}
		return Detect(t[0])
	default:
		return "", false
	}
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// Properties returns a copy of the field table for docType.
func (m *Mapping) Properties(docType string) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.types[docType]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, true
}

func (m *Mapping) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.types))
	for t := range m.types {
		out = append(out, t)
	}
	return out
}

func (m *Mapping) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(m.types)
}

func (m *Mapping) UnmarshalJSON(data []byte) error {
	types := make(map[string]map[string]string)
	if err := json.Unmarshal(data, &types); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = types
	return nil
}
