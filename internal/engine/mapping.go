package engine

// DefaultDatatype is reported for fields the mapping does not declare.
const DefaultDatatype = "string"

// Mapping is the schema reported by the engine, keyed by index name.
type Mapping map[string]IndexMapping

type IndexMapping struct {
	Mappings map[string]TypeMapping `json:"mappings"`
}

type TypeMapping struct {
	Properties map[string]FieldMapping `json:"properties"`
}

type FieldMapping struct {
	Type   string `json:"type,omitempty"`
	Format string `json:"format,omitempty"`
}

// Datatype returns the declared type of field for docType in index. When
// index is an alias the engine reports the mapping under the concrete index
// name, so a mapping with a single entry is used regardless of its key.
func (m Mapping) Datatype(index, docType, field string) string {
	idx, ok := m[index]
	if !ok && len(m) == 1 {
		for _, only := range m {
			idx, ok = only, true
		}
	}
	if !ok {
		return DefaultDatatype
	}
	tm, ok := idx.Mappings[docType]
	if !ok {
		return DefaultDatatype
	}
	fm, ok := tm.Properties[field]
	if !ok || fm.Type == "" {
		return DefaultDatatype
	}
	return fm.Type
}
