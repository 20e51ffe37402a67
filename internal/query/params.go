package query

import "sheer/internal/engine"

// AllowedSearchParams are the only parameters forwarded to the engine when a
// search is built from request arguments.
var AllowedSearchParams = map[string]struct{}{
	"doc_type":                 {},
	"analyze_wildcard":         {},
	"analyzer":                 {},
	"default_operator":         {},
	"df":                       {},
	"explain":                  {},
	"fields":                   {},
	"indices_boost":            {},
	"lenient":                  {},
	"allow_no_indices":         {},
	"expand_wildcards":         {},
	"ignore_unavailable":       {},
	"lowercase_expanded_terms": {},
	"from_":                    {},
	"preference":               {},
	"q":                        {},
	"routing":                  {},
	"scroll":                   {},
	"search_type":              {},
	"size":                     {},
	"sort":                     {},
	"source":                   {},
	"stats":                    {},
	"suggest_field":            {},
	"suggest_mode":             {},
	"suggest_size":             {},
	"suggest_text":             {},
	"timeout":                  {},
	"version":                  {},
}

const (
	bodyKey     = "body"
	indexKey    = "index"
	sortKey     = "sort"
	sizeKey     = "size"
	fromKey     = "from_"
	pageArg     = "page"
	defaultSort = "date:desc"
	defaultSize = 10
)

func filterAllowed(p engine.Params) engine.Params {
	out := make(engine.Params, len(p))
	for k, v := range p {
		if _, ok := AllowedSearchParams[k]; ok {
			out[k] = v
		}
	}
	return out
}
