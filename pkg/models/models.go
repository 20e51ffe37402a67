package models

type Document map[string]interface{}

type ErrorResponse struct {
	Error string `json:"error"`
}

type TemplatesResponse struct {
	Templates []string `json:"templates"`
}

type IndexResponse struct {
	Index  string `json:"_index"`
	Type   string `json:"_type"`
	ID     string `json:"_id"`
	Result string `json:"result"`
}

type BulkItem struct {
	Index  string `json:"_index"`
	Type   string `json:"_type"`
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

type BulkResponse struct {
	Took   int64      `json:"took"`
	Errors bool       `json:"errors"`
	Items  []BulkItem `json:"items"`
}

// RawResultsResponse carries hits as plain dictionaries, fields merged in.
type RawResultsResponse struct {
	Results []map[string]interface{} `json:"results"`
}
