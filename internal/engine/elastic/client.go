// Package elastic talks to a remote Elasticsearch-compatible engine over its
// REST API.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sheer/internal/engine"
)

const (
	OpSearch     = "search"
	OpGetMapping = "get_mapping"
	OpIndex      = "index"
)

// Client implements engine.Engine and engine.Indexer against baseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ engine.Engine  = (*Client)(nil)
	_ engine.Indexer = (*Client)(nil)
)

// New creates a client. timeout bounds every request; zero leaves requests
// unbounded apart from the caller's context.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search issues GET {index}[/{doc_type}]/_search, or POST when the request
// carries a body.
func (c *Client) Search(ctx context.Context, req engine.SearchRequest) (*engine.Response, error) {
	params := req.Params.Clone()
	path := "/" + url.PathEscape(req.Index)
	if dt, ok := params["doc_type"]; ok {
		delete(params, "doc_type")
		if s := paramString(dt); s != "" {
			path += "/" + url.PathEscape(s)
		}
	}
	path += "/_search"

	method := http.MethodGet
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &engine.Error{Op: OpSearch, Err: err}
		}
		method = http.MethodPost
		body = bytes.NewReader(b)
	}

	var resp engine.Response
	if err := c.do(ctx, OpSearch, method, path, encodeParams(params), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMapping issues GET {index}/_mapping/{docType}.
func (c *Client) GetMapping(ctx context.Context, index, docType string) (engine.Mapping, error) {
	path := "/" + url.PathEscape(index) + "/_mapping"
	if docType != "" {
		path += "/" + url.PathEscape(docType)
	}
	var m engine.Mapping
	if err := c.do(ctx, OpGetMapping, http.MethodGet, path, "", nil, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// IndexDocument issues PUT {index}/{docType}/{id}.
func (c *Client) IndexDocument(ctx context.Context, index, docType, id string, doc map[string]any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return &engine.Error{Op: OpIndex, Err: err}
	}
	path := fmt.Sprintf("/%s/%s/%s", url.PathEscape(index), url.PathEscape(docType), url.PathEscape(id))
	return c.do(ctx, OpIndex, http.MethodPut, path, "", bytes.NewReader(b), nil)
}

func (c *Client) do(ctx context.Context, op, method, path, rawQuery string, body io.Reader, out any) error {
	u := c.baseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &engine.Error{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &engine.Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &engine.Error{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusNotFound && op == OpGetMapping {
		return &engine.Error{Op: op, Status: resp.StatusCode, Err: engine.ErrIndexNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &engine.Error{Op: op, Status: resp.StatusCode, Err: errors.New(errorReason(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &engine.Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorReason extracts error.reason from an engine error body, falling back
// to the raw body.
func errorReason(data []byte) string {
	var e struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && len(e.Error) > 0 {
		var detail struct {
			Reason string `json:"reason"`
		}
		if json.Unmarshal(e.Error, &detail) == nil && detail.Reason != "" {
			return detail.Reason
		}
		var s string
		if json.Unmarshal(e.Error, &s) == nil && s != "" {
			return s
		}
	}
	if len(data) == 0 {
		return "empty response"
	}
	return strings.TrimSpace(string(data))
}

// encodeParams renders engine parameters as a query string. from_ is sent
// as from and list values are comma-joined.
func encodeParams(p engine.Params) string {
	v := url.Values{}
	for k, val := range p {
		name := k
		if k == "from_" {
			name = "from"
		}
		v.Set(name, paramString(val))
	}
	return v.Encode()
}

func paramString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = paramString(e)
		}
		return strings.Join(parts, ",")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
