package mapping

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	cases := map[string]struct {
		in   any
		want string
		ok   bool
	}{
		"text":      {"hello", TypeString, true},
		"rfc3339":   {"2014-03-02T10:00:00Z", TypeDate, true},
		"day":       {"2014-03-02", TypeDate, true},
		"number":    {float64(3), TypeLong, true},
		"list":      {[]any{"2014-03-02"}, TypeDate, true},
		"emptyList": {[]any{}, "", false},
		"bool":      {true, "", false},
		"object":    {map[string]any{"a": 1}, "", false},
	}
	for name, tc := range cases {
		got, ok := Detect(tc.in)
		assert.Equal(t, tc.ok, ok, name)
		assert.Equal(t, tc.want, got, name)
	}
}

func TestSniff(t *testing.T) {
	m := NewMapping()

	assert.True(t, m.Sniff("post", map[string]any{
		"title":    "Hello",
		"date":     "2014-03-02T10:00:00Z",
		"comments": float64(2),
		"_private": "skipped",
	}))
	props, ok := m.Properties("post")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"title": TypeString, "date": TypeDate, "comments": TypeLong}, props)

	// nothing new
	assert.False(t, m.Sniff("post", map[string]any{"title": "Other"}))

	// the first datatype seen sticks
	assert.False(t, m.Sniff("post", map[string]any{"date": "yesterday"}))
	props, _ = m.Properties("post")
	assert.Equal(t, TypeDate, props["date"])

	// a new type is a change even without fields
	assert.True(t, m.Sniff("page", map[string]any{}))
	assert.ElementsMatch(t, []string{"post", "page"}, m.Types())

	_, ok = m.Properties("event")
	assert.False(t, ok)
}

func TestPropertiesIsACopy(t *testing.T) {
	m := NewMapping()
	m.Sniff("post", map[string]any{"title": "x"})

	props, _ := m.Properties("post")
	props["title"] = TypeLong

	again, _ := m.Properties("post")
	assert.Equal(t, TypeString, again["title"])
}

func TestMappingJSON(t *testing.T) {
	m := NewMapping()
	m.Sniff("post", map[string]any{"date": "2014-03-02"})

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"post":{"date":"date"}}`, string(data))

	restored := NewMapping()
	require.NoError(t, json.Unmarshal(data, restored))
	props, ok := restored.Properties("post")
	require.True(t, ok)
	assert.Equal(t, TypeDate, props["date"])
}
