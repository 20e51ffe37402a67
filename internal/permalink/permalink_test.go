package permalink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndBuild(t *testing.T) {
	r, err := Parse("/blog/<id>/")
	require.NoError(t, err)
	assert.Equal(t, "/blog/<id>/", r.Pattern())
	assert.Equal(t, "/blog/hello/", r.Build("hello"))
	assert.Equal(t, "/blog/a%2Fb/", r.Build("a/b"))

	r, err = Parse("/events/<string:id>")
	require.NoError(t, err)
	assert.Equal(t, "/events/42", r.Build("42"))

	r, err = Parse("/static/")
	require.NoError(t, err)
	assert.Equal(t, "/static/", r.Build("ignored"))
}

func TestParseErrors(t *testing.T) {
	for _, pattern := range []string{"blog/<id>", "/blog/<id", "/blog/<slug>/"} {
		_, err := Parse(pattern)
		assert.Error(t, err, pattern)
	}
}

func TestRules(t *testing.T) {
	rules, err := FromPatterns(map[string]string{"post": "/blog/<id>/", "page": "/<id>/"})
	require.NoError(t, err)

	u, ok := rules.URL("page", "about")
	require.True(t, ok)
	assert.Equal(t, "/about/", u)

	_, ok = rules.URL("event", "1")
	assert.False(t, ok)

	_, err = FromPatterns(map[string]string{"post": "/blog/<year>/<id>/"})
	assert.Error(t, err)
}
