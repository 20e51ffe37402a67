package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReplaysAfterReopen(t *testing.T) {
	path := t.TempDir()

	s, err := Open(path)
	require.NoError(t, err)

	doc, err := prepare("post", map[string]any{"title": "Sheer"})
	require.NoError(t, err)
	require.NoError(t, s.Index("post/1", doc))

	gone, err := prepare("post", map[string]any{"title": "Gone"})
	require.NoError(t, err)
	require.NoError(t, s.BatchIndex([]string{"post/2"}, []map[string]any{gone}))
	require.NoError(t, s.Delete("post/2"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	count, err := s.Bleve().DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	src, err := s.Get("post/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Sheer"}, src)

	src, err = s.Get("post/2")
	require.NoError(t, err)
	assert.Nil(t, src)
}

func TestDecodeSource(t *testing.T) {
	src, err := decodeSource(map[string]any{sourceField: `{"a":1}`})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, src)

	_, err = decodeSource(map[string]any{})
	assert.Error(t, err)
}
