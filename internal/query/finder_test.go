package query

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinderDefaultSearchPath(t *testing.T) {
	app := newTestApp(t, &fakeEngine{})
	f := NewFinder(app)
	assert.Equal(t, []string{filepath.Join(app.Root, "_queries")}, f.SearchPath())

	path := writeTemplate(t, filepath.Join(app.Root, "_queries"), "posts", `{}`)
	q, ok := f.Find("posts")
	require.True(t, ok)
	assert.Equal(t, "posts", q.Name())
	assert.Equal(t, path, q.Filename())
}

func TestFinderFirstDirectoryWins(t *testing.T) {
	app := newTestApp(t, &fakeEngine{})
	first := filepath.Join(app.Root, "site")
	second := filepath.Join(app.Root, "theme")
	writeTemplate(t, second, "posts", `{}`)
	want := writeTemplate(t, first, "posts", `{}`)
	writeTemplate(t, second, "pages", `{}`)

	f := NewFinder(app, first, second)
	q, ok := f.Find("posts")
	require.True(t, ok)
	assert.Equal(t, want, q.Filename())

	q, ok = f.Find("pages")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(second, "pages.json"), q.Filename())
}

func TestFinderMissing(t *testing.T) {
	app := newTestApp(t, &fakeEngine{})
	f := NewFinder(app)

	_, ok := f.Find("posts")
	assert.False(t, ok)

	_, err := f.Lookup("posts")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestFinderRejectsPathNames(t *testing.T) {
	app := newTestApp(t, &fakeEngine{})
	dir := filepath.Join(app.Root, "_queries")
	writeTemplate(t, app.Root, "secret", `{}`)
	f := NewFinder(app, dir)

	for _, name := range []string{"", ".", "..", "../secret", `..\secret`, "a/b"} {
		_, ok := f.Find(name)
		assert.False(t, ok, name)
	}
}

func TestFinderIgnoresDirectories(t *testing.T) {
	app := newTestApp(t, &fakeEngine{})
	dir := filepath.Join(app.Root, "_queries")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "posts.json"), 0755))

	_, ok := NewFinder(app, dir).Find("posts")
	assert.False(t, ok)
}

func TestFinderNames(t *testing.T) {
	app := newTestApp(t, &fakeEngine{})
	first := filepath.Join(app.Root, "a")
	second := filepath.Join(app.Root, "b")
	writeTemplate(t, first, "posts", `{}`)
	writeTemplate(t, second, "posts", `{}`)
	writeTemplate(t, second, "events", `{}`)
	require.NoError(t, os.WriteFile(filepath.Join(second, "README.md"), []byte("x"), 0644))

	names, err := NewFinder(app, first, second, filepath.Join(app.Root, "missing")).Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"events", "posts"}, names)
}

func TestFindInSearchPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	got, ok := FindInSearchPath("x.json", []string{filepath.Join(dir, "nope"), dir})
	require.True(t, ok)
	assert.Equal(t, path, got)

	_, ok = FindInSearchPath("y.json", []string{dir})
	assert.False(t, ok)

	_, ok = FindInSearchPath("x.json", nil)
	assert.False(t, ok)
}
