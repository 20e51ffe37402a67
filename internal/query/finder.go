package query

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	templateExt = ".json"
	queriesDir  = "_queries"
)

var ErrTemplateNotFound = errors.New("query template not found")

// Finder resolves template names to Query values through an ordered search
// path. The first directory holding <name>.json wins.
type Finder struct {
	app        *App
	searchPath []string
}

// NewFinder uses searchPath, or <app root>/_queries when none is given.
func NewFinder(app *App, searchPath ...string) *Finder {
	if len(searchPath) == 0 {
		searchPath = []string{filepath.Join(app.Root, queriesDir)}
	}
	return &Finder{app: app, searchPath: searchPath}
}

func (f *Finder) SearchPath() []string { return f.searchPath }

// Find returns the template called name, or false when no directory on the
// search path has it.
func (f *Finder) Find(name string) (*Query, bool) {
	if !validName(name) {
		return nil, false
	}
	path, ok := FindInSearchPath(name+templateExt, f.searchPath)
	if !ok {
		return nil, false
	}
	return NewQuery(f.app, name, path), true
}

// Lookup is Find reporting absence as ErrTemplateNotFound.
func (f *Finder) Lookup(name string) (*Query, error) {
	q, ok := f.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return q, nil
}

// Names lists every template reachable on the search path, sorted.
func (f *Finder) Names() ([]string, error) {
	seen := make(map[string]struct{})
	for _, dir := range f.searchPath {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != templateExt {
				continue
			}
			seen[strings.TrimSuffix(e.Name(), templateExt)] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// FindInSearchPath returns the first regular file called filename in the
// ordered list of directories.
func FindInSearchPath(filename string, searchPath []string) (string, bool) {
	for _, dir := range searchPath {
		candidate := filepath.Join(dir, filename)
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`)
}
