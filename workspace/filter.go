package workspace

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Filter selects files by glob. Include patterns match the slash separated
// path relative to the workspace root, exclude patterns match that path or
// any of its components.
type Filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

func NewFilter(include, exclude []string) (*Filter, error) {
	f := &Filter{}
	for _, pattern := range include {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		f.include = append(f.include, g)
	}
	for _, pattern := range exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		f.exclude = append(f.exclude, g)
	}
	return f, nil
}

// Match reports whether the file at rel is accepted.
func (f *Filter) Match(rel string) bool {
	if f.Excluded(rel) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, g := range f.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Excluded reports whether rel or one of its components matches an
// exclude pattern.
func (f *Filter) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range f.exclude {
		if g.Match(rel) {
			return true
		}
		for _, part := range strings.Split(rel, "/") {
			if g.Match(part) {
				return true
			}
		}
	}
	return false
}
