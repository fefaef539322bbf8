package tree

import (
	"github.com/dhamidi/grove/language"
	"github.com/dhamidi/grove/text"
)

// Tree is an immutable parse result: the root subtree, the source it was
// parsed from and the language.
type Tree struct {
	root   *Subtree
	source []byte
	lang   *language.Language
}

func New(lang *language.Language, source []byte, root *Subtree) *Tree {
	return &Tree{root: root, source: source, lang: lang}
}

func (t *Tree) Root() *Subtree {
	return t.root
}

func (t *Tree) Source() []byte {
	return t.source
}

func (t *Tree) Language() *language.Language {
	return t.lang
}

func (t *Tree) HasError() bool {
	return t.root.HasError()
}

func (t *Tree) RootNode() Node {
	return Node{tree: t, sub: t.root}
}

// Walk calls fn for every subtree in pre-order with its absolute start and
// depth. Returning false skips the subtree's children.
func (t *Tree) Walk(fn func(s *Subtree, start text.Position, depth int) bool) {
	walk(t.root, text.Position{}, 0, fn)
}

func walk(s *Subtree, start text.Position, depth int, fn func(*Subtree, text.Position, int) bool) {
	if !fn(s, start, depth) {
		return
	}
	pos := start
	for _, c := range s.Children {
		walk(c, pos, depth+1, fn)
		pos = pos.Advance(c.Size)
	}
}

// Leaves calls fn for every token in source order.
func (t *Tree) Leaves(fn func(s *Subtree, start text.Position)) {
	t.Walk(func(s *Subtree, start text.Position, _ int) bool {
		if len(s.Children) == 0 {
			fn(s, start)
		}
		return true
	})
}

// ErrorRanges returns the ranges of ERROR and MISSING nodes, outermost
// only, in source order.
func (t *Tree) ErrorRanges() []text.Range {
	var out []text.Range
	t.Walk(func(s *Subtree, start text.Position, _ int) bool {
		if s.IsError() || s.IsMissing() {
			out = append(out, text.RangeOf(start, s.Size))
			return false
		}
		return s.HasError()
	})
	return out
}
