package parser

import (
	"bytes"
	"cmp"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/table"
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

// entry is one element of a persistent parse stack. Versions share common
// prefixes; an entry is never modified after it is pushed.
type entry struct {
	prev  *entry
	state table.State
	sub   *tree.Subtree
	// pos is the end of sub.
	pos     text.Position
	depth   int
	cost    int
	dynPrec int
}

func (e *entry) push(state table.State, sub *tree.Subtree, pos text.Position) *entry {
	return &entry{
		prev:    e,
		state:   state,
		sub:     sub,
		pos:     pos,
		depth:   e.depth + 1,
		cost:    e.cost + sub.ErrorCost,
		dynPrec: e.dynPrec + sub.DynPrec,
	}
}

// subtrees returns the stack content from the bottom up.
func (e *entry) subtrees() []*tree.Subtree {
	out := make([]*tree.Subtree, e.depth)
	for ; e.prev != nil; e = e.prev {
		out[e.depth-1] = e.sub
	}
	return out
}

// version is one GLR stack head. nextMode, when not -1, overrides the lex
// mode of the top state until the next token that is not an extra.
type version struct {
	top      *entry
	scanner  []byte
	nextMode int
}

func newVersion(bottom *entry) *version {
	return &version{top: bottom, nextMode: -1}
}

// with keeps a pending lex mode override.
func (v *version) with(top *entry, scanner []byte) *version {
	return &version{top: top, scanner: scanner, nextMode: v.nextMode}
}

// consumed is with for a push that consumed a token.
func (v *version) consumed(top *entry, scanner []byte) *version {
	return &version{top: top, scanner: scanner, nextMode: -1}
}

func (v *version) cost() int {
	return v.top.cost
}

// sameStates reports whether a and b have identical state sequences and
// scanner state, so that they will behave identically from here on.
func sameStates(a, b *version) bool {
	if a.top.depth != b.top.depth || a.nextMode != b.nextMode || !bytes.Equal(a.scanner, b.scanner) {
		return false
	}
	for x, y := a.top, b.top; x != y; x, y = x.prev, y.prev {
		if x.state != y.state {
			return false
		}
	}
	return true
}

// compare orders versions by preference: lower error cost, then higher
// dynamic precedence, then the earlier production at the first node where
// the stacks differ.
func compare(a, b *version) int {
	if c := cmp.Compare(a.top.cost, b.top.cost); c != 0 {
		return c
	}
	if c := cmp.Compare(b.top.dynPrec, a.top.dynPrec); c != 0 {
		return c
	}
	as, bs := divergent(a.top, b.top)
	return comparePreorder(as, bs)
}

// divergent returns the subtrees above the deepest entry a and b share,
// bottom up.
func divergent(a, b *entry) (as, bs []*tree.Subtree) {
	for a != b {
		switch {
		case a.depth > b.depth:
			as, a = append(as, a.sub), a.prev
		case b.depth > a.depth:
			bs, b = append(bs, b.sub), b.prev
		default:
			as, a = append(as, a.sub), a.prev
			bs, b = append(bs, b.sub), b.prev
		}
	}
	reverse(as)
	reverse(bs)
	return as, bs
}

// comparePreorder compares the production sequences of as and bs in
// preorder. It stops at the first difference and skips subtrees the two
// sides share, including the common prefix of children arrays that grow
// shares between ERROR nodes.
func comparePreorder(as, bs []*tree.Subtree) int {
	a, b := preorder{as}, preorder{bs}
	for {
		a.trim()
		b.trim()
		if len(a) == 0 || len(b) == 0 {
			return cmp.Compare(len(a), len(b))
		}
		x, y := a[len(a)-1], b[len(b)-1]
		if &x[0] == &y[0] {
			n := min(len(x), len(y))
			a[len(a)-1], b[len(b)-1] = x[n:], y[n:]
			continue
		}
		if x[0] == y[0] {
			a[len(a)-1], b[len(b)-1] = x[1:], y[1:]
			continue
		}
		if c := cmp.Compare(x[0].Production, y[0].Production); c != 0 {
			return c
		}
		a.expand()
		b.expand()
	}
}

// preorder is a stack of sibling runs still to visit; the next subtree is
// the first of the last run.
type preorder [][]*tree.Subtree

func (p *preorder) trim() {
	for len(*p) > 0 && len((*p)[len(*p)-1]) == 0 {
		*p = (*p)[:len(*p)-1]
	}
}

// expand moves past the next subtree and schedules its children.
func (p *preorder) expand() {
	top := (*p)[len(*p)-1]
	(*p)[len(*p)-1] = top[1:]
	if children := top[0].Children; len(children) > 0 {
		*p = append(*p, children)
	}
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// lookahead is the token every version consumes next.
type lookahead struct {
	sub     *tree.Subtree
	flipped *tree.Subtree
	start   text.Position
	end     text.Position
	scanner []byte
	reused  bool
}

func (la *lookahead) symbol() grammar.Symbol {
	return la.sub.Symbol
}

func (la *lookahead) examinedEnd() int {
	return la.start.Byte + la.sub.Examined()
}

// leaf returns the token subtree with or without the Extra flag. The
// variant matching the lexed token keeps its identity.
func (la *lookahead) leaf(extra bool) *tree.Subtree {
	if la.sub.IsExtra() == extra {
		return la.sub
	}
	if la.flipped == nil {
		c := *la.sub
		c.Flags ^= tree.Extra
		la.flipped = &c
	}
	return la.flipped
}
