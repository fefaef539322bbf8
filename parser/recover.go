package parser

import (
	"bytes"
	"slices"
	"unicode/utf8"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/table"
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

// Error costs. Lower is better; versions compete on the sum over their
// stack.
const (
	costMissing = 110
	costPop     = 500
	costSkip    = 100
	costPerLine = 30
)

// recover runs when no version can consume la. Every version proposes up
// to three repairs, each consuming la: inserting one missing token before
// it, popping stack entries into an ERROR node until la fits, and skipping
// la into an ERROR node. At the end of input only the first two apply, and
// they only count if the parse is then accepted.
func (r *run) recover(versions []*version, la *lookahead) (next, accepted []*version, err error) {
	eof := la.symbol() == grammar.SymbolEnd
	r.unsettle(la.start.Byte)
	for _, v := range versions {
		if !la.sub.IsError() {
			shifted, acc, err := r.insertMissing(v, la)
			if err != nil {
				return nil, nil, err
			}
			next, accepted = append(next, shifted...), append(accepted, acc...)

			shifted, acc, err = r.popUntilValid(v, la)
			if err != nil {
				return nil, nil, err
			}
			next, accepted = append(next, shifted...), append(accepted, acc...)
		}
		if !eof {
			next = append(next, r.skip(v, la))
		}
	}
	if eof {
		next = nil
	}
	return next, accepted, nil
}

// insertMissing tries the valid terminals in symbol order and inserts the
// first zero-width token after which la can be consumed.
func (r *run) insertMissing(v *version, la *lookahead) (shifted, accepted []*version, err error) {
	lang := r.p.lang
	state := v.top.state
	for sym := grammar.SymbolError + 1; int(sym) < r.tbl.TerminalCount; sym++ {
		if lang.IsExtra(sym) || sym == la.symbol() || !r.tbl.Valid(state, sym) {
			continue
		}
		leaf := tree.NewLeaf(sym, text.Length{}, la.examinedEnd()-la.start.Byte, state, -1)
		leaf.Flags |= tree.Missing | tree.Fragile
		leaf.ErrorCost = costMissing
		leaf.ScannerBefore, leaf.ScannerAfter = v.scanner, v.scanner
		missing := &lookahead{sub: leaf, start: la.start, end: la.start, scanner: v.scanner}

		after, _, err := r.advance(v, missing, true, nil)
		if err != nil {
			return nil, nil, err
		}
		for _, mv := range after {
			s, a, err := r.advance(mv, la, true, nil)
			if err != nil {
				return nil, nil, err
			}
			shifted, accepted = append(shifted, s...), append(accepted, a...)
		}
		if len(shifted)+len(accepted) > 0 {
			return shifted, accepted, nil
		}
	}
	return nil, nil, nil
}

// popUntilValid pops the fewest stack entries needed to reach a state that
// accepts la and pushes them back as one ERROR node.
func (r *run) popUntilValid(v *version, la *lookahead) (shifted, accepted []*version, err error) {
	var popped []*tree.Subtree
	for e := v.top; e.prev != nil; {
		popped = append(popped, e.sub)
		e = e.prev
		if !r.tbl.Valid(e.state, la.symbol()) {
			continue
		}
		children := make([]*tree.Subtree, len(popped))
		for i, s := range popped {
			children[len(popped)-1-i] = s
		}
		node := errorNode(children, e.state, costPop+len(children))
		reach(node, e.pos.Byte, la.examinedEnd())
		nv := v.with(e.push(e.state, node, v.top.pos), v.scanner)
		s, a, err := r.advance(nv, la, true, nil)
		if err != nil {
			return nil, nil, err
		}
		if len(s)+len(a) > 0 {
			return s, a, nil
		}
	}
	return nil, nil, nil
}

// skip consumes la as an error. It joins an ERROR node directly below any
// trailing extras instead of starting a new one.
func (r *run) skip(v *version, la *lookahead) *version {
	src := r.lexer.Source()[la.start.Byte:la.end.Byte]
	cost := costSkip + utf8.RuneCount(src) + costPerLine*bytes.Count(src, []byte{'\n'})
	tok := la.leaf(false)

	e := v.top
	var trailing []*tree.Subtree
	for e.prev != nil && e.sub.IsExtra() && !e.sub.IsError() {
		trailing = append(trailing, e.sub)
		e = e.prev
	}
	if e.prev != nil && e.sub.IsExtra() && e.sub.IsError() {
		more := make([]*tree.Subtree, 0, len(trailing)+1)
		for i := len(trailing) - 1; i >= 0; i-- {
			more = append(more, trailing[i])
		}
		more = append(more, tok)
		var node *tree.Subtree
		if prev := e.sub; prev.IsLeaf() {
			node = errorNode(append([]*tree.Subtree{prev}, more...), e.state, cost)
		} else {
			node = r.grow(prev, more, cost)
		}
		return v.consumed(e.prev.push(e.state, node, la.end), la.scanner)
	}

	var node *tree.Subtree
	if tok.IsError() {
		c := *la.sub
		c.Flags |= tree.Extra
		c.ErrorCost = cost
		node = &c
	} else {
		node = errorNode([]*tree.Subtree{tok}, v.top.state, cost)
	}
	return v.consumed(v.top.push(v.top.state, node, la.end), la.scanner)
}

func errorNode(children []*tree.Subtree, state table.State, cost int) *tree.Subtree {
	node := tree.NewNode(grammar.SymbolError, -1, children, state)
	node.Flags |= tree.Error | tree.Extra | tree.Fragile
	node.ErrorCost += cost
	return node
}

// grow returns a copy of the ERROR node prev with more children appended,
// adding cost. The first copy of a node appends to its children array in
// place and later copies get their own array, so every array slot is
// written once and nodes sharing an array agree on their common prefix.
func (r *run) grow(prev *tree.Subtree, more []*tree.Subtree, cost int) *tree.Subtree {
	children := prev.Children
	if r.grown[prev] {
		children = slices.Clip(children)
	} else {
		if r.grown == nil {
			r.grown = make(map[*tree.Subtree]bool)
		}
		r.grown[prev] = true
	}
	node := *prev
	node.Children = append(children, more...)
	node.Flags &^= tree.Settled
	examined := prev.Examined()
	for _, c := range more {
		if end := node.Size.Bytes + c.Examined(); end > examined {
			examined = end
		}
		node.Size = node.Size.Add(c.Size)
		node.ErrorCost += c.ErrorCost
		node.DynPrec += c.DynPrec
		if c.HasError() {
			node.Flags |= tree.HasError
		}
	}
	node.Lookahead = examined - node.Size.Bytes
	node.ErrorCost += cost
	node.ScannerAfter = more[len(more)-1].ScannerAfter
	return &node
}
