package parser

import (
	"bytes"
	"slices"

	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

// reuseLeaf takes the old token at pos as the next lookahead when it was
// scanned in the same lex mode and scanner state as the current one.
// candidates are the clean old subtrees starting at pos, largest first.
func (r *run) reuseLeaf(v *version, candidates []*tree.Subtree, pos text.Position) *lookahead {
	if len(candidates) == 0 {
		return nil
	}
	leaf := candidates[len(candidates)-1]
	if !leaf.IsLeaf() || !leaf.Reusable() {
		return nil
	}
	if leaf.LexMode != r.mode(v) || !bytes.Equal(leaf.ScannerBefore, v.scanner) {
		return nil
	}
	r.stats.ReusedLeaves++
	r.stats.ReusedBytes += leaf.Size.Bytes
	return &lookahead{
		sub:     leaf,
		start:   pos,
		end:     pos.Advance(leaf.Size),
		scanner: leaf.ScannerAfter,
		reused:  true,
	}
}

// reuseNode pushes the largest old subtree that begins with the reused
// lookahead and was built on the current state. Its content is taken over
// without re-parsing.
func (r *run) reuseNode(v *version, la *lookahead, candidates []*tree.Subtree) *version {
	state := v.top.state
	for _, c := range candidates {
		if c.IsLeaf() {
			break
		}
		if !c.Reusable() || c.PreState != state || c.FirstLeaf() != la.sub {
			continue
		}
		to, ok := r.tbl.Goto(state, c.Symbol)
		if !ok {
			continue
		}
		r.stats.ReusedNodes++
		r.stats.ReusedBytes += c.Size.Bytes - la.sub.Size.Bytes
		return &version{
			top:      v.top.push(to, c, la.start.Advance(c.Size)),
			scanner:  c.ScannerAfter,
			nextMode: c.NextLexMode,
		}
	}
	return nil
}

// unsettle records that the stack content has started to depend on input
// past pos that decides between competing versions.
func (r *run) unsettle(pos int) {
	if !r.unsettled {
		r.unsettled, r.windowStart = true, pos
	}
}

// settle runs once a single version is left after a fork or a recovery.
// Which of the competing subtrees survived was decided by the input up to
// the end of la's examined range; the fragile subtrees on the stack are
// widened to depend on it.
func (r *run) settle(v *version, la *lookahead) {
	if !r.unsettled {
		return
	}
	r.unsettled = false
	end := la.examinedEnd()
	for e := v.top; e.prev != nil; e = e.prev {
		s := e.sub
		if s.IsFragile() && s.Flags&tree.Settled == 0 {
			widen(s, e.pos.Byte-s.Size.Bytes, end)
			continue
		}
		// Extras are pushed back above the nodes reduced below them.
		if !s.IsExtra() && (s.IsFragile() || e.pos.Byte < r.windowStart) {
			break
		}
	}
}

// widen makes s and the unsettled fragile subtrees inside it depend on the
// input up to end.
func widen(s *tree.Subtree, start, end int) {
	reach(s, start, end)
	s.Flags |= tree.Settled
	for _, c := range s.Children {
		if c.IsFragile() && c.Flags&tree.Settled == 0 {
			widen(c, start, end)
		}
		start += c.Size.Bytes
	}
}

// reach extends the lookahead of s, which starts at start, to end.
func reach(s *tree.Subtree, start, end int) {
	if x := end - start - s.Size.Bytes; x > s.Lookahead {
		s.Lookahead = x
	}
}

func anyUnsettled(subs []*tree.Subtree) bool {
	for _, s := range subs {
		if s.IsFragile() && s.Flags&tree.Settled == 0 {
			return true
		}
	}
	return false
}

// share replaces the subtrees of a re-parsed tree that came out the same
// as clean old subtrees by the old ones. Fragile and erroneous subtrees
// are never reused while parsing; this keeps them shared when the parse
// rebuilt them unchanged. s starts at new offset start. Nodes are not
// modified: a node whose children were replaced is copied.
func (r *run) share(s *tree.Subtree, start int) *tree.Subtree {
	if old := r.session.Counterpart(start, s); old != nil {
		if old != s {
			r.stats.SharedNodes++
		}
		return old
	}
	var children []*tree.Subtree
	pos := start
	for i, c := range s.Children {
		if nc := r.share(c, pos); nc != c {
			if children == nil {
				children = slices.Clone(s.Children)
			}
			children[i] = nc
		}
		pos += c.Size.Bytes
	}
	if children == nil {
		return s
	}
	cp := *s
	cp.Children = children
	if old := r.session.Counterpart(start, &cp); old != nil {
		r.stats.SharedNodes++
		return old
	}
	return &cp
}
