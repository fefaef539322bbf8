// Package diff relates a previous syntax tree to an edited document: which
// parts of the old tree an edit invalidated and which subtrees the parser
// may take over unchanged.
//
// A subtree depends on its examined range, its own bytes plus the bytes
// the lexer and parser looked at past its end. Edits are applied in order;
// each edit of a batch is expressed in the coordinates left by the edits
// before it.
package diff

import (
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

// Class is the relation of an examined range to an edit.
type Class int

const (
	// Before ranges end at or before the edit start and keep their offsets.
	Before Class = iota
	// After ranges start at or after the replaced text and shift by the
	// edit delta.
	After
	// Overlapping ranges depend on replaced bytes and must be re-parsed.
	Overlapping
)

func (c Class) String() string {
	switch c {
	case Before:
		return "before"
	case After:
		return "after"
	case Overlapping:
		return "overlapping"
	}
	return "class(?)"
}

// Classify relates the old-document range r to e.
func Classify(r text.Range, e text.Edit) Class {
	switch {
	case r.EndByte <= e.StartByte:
		return Before
	case r.StartByte >= e.OldEndByte:
		return After
	}
	return Overlapping
}

// mapStart moves the start of a span that does not overlap e.
func mapStart(e text.Edit, p text.Position) text.Position {
	if p.Byte >= e.OldEndByte {
		return text.Position{Byte: p.Byte + e.Delta(), Point: e.MapPoint(p.Point)}
	}
	if p.Byte > e.StartByte {
		return text.Position{Byte: e.StartByte, Point: e.StartPoint}
	}
	return p
}

// mapEnd moves the end of a span that does not overlap e.
func mapEnd(e text.Edit, p text.Position) text.Position {
	if p.Byte <= e.StartByte {
		return p
	}
	if p.Byte < e.OldEndByte {
		return text.Position{Byte: e.NewEndByte, Point: e.NewEndPoint}
	}
	return text.Position{Byte: p.Byte + e.Delta(), Point: e.MapPoint(p.Point)}
}

// ComputeInvalidated returns the merged ranges of the edited document that
// an incremental parse has to re-lex and re-parse: every edited span, and
// every subtree whose examined range an edit touched, widened to the edit.
// Subtrees that contain an edit are not reported whole; their children
// are examined instead. Subtrees only before or after all edits are not
// included.
func ComputeInvalidated(old *tree.Tree, edits ...text.Edit) ([]text.Range, error) {
	if err := text.ValidateBatch(edits); err != nil {
		return nil, err
	}
	var out []text.Range
	for i, e := range edits {
		out = append(out, forward(e.NewRange(), edits[i+1:]))
	}
	src := old.Source()
	eof := text.Position{Byte: len(src), Point: text.PointAt(src, len(src))}
	for _, e := range edits {
		eof = mapStart(e, eof)
	}
	inv := &invalidation{src: src, edits: edits, eof: eof, out: out}
	var start text.Position
	for _, c := range old.Root().Children {
		inv.visit(c, start)
		start = start.Advance(c.Size)
	}
	return text.MergeRanges(inv.out), nil
}

type invalidation struct {
	src   []byte
	edits []text.Edit
	eof   text.Position
	out   []text.Range
}

// visit reports s when its examined range is dirty and it does not contain
// the edit that dirtied it. A subtree's examined range covers its
// children's, so clean subtrees are not descended into.
func (inv *invalidation) visit(s *tree.Subtree, start text.Position) {
	from, to, own := start.Byte, start.Byte+s.Examined(), start.Byte+s.Size.Bytes
	for i, e := range inv.edits {
		if e.Dirty(from, to) || (from == to && from == e.StartByte) {
			if len(s.Children) > 0 && from < e.OldEndByte && own > e.StartByte {
				pos := start
				for _, c := range s.Children {
					inv.visit(c, pos)
					pos = pos.Advance(c.Size)
				}
				return
			}
			inv.report(s, start, i)
			return
		}
		from = mapStart(e, text.Position{Byte: from}).Byte
		to = mapEnd(e, text.Position{Byte: to}).Byte
		own = mapEnd(e, text.Position{Byte: own}).Byte
	}
}

// report adds the examined range of the subtree at start, which edit i
// touched, widened to that edit and carried through the later ones.
func (inv *invalidation) report(s *tree.Subtree, start text.Position, i int) {
	// Lookahead may reach one past the end of the document.
	examined := start.Byte + s.Examined()
	from := start
	to := text.Position{Byte: examined, Point: text.PointAt(inv.src, examined)}
	for _, e := range inv.edits[:i] {
		from, to = mapStart(e, from), mapEnd(e, to)
	}
	e := inv.edits[i]
	r := text.Range{StartByte: from.Byte, EndByte: to.Byte, StartPoint: from.Point, EndPoint: to.Point}
	r = r.Union(e.OldRange())
	end := text.Position{Byte: e.NewEndByte, Point: e.NewEndPoint}
	if r.EndByte > e.OldEndByte {
		end = mapEnd(e, r.End())
	}
	r.EndByte, r.EndPoint = end.Byte, end.Point
	r = forward(r, inv.edits[i+1:])
	if r.EndByte > inv.eof.Byte {
		r.EndByte, r.EndPoint = inv.eof.Byte, inv.eof.Point
	}
	inv.out = append(inv.out, r)
}

// forward maps a range through later edits, growing it over any edit it
// touches.
func forward(r text.Range, edits []text.Edit) text.Range {
	for _, e := range edits {
		start, end := mapStart(e, r.Start()), mapEnd(e, r.End())
		r.StartByte, r.StartPoint = start.Byte, start.Point
		r.EndByte, r.EndPoint = end.Byte, end.Point
		if r.EndByte < r.StartByte {
			r.EndByte, r.EndPoint = r.StartByte, r.StartPoint
		}
	}
	return r
}

// Unshared returns the old-document ranges of the subtrees of old that lie
// entirely outside the ranges ComputeInvalidated reports for edits and are
// not part of cur, the tree parsed after the edits. An incremental parse
// of the edited document leaves none.
func Unshared(old, cur *tree.Tree, edits ...text.Edit) ([]text.Range, error) {
	inv, err := ComputeInvalidated(old, edits...)
	if err != nil {
		return nil, err
	}
	kept := make(map[*tree.Subtree]bool)
	cur.Walk(func(s *tree.Subtree, _ text.Position, _ int) bool {
		kept[s] = true
		return true
	})
	var out []text.Range
	root := old.Root()
	old.Walk(func(s *tree.Subtree, start text.Position, _ int) bool {
		if s == root {
			return true
		}
		from, to, ok := mapSpan(start.Byte, start.Byte+s.Size.Bytes, edits)
		if !ok || intersects(inv, from, to) {
			return true
		}
		if !kept[s] {
			out = append(out, text.RangeOf(start, s.Size))
		}
		return false
	})
	return out, nil
}

// mapSpan moves an old-document span through edits. It fails for spans
// that overlap replaced text.
func mapSpan(from, to int, edits []text.Edit) (int, int, bool) {
	for _, e := range edits {
		switch {
		case to <= e.StartByte:
		case from >= e.OldEndByte:
			from, to = from+e.Delta(), to+e.Delta()
		default:
			return 0, 0, false
		}
	}
	return from, to, true
}

// intersects reports whether [from, to) overlaps one of ranges. An empty
// span touching a range counts as inside it.
func intersects(ranges []text.Range, from, to int) bool {
	for _, r := range ranges {
		if from < r.EndByte && to > r.StartByte {
			return true
		}
		if from == to && r.StartByte <= from && from <= r.EndByte {
			return true
		}
	}
	return false
}
