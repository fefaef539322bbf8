package diff

import (
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

// Session answers reuse questions about one old tree during one incremental
// parse.
type Session struct {
	old   *tree.Tree
	edits []text.Edit
}

// NewSession validates the edits that turned old's source into the document
// being parsed.
func NewSession(old *tree.Tree, edits []text.Edit) (*Session, error) {
	if err := text.ValidateBatch(edits); err != nil {
		return nil, err
	}
	return &Session{old: old, edits: edits}, nil
}

// OldPosition maps an offset of the new document to the old one. It fails
// inside inserted text.
func (s *Session) OldPosition(off int) (int, bool) {
	return text.UnmapBatch(s.edits, off)
}

// Clean reports whether a subtree starting at old offset start survived
// every edit: no edit touched its examined range.
func (s *Session) Clean(sub *tree.Subtree, start int) bool {
	from, to := start, start+sub.Examined()
	for _, e := range s.edits {
		if e.Dirty(from, to) {
			return false
		}
		from = mapStart(e, text.Position{Byte: from}).Byte
		to = mapEnd(e, text.Position{Byte: to}).Byte
	}
	return true
}

// Candidates returns the old subtrees that start at new offset off, are
// clean and non-empty, largest first. The old root is never a candidate.
func (s *Session) Candidates(off int) []*tree.Subtree {
	at, ok := s.OldPosition(off)
	if !ok {
		return nil
	}
	var out []*tree.Subtree
	node, start := s.old.Root(), 0
	for len(node.Children) > 0 {
		next, nextStart := (*tree.Subtree)(nil), 0
		pos := start
		for _, c := range node.Children {
			end := pos + c.Size.Bytes
			if pos <= at && at < end {
				next, nextStart = c, pos
				break
			}
			pos = end
		}
		if next == nil {
			break
		}
		if nextStart == at && s.Clean(next, nextStart) {
			out = append(out, next)
		}
		node, start = next, nextStart
	}
	return out
}

// Counterpart returns the clean old subtree starting at new offset off that
// is sub itself or has sub's shape over the same children, or nil. Unlike
// Candidates it also finds empty subtrees.
func (s *Session) Counterpart(off int, sub *tree.Subtree) *tree.Subtree {
	at, ok := s.OldPosition(off)
	if !ok {
		return nil
	}
	return s.counterpart(s.old.Root(), 0, at, sub)
}

func (s *Session) counterpart(node *tree.Subtree, start, at int, sub *tree.Subtree) *tree.Subtree {
	pos := start
	for _, c := range node.Children {
		if pos > at {
			break
		}
		end := pos + c.Size.Bytes
		if pos == at && (c == sub || tree.SameShape(c, sub)) && s.Clean(c, pos) {
			return c
		}
		if at < end || (pos == at && c.Size.Bytes == 0) {
			if found := s.counterpart(c, pos, at, sub); found != nil {
				return found
			}
		}
		pos = end
	}
	return nil
}
