// Package tree is the concrete syntax tree produced by the parser.
//
// A Subtree is position independent: it knows its size but not where it
// starts, so a subtree that survives an edit is shared by identity between
// the old and the new tree while its absolute offsets shift. Node is the
// positioned view used for inspection.
package tree

import (
	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/table"
	"github.com/dhamidi/grove/text"
)

type Flags uint16

const (
	// Extra marks a subtree that may appear anywhere, such as a comment or
	// an ERROR node produced by recovery.
	Extra Flags = 1 << iota
	// Error marks an ERROR node or an unrecognized token.
	Error
	// Missing marks a zero-width token inserted by recovery.
	Missing
	// Fragile marks a node built while the parser held several stack
	// versions.
	Fragile
	// FragileLeft marks a node whose first token was shifted while forked.
	FragileLeft
	// HasError is set on a subtree containing an Error or Missing node.
	HasError
	// Settled marks a fragile subtree whose lookahead was widened to the
	// input that decided between the stack versions it was built in.
	Settled
)

// Subtree is one node of a syntax tree. A Subtree must not be modified once
// it is part of a tree; trees share subtrees.
type Subtree struct {
	Symbol grammar.Symbol
	// Production is the production the node was reduced by, or -1 for
	// tokens and ERROR nodes.
	Production int
	Size       text.Length
	// Lookahead is how many bytes past the end were examined while
	// building the node.
	Lookahead int
	Children  []*Subtree
	Flags     Flags
	// PreState is the parse state the node was pushed onto.
	PreState table.State
	// LexMode is the lex mode a token was scanned in, or -1 when it was
	// scanned with the union of several modes.
	LexMode int
	// NextLexMode is the lex mode of the token that completed the node;
	// the token following a reused node is scanned in it.
	NextLexMode int
	ErrorCost   int
	DynPrec     int

	ScannerBefore []byte
	ScannerAfter  []byte
}

// NewLeaf returns a token subtree.
func NewLeaf(sym grammar.Symbol, size text.Length, lookahead int, preState table.State, lexMode int) *Subtree {
	return &Subtree{
		Symbol:      sym,
		Production:  -1,
		Size:        size,
		Lookahead:   lookahead,
		PreState:    preState,
		LexMode:     lexMode,
		NextLexMode: -1,
	}
}

// NewNode returns an interior subtree over children. Size, error cost,
// dynamic precedence, lookahead, error flags and scanner states are derived
// from the children.
func NewNode(sym grammar.Symbol, production int, children []*Subtree, preState table.State) *Subtree {
	n := &Subtree{
		Symbol:      sym,
		Production:  production,
		Children:    children,
		PreState:    preState,
		LexMode:     -1,
		NextLexMode: -1,
	}
	examined := 0
	for _, c := range children {
		if end := n.Size.Bytes + c.Size.Bytes + c.Lookahead; end > examined {
			examined = end
		}
		n.Size = n.Size.Add(c.Size)
		n.ErrorCost += c.ErrorCost
		n.DynPrec += c.DynPrec
		if c.Flags&(Error|Missing|HasError) != 0 {
			n.Flags |= HasError
		}
	}
	n.Lookahead = examined - n.Size.Bytes
	if len(children) > 0 {
		n.ScannerBefore = children[0].ScannerBefore
		n.ScannerAfter = children[len(children)-1].ScannerAfter
	}
	return n
}

func (s *Subtree) IsLeaf() bool {
	return len(s.Children) == 0 && s.Production < 0
}

func (s *Subtree) IsExtra() bool {
	return s.Flags&Extra != 0
}

func (s *Subtree) IsError() bool {
	return s.Flags&Error != 0
}

func (s *Subtree) IsMissing() bool {
	return s.Flags&Missing != 0
}

func (s *Subtree) HasError() bool {
	return s.Flags&(Error|Missing|HasError) != 0
}

func (s *Subtree) IsFragile() bool {
	return s.Flags&(Fragile|FragileLeft) != 0
}

// Reusable reports whether an incremental parse may take the subtree over
// without re-parsing its content, provided its examined range is clean.
// Fragile and erroneous subtrees depend on the stack below them; they are
// only shared again when a re-parse rebuilds them unchanged.
func (s *Subtree) Reusable() bool {
	return !s.IsFragile() && !s.HasError() && s.Size.Bytes > 0
}

// Examined is the number of bytes from the subtree start that influenced
// it.
func (s *Subtree) Examined() int {
	return s.Size.Bytes + s.Lookahead
}

// FirstLeaf returns the leftmost token of s.
func (s *Subtree) FirstLeaf() *Subtree {
	for len(s.Children) > 0 {
		s = s.Children[0]
	}
	return s
}

// Count returns the number of subtrees in s, s included.
func (s *Subtree) Count() int {
	n := 1
	for _, c := range s.Children {
		n += c.Count()
	}
	return n
}

// SameShape reports whether a and b would be Equal given that their
// children are identical subtrees.
func SameShape(a, b *Subtree) bool {
	const shape = Extra | Error | Missing
	if a.Symbol != b.Symbol || a.Production != b.Production || a.Size != b.Size ||
		a.Flags&shape != b.Flags&shape || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if a.Children[i] != b.Children[i] {
			return false
		}
	}
	return true
}

// Equal reports whether a and b have the same shape: symbols, productions,
// sizes, error and extra flags. Parse bookkeeping such as lookahead,
// fragility and parse states is ignored.
func Equal(a, b *Subtree) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	const shape = Extra | Error | Missing
	if a.Symbol != b.Symbol || a.Production != b.Production || a.Size != b.Size ||
		a.Flags&shape != b.Flags&shape || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
