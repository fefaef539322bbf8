package tree

import (
	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/text"
)

// Node is a subtree at an absolute position. Hidden nodes, such as rules
// starting with an underscore and repetition helpers, are never returned
// as children: their children take their place.
//
// Every node except the root is reached through its parent's Children and
// keeps a pointer to it, so Parent is O(1) and the sibling accessors cost
// one Children call on the parent.
//
// The zero Node is not valid; IsZero reports it.
type Node struct {
	tree   *Tree
	sub    *Subtree
	start  text.Position
	field  string
	parent *Node
}

func (n Node) IsZero() bool {
	return n.sub == nil
}

func (n Node) Tree() *Tree {
	return n.tree
}

func (n Node) Subtree() *Subtree {
	return n.sub
}

func (n Node) Symbol() grammar.Symbol {
	return n.sub.Symbol
}

// Kind is the grammar name of the node.
func (n Node) Kind() string {
	return n.tree.lang.SymbolName(n.sub.Symbol)
}

func (n Node) IsNamed() bool {
	return n.tree.lang.IsNamed(n.sub.Symbol) || n.sub.IsError()
}

func (n Node) IsExtra() bool   { return n.sub.IsExtra() }
func (n Node) IsError() bool   { return n.sub.IsError() }
func (n Node) IsMissing() bool { return n.sub.IsMissing() }
func (n Node) HasError() bool  { return n.sub.HasError() }

// FieldName is the field this node fills in its parent, if any.
func (n Node) FieldName() string {
	return n.field
}

func (n Node) StartPosition() text.Position {
	return n.start
}

func (n Node) EndPosition() text.Position {
	return n.start.Advance(n.sub.Size)
}

func (n Node) Range() text.Range {
	return text.RangeOf(n.start, n.sub.Size)
}

func (n Node) StartByte() int { return n.start.Byte }
func (n Node) EndByte() int   { return n.start.Byte + n.sub.Size.Bytes }

// Text returns the source covered by the node.
func (n Node) Text() string {
	src := n.tree.source
	end := n.EndByte()
	if end > len(src) {
		end = len(src)
	}
	return string(src[n.start.Byte:end])
}

func (n Node) visible(s *Subtree) bool {
	return s.IsError() || s.IsMissing() || n.tree.lang.IsVisible(s.Symbol)
}

// Children returns the visible children.
func (n Node) Children() []Node {
	var out []Node
	n.collect(&n, n.sub, n.start, "", &out)
	return out
}

func (n Node) collect(parent *Node, s *Subtree, start text.Position, inherited string, out *[]Node) {
	pos := start
	i := 0
	for _, c := range s.Children {
		field := inherited
		if !c.IsExtra() {
			if name := n.tree.lang.FieldName(s.Production, i); name != "" {
				field = name
			}
			i++
		}
		switch {
		case n.visible(c):
			*out = append(*out, Node{tree: n.tree, sub: c, start: pos, field: field, parent: parent})
		case len(c.Children) > 0:
			n.collect(parent, c, pos, field, out)
		}
		pos = pos.Advance(c.Size)
	}
}

func (n Node) ChildCount() int {
	return len(n.Children())
}

// Child returns the i-th visible child, or the zero Node.
func (n Node) Child(i int) Node {
	children := n.Children()
	if i < 0 || i >= len(children) {
		return Node{}
	}
	return children[i]
}

func (n Node) NamedChildren() []Node {
	var out []Node
	for _, c := range n.Children() {
		if c.IsNamed() {
			out = append(out, c)
		}
	}
	return out
}

func (n Node) NamedChild(i int) Node {
	named := n.NamedChildren()
	if i < 0 || i >= len(named) {
		return Node{}
	}
	return named[i]
}

// ChildByFieldName returns the first child filling the field.
func (n Node) ChildByFieldName(name string) Node {
	for _, c := range n.Children() {
		if c.field == name {
			return c
		}
	}
	return Node{}
}

func (n Node) ChildrenByFieldName(name string) []Node {
	var out []Node
	for _, c := range n.Children() {
		if c.field == name {
			out = append(out, c)
		}
	}
	return out
}

// Parent returns the enclosing visible node, or the zero Node for the root.
func (n Node) Parent() Node {
	if n.parent == nil {
		return Node{}
	}
	return *n.parent
}

func (n Node) NextSibling() Node {
	return n.sibling(1)
}

func (n Node) PrevSibling() Node {
	return n.sibling(-1)
}

func (n Node) sibling(delta int) Node {
	parent := n.Parent()
	if parent.IsZero() {
		return Node{}
	}
	siblings := parent.Children()
	for i, c := range siblings {
		if c.sub == n.sub && c.start == n.start {
			if j := i + delta; j >= 0 && j < len(siblings) {
				return siblings[j]
			}
			break
		}
	}
	return Node{}
}

// DescendantForByteRange returns the smallest node spanning [start, end).
// An empty range at a boundary between two nodes selects the node that
// starts there.
func (n Node) DescendantForByteRange(start, end int) Node {
	return n.descendant(start, end, false)
}

// NamedDescendantForByteRange is DescendantForByteRange restricted to named
// nodes.
func (n Node) NamedDescendantForByteRange(start, end int) Node {
	return n.descendant(start, end, true)
}

func (n Node) descendant(start, end int, named bool) Node {
	if start < n.StartByte() || end > n.EndByte() {
		return Node{}
	}
	best := n
	cur := n
	for {
		next := Node{}
		for _, c := range cur.Children() {
			if c.EndByte() < end {
				continue
			}
			if c.EndByte() <= start && c.EndByte() != n.EndByte() {
				continue
			}
			if start < c.StartByte() {
				break
			}
			next = c
			break
		}
		if next.IsZero() {
			return best
		}
		cur = next
		if !named || cur.IsNamed() {
			best = cur
		}
	}
}

// String renders the node as an S-expression.
func (n Node) String() string {
	return SExp(n)
}
