package tree

import "github.com/dhamidi/grove/text"

// Cursor walks the visible nodes of a tree. The parent chain is the
// cursor's own stack.
type Cursor struct {
	frames []frame
}

type frame struct {
	siblings []Node
	index    int
}

func NewCursor(n Node) *Cursor {
	return &Cursor{frames: []frame{{siblings: []Node{n}}}}
}

func (c *Cursor) top() *frame {
	return &c.frames[len(c.frames)-1]
}

func (c *Cursor) Node() Node {
	f := c.top()
	return f.siblings[f.index]
}

func (c *Cursor) Kind() string      { return c.Node().Kind() }
func (c *Cursor) Range() text.Range { return c.Node().Range() }
func (c *Cursor) IsError() bool     { return c.Node().IsError() }
func (c *Cursor) FieldName() string { return c.Node().FieldName() }
func (c *Cursor) Depth() int        { return len(c.frames) - 1 }

func (c *Cursor) GotoFirstChild() bool {
	children := c.Node().Children()
	if len(children) == 0 {
		return false
	}
	c.frames = append(c.frames, frame{siblings: children})
	return true
}

func (c *Cursor) GotoLastChild() bool {
	children := c.Node().Children()
	if len(children) == 0 {
		return false
	}
	c.frames = append(c.frames, frame{siblings: children, index: len(children) - 1})
	return true
}

func (c *Cursor) GotoNextSibling() bool {
	f := c.top()
	if len(c.frames) == 1 || f.index+1 >= len(f.siblings) {
		return false
	}
	f.index++
	return true
}

func (c *Cursor) GotoPrevSibling() bool {
	f := c.top()
	if len(c.frames) == 1 || f.index == 0 {
		return false
	}
	f.index--
	return true
}

func (c *Cursor) GotoParent() bool {
	if len(c.frames) == 1 {
		return false
	}
	c.frames = c.frames[:len(c.frames)-1]
	return true
}

// GotoFirstChildForByte moves to the first child that extends past off.
func (c *Cursor) GotoFirstChildForByte(off int) bool {
	children := c.Node().Children()
	for i, child := range children {
		if child.EndByte() > off {
			c.frames = append(c.frames, frame{siblings: children, index: i})
			return true
		}
	}
	return false
}

// Ancestors returns the nodes from the cursor's node up to the root.
func (c *Cursor) Ancestors() []Node {
	out := make([]Node, 0, len(c.frames))
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		out = append(out, f.siblings[f.index])
	}
	return out
}
