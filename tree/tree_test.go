package tree

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/language"
	"github.com/dhamidi/grove/text"
)

func sums(t *testing.T) *language.Language {
	t.Helper()
	lang, err := language.Compile(&grammar.Grammar{
		Name: "sums",
		Rules: []grammar.Definition{
			grammar.Define("sum", grammar.Choice(
				grammar.PrecLeft(1, grammar.Seq(grammar.Field("left", grammar.Sym("sum")), grammar.Str("+"), grammar.Field("right", grammar.Sym("sum")))),
				grammar.Sym("_operand"),
			)),
			grammar.Define("_operand", grammar.Choice(grammar.Sym("number"), grammar.Sym("paren"))),
			grammar.Define("paren", grammar.Seq(grammar.Str("("), grammar.Sym("sum"), grammar.Str(")"))),
			grammar.Define("number", grammar.Pattern(`[0-9]+`)),
		},
		Extras: []grammar.Rule{grammar.Pattern(`\s+`)},
	})
	require.NoError(t, err)
	return lang
}

// builder assembles subtrees by hand, the way the parser would.
type builder struct {
	t    *testing.T
	lang *language.Language
	src  []byte
	pos  int
}

func (b *builder) sym(name string) grammar.Symbol {
	sym, ok := b.lang.SymbolByName(name)
	require.True(b.t, ok, name)
	return sym
}

func (b *builder) leaf(name string, n int) *Subtree {
	size := text.Measure(b.src[b.pos : b.pos+n])
	b.pos += n
	s := NewLeaf(b.sym(name), size, 0, 0, 0)
	if b.lang.IsExtra(s.Symbol) {
		s.Flags |= Extra
	}
	return s
}

func (b *builder) node(name string, children ...*Subtree) *Subtree {
	lhs := b.sym(name)
	var rhs []grammar.Symbol
	for _, c := range children {
		if !c.IsExtra() {
			rhs = append(rhs, c.Symbol)
		}
	}
	for i, p := range b.lang.Productions {
		if p.LHS == lhs && slices.Equal(p.RHS, rhs) {
			return NewNode(lhs, i, children, 0)
		}
	}
	b.t.Fatalf("no production %s -> %v", name, rhs)
	return nil
}

// sample builds "1 + (2)".
func sample(t *testing.T) *Tree {
	lang := sums(t)
	b := &builder{t: t, lang: lang, src: []byte("1 + (2)")}
	one := b.node("sum", b.node("_operand", b.leaf("number", 1)))
	ws1 := b.leaf(`\s+`, 1)
	plus := b.leaf("+", 1)
	ws2 := b.leaf(`\s+`, 1)
	open := b.leaf("(", 1)
	two := b.node("sum", b.node("_operand", b.leaf("number", 1)))
	closing := b.leaf(")", 1)
	right := b.node("sum", b.node("_operand", b.node("paren", open, two, closing)))
	root := b.node("sum", one, ws1, plus, ws2, right)
	return New(lang, b.src, root)
}

func TestNewNodeDerivesSize(t *testing.T) {
	tr := sample(t)
	root := tr.Root()
	assert.Equal(t, 7, root.Size.Bytes)
	assert.Equal(t, text.Point{Column: 7}, root.Size.Extent)
	assert.False(t, root.HasError())
	assert.Equal(t, 0, root.Lookahead)

	a := NewLeaf(1, text.Length{Bytes: 2, Extent: text.Point{Column: 2}}, 3, 0, 0)
	b := NewLeaf(1, text.Length{Bytes: 1, Extent: text.Point{Column: 1}}, 0, 0, 0)
	b.Flags |= Missing
	n := NewNode(5, 0, []*Subtree{a, b}, 0)
	assert.Equal(t, 2, n.Lookahead, "a examined up to byte 5, node ends at 3")
	assert.True(t, n.HasError())
	assert.False(t, n.Reusable())
}

func TestChildrenFlattenHiddenNodes(t *testing.T) {
	tr := sample(t)
	root := tr.RootNode()

	children := root.Children()
	kinds := make([]string, len(children))
	for i, c := range children {
		kinds[i] = c.Kind()
	}
	assert.Equal(t, []string{"sum", "+", "sum"}, kinds, "whitespace extras are hidden")

	left := root.ChildByFieldName("left")
	require.False(t, left.IsZero())
	assert.Equal(t, "1", left.Text())
	assert.Equal(t, "number", left.Child(0).Kind(), "_operand is flattened")

	right := root.ChildByFieldName("right")
	assert.Equal(t, "(2)", right.Text())
	assert.Equal(t, "paren", right.NamedChild(0).Kind())
	assert.True(t, root.ChildByFieldName("nope").IsZero())
	assert.True(t, root.Child(9).IsZero())
}

func TestSExp(t *testing.T) {
	tr := sample(t)
	assert.Equal(t, "(sum left: (sum (number)) right: (sum (paren (sum (number)))))", tr.RootNode().String())
}

func TestParent(t *testing.T) {
	tr := sample(t)
	root := tr.RootNode()
	number := root.DescendantForByteRange(5, 6)
	require.Equal(t, "number", number.Kind())

	var chain []string
	for n := number; !n.IsZero(); n = n.Parent() {
		chain = append(chain, n.Kind())
	}
	assert.Equal(t, []string{"number", "sum", "paren", "sum", "sum"}, chain)

	plus := root.Child(1)
	assert.Equal(t, "sum", plus.NextSibling().Kind())
	assert.Equal(t, "1", plus.PrevSibling().Text())
	assert.True(t, root.Parent().IsZero())
}

func TestNodeNavigationAgreesWithCursor(t *testing.T) {
	tr := sample(t)
	c := NewCursor(tr.RootNode())
	visited := 0
	for {
		up := c.Node()
		for _, want := range c.Ancestors()[1:] {
			up = up.Parent()
			require.False(t, up.IsZero())
			assert.Same(t, want.Subtree(), up.Subtree())
			assert.Equal(t, want.Range(), up.Range())
		}
		assert.True(t, up.Parent().IsZero())
		visited++

		if c.GotoFirstChild() {
			continue
		}
		for {
			before := c.Node()
			if c.GotoNextSibling() {
				assert.Equal(t, c.Range(), before.NextSibling().Range())
				assert.Equal(t, before.Range(), c.Node().PrevSibling().Range())
				break
			}
			assert.True(t, before.NextSibling().IsZero())
			if !c.GotoParent() {
				assert.Greater(t, visited, 5)
				return
			}
		}
	}
}

func TestDescendantForByteRange(t *testing.T) {
	tr := sample(t)
	root := tr.RootNode()

	tests := []struct {
		name       string
		start, end int
		kind       string
		text       string
	}{
		{name: "leaf", start: 0, end: 1, kind: "number", text: "1"},
		{name: "empty at start", start: 0, end: 0, kind: "number", text: "1"},
		{name: "operator", start: 2, end: 3, kind: "+", text: "+"},
		{name: "spanning", start: 4, end: 6, kind: "paren", text: "(2"},
		{name: "whitespace", start: 1, end: 2, kind: "sum", text: "1 + (2)"},
		{name: "everything", start: 0, end: 7, kind: "sum", text: "1 + (2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := root.DescendantForByteRange(tt.start, tt.end)
			require.False(t, n.IsZero())
			assert.Equal(t, tt.kind, n.Kind())
			assert.True(t, strings.HasPrefix(n.Text(), tt.text) || n.Text() == tt.text)
		})
	}

	named := root.NamedDescendantForByteRange(2, 3)
	assert.Equal(t, "sum", named.Kind())
	assert.Equal(t, 0, named.StartByte())
	assert.True(t, root.DescendantForByteRange(3, 99).IsZero())
}

func TestCursor(t *testing.T) {
	tr := sample(t)
	c := NewCursor(tr.RootNode())

	assert.Equal(t, "sum", c.Kind())
	assert.False(t, c.GotoNextSibling())
	assert.False(t, c.GotoParent())

	require.True(t, c.GotoFirstChild())
	assert.Equal(t, "left", c.FieldName())
	require.True(t, c.GotoNextSibling())
	assert.Equal(t, "+", c.Kind())
	require.True(t, c.GotoNextSibling())
	assert.Equal(t, "right", c.FieldName())
	assert.False(t, c.GotoNextSibling())
	require.True(t, c.GotoPrevSibling())
	assert.Equal(t, text.Range{StartByte: 2, EndByte: 3, StartPoint: text.Point{Column: 2}, EndPoint: text.Point{Column: 3}}, c.Range())

	require.True(t, c.GotoNextSibling())
	require.True(t, c.GotoFirstChild())
	assert.Equal(t, "paren", c.Kind())
	require.True(t, c.GotoLastChild())
	assert.Equal(t, ")", c.Kind())
	assert.Equal(t, 3, c.Depth())

	var up []string
	for _, n := range c.Ancestors() {
		up = append(up, n.Kind())
	}
	assert.Equal(t, []string{")", "paren", "sum", "sum"}, up)

	for c.GotoParent() {
	}
	assert.Equal(t, 0, c.Depth())
	require.True(t, c.GotoFirstChildForByte(4))
	assert.Equal(t, "right", c.FieldName())
}

func TestErrorRanges(t *testing.T) {
	lang := sums(t)
	b := &builder{t: t, lang: lang, src: []byte("1 $")}
	one := b.node("sum", b.node("_operand", b.leaf("number", 1)))
	ws := b.leaf(`\s+`, 1)
	bad := NewLeaf(grammar.SymbolError, text.Length{Bytes: 1, Extent: text.Point{Column: 1}}, 0, 0, 0)
	bad.Flags |= Error | Extra
	root := NewNode(one.Symbol, one.Production, []*Subtree{one.Children[0], ws, bad}, 0)
	tr := New(lang, b.src, root)

	assert.True(t, tr.HasError())
	ranges := tr.ErrorRanges()
	require.Len(t, ranges, 1)
	assert.Equal(t, 2, ranges[0].StartByte)
	assert.Equal(t, 3, ranges[0].EndByte)
	assert.Equal(t, "(sum (number) (ERROR))", tr.RootNode().String())
}

func TestEqual(t *testing.T) {
	a := sample(t)
	b := sample(t)
	assert.True(t, Equal(a.Root(), b.Root()))
	assert.NotSame(t, a.Root(), b.Root())

	changed := *b.Root()
	changed.Children = slices.Clone(changed.Children)
	changed.Children[1] = changed.Children[3]
	assert.True(t, Equal(a.Root(), &changed), "both are one-byte whitespace")
	changed.Children[2] = changed.Children[3]
	assert.False(t, Equal(a.Root(), &changed))
	assert.False(t, Equal(a.Root(), nil))
}

func TestWalkAndLeaves(t *testing.T) {
	tr := sample(t)
	var starts []int
	var texts []string
	tr.Leaves(func(s *Subtree, start text.Position) {
		starts = append(starts, start.Byte)
		texts = append(texts, string(tr.Source()[start.Byte:start.Byte+s.Size.Bytes]))
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, starts)
	assert.Equal(t, "1 + (2)", strings.Join(texts, ""))

	count := 0
	tr.Walk(func(*Subtree, text.Position, int) bool {
		count++
		return true
	})
	assert.Equal(t, tr.Root().Count(), count)
}

func TestJSONAndYAML(t *testing.T) {
	tr := sample(t)

	data, err := json.Marshal(tr)
	require.NoError(t, err)
	var decoded jsonNode
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "sum", decoded.Kind)
	require.Len(t, decoded.Children, 3)
	assert.Equal(t, "left", decoded.Children[0].Field)
	assert.Equal(t, "+", decoded.Children[1].Text)
	assert.Equal(t, 7, decoded.Range.End.Byte)

	out, err := yaml.Marshal(tr)
	require.NoError(t, err)
	assert.Contains(t, string(out), "kind: sum")
	assert.Contains(t, string(out), "field: right")
}
