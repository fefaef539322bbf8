package lsp

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

// DefaultSymbolKinds maps the declaration kinds of the bsv grammar to
// symbol kinds.
var DefaultSymbolKinds = map[string]protocol.SymbolKind{
	"package_declaration":   protocol.SymbolKindPackage,
	"interface_declaration": protocol.SymbolKindInterface,
	"module_declaration":    protocol.SymbolKindModule,
	"function_declaration":  protocol.SymbolKindFunction,
	"rule_declaration":      protocol.SymbolKindEvent,
	"method_declaration":    protocol.SymbolKindMethod,
}

const maxSnippet = 24

// toPosition converts a byte offset of src to an LSP position, which counts
// UTF-16 code units.
func toPosition(src []byte, off int) protocol.Position {
	p := text.PointAt(src, off)
	lineStart := off - p.Column
	units := 0
	for b := src[lineStart:off]; len(b) > 0; {
		r, w := utf8.DecodeRune(b)
		units += utf16.RuneLen(r)
		b = b[w:]
	}
	return protocol.Position{Line: protocol.UInteger(p.Row), Character: protocol.UInteger(units)}
}

func toRange(src []byte, start, end int) protocol.Range {
	return protocol.Range{Start: toPosition(src, start), End: toPosition(src, end)}
}

// diagnostics reports one error per outermost ERROR node and one per
// missing token.
func diagnostics(t *tree.Tree) []protocol.Diagnostic {
	out := []protocol.Diagnostic{}
	src := t.Source()
	lang := t.Language()
	severity := protocol.DiagnosticSeverityError
	source := lsName
	t.Walk(func(s *tree.Subtree, start text.Position, _ int) bool {
		var message string
		switch {
		case s.IsMissing():
			kind := lang.SymbolName(s.Symbol)
			if !lang.IsNamed(s.Symbol) {
				kind = fmt.Sprintf("%q", kind)
			}
			message = "missing " + kind
		case s.IsError():
			message = "unexpected " + snippet(src[start.Byte:start.Byte+s.Size.Bytes])
		default:
			return s.HasError()
		}
		out = append(out, protocol.Diagnostic{
			Range:    toRange(src, start.Byte, start.Byte+s.Size.Bytes),
			Severity: &severity,
			Source:   &source,
			Message:  message,
		})
		return false
	})
	return out
}

func snippet(b []byte) string {
	if len(b) == 0 {
		return "end of input"
	}
	s := string(b)
	if utf8.RuneCountInString(s) > maxSnippet {
		s = string([]rune(s)[:maxSnippet]) + "..."
	}
	return fmt.Sprintf("%q", s)
}

// selectionRange returns the chain of nodes around off, innermost first.
// Nodes with the same range as their child are skipped.
func selectionRange(t *tree.Tree, off int) protocol.SelectionRange {
	src := t.Source()
	n := t.RootNode().DescendantForByteRange(off, off)
	var chain []tree.Node
	for ; !n.IsZero(); n = n.Parent() {
		if k := len(chain); k > 0 && chain[k-1].StartByte() == n.StartByte() && chain[k-1].EndByte() == n.EndByte() {
			continue
		}
		chain = append(chain, n)
	}
	var parent *protocol.SelectionRange
	for i := len(chain) - 1; i > 0; i-- {
		parent = &protocol.SelectionRange{
			Range:  toRange(src, chain[i].StartByte(), chain[i].EndByte()),
			Parent: parent,
		}
	}
	sel := protocol.SelectionRange{Parent: parent}
	if len(chain) > 0 {
		sel.Range = toRange(src, chain[0].StartByte(), chain[0].EndByte())
	}
	return sel
}

// documentSymbols lists the named declarations below n. A node is a
// declaration when its kind is in kinds and it has a name field.
func documentSymbols(n tree.Node, kinds map[string]protocol.SymbolKind) []protocol.DocumentSymbol {
	out := []protocol.DocumentSymbol{}
	src := []byte(nil)
	for _, c := range n.NamedChildren() {
		kind, ok := kinds[c.Kind()]
		name := c.ChildByFieldName("name")
		if !ok || name.IsZero() || name.IsMissing() {
			out = append(out, documentSymbols(c, kinds)...)
			continue
		}
		if src == nil {
			src = c.Tree().Source()
		}
		detail := c.Kind()
		out = append(out, protocol.DocumentSymbol{
			Name:           name.Text(),
			Detail:         &detail,
			Kind:           kind,
			Range:          toRange(src, c.StartByte(), c.EndByte()),
			SelectionRange: toRange(src, name.StartByte(), name.EndByte()),
			Children:       documentSymbols(c, kinds),
		})
	}
	return out
}
