package tree

import (
	"io"
	"strconv"
	"strings"
)

// Style decorates the parts of an S-expression. The zero style is plain
// text.
type Style interface {
	Kind(string) string
	Field(string) string
	Error(string) string
}

type plain struct{}

func (plain) Kind(s string) string  { return s }
func (plain) Field(s string) string { return s }
func (plain) Error(s string) string { return s }

// SExp renders n and its named descendants, for example
// (sum left: (number) right: (number)).
func SExp(n Node) string {
	var b strings.Builder
	writeSExp(&b, n, plain{})
	return b.String()
}

// WriteSExp writes the S-expression of n using style.
func WriteSExp(w io.Writer, n Node, style Style) error {
	if style == nil {
		style = plain{}
	}
	var b strings.Builder
	writeSExp(&b, n, style)
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func writeSExp(b *strings.Builder, n Node, style Style) {
	switch {
	case n.IsMissing():
		kind := n.Kind()
		if !n.IsNamed() {
			kind = strconv.Quote(kind)
		}
		b.WriteString("(" + style.Error("MISSING") + " " + style.Kind(kind) + ")")
		return
	case n.IsError():
		b.WriteString("(" + style.Error("ERROR"))
	default:
		b.WriteString("(" + style.Kind(n.Kind()))
	}
	for _, c := range n.Children() {
		if !c.IsNamed() && !c.IsMissing() {
			continue
		}
		b.WriteByte(' ')
		if c.FieldName() != "" {
			b.WriteString(style.Field(c.FieldName() + ":"))
			b.WriteByte(' ')
		}
		writeSExp(b, c, style)
	}
	b.WriteByte(')')
}
