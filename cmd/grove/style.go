package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dhamidi/grove/tree"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// sexpStyle colours the node kinds and error markers of an S-expression.
type sexpStyle struct {
	kind  lipgloss.Style
	field lipgloss.Style
	err   lipgloss.Style
}

func (s sexpStyle) Kind(v string) string  { return s.kind.Render(v) }
func (s sexpStyle) Field(v string) string { return s.field.Render(v) }
func (s sexpStyle) Error(v string) string { return s.err.Render(v) }

// newSExpStyle returns nil, the plain style, when colour is off.
func newSExpStyle(mode string, w io.Writer) tree.Style {
	if !isColorEnabled(mode, w) {
		return nil
	}
	r := lipgloss.NewRenderer(w)
	if mode == "always" {
		r.SetColorProfile(termenv.ANSI256)
	}
	return sexpStyle{
		kind:  r.NewStyle().Foreground(lipgloss.Color("12")),
		field: r.NewStyle().Foreground(lipgloss.Color("8")),
		err:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// isColorEnabled resolves "auto", "always" and "never". In auto mode colour
// needs a terminal and an unset NO_COLOR.
func isColorEnabled(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}
