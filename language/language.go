// Package language bundles everything needed to parse one grammar: symbol
// metadata, productions, the parse table and the lexer DFA. A Language is
// read-only and shared by every parse of its grammar.
package language

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/lexer"
	"github.com/dhamidi/grove/table"
)

var log = commonlog.GetLogger("grove.language")

type Language struct {
	Name        string
	Symbols     []grammar.SymbolInfo
	Productions []grammar.Production
	Start       grammar.Symbol
	Extras      []grammar.Symbol
	Externals   []grammar.Symbol
	Table       *table.Table
	DFA         *lexer.DFA
	External    lexer.External

	byName map[string]grammar.Symbol
}

type Option func(*options)

type options struct {
	external lexer.External
	strict   bool
}

// WithExternalScanner supplies the scanner for the grammar's external
// tokens.
func WithExternalScanner(ext lexer.External) Option {
	return func(o *options) {
		o.external = ext
	}
}

// WithStrictConflicts makes Compile fail on conflicts the grammar did not
// declare.
func WithStrictConflicts() Option {
	return func(o *options) {
		o.strict = true
	}
}

// Compile normalizes g and generates its tables.
func Compile(g *grammar.Grammar, opts ...Option) (*Language, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	syn, err := g.Normalize()
	if err != nil {
		return nil, err
	}
	build := table.Build
	if o.strict {
		build = table.BuildStrict
	}
	tbl, err := build(syn)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", g.Name, err)
	}
	dfa, err := lexer.Build(syn.Terminals)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", g.Name, err)
	}
	if len(syn.Externals) > 0 && o.external == nil {
		return nil, fmt.Errorf("grammar %s: %d external tokens but no external scanner", g.Name, len(syn.Externals))
	}
	lang := &Language{
		Name:        syn.Name,
		Symbols:     syn.Symbols,
		Productions: syn.Productions,
		Start:       syn.Start,
		Extras:      syn.Extras,
		Externals:   syn.Externals,
		Table:       tbl,
		DFA:         dfa,
		External:    o.external,
	}
	lang.index()
	log.Debugf("compiled %s: %d symbols, %d productions, %d states, %d lex modes, %d conflicts",
		lang.Name, len(lang.Symbols), len(lang.Productions), tbl.StateCount(), len(tbl.LexModes), len(tbl.Conflicts))
	return lang, nil
}

func (l *Language) index() {
	l.byName = make(map[string]grammar.Symbol, len(l.Symbols))
	for i := len(l.Symbols) - 1; i >= 0; i-- {
		info := l.Symbols[i]
		if _, taken := l.byName[info.Name]; taken && !info.Named {
			continue
		}
		l.byName[info.Name] = grammar.Symbol(i)
	}
}

func (l *Language) SymbolCount() int {
	return len(l.Symbols)
}

func (l *Language) SymbolName(sym grammar.Symbol) string {
	if int(sym) < 0 || int(sym) >= len(l.Symbols) {
		return fmt.Sprintf("#%d", sym)
	}
	return l.Symbols[sym].Name
}

// SymbolByName finds a symbol by name, preferring named symbols.
func (l *Language) SymbolByName(name string) (grammar.Symbol, bool) {
	sym, ok := l.byName[name]
	return sym, ok
}

func (l *Language) info(sym grammar.Symbol) grammar.SymbolInfo {
	if int(sym) < 0 || int(sym) >= len(l.Symbols) {
		return grammar.SymbolInfo{}
	}
	return l.Symbols[sym]
}

func (l *Language) IsNamed(sym grammar.Symbol) bool {
	return l.info(sym).Named
}

func (l *Language) IsVisible(sym grammar.Symbol) bool {
	return l.info(sym).Visible
}

func (l *Language) IsTerminal(sym grammar.Symbol) bool {
	return int(sym) < l.Table.TerminalCount
}

func (l *Language) IsExtra(sym grammar.Symbol) bool {
	return l.info(sym).Extra
}

// FieldName returns the field of the i-th child of production prod, not
// counting extras.
func (l *Language) FieldName(prod, i int) string {
	if prod < 0 || prod >= len(l.Productions) {
		return ""
	}
	return l.Productions[prod].FieldAt(i)
}

// NewLexer returns a lexer over src configured for this language.
func (l *Language) NewLexer(src []byte) *lexer.Lexer {
	opts := []lexer.Option{lexer.WithExtras(l.Extras)}
	if l.External != nil {
		opts = append(opts, lexer.WithExternal(l.External, l.Externals))
	}
	return lexer.New(l.DFA, src, opts...)
}
