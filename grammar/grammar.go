// Package grammar defines grammars and normalizes them into the flat
// symbol and production lists the table generator works on.
package grammar

import (
	"fmt"
	"strings"
)

// Definition is one named rule.
type Definition struct {
	Name string
	Body Rule
}

func Define(name string, body Rule) Definition {
	return Definition{Name: name, Body: body}
}

// Grammar is a grammar as written by its author. The first rule is the
// start rule. Rules whose name starts with an underscore are hidden from the
// tree.
type Grammar struct {
	Name      string
	Rules     []Definition
	Extras    []Rule
	Conflicts [][]string
	Externals []string
}

func hidden(name string) bool {
	return strings.HasPrefix(name, "_")
}

// Symbol identifies a terminal or nonterminal. Terminals come first, so a
// symbol is a terminal when it is below Syntax.TerminalCount.
type Symbol int

const (
	SymbolEnd   Symbol = 0
	SymbolError Symbol = 1
)

// SymbolInfo is the metadata of one symbol.
type SymbolInfo struct {
	Name     string `json:"name"`
	Terminal bool   `json:"terminal,omitempty"`
	Named    bool   `json:"named,omitempty"`
	Visible  bool   `json:"visible,omitempty"`
	Extra    bool   `json:"extra,omitempty"`
	External bool   `json:"external,omitempty"`
	// Origin is the rule an auxiliary symbol was generated for; it equals
	// the symbol itself for everything else.
	Origin Symbol `json:"origin"`
}

// Terminal is a lexical terminal matched by the table lexer.
type Terminal struct {
	Symbol  Symbol `json:"symbol"`
	Pattern string `json:"pattern"`
	Literal bool   `json:"literal,omitempty"`
	Prec    int    `json:"prec,omitempty"`
}

// Production is one flattened alternative of a nonterminal. Its id is its
// index in Syntax.Productions.
type Production struct {
	LHS     Symbol   `json:"lhs"`
	RHS     []Symbol `json:"rhs"`
	Fields  []string `json:"fields,omitempty"`
	Prec    int      `json:"prec,omitempty"`
	Assoc   Assoc    `json:"assoc,omitempty"`
	DynPrec int      `json:"dyn_prec,omitempty"`
}

// FieldAt returns the field name of the i-th right hand side symbol.
func (p Production) FieldAt(i int) string {
	if i < 0 || i >= len(p.Fields) {
		return ""
	}
	return p.Fields[i]
}

// Syntax is a normalized grammar.
type Syntax struct {
	Name          string
	Symbols       []SymbolInfo
	TerminalCount int
	Terminals     []Terminal
	Productions   []Production
	Start         Symbol
	Extras        []Symbol
	Externals     []Symbol
	Conflicts     [][]Symbol
}

func (s *Syntax) IsTerminal(sym Symbol) bool {
	return int(sym) < s.TerminalCount
}

func (s *Syntax) SymbolName(sym Symbol) string {
	if int(sym) < 0 || int(sym) >= len(s.Symbols) {
		return fmt.Sprintf("#%d", sym)
	}
	return s.Symbols[sym].Name
}

// Lookup finds a named symbol. Anonymous terminals are found by their text.
func (s *Syntax) Lookup(name string) (Symbol, bool) {
	for i, info := range s.Symbols {
		if info.Name == name {
			return Symbol(i), true
		}
	}
	return 0, false
}

// ProductionsOf returns the ids of the productions of lhs.
func (s *Syntax) ProductionsOf(lhs Symbol) []int {
	var ids []int
	for i, p := range s.Productions {
		if p.LHS == lhs {
			ids = append(ids, i)
		}
	}
	return ids
}
