package lexer

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/text"
)

// Token is one lexed token. Lookahead counts the bytes past the end of the
// token that were examined to produce it; it is at least one, and reaching
// the end of input counts as examining one byte past it.
type Token struct {
	Symbol       grammar.Symbol
	Range        text.Range
	Lookahead    int
	IsError      bool
	IsExtra      bool
	External     bool
	ScannerState []byte
}

func (t Token) String() string {
	return fmt.Sprintf("%s #%d %s", t.Range.Start(), t.Symbol, t.Range)
}

// ExaminedEnd is the absolute end of the bytes examined for the token.
func (t Token) ExaminedEnd() int {
	return t.Range.EndByte + t.Lookahead
}

func (t Token) Length() text.Length {
	return text.Length{
		Bytes:  t.Range.Len(),
		Extent: extent(t.Range.StartPoint, t.Range.EndPoint),
	}
}

func extent(from, to text.Point) text.Point {
	if to.Row > from.Row {
		return text.Point{Row: to.Row - from.Row, Column: to.Column}
	}
	return text.Point{Column: to.Column - from.Column}
}

type Option func(*Lexer)

// WithExternal installs an external scanner responsible for the given
// symbols.
func WithExternal(ext External, symbols []grammar.Symbol) Option {
	return func(l *Lexer) {
		l.external = ext
		l.externals = symbols
	}
}

// WithExtras marks the symbols whose tokens are extras.
func WithExtras(symbols []grammar.Symbol) Option {
	return func(l *Lexer) {
		for _, sym := range symbols {
			l.extras[sym] = true
		}
	}
}

// Lexer produces tokens on demand. The set of acceptable terminals is given
// per call, so the parser can lex context sensitively.
type Lexer struct {
	dfa       *DFA
	src       []byte
	pos       text.Position
	external  External
	externals []grammar.Symbol
	extras    map[grammar.Symbol]bool
}

func New(dfa *DFA, src []byte, opts ...Option) *Lexer {
	l := &Lexer{
		dfa:    dfa,
		src:    src,
		extras: make(map[grammar.Symbol]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lexer) Source() []byte {
	return l.src
}

func (l *Lexer) Position() text.Position {
	return l.pos
}

// Seek moves the lexer to p.
func (l *Lexer) Seek(p text.Position) {
	l.pos = p
}

// Next lexes the token at the current position and moves past it.
func (l *Lexer) Next(valid func(grammar.Symbol) bool, state []byte) Token {
	tok := l.Peek(valid, state)
	l.pos = tok.Range.End()
	return tok
}

// Peek lexes the token at the current position without consuming it.
func (l *Lexer) Peek(valid func(grammar.Symbol) bool, state []byte) Token {
	return l.lex(l.pos, valid, state)
}

func allValid(grammar.Symbol) bool { return true }

func (l *Lexer) lex(at text.Position, valid func(grammar.Symbol) bool, state []byte) Token {
	if valid == nil {
		valid = allValid
	}
	if tok, ok := l.scanExternal(at, valid, state); ok {
		return tok
	}
	if at.Byte >= len(l.src) {
		return Token{
			Symbol:       grammar.SymbolEnd,
			Range:        text.Range{StartByte: at.Byte, EndByte: at.Byte, StartPoint: at.Point, EndPoint: at.Point},
			Lookahead:    1,
			ScannerState: state,
		}
	}

	sym, end, fallback, fallbackEnd, examined := l.dfa.Match(l.src, at.Byte, valid)
	tok := Token{ScannerState: state}
	switch {
	case end > 0:
		tok.Symbol = sym
	case fallbackEnd > 0:
		tok.Symbol, end = fallback, fallbackEnd
	default:
		_, w := utf8.DecodeRune(l.src[at.Byte:])
		tok.Symbol, end, tok.IsError = grammar.SymbolError, at.Byte+w, true
	}
	tok.Range = text.RangeOf(at, text.Measure(l.src[at.Byte:end]))
	tok.Lookahead = max(examined, end+1) - end
	tok.IsExtra = l.extras[tok.Symbol]
	return tok
}

func (l *Lexer) scanExternal(at text.Position, valid func(grammar.Symbol) bool, state []byte) (Token, bool) {
	if l.external == nil {
		return Token{}, false
	}
	wanted := false
	for _, sym := range l.externals {
		if valid(sym) {
			wanted = true
			break
		}
	}
	if !wanted {
		return Token{}, false
	}
	before := bytes.Clone(state)
	ext, next, ok := l.external.Scan(before, l.src, at, valid)
	if !ok || ext.Length <= 0 || at.Byte+ext.Length > len(l.src) {
		return Token{}, false
	}
	end := at.Byte + ext.Length
	return Token{
		Symbol:       ext.Symbol,
		Range:        text.RangeOf(at, text.Measure(l.src[at.Byte:end])),
		Lookahead:    max(at.Byte+ext.Examined, end+1) - end,
		IsExtra:      l.extras[ext.Symbol],
		External:     true,
		ScannerState: next,
	}, true
}
