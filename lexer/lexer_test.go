package lexer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/text"
)

func testSyntax(t *testing.T) (*grammar.Syntax, *DFA) {
	t.Helper()
	g := &grammar.Grammar{
		Name: "tokens",
		Rules: []grammar.Definition{
			grammar.Define("program", grammar.Repeat(grammar.Choice(
				grammar.Sym("identifier"),
				grammar.Sym("number"),
				grammar.Str("if"),
				grammar.Str("+"),
				grammar.Str("+="),
			))),
			grammar.Define("identifier", grammar.Pattern(`[a-zé]+`)),
			grammar.Define("number", grammar.Pattern(`[0-9]+`)),
		},
		Extras: []grammar.Rule{grammar.Pattern(`\s+`)},
	}
	s, err := g.Normalize()
	require.NoError(t, err)
	dfa, err := Build(s.Terminals)
	require.NoError(t, err)
	return s, dfa
}

func sym(t *testing.T, s *grammar.Syntax, name string) grammar.Symbol {
	t.Helper()
	out, ok := s.Lookup(name)
	require.True(t, ok, "symbol %s", name)
	return out
}

func only(syms ...grammar.Symbol) func(grammar.Symbol) bool {
	return func(s grammar.Symbol) bool {
		for _, x := range syms {
			if x == s {
				return true
			}
		}
		return false
	}
}

func TestLexLongestMatch(t *testing.T) {
	s, dfa := testSyntax(t)
	tests := []struct {
		src  string
		want string
		end  int
	}{
		{"if", "if", 2},
		{"iffy", "identifier", 4},
		{"+=1", "+=", 2},
		{"+ =", "+", 1},
		{"42abc", "number", 2},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			l := New(dfa, []byte(tt.src))
			tok := l.Next(nil, nil)
			assert.Equal(t, sym(t, s, tt.want), tok.Symbol)
			assert.Equal(t, tt.end, tok.Range.EndByte)
			assert.False(t, tok.IsError)
		})
	}
}

func TestLexModes(t *testing.T) {
	s, dfa := testSyntax(t)
	ident := sym(t, s, "identifier")
	number := sym(t, s, "number")

	l := New(dfa, []byte("if"))
	tok := l.Peek(only(ident), nil)
	assert.Equal(t, ident, tok.Symbol, "a keyword lexes as identifier where only identifiers are valid")

	tok = l.Peek(only(number), nil)
	assert.Equal(t, sym(t, s, "if"), tok.Symbol, "invalid terminals are still recognized")
	assert.False(t, tok.IsError)
}

func TestLexErrorToken(t *testing.T) {
	_, dfa := testSyntax(t)
	tests := []struct {
		src  string
		size int
	}{
		{"\xff", 1},
		{"€", 3},
		{"\xe2\x82", 1},
	}
	for _, tt := range tests {
		l := New(dfa, []byte(tt.src))
		tok := l.Next(nil, nil)
		assert.True(t, tok.IsError, "%q", tt.src)
		assert.Equal(t, grammar.SymbolError, tok.Symbol)
		assert.Equal(t, tt.size, tok.Range.Len(), "%q", tt.src)
	}
}

func TestLexTotality(t *testing.T) {
	_, dfa := testSyntax(t)
	inputs := []string{"", "if +=\n\xff\x00 é42", "\x80\x80\x80", "   ", "a\r\nb"}
	for _, src := range inputs {
		l := New(dfa, []byte(src))
		for i := 0; ; i++ {
			require.Less(t, i, len(src)+1, "lexer does not terminate on %q", src)
			tok := l.Next(nil, nil)
			if tok.Symbol == grammar.SymbolEnd {
				assert.Equal(t, len(src), tok.Range.StartByte)
				assert.Zero(t, tok.Range.Len())
				break
			}
			assert.Positive(t, tok.Range.Len())
		}
	}
}

func TestLexPositionsAndLookahead(t *testing.T) {
	s, dfa := testSyntax(t)
	l := New(dfa, []byte("é+\nab"), WithExtras(s.Extras))

	tok := l.Next(nil, nil)
	assert.Equal(t, sym(t, s, "identifier"), tok.Symbol)
	assert.Equal(t, text.Point{Row: 0, Column: 1}, tok.Range.EndPoint)
	assert.Equal(t, 1, tok.Lookahead)

	tok = l.Next(nil, nil)
	assert.Equal(t, "+", s.SymbolName(tok.Symbol))
	assert.Equal(t, 1, tok.Lookahead, "the character after a token is always examined")

	tok = l.Next(nil, nil)
	assert.True(t, tok.IsExtra)
	assert.Equal(t, text.Point{Row: 1, Column: 0}, tok.Range.EndPoint)

	tok = l.Next(nil, nil)
	assert.Equal(t, text.Point{Row: 1, Column: 2}, tok.Range.EndPoint)
	assert.Equal(t, 7, tok.ExaminedEnd(), "peeking at the end of input counts as one byte")

	assert.Equal(t, grammar.SymbolEnd, l.Next(nil, nil).Symbol)
}

func TestLexPeekSeek(t *testing.T) {
	_, dfa := testSyntax(t)
	l := New(dfa, []byte("abc 12"))
	first := l.Peek(nil, nil)
	assert.Equal(t, first, l.Peek(nil, nil))
	assert.Equal(t, 0, l.Position().Byte)

	l.Seek(text.Position{Byte: 4, Point: text.Point{Column: 4}})
	tok := l.Next(nil, nil)
	assert.Equal(t, 4, tok.Range.StartByte)
	assert.Equal(t, 6, l.Position().Byte)
}

// heredoc recognizes <<TAG openers and the matching TAG closer. The open
// tag is the scanner state.
type heredoc struct {
	open, close grammar.Symbol
}

func (h heredoc) Scan(state []byte, src []byte, at text.Position, valid func(grammar.Symbol) bool) (ExternalToken, []byte, bool) {
	rest := src[at.Byte:]
	if len(state) == 0 {
		if !valid(h.open) || !bytes.HasPrefix(rest, []byte("<<")) {
			return ExternalToken{}, nil, false
		}
		n := 2
		for n < len(rest) && rest[n] >= 'A' && rest[n] <= 'Z' {
			n++
		}
		if n == 2 {
			return ExternalToken{}, nil, false
		}
		return ExternalToken{Symbol: h.open, Length: n, Examined: n + 1}, append([]byte(nil), rest[2:n]...), true
	}
	if valid(h.close) && bytes.HasPrefix(rest, state) {
		state[0] = 'X'
		return ExternalToken{Symbol: h.close, Length: len(state), Examined: len(state)}, nil, true
	}
	return ExternalToken{}, nil, false
}

func TestLexExternal(t *testing.T) {
	s, dfa := testSyntax(t)
	ext := heredoc{open: 100, close: 101}
	l := New(dfa, []byte("<<END abc END x"), WithExternal(ext, []grammar.Symbol{100, 101}), WithExtras(s.Extras))

	tok := l.Next(nil, nil)
	require.True(t, tok.External)
	assert.Equal(t, grammar.Symbol(100), tok.Symbol)
	assert.Equal(t, []byte("END"), tok.ScannerState)
	state := tok.ScannerState

	tok = l.Next(nil, state)
	assert.True(t, tok.IsExtra)
	assert.Equal(t, state, tok.ScannerState, "table tokens carry the state through")

	tok = l.Next(nil, state)
	assert.Equal(t, sym(t, s, "identifier"), tok.Symbol)
	l.Next(nil, state)

	tok = l.Next(nil, state)
	assert.Equal(t, grammar.Symbol(101), tok.Symbol)
	assert.Nil(t, tok.ScannerState)
	assert.Equal(t, []byte("END"), state, "the scanner never sees the caller's state")
	assert.Equal(t, 1, tok.Lookahead)
}
