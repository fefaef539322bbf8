package lexer

import (
	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/text"
)

// ExternalToken is what an external scanner recognized: Length bytes from
// the scan position, after looking at Examined bytes.
type ExternalToken struct {
	Symbol   grammar.Symbol
	Length   int
	Examined int
}

// External is a context sensitive scanner. Scan must be a pure function of
// its arguments: state is the serialized scanner state left by the previous
// external token and must not be modified; the returned state is stored with
// the token and handed back on the next call.
type External interface {
	Scan(state []byte, src []byte, at text.Position, valid func(grammar.Symbol) bool) (ExternalToken, []byte, bool)
}

// ExternalFunc adapts a function to the External interface.
type ExternalFunc func(state []byte, src []byte, at text.Position, valid func(grammar.Symbol) bool) (ExternalToken, []byte, bool)

func (f ExternalFunc) Scan(state []byte, src []byte, at text.Position, valid func(grammar.Symbol) bool) (ExternalToken, []byte, bool) {
	return f(state, src, at, valid)
}
