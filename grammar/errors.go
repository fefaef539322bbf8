package grammar

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyGrammar    = errors.New("grammar has no rules")
	ErrDuplicateRule   = errors.New("duplicate rule")
	ErrUndefinedSymbol = errors.New("undefined symbol")
	ErrBadPattern      = errors.New("bad pattern")
	ErrBadExtra        = errors.New("extra is not a token")
	ErrBadToken        = errors.New("token references a rule")
	ErrUnknownConflict = errors.New("conflict names unknown rule")
	ErrBadStart        = errors.New("start rule is a token")
	ErrBadEBNF         = errors.New("bad ebnf")
)

// Error reports a problem found while loading or normalizing a grammar.
type Error struct {
	Grammar string
	Rule    string
	Err     error
	Detail  string
}

func (e *Error) Error() string {
	msg := "grammar " + e.Grammar
	if e.Rule != "" {
		msg += ": rule " + e.Rule
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(grammar, rule string, err error, format string, args ...any) *Error {
	return &Error{Grammar: grammar, Rule: rule, Err: err, Detail: fmt.Sprintf(format, args...)}
}
