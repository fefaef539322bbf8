package language

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/lexer"
	"github.com/dhamidi/grove/table"
)

// FormatVersion is the version of the compiled language wire format.
const FormatVersion = 1

var (
	ErrMalformed = errors.New("malformed compiled language")
	ErrChecksum  = errors.New("checksum mismatch")
	ErrVersion   = errors.New("incompatible format version")
	ErrExternal  = errors.New("external scanner required")
)

// LoadError is returned when a compiled language cannot be loaded.
type LoadError struct {
	Source string
	Err    error
	Detail string
}

func (e *LoadError) Error() string {
	msg := "load language"
	if e.Source != "" {
		msg += " " + e.Source
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type envelope struct {
	FormatVersion int             `json:"format_version"`
	SHA256        string          `json:"sha256"`
	Payload       json.RawMessage `json:"payload"`
}

type payload struct {
	Name        string               `json:"name"`
	Symbols     []grammar.SymbolInfo `json:"symbols"`
	Productions []grammar.Production `json:"productions"`
	Start       grammar.Symbol       `json:"start"`
	Extras      []grammar.Symbol     `json:"extras,omitempty"`
	Externals   []grammar.Symbol     `json:"externals,omitempty"`
	Table       *table.Table         `json:"table"`
	Lexer       *lexer.DFA           `json:"lexer"`
}

// Encode writes the compiled language. The external scanner is code and is
// not part of the output.
func (l *Language) Encode(w io.Writer) error {
	body, err := json.Marshal(payload{
		Name:        l.Name,
		Symbols:     l.Symbols,
		Productions: l.Productions,
		Start:       l.Start,
		Extras:      l.Extras,
		Externals:   l.Externals,
		Table:       l.Table,
		Lexer:       l.DFA,
	})
	if err != nil {
		return fmt.Errorf("encode language: %w", err)
	}
	sum := sha256.Sum256(body)
	enc := json.NewEncoder(w)
	if err := enc.Encode(envelope{FormatVersion: FormatVersion, SHA256: hex.EncodeToString(sum[:]), Payload: body}); err != nil {
		return fmt.Errorf("encode language: %w", err)
	}
	return nil
}

// Decode reads a language written by Encode. Every failure is a *LoadError.
func Decode(r io.Reader, opts ...Option) (*Language, error) {
	return decode("", r, opts...)
}

func decode(source string, r io.Reader, opts ...Option) (*Language, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	fail := func(err error, format string, args ...any) error {
		return &LoadError{Source: source, Err: err, Detail: fmt.Sprintf(format, args...)}
	}

	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fail(ErrMalformed, "%v", err)
	}
	if env.FormatVersion != FormatVersion {
		return nil, fail(ErrVersion, "got %d, want %d", env.FormatVersion, FormatVersion)
	}
	sum := sha256.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.SHA256 {
		return nil, fail(ErrChecksum, "")
	}
	var p payload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fail(ErrMalformed, "%v", err)
	}
	if err := validate(&p); err != nil {
		return nil, fail(ErrMalformed, "%v", err)
	}
	if len(p.Externals) > 0 && o.external == nil {
		return nil, fail(ErrExternal, "%d external tokens", len(p.Externals))
	}
	lang := &Language{
		Name:        p.Name,
		Symbols:     p.Symbols,
		Productions: p.Productions,
		Start:       p.Start,
		Extras:      p.Extras,
		Externals:   p.Externals,
		Table:       p.Table,
		DFA:         p.Lexer,
		External:    o.external,
	}
	lang.index()
	return lang, nil
}

func validate(p *payload) error {
	if p.Table == nil || p.Lexer == nil {
		return errors.New("missing table or lexer")
	}
	if len(p.Table.States) == 0 {
		return errors.New("empty parse table")
	}
	n := len(p.Symbols)
	inRange := func(sym grammar.Symbol) bool { return int(sym) >= 0 && int(sym) < n }
	if n < 2 || p.Table.TerminalCount > n || p.Table.TerminalCount < 2 {
		return fmt.Errorf("bad symbol counts: %d symbols, %d terminals", n, p.Table.TerminalCount)
	}
	if !inRange(p.Start) || int(p.Start) < p.Table.TerminalCount {
		return fmt.Errorf("bad start symbol %d", p.Start)
	}
	for i, prod := range p.Productions {
		if !inRange(prod.LHS) || int(prod.LHS) < p.Table.TerminalCount {
			return fmt.Errorf("production %d: bad lhs %d", i, prod.LHS)
		}
		for _, sym := range prod.RHS {
			if !inRange(sym) {
				return fmt.Errorf("production %d: bad symbol %d", i, sym)
			}
		}
		if len(prod.Fields) > 0 && len(prod.Fields) != len(prod.RHS) {
			return fmt.Errorf("production %d: %d fields for %d symbols", i, len(prod.Fields), len(prod.RHS))
		}
	}
	for _, sym := range append(append([]grammar.Symbol(nil), p.Extras...), p.Externals...) {
		if !inRange(sym) || int(sym) >= p.Table.TerminalCount {
			return fmt.Errorf("bad extra or external symbol %d", sym)
		}
	}
	for i, row := range p.Table.States {
		for sym, actions := range row.Actions {
			if !inRange(sym) {
				return fmt.Errorf("state %d: action on unknown symbol %d", i, sym)
			}
			for _, a := range actions {
				if a.Kind == table.Reduce {
					if a.Production < 0 || a.Production >= len(p.Productions) {
						return fmt.Errorf("state %d: reduce by unknown production %d", i, a.Production)
					}
					prod := p.Productions[a.Production]
					if a.Count != len(prod.RHS) || a.Symbol != prod.LHS {
						return fmt.Errorf("state %d: reduce %d does not match its production", i, a.Production)
					}
				}
			}
		}
	}
	if err := p.Table.Prepare(); err != nil {
		return err
	}
	if len(p.Lexer.States) == 0 {
		return errors.New("empty lexer")
	}
	for i, st := range p.Lexer.States {
		for _, tr := range st.Transitions {
			if tr.Next < 0 || tr.Next >= len(p.Lexer.States) || tr.Lo > tr.Hi {
				return fmt.Errorf("lexer state %d: bad transition", i)
			}
		}
		for _, sym := range st.Accept {
			if !inRange(sym) || int(sym) >= p.Table.TerminalCount {
				return fmt.Errorf("lexer state %d: accepts non-terminal %d", i, sym)
			}
		}
	}
	return nil
}
