package grammar

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/exp/ebnf"
)

// LoadEBNF reads a Go-style EBNF file and converts it, starting at start.
func LoadEBNF(filename, start string) (*Grammar, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open grammar: %w", err)
	}
	defer f.Close()

	parsed, err := ebnf.Parse(filename, f)
	if err != nil {
		return nil, fmt.Errorf("parse grammar: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return FromEBNF(name, parsed, start)
}

// Productions named like this become extras.
var ebnfExtras = []string{"WhiteSpace", "Comment"}

func isLexicalName(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// FromEBNF converts a verified EBNF grammar. Productions whose name starts
// with an upper case letter are tokens, the others are syntax rules.
func FromEBNF(name string, g ebnf.Grammar, start string) (*Grammar, error) {
	if _, ok := g[start]; !ok {
		return nil, errorf(name, start, ErrUndefinedSymbol, "start production")
	}
	if isLexicalName(start) {
		return nil, errorf(name, start, ErrBadStart, "")
	}
	if err := verifyEBNF(g, start); err != nil {
		return nil, &Error{Grammar: name, Err: ErrBadEBNF, Detail: err.Error()}
	}

	prods := make([]*ebnf.Production, 0, len(g))
	for _, p := range g {
		prods = append(prods, p)
	}
	sort.Slice(prods, func(i, j int) bool {
		if prods[i] == prods[j] {
			return false
		}
		if prods[i].Name.String == start {
			return true
		}
		if prods[j].Name.String == start {
			return false
		}
		return prods[i].Pos().Offset < prods[j].Pos().Offset
	})

	c := &ebnfConverter{name: name, g: g}
	out := &Grammar{Name: name}
	for _, p := range prods {
		prodName := p.Name.String
		var (
			body Rule
			err  error
		)
		if isLexicalName(prodName) {
			body, err = c.lexical(p.Expr, map[string]bool{prodName: true})
			body = Token(body)
		} else {
			body, err = c.syntax(p.Expr)
		}
		if err != nil {
			return nil, errorf(name, prodName, ErrBadEBNF, "%v", err)
		}
		out.Rules = append(out.Rules, Define(prodName, body))
	}
	for _, extra := range ebnfExtras {
		if _, ok := g[extra]; ok {
			out.Extras = append(out.Extras, Sym(extra))
		}
	}
	return out, nil
}

// verifyEBNF runs ebnf.Verify with the extras reachable, since nothing in
// the syntax refers to them.
func verifyEBNF(g ebnf.Grammar, start string) error {
	root := "grove·root"
	alts := ebnf.Alternative{&ebnf.Name{String: start}}
	for _, extra := range ebnfExtras {
		if _, ok := g[extra]; ok {
			alts = append(alts, &ebnf.Name{String: extra})
		}
	}
	withRoot := make(ebnf.Grammar, len(g)+1)
	for k, v := range g {
		withRoot[k] = v
	}
	withRoot[root] = &ebnf.Production{Name: &ebnf.Name{String: root}, Expr: alts}
	return ebnf.Verify(withRoot, root)
}

type ebnfConverter struct {
	name string
	g    ebnf.Grammar
}

func (c *ebnfConverter) syntax(x ebnf.Expression) (Rule, error) {
	switch x := x.(type) {
	case nil:
		return Blank(), nil
	case ebnf.Alternative:
		members := make([]Rule, 0, len(x))
		for _, e := range x {
			r, err := c.syntax(e)
			if err != nil {
				return nil, err
			}
			members = append(members, r)
		}
		return Choice(members...), nil
	case ebnf.Sequence:
		members := make([]Rule, 0, len(x))
		for _, e := range x {
			r, err := c.syntax(e)
			if err != nil {
				return nil, err
			}
			members = append(members, r)
		}
		return Seq(members...), nil
	case *ebnf.Name:
		return Sym(x.String), nil
	case *ebnf.Token:
		return Str(x.String), nil
	case *ebnf.Range:
		return Pattern(rangePattern(x)), nil
	case *ebnf.Group:
		return c.syntax(x.Body)
	case *ebnf.Option:
		r, err := c.syntax(x.Body)
		if err != nil {
			return nil, err
		}
		return Optional(r), nil
	case *ebnf.Repetition:
		r, err := c.syntax(x.Body)
		if err != nil {
			return nil, err
		}
		return Repeat(r), nil
	}
	return nil, fmt.Errorf("unsupported expression %T at %v", x, x.Pos())
}

// lexical inlines referenced productions, so a token never depends on
// another rule.
func (c *ebnfConverter) lexical(x ebnf.Expression, visiting map[string]bool) (Rule, error) {
	switch x := x.(type) {
	case nil:
		return Blank(), nil
	case ebnf.Alternative:
		members := make([]Rule, 0, len(x))
		for _, e := range x {
			r, err := c.lexical(e, visiting)
			if err != nil {
				return nil, err
			}
			members = append(members, r)
		}
		return Choice(members...), nil
	case ebnf.Sequence:
		members := make([]Rule, 0, len(x))
		for _, e := range x {
			r, err := c.lexical(e, visiting)
			if err != nil {
				return nil, err
			}
			members = append(members, r)
		}
		return Seq(members...), nil
	case *ebnf.Name:
		if visiting[x.String] {
			return nil, fmt.Errorf("recursive token %s", x.String)
		}
		p, ok := c.g[x.String]
		if !ok {
			return nil, fmt.Errorf("undefined token %s", x.String)
		}
		visiting[x.String] = true
		defer delete(visiting, x.String)
		return c.lexical(p.Expr, visiting)
	case *ebnf.Token:
		return Str(x.String), nil
	case *ebnf.Range:
		return Pattern(rangePattern(x)), nil
	case *ebnf.Group:
		return c.lexical(x.Body, visiting)
	case *ebnf.Option:
		r, err := c.lexical(x.Body, visiting)
		if err != nil {
			return nil, err
		}
		return Optional(r), nil
	case *ebnf.Repetition:
		r, err := c.lexical(x.Body, visiting)
		if err != nil {
			return nil, err
		}
		return Repeat(r), nil
	}
	return nil, fmt.Errorf("unsupported expression %T at %v", x, x.Pos())
}

func rangePattern(r *ebnf.Range) string {
	lo, _ := utf8.DecodeRuneInString(r.Begin.String)
	hi, _ := utf8.DecodeRuneInString(r.End.String)
	return fmt.Sprintf(`[\x{%x}-\x{%x}]`, lo, hi)
}
