package grammar

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
)

type alternative struct {
	syms    []Symbol
	fields  []string
	prec    int
	assoc   Assoc
	hasPrec bool
	dyn     int
}

func (a alternative) key() string {
	return fmt.Sprint(a.syms, a.fields, a.prec, a.assoc, a.hasPrec, a.dyn)
}

func concat(a, b alternative) alternative {
	c := alternative{
		syms:   append(append([]Symbol(nil), a.syms...), b.syms...),
		fields: append(append([]string(nil), a.fields...), b.fields...),
		dyn:    a.dyn + b.dyn,
	}
	switch {
	case b.hasPrec:
		c.prec, c.assoc, c.hasPrec = b.prec, b.assoc, true
	case a.hasPrec:
		c.prec, c.assoc, c.hasPrec = a.prec, a.assoc, true
	}
	return c
}

type normalizer struct {
	g        *Grammar
	out      *Syntax
	rules    map[string]Rule
	lexical  map[string]bool
	symbols  map[string]Symbol
	literals map[string]Symbol
	patterns map[string]Symbol
	current  string
	origin   Symbol
	aux      int
	pending  []Production
}

// Normalize checks the grammar and flattens it: choices and optionals become
// separate productions, repetitions become hidden left recursive auxiliary
// rules, and every symbol gets its id.
func (g *Grammar) Normalize() (*Syntax, error) {
	n := &normalizer{
		g:        g,
		out:      &Syntax{Name: g.Name},
		rules:    make(map[string]Rule),
		lexical:  make(map[string]bool),
		symbols:  make(map[string]Symbol),
		literals: make(map[string]Symbol),
		patterns: make(map[string]Symbol),
	}
	steps := []func() error{
		n.index,
		n.terminals,
		n.extras,
		n.nonterminals,
		n.productions,
		n.conflicts,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return n.out, nil
}

func (n *normalizer) fail(err error, format string, args ...any) error {
	return errorf(n.g.Name, n.current, err, format, args...)
}

func (n *normalizer) index() error {
	if len(n.g.Rules) == 0 {
		return errorf(n.g.Name, "", ErrEmptyGrammar, "")
	}
	for _, name := range n.g.Externals {
		if _, dup := n.rules[name]; dup {
			return errorf(n.g.Name, name, ErrDuplicateRule, "external declared twice")
		}
		n.rules[name] = nil
	}
	for _, def := range n.g.Rules {
		if _, dup := n.rules[def.Name]; dup {
			return errorf(n.g.Name, def.Name, ErrDuplicateRule, "")
		}
		if def.Body == nil {
			return errorf(n.g.Name, def.Name, ErrUndefinedSymbol, "rule has no body")
		}
		n.rules[def.Name] = def.Body
		n.lexical[def.Name] = isLexical(def.Body)
	}
	if n.lexical[n.g.Rules[0].Name] {
		return errorf(n.g.Name, n.g.Rules[0].Name, ErrBadStart, "")
	}
	return nil
}

func isLexical(r Rule) bool {
	if _, ok := r.(tokenRule); ok {
		return true
	}
	return !contains(r, func(r Rule) bool { _, ok := r.(symbolRule); return ok }) &&
		contains(r, func(r Rule) bool { _, ok := r.(patternRule); return ok })
}

func contains(r Rule, pred func(Rule) bool) bool {
	if pred(r) {
		return true
	}
	switch r := r.(type) {
	case seqRule:
		for _, m := range r.members {
			if contains(m, pred) {
				return true
			}
		}
	case choiceRule:
		for _, m := range r.members {
			if contains(m, pred) {
				return true
			}
		}
	case repeatRule:
		return contains(r.body, pred)
	case precRule:
		return contains(r.body, pred)
	case fieldRule:
		return contains(r.body, pred)
	case tokenRule:
		return contains(r.body, pred)
	}
	return false
}

func (n *normalizer) addSymbol(info SymbolInfo) Symbol {
	sym := Symbol(len(n.out.Symbols))
	info.Origin = sym
	n.out.Symbols = append(n.out.Symbols, info)
	return sym
}

func (n *normalizer) addTerminal(info SymbolInfo, pattern string, literal bool, prec int) (Symbol, error) {
	if _, err := syntax.Parse(pattern, syntax.Perl); err != nil {
		return 0, n.fail(ErrBadPattern, "%s: %v", pattern, err)
	}
	info.Terminal = true
	sym := n.addSymbol(info)
	n.out.Terminals = append(n.out.Terminals, Terminal{Symbol: sym, Pattern: pattern, Literal: literal, Prec: prec})
	return sym, nil
}

func (n *normalizer) literal(s string) (Symbol, error) {
	if sym, ok := n.literals[s]; ok {
		return sym, nil
	}
	if s == "" {
		return 0, n.fail(ErrBadPattern, "empty string literal")
	}
	sym, err := n.addTerminal(SymbolInfo{Name: s, Visible: true}, regexp.QuoteMeta(s), true, 0)
	if err != nil {
		return 0, err
	}
	n.literals[s] = sym
	return sym, nil
}

func (n *normalizer) anonymous(pattern string, prec int) (Symbol, error) {
	if sym, ok := n.patterns[pattern]; ok {
		return sym, nil
	}
	sym, err := n.addTerminal(SymbolInfo{Name: pattern}, pattern, false, prec)
	if err != nil {
		return 0, err
	}
	n.patterns[pattern] = sym
	return sym, nil
}

func (n *normalizer) terminals() error {
	n.addSymbol(SymbolInfo{Name: "end", Terminal: true})
	n.addSymbol(SymbolInfo{Name: "ERROR", Terminal: true, Named: true, Visible: true})

	for _, name := range n.g.Externals {
		sym := n.addSymbol(SymbolInfo{
			Name:     name,
			Terminal: true,
			Named:    !hidden(name),
			Visible:  !hidden(name),
			External: true,
		})
		n.symbols[name] = sym
		n.out.Externals = append(n.out.Externals, sym)
	}

	for _, def := range n.g.Rules {
		n.current = def.Name
		if n.lexical[def.Name] {
			pattern, prec, err := n.regexpOf(def.Body)
			if err != nil {
				return err
			}
			_, literal := unwrap(def.Body).(stringRule)
			sym, err := n.addTerminal(SymbolInfo{
				Name:    def.Name,
				Named:   !hidden(def.Name),
				Visible: !hidden(def.Name),
			}, pattern, literal, prec)
			if err != nil {
				return err
			}
			n.symbols[def.Name] = sym
			continue
		}
		if err := n.collectTokens(def.Body); err != nil {
			return err
		}
	}
	n.current = ""
	return nil
}

func unwrap(r Rule) Rule {
	for {
		switch x := r.(type) {
		case tokenRule:
			r = x.body
		case precRule:
			r = x.body
		case fieldRule:
			r = x.body
		default:
			return r
		}
	}
}

func (n *normalizer) collectTokens(r Rule) error {
	switch r := r.(type) {
	case stringRule:
		_, err := n.literal(r.value)
		return err
	case patternRule:
		_, err := n.anonymous("(?:"+r.expr+")", 0)
		return err
	case tokenRule:
		pattern, prec, err := n.regexpOf(r.body)
		if err != nil {
			return err
		}
		_, err = n.anonymous(pattern, prec)
		return err
	case seqRule:
		for _, m := range r.members {
			if err := n.collectTokens(m); err != nil {
				return err
			}
		}
	case choiceRule:
		for _, m := range r.members {
			if err := n.collectTokens(m); err != nil {
				return err
			}
		}
	case repeatRule:
		return n.collectTokens(r.body)
	case precRule:
		return n.collectTokens(r.body)
	case fieldRule:
		return n.collectTokens(r.body)
	}
	return nil
}

// regexpOf renders a lexical rule as a regexp/syntax expression and reports
// the highest precedence found inside it.
func (n *normalizer) regexpOf(r Rule) (string, int, error) {
	switch r := r.(type) {
	case blankRule:
		return "(?:)", 0, nil
	case stringRule:
		return regexp.QuoteMeta(r.value), 0, nil
	case patternRule:
		return "(?:" + r.expr + ")", 0, nil
	case symbolRule:
		return "", 0, n.fail(ErrBadToken, "%s", r.name)
	case seqRule:
		var b strings.Builder
		prec := 0
		for _, m := range r.members {
			s, p, err := n.regexpOf(m)
			if err != nil {
				return "", 0, err
			}
			b.WriteString(s)
			prec = max(prec, p)
		}
		return "(?:" + b.String() + ")", prec, nil
	case choiceRule:
		parts := make([]string, 0, len(r.members))
		prec := 0
		for _, m := range r.members {
			s, p, err := n.regexpOf(m)
			if err != nil {
				return "", 0, err
			}
			parts = append(parts, s)
			prec = max(prec, p)
		}
		return "(?:" + strings.Join(parts, "|") + ")", prec, nil
	case repeatRule:
		s, p, err := n.regexpOf(r.body)
		if err != nil {
			return "", 0, err
		}
		if r.atLeastOne {
			return s + "+", p, nil
		}
		return s + "*", p, nil
	case precRule:
		s, p, err := n.regexpOf(r.body)
		return s, max(p, r.value), err
	case fieldRule:
		return n.regexpOf(r.body)
	case tokenRule:
		return n.regexpOf(r.body)
	}
	return "", 0, n.fail(ErrBadPattern, "unknown rule %T", r)
}

func (n *normalizer) extras() error {
	for _, extra := range n.g.Extras {
		var (
			sym Symbol
			err error
		)
		switch r := extra.(type) {
		case symbolRule:
			var ok bool
			sym, ok = n.symbols[r.name]
			if !ok {
				if _, defined := n.rules[r.name]; defined {
					return errorf(n.g.Name, r.name, ErrBadExtra, "rule is not a token")
				}
				return errorf(n.g.Name, "", ErrUndefinedSymbol, "extra %s", r.name)
			}
		case stringRule:
			sym, err = n.literal(r.value)
		case patternRule:
			sym, err = n.anonymous("(?:"+r.expr+")", 0)
		case tokenRule:
			var (
				pattern string
				prec    int
			)
			pattern, prec, err = n.regexpOf(r.body)
			if err == nil {
				sym, err = n.anonymous(pattern, prec)
			}
		default:
			return errorf(n.g.Name, "", ErrBadExtra, "%T", extra)
		}
		if err != nil {
			return err
		}
		n.out.Symbols[sym].Extra = true
		n.out.Extras = append(n.out.Extras, sym)
	}
	n.out.TerminalCount = len(n.out.Symbols)
	return nil
}

func (n *normalizer) nonterminals() error {
	for _, def := range n.g.Rules {
		if n.lexical[def.Name] {
			continue
		}
		n.symbols[def.Name] = n.addSymbol(SymbolInfo{
			Name:    def.Name,
			Named:   !hidden(def.Name),
			Visible: !hidden(def.Name),
		})
	}
	n.out.Start = n.symbols[n.g.Rules[0].Name]
	return nil
}

func (n *normalizer) productions() error {
	for _, def := range n.g.Rules {
		if n.lexical[def.Name] {
			continue
		}
		n.current = def.Name
		n.origin = n.symbols[def.Name]
		alts, err := n.flatten(def.Body)
		if err != nil {
			return err
		}
		n.emit(n.origin, alts)
		n.out.Productions = append(n.out.Productions, n.pending...)
		n.pending = n.pending[:0]
	}
	n.current = ""
	return nil
}

func (n *normalizer) emit(lhs Symbol, alts []alternative) {
	seen := make(map[string]bool, len(alts))
	for _, alt := range alts {
		if seen[alt.key()] {
			continue
		}
		seen[alt.key()] = true
		p := Production{
			LHS:     lhs,
			RHS:     alt.syms,
			Prec:    alt.prec,
			Assoc:   alt.assoc,
			DynPrec: alt.dyn,
		}
		for _, f := range alt.fields {
			if f != "" {
				p.Fields = alt.fields
				break
			}
		}
		n.out.Productions = append(n.out.Productions, p)
	}
}

func (n *normalizer) flatten(r Rule) ([]alternative, error) {
	single := func(sym Symbol) []alternative {
		return []alternative{{syms: []Symbol{sym}, fields: []string{""}}}
	}
	switch r := r.(type) {
	case blankRule:
		return []alternative{{}}, nil
	case stringRule:
		return single(n.literals[r.value]), nil
	case patternRule:
		return single(n.patterns["(?:"+r.expr+")"]), nil
	case tokenRule:
		pattern, _, err := n.regexpOf(r.body)
		if err != nil {
			return nil, err
		}
		return single(n.patterns[pattern]), nil
	case symbolRule:
		sym, ok := n.symbols[r.name]
		if !ok {
			return nil, n.fail(ErrUndefinedSymbol, "%s", r.name)
		}
		return single(sym), nil
	case seqRule:
		out := []alternative{{}}
		for _, m := range r.members {
			alts, err := n.flatten(m)
			if err != nil {
				return nil, err
			}
			next := make([]alternative, 0, len(out)*len(alts))
			for _, a := range out {
				for _, b := range alts {
					next = append(next, concat(a, b))
				}
			}
			out = next
		}
		return out, nil
	case choiceRule:
		if len(r.members) == 0 {
			return []alternative{{}}, nil
		}
		var out []alternative
		for _, m := range r.members {
			alts, err := n.flatten(m)
			if err != nil {
				return nil, err
			}
			out = append(out, alts...)
		}
		return out, nil
	case repeatRule:
		return n.repeat(r)
	case precRule:
		alts, err := n.flatten(r.body)
		if err != nil {
			return nil, err
		}
		for i := range alts {
			switch {
			case r.dynamic:
				if alts[i].dyn == 0 {
					alts[i].dyn = r.value
				}
			case !alts[i].hasPrec:
				alts[i].prec, alts[i].assoc, alts[i].hasPrec = r.value, r.assoc, true
			}
		}
		return alts, nil
	case fieldRule:
		alts, err := n.flatten(r.body)
		if err != nil {
			return nil, err
		}
		for i := range alts {
			for j := range alts[i].fields {
				if alts[i].fields[j] == "" {
					alts[i].fields[j] = r.name
				}
			}
		}
		return alts, nil
	}
	return nil, n.fail(ErrBadPattern, "unknown rule %T", r)
}

// repeat introduces an auxiliary rule R -> R x | x for the body x.
func (n *normalizer) repeat(r repeatRule) ([]alternative, error) {
	body, err := n.flatten(r.body)
	if err != nil {
		return nil, err
	}
	items := body[:0]
	for _, alt := range body {
		if len(alt.syms) > 0 {
			items = append(items, alt)
		}
	}
	if len(items) == 0 {
		return []alternative{{}}, nil
	}

	n.aux++
	aux := n.addSymbol(SymbolInfo{Name: fmt.Sprintf("%s_repeat%d", strings.TrimPrefix(n.current, "_"), n.aux)})
	n.out.Symbols[aux].Origin = n.origin

	self := alternative{syms: []Symbol{aux}, fields: []string{""}}
	var alts []alternative
	for _, item := range items {
		alts = append(alts, concat(self, item))
	}
	alts = append(alts, items...)
	saved := n.out.Productions
	n.out.Productions = nil
	n.emit(aux, alts)
	n.pending = append(n.pending, n.out.Productions...)
	n.out.Productions = saved

	out := []alternative{{syms: []Symbol{aux}, fields: []string{""}}}
	if !r.atLeastOne {
		out = append(out, alternative{})
	}
	return out, nil
}

func (n *normalizer) conflicts() error {
	for _, names := range n.g.Conflicts {
		set := make([]Symbol, 0, len(names))
		for _, name := range names {
			sym, ok := n.symbols[name]
			if !ok || n.out.IsTerminal(sym) {
				return errorf(n.g.Name, name, ErrUnknownConflict, "")
			}
			set = append(set, sym)
		}
		n.out.Conflicts = append(n.out.Conflicts, set)
	}
	return nil
}
