package grammar

import (
	"errors"
	"fmt"
)

var ErrNotRecognized = errors.New("input not recognized")

// EarleyRecognizer decides membership of a token sequence in the language
// of a flattened grammar. It handles every context free grammar, ambiguous
// and left recursive ones included, and ignores precedence.
type EarleyRecognizer struct {
	symbols  []SymbolInfo
	prods    []Production
	start    Symbol
	byLHS    map[Symbol][]int
	nullable map[Symbol]bool
}

// earleyItem is a production with a dot position and the chart position
// where it started.
type earleyItem struct {
	prod   int
	dot    int
	origin int
}

type itemSet struct {
	items []earleyItem
	seen  map[earleyItem]bool
}

func (s *itemSet) add(item earleyItem) {
	if s.seen[item] {
		return
	}
	s.seen[item] = true
	s.items = append(s.items, item)
}

func NewEarleyRecognizer(symbols []SymbolInfo, prods []Production, start Symbol) *EarleyRecognizer {
	r := &EarleyRecognizer{
		symbols:  symbols,
		prods:    prods,
		start:    start,
		byLHS:    make(map[Symbol][]int),
		nullable: make(map[Symbol]bool),
	}
	for i, p := range prods {
		r.byLHS[p.LHS] = append(r.byLHS[p.LHS], i)
	}
	for changed := true; changed; {
		changed = false
		for _, p := range prods {
			if r.nullable[p.LHS] {
				continue
			}
			all := true
			for _, sym := range p.RHS {
				if r.isTerminal(sym) || !r.nullable[sym] {
					all = false
					break
				}
			}
			if all {
				r.nullable[p.LHS] = true
				changed = true
			}
		}
	}
	return r
}

// NewEarleyRecognizerFor builds a recognizer for a normalized grammar.
func NewEarleyRecognizerFor(s *Syntax) *EarleyRecognizer {
	return NewEarleyRecognizer(s.Symbols, s.Productions, s.Start)
}

func (r *EarleyRecognizer) isTerminal(sym Symbol) bool {
	return int(sym) < len(r.symbols) && r.symbols[sym].Terminal
}

// Recognize reports whether tokens, with extras already removed, derive
// from the start symbol. The error names the first token that no item
// could scan.
func (r *EarleyRecognizer) Recognize(tokens []Symbol) error {
	n := len(tokens)
	chart := make([]itemSet, n+1)
	for i := range chart {
		chart[i].seen = make(map[earleyItem]bool)
	}
	for _, p := range r.byLHS[r.start] {
		chart[0].add(earleyItem{prod: p})
	}

	for i := 0; i <= n; i++ {
		set := &chart[i]
		for j := 0; j < len(set.items); j++ {
			item := set.items[j]
			rhs := r.prods[item.prod].RHS
			if item.dot == len(rhs) {
				r.complete(chart, i, item)
				continue
			}
			next := rhs[item.dot]
			if r.isTerminal(next) {
				if i < n && tokens[i] == next {
					chart[i+1].add(earleyItem{item.prod, item.dot + 1, item.origin})
				}
				continue
			}
			for _, p := range r.byLHS[next] {
				set.add(earleyItem{prod: p, origin: i})
			}
			if r.nullable[next] {
				set.add(earleyItem{item.prod, item.dot + 1, item.origin})
			}
		}
	}

	for _, item := range chart[n].items {
		p := r.prods[item.prod]
		if p.LHS == r.start && item.origin == 0 && item.dot == len(p.RHS) {
			return nil
		}
	}
	furthest := 0
	for i := n; i >= 0; i-- {
		if len(chart[i].items) > 0 {
			furthest = i
			break
		}
	}
	if furthest < n {
		return fmt.Errorf("%w: unexpected %s at token %d", ErrNotRecognized, r.name(tokens[furthest]), furthest)
	}
	return fmt.Errorf("%w: incomplete input", ErrNotRecognized)
}

// complete advances every item of the origin set waiting for the finished
// nonterminal. Items predicted later at the same position advance through
// the nullable rule instead.
func (r *EarleyRecognizer) complete(chart []itemSet, i int, done earleyItem) {
	lhs := r.prods[done.prod].LHS
	waiting := chart[done.origin].items
	for _, parent := range waiting {
		rhs := r.prods[parent.prod].RHS
		if parent.dot < len(rhs) && rhs[parent.dot] == lhs {
			chart[i].add(earleyItem{parent.prod, parent.dot + 1, parent.origin})
		}
	}
}

func (r *EarleyRecognizer) name(sym Symbol) string {
	if int(sym) < 0 || int(sym) >= len(r.symbols) {
		return fmt.Sprintf("#%d", sym)
	}
	return r.symbols[sym].Name
}
