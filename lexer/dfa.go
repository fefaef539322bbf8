// Package lexer turns source bytes into tokens using a DFA compiled from
// the terminals of a grammar, with an optional external scanner for
// context sensitive tokens.
package lexer

import (
	"errors"
	"fmt"
	"regexp/syntax"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dhamidi/grove/grammar"
)

var ErrUnsupportedPattern = errors.New("unsupported pattern")

// Transition moves the DFA on any rune in [Lo, Hi].
type Transition struct {
	Lo   rune `json:"lo"`
	Hi   rune `json:"hi"`
	Next int  `json:"next"`
}

// State is one DFA state. Accept lists the terminals matched when the DFA
// stops here, best first.
type State struct {
	Transitions []Transition     `json:"transitions,omitempty"`
	Accept      []grammar.Symbol `json:"accept,omitempty"`
}

// DFA recognizes every terminal of a grammar at once. State 0 is the start
// state.
type DFA struct {
	States []State `json:"states"`
}

func (d *DFA) step(state int, r rune) int {
	ts := d.States[state].Transitions
	i := sort.Search(len(ts), func(i int) bool { return ts[i].Hi >= r })
	if i < len(ts) && ts[i].Lo <= r {
		return ts[i].Next
	}
	return -1
}

type thread struct {
	term int
	pc   uint32
}

type builder struct {
	terms  []grammar.Terminal
	progs  []*syntax.Prog
	rank   []int
	dfa    *DFA
	states map[string]int
	sets   [][]thread
}

// Build compiles the terminals into a single DFA by subset construction over
// rune ranges. Terminals are ranked by precedence, then literals before
// patterns, then declaration order.
func Build(terms []grammar.Terminal) (*DFA, error) {
	b := &builder{
		terms:  terms,
		dfa:    &DFA{},
		states: make(map[string]int),
	}
	for _, term := range terms {
		re, err := syntax.Parse(term.Pattern, syntax.Perl)
		if err != nil {
			return nil, fmt.Errorf("terminal %d: %w", term.Symbol, err)
		}
		prog, err := syntax.Compile(re.Simplify())
		if err != nil {
			return nil, fmt.Errorf("terminal %d: %w", term.Symbol, err)
		}
		for _, inst := range prog.Inst {
			if inst.Op == syntax.InstEmptyWidth {
				return nil, fmt.Errorf("%w: terminal %d: assertions in %q", ErrUnsupportedPattern, term.Symbol, term.Pattern)
			}
		}
		b.progs = append(b.progs, prog)
	}

	order := make([]int, len(terms))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, c := terms[order[i]], terms[order[j]]
		if a.Prec != c.Prec {
			return a.Prec > c.Prec
		}
		return a.Literal && !c.Literal
	})
	b.rank = make([]int, len(terms))
	for r, i := range order {
		b.rank[i] = r
	}

	var start []thread
	for i, prog := range b.progs {
		start = b.closure(start, thread{term: i, pc: uint32(prog.Start)})
	}
	b.state(start)
	for s := 0; s < len(b.sets); s++ {
		b.transitions(s)
	}
	return b.dfa, nil
}

func (b *builder) closure(set []thread, t thread) []thread {
	for _, have := range set {
		if have == t {
			return set
		}
	}
	inst := &b.progs[t.term].Inst[t.pc]
	switch inst.Op {
	case syntax.InstAlt, syntax.InstAltMatch:
		set = append(set, t)
		set = b.closure(set, thread{t.term, inst.Out})
		return b.closure(set, thread{t.term, inst.Arg})
	case syntax.InstCapture, syntax.InstNop:
		set = append(set, t)
		return b.closure(set, thread{t.term, inst.Out})
	case syntax.InstFail:
		return set
	}
	return append(set, t)
}

func setKey(set []thread) string {
	sorted := append([]thread(nil), set...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].term != sorted[j].term {
			return sorted[i].term < sorted[j].term
		}
		return sorted[i].pc < sorted[j].pc
	})
	var sb strings.Builder
	for _, t := range sorted {
		sb.WriteString(strconv.Itoa(t.term))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(t.pc), 10))
		sb.WriteByte(' ')
	}
	return sb.String()
}

func (b *builder) state(set []thread) int {
	key := setKey(set)
	if id, ok := b.states[key]; ok {
		return id
	}
	id := len(b.dfa.States)
	b.states[key] = id
	b.sets = append(b.sets, set)

	var accept []int
	seen := map[int]bool{}
	for _, t := range set {
		if b.progs[t.term].Inst[t.pc].Op == syntax.InstMatch && !seen[t.term] {
			seen[t.term] = true
			accept = append(accept, t.term)
		}
	}
	sort.Slice(accept, func(i, j int) bool { return b.rank[accept[i]] < b.rank[accept[j]] })
	st := State{}
	for _, term := range accept {
		st.Accept = append(st.Accept, b.terms[term].Symbol)
	}
	b.dfa.States = append(b.dfa.States, st)
	return id
}

type runeRange struct {
	lo, hi rune
}

func (b *builder) ranges(inst *syntax.Inst) []runeRange {
	switch inst.Op {
	case syntax.InstRune1:
		return []runeRange{{inst.Rune[0], inst.Rune[0]}}
	case syntax.InstRuneAny:
		return []runeRange{{0, unicode.MaxRune}}
	case syntax.InstRuneAnyNotNL:
		return []runeRange{{0, '\n' - 1}, {'\n' + 1, unicode.MaxRune}}
	case syntax.InstRune:
		if len(inst.Rune) == 1 {
			r := inst.Rune[0]
			out := []runeRange{{r, r}}
			if syntax.Flags(inst.Arg)&syntax.FoldCase != 0 {
				for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
					out = append(out, runeRange{f, f})
				}
			}
			return out
		}
		out := make([]runeRange, 0, len(inst.Rune)/2)
		for i := 0; i+1 < len(inst.Rune); i += 2 {
			out = append(out, runeRange{inst.Rune[i], inst.Rune[i+1]})
		}
		return out
	}
	return nil
}

func (b *builder) transitions(s int) {
	set := b.sets[s]
	type consumer struct {
		t      thread
		ranges []runeRange
	}
	var consumers []consumer
	var bounds []rune
	for _, t := range set {
		inst := &b.progs[t.term].Inst[t.pc]
		rs := b.ranges(inst)
		if len(rs) == 0 {
			continue
		}
		consumers = append(consumers, consumer{t, rs})
		for _, r := range rs {
			bounds = append(bounds, r.lo, r.hi+1)
		}
	}
	if len(consumers) == 0 {
		return
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })
	bounds = dedupe(bounds)

	var out []Transition
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]-1
		var next []thread
		for _, c := range consumers {
			for _, r := range c.ranges {
				if r.lo <= lo && hi <= r.hi {
					next = b.closure(next, thread{c.t.term, b.progs[c.t.term].Inst[c.t.pc].Out})
					break
				}
			}
		}
		if len(next) == 0 {
			continue
		}
		target := b.state(next)
		if n := len(out); n > 0 && out[n-1].Next == target && out[n-1].Hi+1 == lo {
			out[n-1].Hi = hi
			continue
		}
		out = append(out, Transition{Lo: lo, Hi: hi, Next: target})
	}
	b.dfa.States[s].Transitions = out
}

func dedupe(rs []rune) []rune {
	out := rs[:0]
	for i, r := range rs {
		if i == 0 || r != rs[i-1] {
			out = append(out, r)
		}
	}
	return out
}

// Match runs the DFA from src[at:]. It returns the longest match among the
// terminals accepted by valid, the longest match among all terminals, and
// the end of the bytes examined, which is always past the last rune
// consumed. An end of zero means no match.
func (d *DFA) Match(src []byte, at int, valid func(grammar.Symbol) bool) (best grammar.Symbol, bestEnd int, fallback grammar.Symbol, fallbackEnd int, examined int) {
	state := 0
	pos := at
	for {
		if pos >= len(src) {
			examined = len(src) + 1
			return
		}
		r, w := utf8.DecodeRune(src[pos:])
		examined = pos + w
		next := d.step(state, r)
		if next < 0 {
			return
		}
		state = next
		pos += w
		accept := d.States[state].Accept
		if len(accept) == 0 {
			continue
		}
		fallback, fallbackEnd = accept[0], pos
		for _, sym := range accept {
			if valid == nil || valid(sym) {
				best, bestEnd = sym, pos
				break
			}
		}
	}
}
