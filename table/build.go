package table

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dhamidi/grove/grammar"
)

var ErrConflict = errors.New("undeclared conflict")

type item struct {
	prod int
	dot  int
}

type lrState struct {
	kernel  []item
	la      []bitset
	closure []item
	cla     []bitset
	trans   map[grammar.Symbol]int
}

type builder struct {
	syn      *grammar.Syntax
	prods    []grammar.Production
	aug      int
	nterm    int
	prodsOf  map[grammar.Symbol][]int
	nullable map[grammar.Symbol]bool
	first    map[grammar.Symbol]bitset
	states   []*lrState
	index    map[string]int
}

// Build generates an LALR(1) table. Shift/reduce and reduce/reduce conflicts
// are resolved with precedence and associativity; what remains is kept as
// multiple actions and recorded in Conflicts.
func Build(syn *grammar.Syntax) (*Table, error) {
	b := &builder{
		syn:      syn,
		prods:    append(append([]grammar.Production(nil), syn.Productions...), grammar.Production{LHS: grammar.Symbol(len(syn.Symbols)), RHS: []grammar.Symbol{syn.Start}}),
		aug:      len(syn.Productions),
		nterm:    syn.TerminalCount,
		prodsOf:  make(map[grammar.Symbol][]int),
		nullable: make(map[grammar.Symbol]bool),
		first:    make(map[grammar.Symbol]bitset),
		index:    make(map[string]int),
	}
	for i, p := range b.prods {
		b.prodsOf[p.LHS] = append(b.prodsOf[p.LHS], i)
	}
	b.computeFirst()
	b.automaton()
	t := b.table()
	if err := t.Prepare(); err != nil {
		return nil, err
	}
	return t, nil
}

// BuildStrict is Build, but fails when a conflict is not covered by one of
// the grammar's declared conflicts.
func BuildStrict(syn *grammar.Syntax) (*Table, error) {
	t, err := Build(syn)
	if err != nil {
		return nil, err
	}
	if undeclared := t.UndeclaredConflicts(); len(undeclared) > 0 {
		msgs := make([]string, len(undeclared))
		for i, c := range undeclared {
			msgs[i] = c.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrConflict, strings.Join(msgs, "; "))
	}
	return t, nil
}

func (b *builder) terminal(sym grammar.Symbol) bool {
	return int(sym) < b.nterm
}

func (b *builder) computeFirst() {
	for sym := grammar.Symbol(b.nterm); int(sym) <= len(b.syn.Symbols); sym++ {
		b.first[sym] = newBitset(b.nterm)
	}
	for changed := true; changed; {
		changed = false
		for _, p := range b.prods {
			f := b.first[p.LHS]
			all := true
			for _, sym := range p.RHS {
				if b.terminal(sym) {
					if !f.has(int(sym)) {
						f.set(int(sym))
						changed = true
					}
					all = false
					break
				}
				if f.union(b.first[sym]) {
					changed = true
				}
				if !b.nullable[sym] {
					all = false
					break
				}
			}
			if all && !b.nullable[p.LHS] {
				b.nullable[p.LHS] = true
				changed = true
			}
		}
	}
}

// firstOf returns FIRST(syms la).
func (b *builder) firstOf(syms []grammar.Symbol, la bitset) bitset {
	out := newBitset(b.nterm)
	for _, sym := range syms {
		if b.terminal(sym) {
			out.set(int(sym))
			return out
		}
		out.union(b.first[sym])
		if !b.nullable[sym] {
			return out
		}
	}
	out.union(la)
	return out
}

func (b *builder) closure(st *lrState) {
	pos := make(map[item]int, len(st.kernel)*4)
	items := append([]item(nil), st.kernel...)
	la := make([]bitset, len(st.la))
	for i := range st.la {
		la[i] = st.la[i].clone()
		pos[items[i]] = i
	}
	work := make([]int, len(items))
	for i := range work {
		work[i] = i
	}
	for len(work) > 0 {
		idx := work[len(work)-1]
		work = work[:len(work)-1]
		it := items[idx]
		rhs := b.prods[it.prod].RHS
		if it.dot >= len(rhs) || b.terminal(rhs[it.dot]) {
			continue
		}
		f := b.firstOf(rhs[it.dot+1:], la[idx])
		for _, q := range b.prodsOf[rhs[it.dot]] {
			next := item{prod: q}
			if k, ok := pos[next]; ok {
				if la[k].union(f) {
					work = append(work, k)
				}
				continue
			}
			pos[next] = len(items)
			items = append(items, next)
			la = append(la, f.clone())
			work = append(work, len(items)-1)
		}
	}
	st.closure, st.cla = items, la
}

func coreKey(kernel []item) string {
	var sb strings.Builder
	for _, it := range kernel {
		sb.WriteString(strconv.Itoa(it.prod))
		sb.WriteByte('.')
		sb.WriteString(strconv.Itoa(it.dot))
		sb.WriteByte(' ')
	}
	return sb.String()
}

func (b *builder) automaton() {
	eof := newBitset(b.nterm)
	eof.set(int(grammar.SymbolEnd))
	start := &lrState{kernel: []item{{prod: b.aug}}, la: []bitset{eof}}
	b.states = append(b.states, start)
	b.index[coreKey(start.kernel)] = 0

	queued := map[int]bool{0: true}
	queue := []int{0}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		queued[i] = false
		st := b.states[i]
		b.closure(st)

		type pending struct {
			kernel []item
			la     []bitset
		}
		groups := make(map[grammar.Symbol]*pending)
		var order []grammar.Symbol
		for k, it := range st.closure {
			rhs := b.prods[it.prod].RHS
			if it.dot >= len(rhs) {
				continue
			}
			sym := rhs[it.dot]
			g, ok := groups[sym]
			if !ok {
				g = &pending{}
				groups[sym] = g
				order = append(order, sym)
			}
			g.kernel = append(g.kernel, item{prod: it.prod, dot: it.dot + 1})
			g.la = append(g.la, st.cla[k])
		}
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

		st.trans = make(map[grammar.Symbol]int, len(order))
		for _, sym := range order {
			g := groups[sym]
			sortKernel(g.kernel, g.la)
			key := coreKey(g.kernel)
			j, ok := b.index[key]
			if !ok {
				j = len(b.states)
				la := make([]bitset, len(g.la))
				for k := range g.la {
					la[k] = g.la[k].clone()
				}
				b.states = append(b.states, &lrState{kernel: g.kernel, la: la})
				b.index[key] = j
				queued[j] = true
				queue = append(queue, j)
			} else {
				target := b.states[j]
				changed := false
				for k := range g.la {
					if target.la[k].union(g.la[k]) {
						changed = true
					}
				}
				if changed && !queued[j] {
					queued[j] = true
					queue = append(queue, j)
				}
			}
			st.trans[sym] = j
		}
	}
}

func sortKernel(kernel []item, la []bitset) {
	idx := make([]int, len(kernel))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		a, c := kernel[idx[i]], kernel[idx[j]]
		if a.prod != c.prod {
			return a.prod < c.prod
		}
		return a.dot < c.dot
	})
	k2 := make([]item, len(kernel))
	l2 := make([]bitset, len(la))
	for i, j := range idx {
		k2[i], l2[i] = kernel[j], la[j]
	}
	copy(kernel, k2)
	copy(la, l2)
}

func (b *builder) table() *Table {
	t := &Table{TerminalCount: b.nterm, States: make([]Row, len(b.states))}
	modes := make(map[string]int)
	for i, st := range b.states {
		row := Row{Actions: make(map[grammar.Symbol][]Action)}
		shiftProds := make(map[grammar.Symbol][]int)
		reduces := make(map[grammar.Symbol][]int)
		for k, it := range st.closure {
			p := b.prods[it.prod]
			if it.dot < len(p.RHS) {
				if sym := p.RHS[it.dot]; b.terminal(sym) {
					shiftProds[sym] = append(shiftProds[sym], it.prod)
				}
				continue
			}
			if it.prod == b.aug {
				row.Actions[grammar.SymbolEnd] = []Action{{Kind: Accept}}
				continue
			}
			st.cla[k].each(func(term int) {
				reduces[grammar.Symbol(term)] = appendUnique(reduces[grammar.Symbol(term)], it.prod)
			})
		}
		for sym, to := range st.trans {
			if !b.terminal(sym) {
				if row.Gotos == nil {
					row.Gotos = make(map[grammar.Symbol]State)
				}
				row.Gotos[sym] = State(to)
			}
		}
		for sym := grammar.Symbol(0); int(sym) < b.nterm; sym++ {
			_, shifts := st.trans[sym]
			if !shifts && len(reduces[sym]) == 0 {
				continue
			}
			actions, conflict := b.resolve(st, sym, shifts, shiftProds[sym], reduces[sym])
			if sym == grammar.SymbolEnd && len(row.Actions[sym]) > 0 {
				actions = append(row.Actions[sym], actions...)
				conflict = conflict || len(actions) > 1
			}
			row.Actions[sym] = actions
			if conflict {
				t.Conflicts = append(t.Conflicts, b.conflict(State(i), sym, actions, shiftProds[sym]))
			}
		}
		for _, extra := range b.syn.Extras {
			if len(row.Actions[extra]) == 0 {
				row.Actions[extra] = []Action{{Kind: ShiftExtra}}
			}
		}

		var valid []grammar.Symbol
		for sym := grammar.Symbol(0); int(sym) < b.nterm; sym++ {
			if len(row.Actions[sym]) > 0 {
				valid = append(valid, sym)
			}
		}
		key := fmt.Sprint(valid)
		mode, ok := modes[key]
		if !ok {
			mode = len(t.LexModes)
			modes[key] = mode
			t.LexModes = append(t.LexModes, valid)
		}
		row.LexMode = mode
		t.States[i] = row
	}
	return t
}

func appendUnique(ids []int, id int) []int {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

// resolve applies precedence and associativity. The shift precedence is the
// highest precedence among the productions that shift the lookahead. A
// reduce with higher precedence wins over the shift, a lower one loses; on a
// tie left associativity reduces and right associativity shifts. Among
// reduces only the highest precedence survives.
func (b *builder) resolve(st *lrState, sym grammar.Symbol, shifts bool, shiftProds, reduces []int) ([]Action, bool) {
	sort.Ints(reduces)
	keepShift := shifts
	var kept []int
	if shifts && len(reduces) > 0 {
		shiftPrec := b.prods[shiftProds[0]].Prec
		for _, p := range shiftProds[1:] {
			shiftPrec = max(shiftPrec, b.prods[p].Prec)
		}
		for _, r := range reduces {
			p := b.prods[r]
			switch {
			case p.Prec > shiftPrec:
				keepShift = false
				kept = append(kept, r)
			case p.Prec < shiftPrec:
			case p.Assoc == grammar.AssocLeft:
				keepShift = false
				kept = append(kept, r)
			case p.Assoc == grammar.AssocRight:
			default:
				kept = append(kept, r)
			}
		}
	} else {
		kept = reduces
	}
	if len(kept) > 1 {
		best := b.prods[kept[0]].Prec
		for _, r := range kept[1:] {
			best = max(best, b.prods[r].Prec)
		}
		filtered := kept[:0:0]
		for _, r := range kept {
			if b.prods[r].Prec == best {
				filtered = append(filtered, r)
			}
		}
		kept = filtered
	}

	var actions []Action
	if keepShift {
		actions = append(actions, Action{Kind: Shift, State: State(st.trans[sym])})
	}
	for _, r := range kept {
		p := b.prods[r]
		actions = append(actions, Action{Kind: Reduce, Production: r, Symbol: p.LHS, Count: len(p.RHS), DynPrec: p.DynPrec})
	}
	return actions, len(actions) > 1
}

func (b *builder) conflict(state State, sym grammar.Symbol, actions []Action, shiftProds []int) Conflict {
	involved := map[grammar.Symbol]bool{}
	add := func(prod int) {
		if prod == b.aug {
			return
		}
		involved[b.syn.Symbols[b.prods[prod].LHS].Origin] = true
	}
	for _, a := range actions {
		switch a.Kind {
		case Shift:
			for _, p := range shiftProds {
				add(p)
			}
		case Reduce:
			add(a.Production)
		}
	}
	syms := make([]grammar.Symbol, 0, len(involved))
	for s := range involved {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })

	c := Conflict{State: state, Lookahead: b.syn.SymbolName(sym), Actions: actions}
	for _, s := range syms {
		c.Involved = append(c.Involved, b.syn.SymbolName(s))
	}
	for _, declared := range b.syn.Conflicts {
		if covers(declared, syms) {
			c.Declared = true
			break
		}
	}
	return c
}

func covers(declared, involved []grammar.Symbol) bool {
	for _, s := range involved {
		found := false
		for _, d := range declared {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
