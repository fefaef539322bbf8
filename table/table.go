// Package table holds the parse table: for every state and lookahead the
// possible actions, and the goto transitions on nonterminals. A table is
// immutable once built and safe for concurrent readers.
package table

import (
	"fmt"
	"strings"

	"github.com/dhamidi/grove/grammar"
)

// State is a row of the parse table.
type State int

type ActionKind uint8

const (
	Shift ActionKind = iota
	// ShiftExtra shifts an extra token without changing state.
	ShiftExtra
	Reduce
	Accept
)

func (k ActionKind) String() string {
	switch k {
	case Shift:
		return "shift"
	case ShiftExtra:
		return "shift-extra"
	case Reduce:
		return "reduce"
	case Accept:
		return "accept"
	}
	return fmt.Sprintf("action(%d)", k)
}

type Action struct {
	Kind       ActionKind     `json:"kind"`
	State      State          `json:"state,omitempty"`
	Production int            `json:"production,omitempty"`
	Symbol     grammar.Symbol `json:"symbol,omitempty"`
	Count      int            `json:"count,omitempty"`
	DynPrec    int            `json:"dyn_prec,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case Shift:
		return fmt.Sprintf("shift %d", a.State)
	case Reduce:
		return fmt.Sprintf("reduce %d/%d", a.Production, a.Count)
	}
	return a.Kind.String()
}

type Row struct {
	Actions map[grammar.Symbol][]Action `json:"actions"`
	Gotos   map[grammar.Symbol]State    `json:"gotos,omitempty"`
	LexMode int                         `json:"lex_mode"`
}

// Conflict is a (state, lookahead) pair that kept more than one action.
type Conflict struct {
	State     State    `json:"state"`
	Lookahead string   `json:"lookahead"`
	Actions   []Action `json:"actions"`
	Involved  []string `json:"involved"`
	Declared  bool     `json:"declared"`
}

func (c Conflict) String() string {
	kinds := make([]string, len(c.Actions))
	for i, a := range c.Actions {
		kinds[i] = a.String()
	}
	return fmt.Sprintf("state %d on %q: %s between %s", c.State, c.Lookahead,
		strings.Join(kinds, ", "), strings.Join(c.Involved, ", "))
}

type Table struct {
	States        []Row              `json:"states"`
	LexModes      [][]grammar.Symbol `json:"lex_modes"`
	TerminalCount int                `json:"terminal_count"`
	Conflicts     []Conflict         `json:"conflicts,omitempty"`

	valid [][]bool
}

// Prepare rebuilds the lookup structures derived from the exported fields.
// Build calls it; code that decodes a table must call it before use.
func (t *Table) Prepare() error {
	t.valid = make([][]bool, len(t.LexModes))
	for i, mode := range t.LexModes {
		set := make([]bool, t.TerminalCount)
		for _, sym := range mode {
			if int(sym) < 0 || int(sym) >= t.TerminalCount {
				return fmt.Errorf("lex mode %d: symbol %d out of range", i, sym)
			}
			set[sym] = true
		}
		t.valid[i] = set
	}
	for i, row := range t.States {
		if row.LexMode < 0 || row.LexMode >= len(t.LexModes) {
			return fmt.Errorf("state %d: lex mode %d out of range", i, row.LexMode)
		}
		for sym, actions := range row.Actions {
			for _, a := range actions {
				if a.Kind == Shift && (a.State < 0 || int(a.State) >= len(t.States)) {
					return fmt.Errorf("state %d on %d: shift to unknown state %d", i, sym, a.State)
				}
			}
		}
		for sym, to := range row.Gotos {
			if to < 0 || int(to) >= len(t.States) {
				return fmt.Errorf("state %d: goto on %d to unknown state %d", i, sym, to)
			}
		}
	}
	return nil
}

func (t *Table) StartState() State {
	return 0
}

func (t *Table) StateCount() int {
	return len(t.States)
}

// Actions returns the actions for sym in state. More than one action means
// the parser has to fork.
func (t *Table) Actions(state State, sym grammar.Symbol) []Action {
	return t.States[state].Actions[sym]
}

func (t *Table) Goto(state State, sym grammar.Symbol) (State, bool) {
	to, ok := t.States[state].Gotos[sym]
	return to, ok
}

func (t *Table) LexMode(state State) int {
	return t.States[state].LexMode
}

// Valid reports whether the table has an action for sym in state.
func (t *Table) Valid(state State, sym grammar.Symbol) bool {
	return len(t.States[state].Actions[sym]) > 0
}

// ValidIn reports whether sym is lexed in the given lex mode.
func (t *Table) ValidIn(mode int, sym grammar.Symbol) bool {
	set := t.valid[mode]
	return int(sym) >= 0 && int(sym) < len(set) && set[sym]
}

// UndeclaredConflicts returns the conflicts no declared conflict covers.
func (t *Table) UndeclaredConflicts() []Conflict {
	var out []Conflict
	for _, c := range t.Conflicts {
		if !c.Declared {
			out = append(out, c)
		}
	}
	return out
}
