package parser

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/grove/diff"
	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/language"
	"github.com/dhamidi/grove/lexer"
	"github.com/dhamidi/grove/metrics"
	"github.com/dhamidi/grove/table"
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

var (
	// ErrResourceExhausted is returned when a parse exceeds its step,
	// stack depth or version budget. The parse is abandoned.
	ErrResourceExhausted = errors.New("parser: resource exhausted")
	// ErrCancelled is returned when the cancellation flag was raised.
	ErrCancelled = errors.New("parser: cancelled")
)

const (
	DefaultMaxVersions   = 6
	DefaultMaxStackDepth = 100_000

	// maxCostDifference drops versions whose error cost exceeds the best
	// version's by more than this.
	maxCostDifference = 1800
)

type Option func(*Parser)

func WithLogger(log commonlog.Logger) Option {
	return func(p *Parser) {
		p.log = log
	}
}

// WithMaxVersions bounds the number of simultaneous stack versions.
func WithMaxVersions(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxVersions = n
		}
	}
}

func WithMaxStackDepth(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxDepth = n
		}
	}
}

// WithStepLimit bounds the number of engine steps of one parse. Zero picks
// a limit proportional to the input size.
func WithStepLimit(n int) Option {
	return func(p *Parser) {
		p.stepLimit = n
	}
}

// WithCancellationFlag makes the parser stop with ErrCancelled once flag is
// set. The flag is checked between engine steps.
func WithCancellationFlag(flag *atomic.Bool) Option {
	return func(p *Parser) {
		p.cancel = flag
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Parser) {
		p.metrics = m
	}
}

// Stats describes the last parse.
type Stats struct {
	Incremental  bool
	Tokens       int
	ReusedLeaves int
	ReusedNodes  int
	ReusedBytes  int
	// SharedNodes counts re-parsed subtrees that came out unchanged and
	// were replaced by the old tree's.
	SharedNodes int
	MaxVersions int
	Recoveries  int
	Steps       int
	Duration    time.Duration
}

// Parser turns source text into syntax trees for one language. A Parser is
// not safe for concurrent use; see Pool.
type Parser struct {
	lang        *language.Language
	log         commonlog.Logger
	maxVersions int
	maxDepth    int
	stepLimit   int
	cancel      *atomic.Bool
	metrics     *metrics.Metrics
	stats       Stats
}

func New(lang *language.Language, opts ...Option) *Parser {
	p := &Parser{
		lang:        lang,
		log:         commonlog.GetLogger("grove.parser"),
		maxVersions: DefaultMaxVersions,
		maxDepth:    DefaultMaxStackDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) Language() *language.Language {
	return p.lang
}

// Stats returns the statistics of the last parse.
func (p *Parser) Stats() Stats {
	return p.stats
}

// ParseString parses src from scratch.
func (p *Parser) ParseString(src string) (*tree.Tree, error) {
	return p.Parse([]byte(src), nil, nil)
}

// Parse parses src. When old is given, edits must describe how old's source
// became src, and the parser reuses the parts of old the edits did not
// touch. The result is the same tree a parse from scratch would produce.
//
// Syntax errors are represented in the tree; the returned error is only
// set for invalid edits, cancellation and exhausted budgets.
func (p *Parser) Parse(src []byte, old *tree.Tree, edits []text.Edit) (*tree.Tree, error) {
	started := time.Now()
	r := &run{
		p:     p,
		tbl:   p.lang.Table,
		lexer: p.lang.NewLexer(src),
		limit: p.stepLimit,
	}
	if r.limit == 0 {
		r.limit = 10_000 + 200*len(src)
	}
	if old != nil {
		if err := checkEdits(old, edits, src); err != nil {
			return nil, err
		}
		if old.Language() == p.lang {
			session, err := diff.NewSession(old, edits)
			if err != nil {
				return nil, err
			}
			r.session = session
			r.stats.Incremental = true
		} else {
			p.log.Debugf("previous tree belongs to another language, parsing from scratch")
		}
	}

	root, err := r.parse()
	if err == nil && r.session != nil {
		root = r.share(root, 0)
	}
	r.stats.Steps = r.steps
	r.stats.Duration = time.Since(started)
	p.stats = r.stats
	if err != nil {
		p.log.Debugf("parse failed after %d steps: %s", r.steps, err)
		return nil, err
	}
	t := tree.New(p.lang, src, root)
	p.record(t)
	return t, nil
}

func checkEdits(old *tree.Tree, edits []text.Edit, src []byte) error {
	if err := text.ValidateBatch(edits); err != nil {
		return err
	}
	n := len(old.Source())
	for i, e := range edits {
		if e.OldEndByte > n {
			return fmt.Errorf("edit %d: %w: %s past the end of a %d byte document", i, text.ErrInvalidEdit, e, n)
		}
		n += e.Delta()
	}
	if n != len(src) {
		return fmt.Errorf("%w: edits produce %d bytes, source has %d", text.ErrInvalidEdit, n, len(src))
	}
	return nil
}

func (p *Parser) record(t *tree.Tree) {
	s := p.stats
	mode := "full"
	if s.Incremental {
		mode = "incremental"
	}
	p.log.Debugf("parsed %d bytes (%s): %d tokens, %d reused leaves, %d reused nodes, %d shared, %d recoveries, %d versions max, %s",
		len(t.Source()), mode, s.Tokens, s.ReusedLeaves, s.ReusedNodes, s.SharedNodes, s.Recoveries, s.MaxVersions, s.Duration)
	if p.metrics == nil {
		return
	}
	name := p.lang.Name
	p.metrics.ParsesTotal.WithLabelValues(name, mode).Inc()
	p.metrics.ParseDuration.WithLabelValues(name, mode).Observe(s.Duration.Seconds())
	p.metrics.ReusedNodesTotal.WithLabelValues(name).Add(float64(s.ReusedNodes + s.ReusedLeaves))
	p.metrics.ReusedBytesTotal.WithLabelValues(name).Add(float64(s.ReusedBytes))
	p.metrics.RecoveriesTotal.WithLabelValues(name).Add(float64(s.Recoveries))
	p.metrics.MaxVersions.WithLabelValues(name).Set(float64(s.MaxVersions))
	if t.HasError() {
		p.metrics.ErrorTreesTotal.WithLabelValues(name).Inc()
	}
}

// run is the state of one parse.
type run struct {
	p       *Parser
	tbl     *table.Table
	lexer   *lexer.Lexer
	session *diff.Session
	steps   int
	limit   int
	stats   Stats

	// unsettled is set while fragile subtrees wait for the input that
	// decides between versions; windowStart is where that began.
	unsettled   bool
	windowStart int
	// grown holds ERROR nodes whose children array was extended in place.
	grown map[*tree.Subtree]bool
}

func (r *run) tick() error {
	r.steps++
	if r.steps > r.limit {
		return fmt.Errorf("%w: more than %d steps", ErrResourceExhausted, r.limit)
	}
	if r.p.cancel != nil && r.p.cancel.Load() {
		return ErrCancelled
	}
	return nil
}

func (r *run) parse() (*tree.Subtree, error) {
	versions := []*version{newVersion(&entry{state: r.tbl.StartState()})}
	for {
		if err := r.tick(); err != nil {
			return nil, err
		}
		if n := len(versions); n > r.stats.MaxVersions {
			r.stats.MaxVersions = n
		}
		forked := len(versions) > 1
		pos := versions[0].top.pos

		var la *lookahead
		var candidates []*tree.Subtree
		if !forked && r.session != nil {
			candidates = r.session.Candidates(pos.Byte)
			la = r.reuseLeaf(versions[0], candidates, pos)
		}
		if la == nil {
			la = r.lex(versions, pos)
		}

		var next, accepted []*version
		for _, v := range versions {
			shifted, acc, err := r.advance(v, la, forked, candidates)
			if err != nil {
				return nil, err
			}
			next = append(next, shifted...)
			accepted = append(accepted, acc...)
		}
		if len(accepted) > 0 {
			return r.finish(r.best(accepted), la), nil
		}
		if len(next) == 0 {
			r.stats.Recoveries++
			r.p.log.Debugf("recovering at %s on %s", la.start, r.p.lang.SymbolName(la.symbol()))
			var err error
			next, accepted, err = r.recover(versions, la)
			if err != nil {
				return nil, err
			}
			if len(accepted) > 0 {
				return r.finish(r.best(accepted), la), nil
			}
			if len(next) == 0 {
				v := r.best(versions)
				r.settle(v, la)
				return r.errorRoot(v), nil
			}
		}
		versions = r.condense(next)
		if len(versions) == 1 {
			r.settle(versions[0], la)
		}
		for _, v := range versions {
			if v.top.depth > r.p.maxDepth {
				return nil, fmt.Errorf("%w: stack deeper than %d", ErrResourceExhausted, r.p.maxDepth)
			}
		}
	}
}

// lex scans the next token. With several versions the union of their lex
// modes is used and the token is marked as not reusable.
func (r *run) lex(versions []*version, pos text.Position) *lookahead {
	r.lexer.Seek(pos)
	first := versions[0]
	mode := r.mode(first)
	valid := func(sym grammar.Symbol) bool { return r.tbl.ValidIn(mode, sym) }
	var modes []int
	for _, v := range versions[1:] {
		if m := r.mode(v); m != mode && !contains(modes, m) {
			modes = append(modes, m)
		}
	}
	if len(modes) > 0 {
		modes = append(modes, mode)
		mode = -1
		valid = func(sym grammar.Symbol) bool {
			for _, m := range modes {
				if r.tbl.ValidIn(m, sym) {
					return true
				}
			}
			return false
		}
	}

	tok := r.lexer.Next(valid, first.scanner)
	r.stats.Tokens++
	leaf := tree.NewLeaf(tok.Symbol, tok.Length(), tok.Lookahead, first.top.state, mode)
	leaf.ScannerBefore = first.scanner
	leaf.ScannerAfter = tok.ScannerState
	if tok.IsError {
		leaf.Flags |= tree.Error
	}
	if tok.IsExtra {
		leaf.Flags |= tree.Extra
	}
	if len(versions) > 1 {
		leaf.Flags |= tree.FragileLeft
		r.unsettle(pos.Byte)
	}
	return &lookahead{
		sub:     leaf,
		start:   tok.Range.Start(),
		end:     tok.Range.End(),
		scanner: tok.ScannerState,
	}
}

// mode is the lex mode the next token of v is scanned in.
func (r *run) mode(v *version) int {
	if v.nextMode >= 0 {
		return v.nextMode
	}
	return r.tbl.LexMode(v.top.state)
}

func contains(s []int, x int) bool {
	for _, y := range s {
		if x == y {
			return true
		}
	}
	return false
}

// advance applies the actions for la to v until every resulting version has
// shifted la or accepted. Versions without an action for la are dropped.
func (r *run) advance(v *version, la *lookahead, fragile bool, candidates []*tree.Subtree) (shifted, accepted []*version, err error) {
	work := []*version{v}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		actions := r.tbl.Actions(cur.top.state, la.symbol())
		conflicted := fragile || len(actions) > 1
		for _, a := range actions {
			if err := r.tick(); err != nil {
				return nil, nil, err
			}
			switch a.Kind {
			case table.Shift:
				if la.reused && !conflicted {
					if nv := r.reuseNode(cur, la, candidates); nv != nil {
						shifted = append(shifted, nv)
						continue
					}
				}
				shifted = append(shifted, cur.consumed(cur.top.push(a.State, la.leaf(false), la.end), la.scanner))
			case table.ShiftExtra:
				shifted = append(shifted, cur.with(cur.top.push(cur.top.state, la.leaf(true), la.end), la.scanner))
			case table.Reduce:
				if nv := r.reduce(cur, a, la, conflicted); nv != nil {
					work = append(work, nv)
				}
			case table.Accept:
				accepted = append(accepted, cur)
			}
		}
	}
	return shifted, accepted, nil
}

// reduce replaces the top a.Count subtrees by a new node. Extras on top of
// the stack stay on top; extras between the children become children.
func (r *run) reduce(v *version, a table.Action, la *lookahead, fragile bool) *version {
	e := v.top
	var trailing []*tree.Subtree
	for e.prev != nil && e.sub.IsExtra() {
		trailing = append(trailing, e.sub)
		e = e.prev
	}
	children := make([]*tree.Subtree, 0, a.Count)
	for n := a.Count; n > 0; e = e.prev {
		if e.prev == nil {
			return nil
		}
		children = append(children, e.sub)
		if !e.sub.IsExtra() {
			n--
		}
	}
	reverse(children)
	base := e
	to, ok := r.tbl.Goto(base.state, a.Symbol)
	if !ok {
		return nil
	}

	node := tree.NewNode(a.Symbol, a.Production, children, base.state)
	node.DynPrec += a.DynPrec
	node.NextLexMode = la.sub.LexMode
	switch {
	case fragile || anyUnsettled(children):
		node.Flags |= tree.Fragile
		r.unsettle(la.start.Byte)
	case anyFragile(children):
		// Built on a single stack from settled children.
		node.Flags |= tree.Fragile | tree.Settled
	}
	end := base.pos.Advance(node.Size)
	if x := la.examinedEnd() - end.Byte; x > node.Lookahead {
		node.Lookahead = x
	}
	top := base.push(to, node, end)
	for i := len(trailing) - 1; i >= 0; i-- {
		top = top.push(to, trailing[i], top.pos.Advance(trailing[i].Size))
	}
	return v.with(top, v.scanner)
}

func anyFragile(subs []*tree.Subtree) bool {
	for _, s := range subs {
		if s.IsFragile() {
			return true
		}
	}
	return false
}

// finish builds the root from an accepting version: the start node's
// children surrounded by the extras before and after it.
func (r *run) finish(v *version, la *lookahead) *tree.Subtree {
	r.settle(v, la)
	var children []*tree.Subtree
	var start *tree.Subtree
	for _, s := range v.top.subtrees() {
		if start == nil && !s.IsExtra() {
			start = s
			children = append(children, s.Children...)
			continue
		}
		children = append(children, s)
	}
	if start == nil {
		return r.errorRoot(v)
	}
	root := tree.NewNode(start.Symbol, start.Production, children, r.tbl.StartState())
	root.DynPrec = start.DynPrec
	return root
}

// errorRoot wraps everything on the stack into an ERROR root.
func (r *run) errorRoot(v *version) *tree.Subtree {
	root := tree.NewNode(grammar.SymbolError, -1, v.top.subtrees(), r.tbl.StartState())
	root.Flags |= tree.Error
	return root
}

func (r *run) best(vs []*version) *version {
	best := vs[0]
	for _, v := range vs[1:] {
		if compare(v, best) < 0 {
			best = v
		}
	}
	return best
}

// condense orders versions by preference, merges versions that will
// behave identically, drops versions far costlier than the best and keeps
// at most maxVersions.
func (r *run) condense(vs []*version) []*version {
	sort.SliceStable(vs, func(i, j int) bool { return compare(vs[i], vs[j]) < 0 })
	limit := vs[0].cost() + maxCostDifference
	out := make([]*version, 0, len(vs))
	for _, v := range vs {
		if v.cost() > limit {
			continue
		}
		merged := false
		for _, o := range out {
			if sameStates(o, v) {
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		out = append(out, v)
		if len(out) == r.p.maxVersions {
			break
		}
	}
	return out
}
