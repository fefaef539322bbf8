package parser

import (
	"sync"

	"github.com/dhamidi/grove/language"
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

// Pool recycles parsers of one language for concurrent callers.
//
// Usage:
//
//	p := pool.Get()
//	defer pool.Put(p)
//	t, err := p.Parse(src, nil, nil)
//
// Concurrency: safe for use by multiple goroutines simultaneously. Trees
// and the language are shared freely between parsers.
type Pool struct {
	lang *language.Language
	pool sync.Pool
}

// NewPool creates a pool whose parsers are built with opts.
func NewPool(lang *language.Language, opts ...Option) *Pool {
	p := &Pool{lang: lang}
	p.pool = sync.Pool{
		New: func() any {
			return New(lang, opts...)
		},
	}
	return p
}

func (p *Pool) Language() *language.Language {
	return p.lang
}

// Get retrieves a parser from the pool, or creates one.
func (p *Pool) Get() *Parser {
	return p.pool.Get().(*Parser)
}

// Put returns a parser to the pool. Callers must not use it afterwards.
func (p *Pool) Put(parser *Parser) {
	if parser == nil || parser.lang != p.lang {
		return
	}
	parser.stats = Stats{}
	p.pool.Put(parser)
}

// Parse parses with a pooled parser and returns the tree together with the
// parse statistics.
func (p *Pool) Parse(src []byte, old *tree.Tree, edits []text.Edit) (*tree.Tree, Stats, error) {
	parser := p.Get()
	defer p.Put(parser)
	t, err := parser.Parse(src, old, edits)
	return t, parser.Stats(), err
}
