// Package parser is an incremental, table-driven GLR parser.
//
// # Overview
//
// The parser drives the lexer and the parse table of a language to build a
// concrete syntax tree that covers every byte of the input, including
// extras such as whitespace and comments. It never fails on bad input:
// syntax errors become ERROR and MISSING nodes inside the tree.
//
// # Architecture
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Source    │────▶│   Lexer     │────▶│  GLR stack  │────▶ tree.Tree
//	│  (bytes)    │     │ (lex modes) │     │  versions   │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	       ▲                                       │
//	       │            ┌─────────────┐            ▼
//	  old tree + ──────▶│ diff.Session│      error recovery
//	    edits           │   (reuse)   │
//	                    └─────────────┘
//
// # Stack versions
//
// Where the table holds more than one action, the parser forks. Versions
// are persistent linked stacks sharing their common prefix, and advance in
// lock-step one token at a time. Versions whose state sequences are equal
// are merged, keeping the preferred one: lower error cost, then higher
// dynamic precedence, then the earlier production at the first differing
// node. The result does not depend on scheduling.
//
// # Error recovery
//
// When no version can consume a token, each version proposes repairs:
// inserting one MISSING token, popping stack entries into an ERROR node
// until the token fits, or skipping the token into an ERROR node. Every
// repair consumes the token, so recovery always terminates.
//
// # Incremental parsing
//
// Given the previous tree and the edits, the parser reuses old tokens as
// lookahead and pushes whole old subtrees when their examined range is
// untouched, they were built on the current parse state, they contain no
// error and they were not built while the parser was forked. Reused
// subtrees are shared by identity with the old tree.
package parser
