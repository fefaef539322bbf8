package lsp

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"golang.org/x/time/rate"

	"github.com/dhamidi/grove/bsv"
	"github.com/dhamidi/grove/text"
)

type recorder struct {
	mu          sync.Mutex
	diagnostics []protocol.PublishDiagnosticsParams
}

func (r *recorder) notify(method string, params any) {
	if method != protocol.ServerTextDocumentPublishDiagnostics {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, params.(protocol.PublishDiagnosticsParams))
}

func (r *recorder) last(t *testing.T) protocol.PublishDiagnosticsParams {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.diagnostics)
	return r.diagnostics[len(r.diagnostics)-1]
}

func newTestServer(t *testing.T) (*Server, *glsp.Context, *recorder, string) {
	t.Helper()
	lang, err := bsv.Language()
	require.NoError(t, err)
	ls := NewServer(lang, "test", WithDiagnosticsRate(rate.Inf, 1))

	rec := &recorder{}
	ctx := &glsp.Context{Notify: rec.notify}
	root := t.TempDir()
	_, err = ls.initialize(ctx, &protocol.InitializeParams{RootPath: &root})
	require.NoError(t, err)
	require.NoError(t, ls.initialized(ctx, &protocol.InitializedParams{}))
	return ls, ctx, rec, "file://" + filepath.Join(root, "top.bsv")
}

const broken = "module mkTop();\n  rule tick;\n    count <= ;\n  endrule\nendmodule\n"

func TestDocumentLifecycle(t *testing.T) {
	ls, ctx, rec, uri := newTestServer(t)

	require.NoError(t, ls.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "bsv", Version: 1, Text: broken},
	}))
	published := rec.last(t)
	assert.Equal(t, uri, published.URI)
	require.NotNil(t, published.Version)
	assert.Equal(t, protocol.UInteger(1), *published.Version)
	require.NotEmpty(t, published.Diagnostics)
	assert.Equal(t, protocol.UInteger(2), published.Diagnostics[0].Range.Start.Line)

	require.NoError(t, ls.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                2,
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEvent{
				Range: &protocol.Range{
					Start: protocol.Position{Line: 2, Character: 13},
					End:   protocol.Position{Line: 2, Character: 13},
				},
				Text: "1",
			},
		},
	}))
	published = rec.last(t)
	assert.Equal(t, protocol.UInteger(2), *published.Version)
	assert.Empty(t, published.Diagnostics)

	path, err := uriToPath(uri)
	require.NoError(t, err)
	doc := ls.Workspace().Get(path)
	require.NotNil(t, doc)
	assert.True(t, doc.Stats.Incremental)
	assert.Contains(t, string(doc.Source), "count <= 1;")

	symbols, err := ls.textDocumentDocumentSymbol(ctx, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
	require.NoError(t, err)
	list := symbols.([]protocol.DocumentSymbol)
	require.Len(t, list, 1)
	assert.Equal(t, "mkTop", list[0].Name)
	assert.Equal(t, protocol.SymbolKindModule, list[0].Kind)
	require.Len(t, list[0].Children, 1)
	assert.Equal(t, "tick", list[0].Children[0].Name)
	assert.Equal(t, protocol.Position{Line: 1, Character: 7}, list[0].Children[0].SelectionRange.Start)

	ranges, err := ls.textDocumentSelectionRange(ctx, &protocol.SelectionRangeParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Positions:    []protocol.Position{{Line: 1, Character: 8}},
	})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	sel := ranges[0]
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 1, Character: 7},
		End:   protocol.Position{Line: 1, Character: 11},
	}, sel.Range)
	depth := 0
	for p := sel.Parent; p != nil; p = p.Parent {
		depth++
		if p.Parent == nil {
			assert.Equal(t, protocol.Position{}, p.Range.Start, "outermost range is the document")
		}
	}
	assert.GreaterOrEqual(t, depth, 2)

	require.NoError(t, ls.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}))
	assert.Nil(t, ls.Workspace().Get(path))
	assert.Empty(t, rec.last(t).Diagnostics)
	ls.diagnostics.mu.Lock()
	assert.NotContains(t, ls.diagnostics.docs, uri)
	ls.diagnostics.mu.Unlock()
}

func TestConcurrentChanges(t *testing.T) {
	ls, ctx, _, uri := newTestServer(t)
	require.NoError(t, ls.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "bsv", Version: 1, Text: "// \n"},
	}))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ls.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
				TextDocument: protocol.VersionedTextDocumentIdentifier{
					TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
					Version:                protocol.Integer(i + 2),
				},
				ContentChanges: []any{
					protocol.TextDocumentContentChangeEvent{
						Range: &protocol.Range{
							Start: protocol.Position{Line: 0, Character: 3},
							End:   protocol.Position{Line: 0, Character: 3},
						},
						Text: "x",
					},
				},
			}))
		}()
	}
	wg.Wait()

	path, err := uriToPath(uri)
	require.NoError(t, err)
	doc := ls.Workspace().Get(path)
	require.NotNil(t, doc)
	assert.Equal(t, "// "+strings.Repeat("x", n)+"\n", string(doc.Source), "no change is lost")
	assert.Equal(t, len(doc.Source), doc.Tree.Root().Size.Bytes)
}

func TestContentEdits(t *testing.T) {
	src := []byte("ab\ncd")
	edits, out, err := contentEdits(src, []any{
		protocol.TextDocumentContentChangeEvent{
			Range: &protocol.Range{Start: protocol.Position{Line: 1, Character: 0}, End: protocol.Position{Line: 1, Character: 1}},
			Text:  "X",
		},
		protocol.TextDocumentContentChangeEventWhole{Text: "ab\nXdz"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ab\nXdz", string(out))
	require.Len(t, edits, 2)
	assert.Equal(t, text.Edit{
		StartByte: 3, OldEndByte: 4, NewEndByte: 4,
		StartPoint: text.Point{Row: 1}, OldEndPoint: text.Point{Row: 1, Column: 1}, NewEndPoint: text.Point{Row: 1, Column: 1},
	}, edits[0])
	assert.Equal(t, 5, edits[1].StartByte)
	assert.Equal(t, 6, edits[1].NewEndByte)
}

func TestToPosition(t *testing.T) {
	src := []byte("aé😀b\nxy")
	tests := []struct {
		off  int
		want protocol.Position
	}{
		{off: 0, want: protocol.Position{}},
		{off: 1, want: protocol.Position{Character: 1}},
		{off: 3, want: protocol.Position{Character: 2}},
		{off: 7, want: protocol.Position{Character: 4}},
		{off: 8, want: protocol.Position{Character: 5}},
		{off: 9, want: protocol.Position{Line: 1}},
		{off: 11, want: protocol.Position{Line: 1, Character: 2}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toPosition(src, tt.off), "offset %d", tt.off)
		content := string(src)
		assert.Equal(t, tt.off, tt.want.IndexIn(content), "offset %d", tt.off)
	}
}

func TestDiagnosticsRateLimit(t *testing.T) {
	p := newPublisher(rate.Limit(1), 1)
	defer p.stop()
	rec := &recorder{}
	for i := 1; i <= 3; i++ {
		v := protocol.UInteger(i)
		p.publish(rec.notify, protocol.PublishDiagnosticsParams{URI: "file:///a", Version: &v})
	}
	rec.mu.Lock()
	require.Len(t, rec.diagnostics, 1, "the rest is held back")
	rec.mu.Unlock()
	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.diagnostics) == 2 && *rec.diagnostics[1].Version == 3
	}, 3e9, 1e7)
}

func TestDiagnosticsClearedOnClose(t *testing.T) {
	p := newPublisher(rate.Limit(1), 1)
	defer p.stop()
	rec := &recorder{}
	v := protocol.UInteger(1)
	p.publish(rec.notify, protocol.PublishDiagnosticsParams{URI: "file:///a", Version: &v, Diagnostics: []protocol.Diagnostic{{Message: "first"}}})
	p.publish(rec.notify, protocol.PublishDiagnosticsParams{URI: "file:///a", Version: &v, Diagnostics: []protocol.Diagnostic{{Message: "held"}}})

	p.clear(rec.notify, "file:///a")
	p.mu.Lock()
	assert.Empty(t, p.docs)
	p.mu.Unlock()
	assert.Empty(t, rec.last(t).Diagnostics)

	assert.Never(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.diagnostics) != 2
	}, 1500*time.Millisecond, 50*time.Millisecond, "held diagnostics are dropped")
}
