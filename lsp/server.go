// Package lsp serves parse trees over the language server protocol:
// incremental document sync, syntax diagnostics, selection ranges and
// document symbols.
package lsp

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"
	"golang.org/x/time/rate"

	"github.com/dhamidi/grove/language"
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/workspace"
)

const lsName = "grove"

var log = commonlog.GetLogger("grove.lsp")

type Option func(*Server)

func WithWorkspaceOptions(opts ...workspace.Option) Option {
	return func(s *Server) {
		s.wsOpts = append(s.wsOpts, opts...)
	}
}

// WithDiagnosticsRate limits how often diagnostics are published for one
// document. Diagnostics held back are replaced by newer ones.
func WithDiagnosticsRate(limit rate.Limit, burst int) Option {
	return func(s *Server) {
		s.diagnostics = newPublisher(limit, burst)
	}
}

// WithSymbolKinds sets the node kinds reported as document symbols.
func WithSymbolKinds(kinds map[string]protocol.SymbolKind) Option {
	return func(s *Server) {
		s.symbolKinds = kinds
	}
}

type Server struct {
	lang        *language.Language
	ws          *workspace.Workspace
	wsOpts      []workspace.Option
	handler     protocol.Handler
	server      *server.Server
	version     string
	diagnostics *publisher
	symbolKinds map[string]protocol.SymbolKind
}

func NewServer(lang *language.Language, version string, opts ...Option) *Server {
	ls := &Server{
		lang:        lang,
		version:     version,
		diagnostics: newPublisher(4, 1),
		symbolKinds: DefaultSymbolKinds,
	}
	for _, opt := range opts {
		opt(ls)
	}

	ls.handler = protocol.Handler{
		Initialize:                 ls.initialize,
		Initialized:                ls.initialized,
		Shutdown:                   ls.shutdown,
		SetTrace:                   ls.setTrace,
		TextDocumentDidOpen:        ls.textDocumentDidOpen,
		TextDocumentDidChange:      ls.textDocumentDidChange,
		TextDocumentDidClose:       ls.textDocumentDidClose,
		TextDocumentDidSave:        ls.textDocumentDidSave,
		TextDocumentSelectionRange: ls.textDocumentSelectionRange,
		TextDocumentDocumentSymbol: ls.textDocumentDocumentSymbol,
	}
	ls.server = server.NewServer(&ls.handler, lsName, false)
	return ls
}

func (ls *Server) RunStdio() error {
	return ls.server.RunStdio()
}

// Workspace returns the documents known to the server. It is nil before
// initialize.
func (ls *Server) Workspace() *workspace.Workspace {
	return ls.ws
}

func (ls *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	rootDir := "."
	if params.RootPath != nil && *params.RootPath != "" {
		rootDir = *params.RootPath
	} else if params.RootURI != nil && *params.RootURI != "" {
		if path, err := uriToPath(*params.RootURI); err == nil {
			rootDir = path
		}
	}
	ls.ws = workspace.New(rootDir, ls.lang, ls.wsOpts...)

	capabilities := ls.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    syncKindPtr(protocol.TextDocumentSyncKindIncremental),
		Save: &protocol.SaveOptions{
			IncludeText: boolPtr(true),
		},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &ls.version,
		},
	}, nil
}

func (ls *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	if ls.ws.Filter() == nil {
		return nil
	}
	if err := ls.ws.ScanAll(); err != nil {
		log.Warningf("scan %s: %s", ls.ws.RootDir(), err)
	}
	return nil
}

func (ls *Server) shutdown(ctx *glsp.Context) error {
	ls.diagnostics.stop()
	return nil
}

func (ls *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (ls *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil
	}
	doc, err := ls.ws.Open(path, []byte(params.TextDocument.Text), params.TextDocument.Version)
	if err != nil {
		log.Errorf("open %s: %s", path, err)
		return nil
	}
	ls.publish(ctx, params.TextDocument.URI, doc)
	return nil
}

func (ls *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	path, err := uriToPath(uri)
	if err != nil {
		return nil
	}
	var src []byte
	doc, err := ls.ws.ApplyFunc(path, params.TextDocument.Version, func(old *workspace.Document) ([]text.Edit, []byte, error) {
		edits, next, err := contentEdits(old.Source, params.ContentChanges)
		src = next
		return edits, next, err
	})
	switch {
	case err == nil:
	case src == nil:
		log.Errorf("change %s: %s", path, err)
		return nil
	default:
		log.Errorf("reparse %s: %s, parsing from scratch", path, err)
		if doc, err = ls.ws.Open(path, src, params.TextDocument.Version); err != nil {
			log.Errorf("parse %s: %s", path, err)
			return nil
		}
	}
	ls.publish(ctx, uri, doc)
	return nil
}

// contentEdits applies LSP content changes to src and returns the
// equivalent edits together with the final content.
func contentEdits(src []byte, changes []any) ([]text.Edit, []byte, error) {
	var edits []text.Edit
	for _, change := range changes {
		switch change := change.(type) {
		case protocol.TextDocumentContentChangeEvent:
			content := string(src)
			start := change.Range.Start.IndexIn(content)
			end := change.Range.End.IndexIn(content)
			e, next, err := text.EditFor(src, start, end, []byte(change.Text))
			if err != nil {
				return nil, nil, err
			}
			edits, src = append(edits, e), next
		case protocol.TextDocumentContentChangeEventWhole:
			next := []byte(change.Text)
			if e, changed := text.Diff(src, next); changed {
				edits = append(edits, e)
			}
			src = next
		}
	}
	return edits, src, nil
}

func (ls *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil
	}
	ls.ws.Remove(path)
	ls.diagnostics.clear(ctx.Notify, params.TextDocument.URI)
	return nil
}

func (ls *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil
	}
	var doc *workspace.Document
	if params.Text != nil {
		doc, err = ls.ws.Update(path, []byte(*params.Text))
	} else {
		doc, err = ls.ws.ScanFile(path)
	}
	if err != nil {
		log.Errorf("save %s: %s", path, err)
		return nil
	}
	ls.publish(ctx, params.TextDocument.URI, doc)
	return nil
}

func (ls *Server) textDocumentSelectionRange(ctx *glsp.Context, params *protocol.SelectionRangeParams) ([]protocol.SelectionRange, error) {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil, nil
	}
	doc := ls.ws.Get(path)
	if doc == nil {
		return nil, nil
	}
	content := string(doc.Source)
	out := make([]protocol.SelectionRange, 0, len(params.Positions))
	for _, pos := range params.Positions {
		out = append(out, selectionRange(doc.Tree, pos.IndexIn(content)))
	}
	return out, nil
}

func (ls *Server) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil, nil
	}
	doc := ls.ws.Get(path)
	if doc == nil {
		return nil, nil
	}
	return documentSymbols(doc.Tree.RootNode(), ls.symbolKinds), nil
}

func (ls *Server) publish(ctx *glsp.Context, uri protocol.DocumentUri, doc *workspace.Document) {
	version := protocol.UInteger(doc.Version)
	ls.diagnostics.publish(ctx.Notify, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Version:     &version,
		Diagnostics: diagnostics(doc.Tree),
	})
}

func uriToPath(uri string) (string, error) {
	if strings.HasPrefix(uri, "file://") {
		parsed, err := url.Parse(uri)
		if err != nil {
			return "", err
		}
		return filepath.Clean(parsed.Path), nil
	}
	return uri, nil
}

func boolPtr(b bool) *bool {
	return &b
}

func syncKindPtr(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
