// Package workspace keeps the parsed documents of a source tree and
// reparses them incrementally as they change.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/grove/language"
	"github.com/dhamidi/grove/metrics"
	"github.com/dhamidi/grove/parser"
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

var log = commonlog.GetLogger("grove.workspace")

// Document is one parsed file. Documents are replaced, never modified, so
// a Document obtained from Get stays consistent.
type Document struct {
	Path    string
	Source  []byte
	Tree    *tree.Tree
	Version int32
	Stats   parser.Stats
}

type Option func(*Workspace)

func WithParserOptions(opts ...parser.Option) Option {
	return func(w *Workspace) {
		w.parserOpts = append(w.parserOpts, opts...)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workspace) {
		w.metrics = m
		w.parserOpts = append(w.parserOpts, parser.WithMetrics(m))
	}
}

// WithFilter restricts ScanAll to the files f accepts.
func WithFilter(f *Filter) Option {
	return func(w *Workspace) {
		w.filter = f
	}
}

// Workspace maps paths to documents of one language.
//
// Concurrency: safe for use by multiple goroutines.
type Workspace struct {
	mu         sync.RWMutex
	rootDir    string
	lang       *language.Language
	pool       *parser.Pool
	parserOpts []parser.Option
	filter     *Filter
	metrics    *metrics.Metrics
	files      map[string]*Document
}

func New(rootDir string, lang *language.Language, opts ...Option) *Workspace {
	w := &Workspace{
		rootDir: rootDir,
		lang:    lang,
		files:   make(map[string]*Document),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.pool = parser.NewPool(lang, w.parserOpts...)
	return w
}

func (w *Workspace) RootDir() string {
	return w.rootDir
}

func (w *Workspace) Language() *language.Language {
	return w.lang
}

// Filter returns the filter used by ScanAll, nil when every file is
// scanned.
func (w *Workspace) Filter() *Filter {
	return w.filter
}

// ScanAll parses every accepted file below the root directory. Files that
// cannot be read or parsed are logged and skipped.
func (w *Workspace) ScanAll() error {
	return filepath.WalkDir(w.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warningf("scan %s: %s", path, err)
			return nil
		}
		rel, relErr := filepath.Rel(w.rootDir, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if rel != "." && w.filter != nil && w.filter.Excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.filter != nil && !w.filter.Match(rel) {
			return nil
		}
		if _, err := w.ScanFile(path); err != nil {
			log.Warningf("scan %s: %s", path, err)
		}
		return nil
	})
}

// ScanFile reads path from disk and updates its document.
func (w *Workspace) ScanFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return w.Update(path, content)
}

// Open replaces the document at path by a fresh parse of src.
func (w *Workspace) Open(path string, src []byte, version int32) (*Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.storeLocked(path, src, nil, nil, version)
}

// Update sets the content of path. When the document is known, the
// difference to its previous content is computed and reparsed
// incrementally.
func (w *Workspace) Update(path string, src []byte) (*Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	old := w.files[path]
	if old == nil {
		return w.storeLocked(path, src, nil, nil, 0)
	}
	e, changed := text.Diff(old.Source, src)
	if !changed {
		return old, nil
	}
	return w.storeLocked(path, src, old.Tree, []text.Edit{e}, old.Version+1)
}

// Apply records edits made to the document at path, src being the content
// after all of them.
func (w *Workspace) Apply(path string, edits []text.Edit, src []byte, version int32) (*Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	old := w.files[path]
	if old == nil {
		return nil, fmt.Errorf("apply edits to %s: document is not open", path)
	}
	return w.storeLocked(path, src, old.Tree, edits, version)
}

// ApplyFunc is Apply for edits that depend on the current content. change
// runs under the workspace lock with the open document and returns the
// edits and the resulting content, so concurrent changes to the same path
// are applied one after the other. An error from change is returned as is
// and leaves the document unchanged.
func (w *Workspace) ApplyFunc(path string, version int32, change func(doc *Document) ([]text.Edit, []byte, error)) (*Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	old := w.files[path]
	if old == nil {
		return nil, fmt.Errorf("apply edits to %s: document is not open", path)
	}
	edits, src, err := change(old)
	if err != nil {
		return nil, err
	}
	return w.storeLocked(path, src, old.Tree, edits, version)
}

func (w *Workspace) storeLocked(path string, src []byte, old *tree.Tree, edits []text.Edit, version int32) (*Document, error) {
	t, stats, err := w.pool.Parse(src, old, edits)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	doc := &Document{
		Path:    path,
		Source:  src,
		Tree:    t,
		Version: version,
		Stats:   stats,
	}
	w.files[path] = doc
	w.documentsChangedLocked()
	log.Debugf("%s: version %d, %d bytes, %d bytes reused", path, version, len(src), stats.ReusedBytes)
	return doc, nil
}

// Remove forgets the document at path.
func (w *Workspace) Remove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.files, path)
	w.documentsChangedLocked()
}

func (w *Workspace) documentsChangedLocked() {
	if w.metrics != nil {
		w.metrics.Documents.Set(float64(len(w.files)))
	}
}

func (w *Workspace) Get(path string) *Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.files[path]
}

// Paths returns the paths of all documents, sorted.
func (w *Workspace) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	paths := make([]string, 0, len(w.files))
	for path := range w.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
