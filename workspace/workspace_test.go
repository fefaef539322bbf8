package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/grove/bsv"
	"github.com/dhamidi/grove/language"
	"github.com/dhamidi/grove/metrics"
	"github.com/dhamidi/grove/parser"
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
)

const module = `module mkTop();
  Reg#(Bit#(8)) count = 0;

  rule tick;
    count <= count + 1;
  endrule
endmodule
`

func bsvLanguage(t *testing.T) *language.Language {
	t.Helper()
	lang, err := bsv.Language()
	require.NoError(t, err)
	return lang
}

func TestUpdateReparsesIncrementally(t *testing.T) {
	lang := bsvLanguage(t)
	ws := New(t.TempDir(), lang)

	doc, err := ws.Update("top.bsv", []byte(module))
	require.NoError(t, err)
	assert.False(t, doc.Stats.Incremental)
	assert.False(t, doc.Tree.HasError())

	same, err := ws.Update("top.bsv", []byte(module))
	require.NoError(t, err)
	assert.Same(t, doc, same, "unchanged content keeps the document")

	changed := []byte(module[:len(module)-len("endmodule\n")] + "  rule tock;\n    count <= 0;\n  endrule\nendmodule\n")
	next, err := ws.Update("top.bsv", changed)
	require.NoError(t, err)
	assert.True(t, next.Stats.Incremental)
	assert.Greater(t, next.Stats.ReusedBytes, 0)
	assert.Equal(t, int32(1), next.Version)

	full, err := parser.New(lang).Parse(changed, nil, nil)
	require.NoError(t, err)
	assert.True(t, tree.Equal(full.Root(), next.Tree.Root()))
	assert.Same(t, next, ws.Get("top.bsv"))
}

func TestOpenApplyRemove(t *testing.T) {
	lang := bsvLanguage(t)
	reg := prometheus.NewRegistry()
	ws := New(t.TempDir(), lang, WithMetrics(metrics.New(reg)))

	_, err := ws.Apply("a.bsv", nil, nil, 1)
	assert.Error(t, err, "document is not open")

	doc, err := ws.Open("a.bsv", []byte(module), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), doc.Version)

	at := len("module mkTop")
	e, src, err := text.EditFor(doc.Source, at, at, []byte("Counter"))
	require.NoError(t, err)
	doc, err = ws.Apply("a.bsv", []text.Edit{e}, src, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), doc.Version)
	assert.Equal(t, "mkTopCounter", doc.Tree.RootNode().NamedChild(0).ChildByFieldName("name").Text())

	_, err = ws.Apply("a.bsv", []text.Edit{e}, src, 3)
	assert.ErrorIs(t, err, text.ErrInvalidEdit)

	_, err = ws.Open("b.bsv", []byte("module"), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.bsv", "b.bsv"}, ws.Paths())

	ws.Remove("a.bsv")
	assert.Nil(t, ws.Get("a.bsv"))
	assert.Equal(t, []string{"b.bsv"}, ws.Paths())
}

func TestApplyFunc(t *testing.T) {
	ws := New(t.TempDir(), bsvLanguage(t))
	_, err := ws.ApplyFunc("a.bsv", 1, func(*Document) ([]text.Edit, []byte, error) {
		t.Fatal("called for a document that is not open")
		return nil, nil, nil
	})
	assert.Error(t, err)

	_, err = ws.Open("a.bsv", []byte(module), 1)
	require.NoError(t, err)
	at := len("module mkTop")

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ws.ApplyFunc("a.bsv", int32(i+2), func(doc *Document) ([]text.Edit, []byte, error) {
				e, src, err := text.EditFor(doc.Source, at, at, []byte("X"))
				return []text.Edit{e}, src, err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc := ws.Get("a.bsv")
	assert.Equal(t, "mkTop"+strings.Repeat("X", n), doc.Tree.RootNode().NamedChild(0).ChildByFieldName("name").Text())
	assert.True(t, doc.Stats.Incremental)

	failed := errors.New("rejected")
	_, err = ws.ApplyFunc("a.bsv", 99, func(*Document) ([]text.Edit, []byte, error) {
		return nil, nil, failed
	})
	assert.ErrorIs(t, err, failed)
	assert.Same(t, doc, ws.Get("a.bsv"))
}

func TestFilter(t *testing.T) {
	f, err := NewFilter([]string{"**.bsv", "top.bs"}, []string{".git", "build", "*_gen.bsv"})
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{path: "a.bsv", want: true},
		{path: filepath.Join("src", "deep", "a.bsv"), want: true},
		{path: "top.bs", want: true},
		{path: filepath.Join("src", "top.bs"), want: false},
		{path: "a.v", want: false},
		{path: filepath.Join(".git", "a.bsv"), want: false},
		{path: filepath.Join("src", "build", "a.bsv"), want: false},
		{path: filepath.Join("src", "regs_gen.bsv"), want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Match(tt.path), tt.path)
	}

	_, err = NewFilter([]string{"["}, nil)
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.bsv"), module)
	writeFile(t, filepath.Join(root, "lib", "fifo.bsv"), "interface Q;\nendinterface\n")
	writeFile(t, filepath.Join(root, "build", "out.bsv"), module)
	writeFile(t, filepath.Join(root, "README.md"), "# readme\n")

	f, err := NewFilter([]string{"**.bsv"}, []string{"build"})
	require.NoError(t, err)
	ws := New(root, bsvLanguage(t), WithFilter(f))
	require.NoError(t, ws.ScanAll())

	assert.Equal(t, []string{
		filepath.Join(root, "lib", "fifo.bsv"),
		filepath.Join(root, "top.bsv"),
	}, ws.Paths())
}

func TestWatcher(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "top.bsv")
	writeFile(t, path, module)

	f, err := NewFilter([]string{"**.bsv"}, nil)
	require.NoError(t, err)
	ws := New(root, bsvLanguage(t), WithFilter(f))
	require.NoError(t, ws.ScanAll())

	changes := make(chan []Change, 8)
	w, err := NewWatcher(ws, 20*time.Millisecond, func(c []Change) { changes <- c })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Close()

	writeFile(t, path, module+"\n// trailing\n")
	select {
	case got := <-changes:
		require.Len(t, got, 1)
		assert.Equal(t, path, got[0].Path)
		require.NoError(t, got[0].Err)
		assert.True(t, got[0].Doc.Stats.Incremental)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return ws.Get(path) == nil }, 5*time.Second, 10*time.Millisecond)
}
