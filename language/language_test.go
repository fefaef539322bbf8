package language

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/lexer"
	"github.com/dhamidi/grove/text"
)

func sums() *grammar.Grammar {
	return &grammar.Grammar{
		Name: "sums",
		Rules: []grammar.Definition{
			grammar.Define("sum", grammar.Choice(
				grammar.PrecLeft(1, grammar.Seq(grammar.Field("left", grammar.Sym("sum")), grammar.Str("+"), grammar.Field("right", grammar.Sym("sum")))),
				grammar.Sym("number"),
			)),
			grammar.Define("number", grammar.Pattern(`[0-9]+`)),
		},
		Extras: []grammar.Rule{grammar.Pattern(`\s+`)},
	}
}

func compile(t *testing.T) *Language {
	t.Helper()
	lang, err := Compile(sums())
	require.NoError(t, err)
	return lang
}

func TestCompile(t *testing.T) {
	lang := compile(t)

	assert.Equal(t, "sums", lang.Name)
	number, ok := lang.SymbolByName("number")
	require.True(t, ok)
	assert.True(t, lang.IsTerminal(number))
	assert.True(t, lang.IsNamed(number))
	assert.True(t, lang.IsVisible(number))

	plus, ok := lang.SymbolByName("+")
	require.True(t, ok)
	assert.False(t, lang.IsNamed(plus))

	sum, ok := lang.SymbolByName("sum")
	require.True(t, ok)
	assert.Equal(t, sum, lang.Start)
	assert.False(t, lang.IsTerminal(sum))
	assert.Equal(t, "sum", lang.SymbolName(sum))
	assert.Equal(t, "#9999", lang.SymbolName(9999))

	var binary = -1
	for i, p := range lang.Productions {
		if p.LHS == sum && len(p.RHS) == 3 {
			binary = i
		}
	}
	require.NotEqual(t, -1, binary)
	assert.Equal(t, "left", lang.FieldName(binary, 0))
	assert.Equal(t, "", lang.FieldName(binary, 1))
	assert.Equal(t, "right", lang.FieldName(binary, 2))
	assert.Equal(t, "", lang.FieldName(-1, 0))

	lx := lang.NewLexer([]byte("12 + 3"))
	tok := lx.Next(nil, nil)
	assert.Equal(t, number, tok.Symbol)
	tok = lx.Next(nil, nil)
	assert.True(t, tok.IsExtra)
}

func TestCompileRequiresScanner(t *testing.T) {
	g := sums()
	g.Externals = []string{"heredoc"}
	_, err := Compile(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external scanner")

	scan := lexer.ExternalFunc(func(state, src []byte, at text.Position, valid func(grammar.Symbol) bool) (lexer.ExternalToken, []byte, bool) {
		return lexer.ExternalToken{}, state, false
	})
	lang, err := Compile(g, WithExternalScanner(scan))
	require.NoError(t, err)
	assert.Len(t, lang.Externals, 1)
}

func TestEncodeDecode(t *testing.T) {
	lang := compile(t)

	var buf bytes.Buffer
	require.NoError(t, lang.Encode(&buf))

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, lang.Name, got.Name)
	assert.Equal(t, lang.Symbols, got.Symbols)
	assert.Equal(t, lang.Productions, got.Productions)
	assert.Equal(t, lang.Table.States, got.Table.States)
	assert.Equal(t, lang.DFA, got.DFA)

	for mode := range lang.Table.LexModes {
		for sym := 0; sym < lang.Table.TerminalCount; sym++ {
			assert.Equal(t, lang.Table.ValidIn(mode, grammar.Symbol(sym)), got.Table.ValidIn(mode, grammar.Symbol(sym)))
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	lang := compile(t)
	var buf bytes.Buffer
	require.NoError(t, lang.Encode(&buf))
	good := buf.Bytes()

	reseal := func(mutate func(p map[string]any)) []byte {
		var env envelope
		require.NoError(t, json.Unmarshal(good, &env))
		var p map[string]any
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		mutate(p)
		body, err := json.Marshal(p)
		require.NoError(t, err)
		sum := sha256.Sum256(body)
		env.Payload = body
		env.SHA256 = hex.EncodeToString(sum[:])
		out, err := json.Marshal(env)
		require.NoError(t, err)
		return out
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: ErrMalformed},
		{name: "truncated", data: good[:len(good)/2], want: ErrMalformed},
		{name: "not json", data: []byte("grammar"), want: ErrMalformed},
		{name: "version", data: bytes.Replace(good, []byte(`"format_version":1`), []byte(`"format_version":99`), 1), want: ErrVersion},
		{name: "checksum", data: bytes.Replace(good, []byte(`"name":"sums"`), []byte(`"name":"sumz"`), 1), want: ErrChecksum},
		{name: "no table", data: reseal(func(p map[string]any) { delete(p, "table") }), want: ErrMalformed},
		{name: "bad start", data: reseal(func(p map[string]any) { p["start"] = 1 }), want: ErrMalformed},
		{name: "externals without scanner", data: reseal(func(p map[string]any) { p["externals"] = []int{2} }), want: ErrExternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			require.Error(t, err)
			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr), "got %T", err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func writeCompiled(t *testing.T, dir string) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, compile(t).Encode(&buf))
	path := filepath.Join(dir, "sums.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	sum := sha256.Sum256(buf.Bytes())
	return path, hex.EncodeToString(sum[:])
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	_, sum := writeCompiled(t, dir)

	manifestPath := filepath.Join(dir, "languages.toml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(`
[[language]]
name = " Sums "
path = "sums.json"
sha256 = "`+strings.ToUpper(sum)+`"
`), 0o644))

	m, err := LoadManifest(manifestPath)
	require.NoError(t, err)
	require.Len(t, m.Languages, 1)
	assert.Equal(t, "sums", m.Languages[0].Name)
	assert.Equal(t, filepath.Join(dir, "sums.json"), m.Languages[0].Path)
	assert.Equal(t, sum, m.Languages[0].SHA256)

	lang, err := m.Languages[0].Load()
	require.NoError(t, err)
	assert.Equal(t, "sums", lang.Name)

	bad := m.Languages[0]
	bad.SHA256 = strings.Repeat("0", 64)
	_, err = bad.Load()
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "no name", body: "[[language]]\npath = \"a.json\"\n", want: "name must not be empty"},
		{name: "no path", body: "[[language]]\nname = \"a\"\n", want: "path must not be empty"},
		{name: "duplicate", body: "[[language]]\nname = \"a\"\npath = \"a\"\n[[language]]\nname = \"A\"\npath = \"b\"\n", want: "duplicate language"},
		{name: "bad sum", body: "[[language]]\nname = \"a\"\npath = \"a\"\nsha256 = \"xyz\"\n", want: "64 hex digits"},
		{name: "bad toml", body: "[[language]\n", want: "manifest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "m.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadManifest(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegistryLoadsOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("sums", func() (*Language, error) {
		calls++
		return Compile(sums())
	})

	var wg sync.WaitGroup
	got := make([]*Language, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lang, err := r.Get("sums")
			assert.NoError(t, err)
			got[i] = lang
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
	for _, lang := range got {
		assert.Same(t, got[0], lang)
	}

	_, err := r.Get("java")
	assert.Error(t, err)
	assert.Equal(t, []string{"sums"}, r.Names())
}

func TestRegistryManifest(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeCompiled(t, dir)

	r := NewRegistry()
	r.AddManifest(Manifest{Languages: []Entry{{Name: "sums", Path: path}, {Name: "gone", Path: filepath.Join(dir, "gone.json")}}})

	lang, err := r.Get("sums")
	require.NoError(t, err)
	assert.Equal(t, "sums", lang.Name)

	_, err = r.Get("gone")
	var loadErr *LoadError
	assert.True(t, errors.As(err, &loadErr))
}
