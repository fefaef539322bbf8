package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dhamidi/grove/language"
	"github.com/dhamidi/grove/parser"
	"github.com/dhamidi/grove/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listEBNF = `
list = "[" [ item { "," item } ] "]" .
item = Number | Ident | list .
Number = Digit { Digit } .
Ident = Letter { Letter | Digit } .
Digit = "0" … "9" .
Letter = "a" … "z" .
WhiteSpace = " " | "\n" .
`

func writeGrammar(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "list.ebnf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newEbnfCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEbnfCheck(t *testing.T) {
	path := writeGrammar(t, listEBNF)

	_, err := run(t, "check", path)
	require.NoError(t, err)

	out, err := run(t, "check", path, "--start", "list", "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "states")
	assert.NotContains(t, out, "undeclared")
}

func TestEbnfCheckErrors(t *testing.T) {
	_, err := run(t, "check", writeGrammar(t, `list = "[" .`+"\n"+`broken = .`), "--start", "list")
	require.Error(t, err)

	_, err = run(t, "check", writeGrammar(t, `list = "[" missing "]" .`), "--start", "list")
	require.Error(t, err)

	_, err = run(t, "check", filepath.Join(t.TempDir(), "nope.ebnf"))
	require.Error(t, err)
}

func TestEbnfCompile(t *testing.T) {
	path := writeGrammar(t, listEBNF)
	output := filepath.Join(t.TempDir(), "list.json")

	_, err := run(t, "compile", path, "--start", "list", "-o", output)
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	lang, err := language.Decode(f)
	require.NoError(t, err)

	tr, err := parser.New(lang).ParseString("[1, ab, [c2]]")
	require.NoError(t, err)
	assert.False(t, tr.HasError())
	assert.Equal(t, "list", tr.RootNode().Kind())
	assert.Contains(t, tree.SExp(tr.RootNode()), "(list")
}
