package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/grove/parser"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, parser.DefaultMaxVersions, cfg.Parser.MaxVersions)
	assert.Equal(t, parser.DefaultMaxStackDepth, cfg.Parser.MaxStackDepth)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
	assert.NotEmpty(t, cfg.Watch.Include)
	assert.NoError(t, cfg.Validate())
	assert.Len(t, cfg.ParserOptions(), 3)
}

func TestLoad(t *testing.T) {
	path := write(t, `
[log]
verbosity = 4
file = "grove.log"

[parser]
max_versions = 3
step_limit = 5000

[lsp]
metrics_addr = ":9464"

[watch]
include = ["src/**.bsv"]
debounce = "50ms"

[[language]]
name = " BSV "
path = "langs/bsv.json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Log.Verbosity)
	assert.Equal(t, "grove.log", cfg.Log.File)
	assert.Equal(t, 3, cfg.Parser.MaxVersions)
	assert.Equal(t, parser.DefaultMaxStackDepth, cfg.Parser.MaxStackDepth)
	assert.Equal(t, 5000, cfg.Parser.StepLimit)
	assert.Equal(t, ":9464", cfg.LSP.MetricsAddr)
	assert.Equal(t, []string{"src/**.bsv"}, cfg.Watch.Include)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)

	require.Len(t, cfg.Languages, 1)
	assert.Equal(t, "bsv", cfg.Languages[0].Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "langs", "bsv.json"), cfg.Languages[0].Path)
	assert.Len(t, cfg.Manifest().Languages, 1)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "syntax", content: "[log\n", want: "config"},
		{name: "verbosity", content: "[log]\nverbosity = 9\n", want: "log.verbosity"},
		{name: "step limit", content: "[parser]\nstep_limit = -1\n", want: "parser.step_limit"},
		{name: "glob", content: "[watch]\ninclude = [\"[\"]\n", want: "watch.include[0]"},
		{name: "duplicate language", content: "[[language]]\nname = \"a\"\npath = \"a.json\"\n[[language]]\nname = \"A\"\npath = \"b.json\"\n", want: "duplicate language"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.content))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GROVE_PARSER_MAX_VERSIONS", "2")
	t.Setenv("GROVE_WATCH_DEBOUNCE", "1s")
	t.Setenv("GROVE_LOG_VERBOSITY", "not a number")

	cfg, err := Load(write(t, "[log]\nverbosity = 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Parser.MaxVersions)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, 1, cfg.Log.Verbosity)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Watch, cfg.Watch)
}
