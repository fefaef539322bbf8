// Package config loads grove.toml, the settings shared by the grove
// commands and the language server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/grove/language"
	"github.com/dhamidi/grove/parser"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "grove.toml"

var log = commonlog.GetLogger("grove.config")

type Config struct {
	Log       Log              `toml:"log"`
	Parser    Parser           `toml:"parser"`
	LSP       LSP              `toml:"lsp"`
	Watch     Watch            `toml:"watch"`
	Languages []language.Entry `toml:"language"`
}

type Log struct {
	// Verbosity follows commonlog: 0 is errors only, 2 adds info, 4 debug.
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

type Parser struct {
	MaxVersions   int `toml:"max_versions"`
	MaxStackDepth int `toml:"max_stack_depth"`
	// StepLimit of zero scales with the input size.
	StepLimit int `toml:"step_limit"`
}

type LSP struct {
	MetricsAddr string `toml:"metrics_addr"`
	// DiagnosticsRate is the number of diagnostics notifications per second
	// published for one document.
	DiagnosticsRate  float64 `toml:"diagnostics_rate"`
	DiagnosticsBurst int     `toml:"diagnostics_burst"`
}

// Watch selects the files the watcher and the workspace scan. Include
// globs match the slash separated path relative to the root; Exclude globs
// match the relative path or any of its components.
type Watch struct {
	Include  []string      `toml:"include"`
	Exclude  []string      `toml:"exclude"`
	Debounce time.Duration `toml:"debounce"`
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file, fills in defaults, applies GROVE_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key)
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)

	manifest := language.Manifest{Languages: cfg.Languages}
	if err := manifest.Normalize(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Languages = manifest.Languages

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it exists and returns the defaults
// otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		ApplyEnvOverrides(cfg)
		return cfg, nil
	}
	return Load(path)
}

func applyDefaults(cfg *Config) {
	if cfg.Parser.MaxVersions <= 0 {
		cfg.Parser.MaxVersions = parser.DefaultMaxVersions
	}
	if cfg.Parser.MaxStackDepth <= 0 {
		cfg.Parser.MaxStackDepth = parser.DefaultMaxStackDepth
	}
	if cfg.LSP.DiagnosticsRate <= 0 {
		cfg.LSP.DiagnosticsRate = 4
	}
	if cfg.LSP.DiagnosticsBurst <= 0 {
		cfg.LSP.DiagnosticsBurst = 1
	}
	if len(cfg.Watch.Include) == 0 {
		cfg.Watch.Include = []string{"**.bsv", "**.bs"}
	}
	if len(cfg.Watch.Exclude) == 0 {
		cfg.Watch.Exclude = []string{".git", "build"}
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 200 * time.Millisecond
	}
}

// Validate checks the values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Log.Verbosity < 0 || c.Log.Verbosity > 6 {
		return fmt.Errorf("log.verbosity must be between 0 and 6, got %d", c.Log.Verbosity)
	}
	if c.Parser.StepLimit < 0 {
		return fmt.Errorf("parser.step_limit must not be negative, got %d", c.Parser.StepLimit)
	}
	for i, pattern := range c.Watch.Include {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("watch.include[%d]: %w", i, err)
		}
	}
	for i, pattern := range c.Watch.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("watch.exclude[%d]: %w", i, err)
		}
	}
	return nil
}

// ParserOptions turns the [parser] table into parser options.
func (c *Config) ParserOptions() []parser.Option {
	return []parser.Option{
		parser.WithMaxVersions(c.Parser.MaxVersions),
		parser.WithMaxStackDepth(c.Parser.MaxStackDepth),
		parser.WithStepLimit(c.Parser.StepLimit),
	}
}

// Manifest returns the [[language]] entries as a manifest.
func (c *Config) Manifest() language.Manifest {
	return language.Manifest{Languages: c.Languages}
}

// ApplyEnvOverrides applies GROVE_<SECTION>_<KEY> environment variables.
func ApplyEnvOverrides(cfg *Config) {
	setEnvInt(&cfg.Log.Verbosity, "GROVE_LOG_VERBOSITY")
	setEnvString(&cfg.Log.File, "GROVE_LOG_FILE")
	setEnvInt(&cfg.Parser.MaxVersions, "GROVE_PARSER_MAX_VERSIONS")
	setEnvInt(&cfg.Parser.MaxStackDepth, "GROVE_PARSER_MAX_STACK_DEPTH")
	setEnvInt(&cfg.Parser.StepLimit, "GROVE_PARSER_STEP_LIMIT")
	setEnvString(&cfg.LSP.MetricsAddr, "GROVE_LSP_METRICS_ADDR")
	setEnvDuration(&cfg.Watch.Debounce, "GROVE_WATCH_DEBOUNCE")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Debugf("applying env override %s=%s", key, val)
		*target = strings.TrimSpace(val)
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			log.Warningf("ignoring %s=%q: %s", key, val, err)
			return
		}
		*target = n
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			log.Warningf("ignoring %s=%q: %s", key, val, err)
			return
		}
		*target = d
	}
}
