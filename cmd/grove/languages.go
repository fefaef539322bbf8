package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dhamidi/grove/bsv"
	"github.com/dhamidi/grove/config"
	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/language"
	"github.com/spf13/cobra"
)

// languageFlags select the language a command parses with: a compiled
// language file, an EBNF grammar, or a registered name.
type languageFlags struct {
	name    string
	grammar string
	ebnf    string
	start   string
}

func (f *languageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "language", "l", "", "registered language name (default: chosen by file extension)")
	cmd.Flags().StringVar(&f.grammar, "grammar", "", "compiled language file")
	cmd.Flags().StringVar(&f.ebnf, "ebnf", "", "EBNF grammar file to compile on the fly")
	cmd.Flags().StringVar(&f.start, "start", "", "start production of the EBNF grammar")
	cmd.MarkFlagsMutuallyExclusive("language", "grammar", "ebnf")
}

func newRegistry(cfg *config.Config) *language.Registry {
	reg := language.NewRegistry()
	reg.Register(bsv.Name, bsv.Language)
	reg.AddManifest(cfg.Manifest())
	return reg
}

// load resolves the language for filename.
func (f *languageFlags) load(cfg *config.Config, filename string) (*language.Language, error) {
	switch {
	case f.grammar != "":
		file, err := os.Open(f.grammar)
		if err != nil {
			return nil, fmt.Errorf("open grammar: %w", err)
		}
		defer file.Close()
		return language.Decode(file)
	case f.ebnf != "":
		if f.start == "" {
			return nil, fmt.Errorf("--ebnf needs --start")
		}
		g, err := grammar.LoadEBNF(f.ebnf, f.start)
		if err != nil {
			return nil, err
		}
		return language.Compile(g)
	}

	name := f.name
	if name == "" {
		name = bsv.Name
		if ext := filepath.Ext(filename); ext != "" && !slices.Contains(bsv.Extensions, ext) {
			log.Debugf("no language registered for %s, using %s", ext, bsv.Name)
		}
	}
	return newRegistry(cfg).Get(name)
}
