package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dhamidi/grove/config"
	"github.com/dhamidi/grove/parser"
	"github.com/dhamidi/grove/tree"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var errSyntax = errors.New("syntax errors")

func newParseCmd(cfg *config.Config) *cobra.Command {
	var lang languageFlags
	var outputFormat string
	var colorMode string
	var showStats bool

	cmd := &cobra.Command{
		Use:          "parse <file>",
		Short:        "Parse a file and dump its syntax tree",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]
			l, err := lang.load(cfg, filename)
			if err != nil {
				return fmt.Errorf("load language: %w", err)
			}
			src, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			p := parser.New(l, cfg.ParserOptions()...)
			t, err := p.Parse(src, nil, nil)
			if err != nil {
				return fmt.Errorf("parse %s: %w", filename, err)
			}

			out := cmd.OutOrStdout()
			if err := writeTree(out, t, outputFormat, newSExpStyle(colorMode, out)); err != nil {
				return err
			}
			if showStats {
				printStats(cmd.ErrOrStderr(), p.Stats())
			}
			return reportErrors(cmd.ErrOrStderr(), filename, t)
		},
	}

	lang.register(cmd)
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "sexp", "output format (sexp, json, yaml)")
	cmd.Flags().StringVar(&colorMode, "color", "auto", "colour S-expressions (auto, always, never)")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print parse statistics to stderr")

	return cmd
}

func writeTree(w io.Writer, t *tree.Tree, format string, style tree.Style) error {
	switch format {
	case "sexp":
		return tree.WriteSExp(w, t.RootNode(), style)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format: %s", format)
}

// reportErrors prints one line per error range and returns errSyntax when
// there was any.
func reportErrors(w io.Writer, filename string, t *tree.Tree) error {
	ranges := t.ErrorRanges()
	for _, r := range ranges {
		fmt.Fprintf(w, "%s:%d:%d: syntax error\n", filename, r.StartPoint.Row+1, r.StartPoint.Column+1)
	}
	if len(ranges) > 0 {
		return errSyntax
	}
	return nil
}

func printStats(w io.Writer, s parser.Stats) {
	mode := "full"
	if s.Incremental {
		mode = "incremental"
	}
	fmt.Fprintf(w, "mode:          %s\n", mode)
	fmt.Fprintf(w, "tokens:        %d\n", s.Tokens)
	fmt.Fprintf(w, "reused nodes:  %d\n", s.ReusedNodes)
	fmt.Fprintf(w, "reused leaves: %d\n", s.ReusedLeaves)
	fmt.Fprintf(w, "reused bytes:  %d\n", s.ReusedBytes)
	fmt.Fprintf(w, "shared nodes:  %d\n", s.SharedNodes)
	fmt.Fprintf(w, "max versions:  %d\n", s.MaxVersions)
	fmt.Fprintf(w, "recoveries:    %d\n", s.Recoveries)
	fmt.Fprintf(w, "duration:      %s\n", s.Duration)
}
