package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/language"
	"github.com/spf13/cobra"
	"golang.org/x/exp/ebnf"
)

func newEbnfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ebnf",
		Short:         "EBNF grammar tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newEbnfCheckCmd())
	cmd.AddCommand(newEbnfCompileCmd())

	return cmd
}

func newEbnfCheckCmd() *cobra.Command {
	var startProduction string
	var strict bool

	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Parse and verify an EBNF grammar file",
		Long: `Checks the syntax of an EBNF grammar file. With --start the grammar is also
verified from that production, with WhiteSpace and Comment as extra roots,
and compiled into a parse table, and the
table's conflicts are listed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]

			f, err := os.Open(filename)
			if err != nil {
				return fmt.Errorf("open file: %w", err)
			}
			defer f.Close()

			parsed, err := ebnf.Parse(filename, f)
			if err != nil {
				printErrors(err)
				return err
			}
			if startProduction == "" {
				return nil
			}
			g, err := grammar.FromEBNF(grammarName(filename), parsed, startProduction)
			if err != nil {
				fmt.Println(err)
				return err
			}
			lang, err := language.Compile(g)
			if err != nil {
				fmt.Println(err)
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d symbols, %d productions, %d states\n",
				lang.SymbolCount(), len(lang.Productions), lang.Table.StateCount())
			undeclared := printConflicts(out, lang)
			if strict && undeclared > 0 {
				return fmt.Errorf("%d undeclared conflicts", undeclared)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&startProduction, "start", "", "start production for verification (if empty, only checks syntax)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when the table has conflicts")

	return cmd
}

func newEbnfCompileCmd() *cobra.Command {
	var startProduction string
	var output string

	cmd := &cobra.Command{
		Use:           "compile <file>",
		Short:         "Compile an EBNF grammar into a language file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]

			g, err := grammar.LoadEBNF(filename, startProduction)
			if err != nil {
				fmt.Println(err)
				return err
			}
			lang, err := language.Compile(g)
			if err != nil {
				fmt.Println(err)
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := lang.Encode(w); err != nil {
				return err
			}
			printConflicts(cmd.ErrOrStderr(), lang)
			return nil
		},
	}

	cmd.Flags().StringVar(&startProduction, "start", "", "start production")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

// printConflicts lists the conflicts of the table and returns how many of
// them no declared conflict covers.
func printConflicts(w io.Writer, lang *language.Language) int {
	undeclared := 0
	for _, c := range lang.Table.Conflicts {
		marker := "declared"
		if !c.Declared {
			marker = "undeclared"
			undeclared++
		}
		fmt.Fprintf(w, "%s conflict: %s\n", marker, c)
	}
	return undeclared
}

func grammarName(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
}

func printErrors(err error) {
	v := reflect.ValueOf(err)
	if v.Kind() == reflect.Slice {
		for i := 0; i < v.Len(); i++ {
			fmt.Println(v.Index(i).Interface())
		}
	} else {
		fmt.Println(err)
	}
}
