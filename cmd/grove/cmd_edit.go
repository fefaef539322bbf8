package main

import (
	"fmt"
	"os"

	"github.com/dhamidi/grove/config"
	"github.com/dhamidi/grove/diff"
	"github.com/dhamidi/grove/parser"
	"github.com/dhamidi/grove/text"
	"github.com/dhamidi/grove/tree"
	"github.com/spf13/cobra"
)

func newEditCmd(cfg *config.Config) *cobra.Command {
	var lang languageFlags
	var start, end int
	var replacement string
	var verify bool
	var write bool
	var colorMode string

	cmd := &cobra.Command{
		Use:   "edit <file>",
		Short: "Apply an edit to a file and reparse it incrementally",
		Long: `Parses the file, replaces the bytes [from, to) with the given text and
reparses incrementally from the first tree. Reuse statistics go to stderr.
With --verify the result must equal a full parse and keep every node
outside the invalidated ranges of the first tree.`,
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
			if end < 0 {
				end = start
			}

			p := parser.New(l, cfg.ParserOptions()...)
			old, err := p.Parse(src, nil, nil)
			if err != nil {
				return fmt.Errorf("parse %s: %w", filename, err)
			}
			edit, newSrc, err := text.EditFor(src, start, end, []byte(replacement))
			if err != nil {
				return err
			}
			t, err := p.Parse(newSrc, old, []text.Edit{edit})
			if err != nil {
				return fmt.Errorf("reparse %s: %w", filename, err)
			}
			printStats(cmd.ErrOrStderr(), p.Stats())

			if verify {
				full, err := parser.New(l, cfg.ParserOptions()...).Parse(newSrc, nil, nil)
				if err != nil {
					return fmt.Errorf("full parse %s: %w", filename, err)
				}
				if !tree.Equal(t.Root(), full.Root()) {
					return fmt.Errorf("incremental tree differs from full parse")
				}
				unshared, err := diff.Unshared(old, t, edit)
				if err != nil {
					return err
				}
				if len(unshared) > 0 {
					return fmt.Errorf("incremental tree rebuilt %d unchanged nodes, first at %s", len(unshared), unshared[0])
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "verified: incremental tree equals full parse and shares every unchanged node")
			}
			if write {
				info, err := os.Stat(filename)
				if err != nil {
					return err
				}
				if err := os.WriteFile(filename, newSrc, info.Mode().Perm()); err != nil {
					return fmt.Errorf("write file: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if err := tree.WriteSExp(out, t.RootNode(), newSExpStyle(colorMode, out)); err != nil {
				return err
			}
			return reportErrors(cmd.ErrOrStderr(), filename, t)
		},
	}

	lang.register(cmd)
	cmd.Flags().IntVar(&start, "from", 0, "first byte to replace")
	cmd.Flags().IntVar(&end, "to", -1, "end of the replaced bytes (default: from, an insertion)")
	cmd.Flags().StringVar(&replacement, "text", "", "replacement text")
	cmd.Flags().BoolVar(&verify, "verify", false, "check the result against a full parse")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the edited source back to the file")
	cmd.Flags().StringVar(&colorMode, "color", "auto", "colour S-expressions (auto, always, never)")

	return cmd
}
