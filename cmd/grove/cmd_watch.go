package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dhamidi/grove/config"
	"github.com/dhamidi/grove/metrics"
	"github.com/dhamidi/grove/workspace"
	"github.com/spf13/cobra"
)

func newWatchCmd(cfg *config.Config) *cobra.Command {
	var lang languageFlags
	var showStats bool

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Parse a directory and reparse files as they change",
		Long: `Parses every file below dir accepted by the [watch] include and exclude
globs of the configuration, then reparses changed files incrementally
until interrupted.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			l, err := lang.load(cfg, "")
			if err != nil {
				return fmt.Errorf("load language: %w", err)
			}
			filter, err := workspace.NewFilter(cfg.Watch.Include, cfg.Watch.Exclude)
			if err != nil {
				return err
			}

			ws := workspace.New(dir, l,
				workspace.WithFilter(filter),
				workspace.WithParserOptions(cfg.ParserOptions()...),
				workspace.WithMetrics(metrics.Default()),
			)
			if err := ws.ScanAll(); err != nil {
				return fmt.Errorf("scan %s: %w", dir, err)
			}
			out := cmd.OutOrStdout()
			for _, path := range ws.Paths() {
				printDocument(out, dir, ws.Get(path), showStats)
			}

			w, err := workspace.NewWatcher(ws, cfg.Watch.Debounce, func(changes []workspace.Change) {
				for _, c := range changes {
					switch {
					case c.Err != nil:
						fmt.Fprintf(out, "%s: %s\n", relPath(dir, c.Path), c.Err)
					case c.Doc == nil:
						fmt.Fprintf(out, "%s: removed\n", relPath(dir, c.Path))
					default:
						printDocument(out, dir, c.Doc, showStats)
					}
				}
			})
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			if err := w.Start(); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			defer w.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Infof("watching %s", dir)
			<-ctx.Done()
			return nil
		},
	}

	lang.register(cmd)
	cmd.Flags().BoolVar(&showStats, "stats", false, "print reuse statistics for each parse")

	return cmd
}

func printDocument(w io.Writer, root string, doc *workspace.Document, showStats bool) {
	if doc == nil {
		return
	}
	status := "ok"
	if n := len(doc.Tree.ErrorRanges()); n > 0 {
		status = fmt.Sprintf("%d syntax errors", n)
	}
	fmt.Fprintf(w, "%s: v%d %s", relPath(root, doc.Path), doc.Version, status)
	if showStats {
		s := doc.Stats
		fmt.Fprintf(w, " (tokens %d, reused %d nodes / %d bytes, %s)", s.Tokens, s.ReusedNodes, s.ReusedBytes, s.Duration)
	}
	fmt.Fprintln(w)
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
