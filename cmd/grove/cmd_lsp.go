package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dhamidi/grove/config"
	"github.com/dhamidi/grove/lsp"
	"github.com/dhamidi/grove/metrics"
	"github.com/dhamidi/grove/workspace"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newLSPCmd(cfg *config.Config) *cobra.Command {
	var lang languageFlags
	var metricsAddr string

	cmd := &cobra.Command{
		Use:          "lsp",
		Short:        "Start the language server on stdio",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := lang.load(cfg, "")
			if err != nil {
				return fmt.Errorf("load language: %w", err)
			}
			filter, err := workspace.NewFilter(cfg.Watch.Include, cfg.Watch.Exclude)
			if err != nil {
				return err
			}

			addr := cfg.LSP.MetricsAddr
			if cmd.Flags().Changed("metrics-addr") {
				addr = metricsAddr
			}
			if addr != "" {
				go serveMetrics(addr)
			}

			server := lsp.NewServer(l, version,
				lsp.WithWorkspaceOptions(
					workspace.WithFilter(filter),
					workspace.WithParserOptions(cfg.ParserOptions()...),
					workspace.WithMetrics(metrics.Default()),
				),
				lsp.WithDiagnosticsRate(rate.Limit(cfg.LSP.DiagnosticsRate), cfg.LSP.DiagnosticsBurst),
			)
			return server.RunStdio()
		},
	}

	lang.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func serveMetrics(addr string) {
	metrics.Default()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Infof("serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("metrics server: %s", err)
	}
}
