package main

import (
	"fmt"
	"os"

	"github.com/dhamidi/grove/config"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var version = "0.1.0"

var log = commonlog.GetLogger("grove")

type globalFlags struct {
	configPath string
	verbosity  int
	logFile    string
}

func main() {
	flags := &globalFlags{}
	cfg := config.Default()

	rootCmd := &cobra.Command{
		Use:     "grove",
		Short:   "An incremental parser for hardware description languages",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadOrDefault(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("verbose") {
				loaded.Log.Verbosity = flags.verbosity
			}
			if cmd.Flags().Changed("log-file") {
				loaded.Log.File = flags.logFile
			}
			*cfg = *loaded
			configureLogging(cfg.Log)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", config.FileName, "configuration file")
	rootCmd.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", "increase log verbosity")
	rootCmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "write logs to this file instead of stderr")

	rootCmd.AddCommand(newParseCmd(cfg))
	rootCmd.AddCommand(newEditCmd(cfg))
	rootCmd.AddCommand(newWatchCmd(cfg))
	rootCmd.AddCommand(newLSPCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func configureLogging(l config.Log) {
	if l.File == "" {
		commonlog.Configure(l.Verbosity, nil)
		return
	}
	path := l.File
	commonlog.Configure(l.Verbosity, &path)
}
