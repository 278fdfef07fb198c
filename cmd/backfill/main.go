// Command backfill resolves dataset resources and streams dataset
// statements from local storage or the release archive.
//
// Configuration is read from an optional YAML file (--config) and
// BACKFILL_* environment variables.
//
// Usage:
//
//	backfill resource <dataset> <resource> [--force] [--no-backfill]
//	backfill index <dataset>
//	backfill statements <dataset> [--leaf name]... [--previous] [--format csv|jsonl|parquet]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pithecene-io/backfill/backfill"
	"github.com/pithecene-io/backfill/internal/config"
	"github.com/pithecene-io/backfill/internal/logging"
)

// app holds state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	logger  *zap.Logger
	archive *backfill.Archive
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "backfill",
		Short:         "Resolve dataset resources and stream statements",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format override (console, json)")

	root.AddCommand(
		newResourceCmd(a),
		newIndexCmd(a),
		newResourcesCmd(a),
		newIssuesCmd(a),
		newStatementsCmd(a),
		newPathsCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	bcfg, err := cfg.Backfill(logger)
	if err != nil {
		return err
	}
	archive, err := backfill.New(bcfg, backfill.WithLogger(logger))
	if err != nil {
		return err
	}

	a.logger = logger
	a.archive = archive
	return nil
}

// notAvailable turns ErrNotFound into a user-facing error.
func notAvailable(err error, what string) error {
	if errors.Is(err, backfill.ErrNotFound) {
		return fmt.Errorf("%s is not available locally or in the archive", what)
	}
	return err
}
