// Package commands implements the hybridindex command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/hybridindex/internal/app"
	"github.com/dshills/hybridindex/internal/config"
)

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
	trace      bool
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hybridindex",
		Short: "Hybrid vector and graph indexing for source code",
		Long: `hybridindex chunks source files along structural boundaries, embeds the
chunks through a fallback chain of embedding providers and writes them into a
vector store and a code graph.

Configuration is read from a YAML file (--config), a .env file and
HYBRIDINDEX_* environment variables. Logs are written to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text or json (overrides config)")
	flags.BoolVar(&opts.trace, "trace", false, "write trace spans to stderr")

	cmd.AddCommand(
		newServeCmd(opts),
		newIndexCmd(opts),
		newRemoveCmd(opts),
		newReconcileCmd(opts),
		newHealthCmd(opts),
		newSearchCmd(opts),
		NewVersionCmd(),
	)
	return cmd
}

// loadConfig resolves the configuration with the flag overrides applied
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.envFile != "" {
		if err := config.LoadDotEnv(o.envFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.trace {
		cfg.Tracing.Stdout = true
	}
	return cfg, cfg.Validate()
}

// openApp builds the application for a subcommand. The returned function
// closes it and flushes pending spans.
func (o *rootOptions) openApp(cmd *cobra.Command) (*app.App, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg.Log, cmd.ErrOrStderr())

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Tracing.Stdout {
		shutdownTracing, err = app.SetupTracing(cmd.ErrOrStderr(), versionInfo.Version)
		if err != nil {
			return nil, nil, fmt.Errorf("setup tracing: %w", err)
		}
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, nil, err
	}

	cleanup := func() {
		if err := errors.Join(a.Close(), shutdownTracing(context.Background())); err != nil {
			logger.Warn("shutdown", slog.String("error", err.Error()))
		}
	}
	return a, cleanup, nil
}
