package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/hybridindex/internal/app"
	"github.com/dshills/hybridindex/internal/mcp"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the MCP server on stdio.

The server runs the embedding tier probes and the store health loop in the
background. With --metrics-addr (or metrics.addr in the config) Prometheus
metrics are served on /metrics.`,
		Example: `  # Typically launched by an MCP client:
  # {
  #   "mcpServers": {
  #     "hybridindex": {
  #       "command": "hybridindex",
  #       "args": ["serve"],
  #       "env": {"JINA_API_KEY": "your-api-key"}
  #     }
  #   }
  # }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.Start(ctx)

			if metricsAddr == "" {
				metricsAddr = a.Config.Metrics.Addr
			}
			if metricsAddr != "" {
				go func() {
					if err := app.ServeMetrics(ctx, metricsAddr, a.Logger); err != nil {
						a.Logger.Error("metrics server stopped", slog.String("error", err.Error()))
					}
				}()
			}

			a.Logger.Info("MCP server ready, listening on stdio",
				slog.String("version", versionInfo.Version),
				slog.String("vector_backend", a.Config.Storage.VectorBackend))

			err = mcp.NewServer(a, versionInfo.Version).Serve(ctx)
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("server error: %w", err)
			}
			a.Logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}
