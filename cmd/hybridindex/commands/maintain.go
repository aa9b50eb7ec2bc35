package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>...",
		Short: "Remove files from both stores",
		Long: `Remove files from the vector store, the graph and the record catalog.

Paths are resolved to absolute paths, matching how index stores them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				if err := a.Hybrid.RemoveFile(cmd.Context(), path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
			}
			return nil
		},
	}
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay pending graph writes",
		Long: `Replay the graph writes of chunks recorded as PARTIAL_VECTOR_ONLY.

Chunks whose graph write succeeds become COMPLETE. The rest stay pending
for the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := a.Hybrid.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pending: %d, reconciled: %d, still pending: %d, graph cleanups: %d\n",
				report.Pending, report.Reconciled, report.Failed, report.Cleaned)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show store, tier and cache health as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			a.Embedder.ProbeNow(cmd.Context())
			health, err := a.Health(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), health)
		},
	}
}
