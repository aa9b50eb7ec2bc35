package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/hybridindex/internal/indexer"
	"github.com/dshills/hybridindex/pkg/types"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var (
		idx      indexer.Options
		asJSON   bool
		maxBytes int64
	)

	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Index files and directories",
		Long: `Index files and directories into the vector and graph stores.

Files whose content hash is unchanged since the last complete run are
skipped unless --force is given. Files with failed chunks stay eligible and
are retried on the next run.`,
		Example: `  hybridindex index ./src
  hybridindex index --include-tests --workers 4 ./service ./lib/util.go`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots := make([]string, len(args))
			for i, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				roots[i] = abs
			}
			if idx.Workers < 0 {
				return fmt.Errorf("workers must be positive, got %d", idx.Workers)
			}
			idx.MaxFileBytes = maxBytes

			a, cleanup, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := a.Pipeline.IndexPaths(cmd.Context(), roots, &idx)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			printStatistics(cmd.OutOrStdout(), stats)
			if stats.FilesFailed > 0 {
				return fmt.Errorf("%d files failed", stats.FilesFailed)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&idx.Force, "force", "f", false, "re-index files whose content is unchanged")
	flags.BoolVar(&idx.IncludeTests, "include-tests", false, "index test files")
	flags.BoolVar(&idx.IncludeVendor, "include-vendor", false, "index vendor/ and node_modules/")
	flags.IntVarP(&idx.Workers, "workers", "w", 0, "files indexed concurrently (default: number of CPUs)")
	flags.Int64Var(&maxBytes, "max-file-bytes", indexer.DefaultMaxFileBytes, "skip files larger than this")
	flags.BoolVar(&asJSON, "json", false, "print the statistics as JSON")
	return cmd
}

func printStatistics(w io.Writer, stats *indexer.Statistics) {
	fmt.Fprintf(w, "Files:  %d indexed, %d skipped, %d failed, %d superseded\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed, stats.FilesSuperseded)
	fmt.Fprintf(w, "Chunks: %d complete, %d partial, %d failed\n",
		stats.ChunksComplete, stats.ChunksPartial, stats.ChunksFailed)
	fmt.Fprintf(w, "Took:   %s\n", stats.Duration.Round(time.Millisecond))

	for _, f := range stats.Files {
		if f.Partial == 0 && f.Failed == 0 && !f.Degraded {
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", f.FilePath, fileNote(f))
	}
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
}

func fileNote(f *types.FileSummary) string {
	note := fmt.Sprintf("%d/%d complete", f.Complete, f.Chunks)
	if f.Partial > 0 {
		note += fmt.Sprintf(", %d awaiting reconcile", f.Partial)
	}
	if f.Failed > 0 {
		note += fmt.Sprintf(", %d failed", f.Failed)
	}
	if f.Degraded {
		note += ", generic split"
	}
	return note
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
