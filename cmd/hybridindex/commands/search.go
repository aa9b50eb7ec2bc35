package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/hybridindex/internal/storage"
	"github.com/dshills/hybridindex/pkg/types"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		kind   string
		asJSON bool
		filter storage.VectorFilter
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over indexed chunks",
		Example: `  hybridindex search "retry with backoff"
  hybridindex search --language go --kind function --limit 5 "parse config file"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > 100 {
				return fmt.Errorf("limit must be between 1 and 100, got %d", limit)
			}
			filter.ChunkKind = types.ChunkKind(kind)

			a, cleanup, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			hits, err := a.Search(cmd.Context(), strings.Join(args, " "), limit, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, hits)
			}
			if len(hits) == 0 {
				fmt.Fprintln(out, "No results")
				return nil
			}
			for _, hit := range hits {
				fmt.Fprintf(out, "%d. %s:%d-%d  %s %s  (%.3f, %s)\n",
					hit.Rank, hit.FilePath, hit.StartLine, hit.EndLine, hit.Kind, hit.Name, hit.Score, hit.Tier)
				fmt.Fprintf(out, "   %s\n", truncate(firstLine(hit.Content), 100))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&limit, "limit", "n", 10, "maximum number of results (1-100)")
	flags.StringVar(&filter.Language, "language", "", "only chunks of this language")
	flags.StringVar(&kind, "kind", "", "only chunks of this kind (function, class, block)")
	flags.StringVar(&filter.FilePath, "file", "", "only chunks of this file")
	flags.StringVar(&filter.Tier, "tier", "", "compare against vectors of this tier instead of the query's")
	flags.Float64Var(&filter.MinScore, "min-score", 0, "minimum similarity score")
	flags.BoolVar(&asJSON, "json", false, "print the hits as JSON")
	return cmd
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncate shortens a string to maxLen runes, adding "..." if truncated
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
