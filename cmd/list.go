package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/kamusis/memview/internal/bundle"
	"github.com/kamusis/memview/internal/search"
	"github.com/spf13/cobra"
)

var (
	flagListRole   string
	flagListThread string
	flagListGrep   string
	flagListOffset int
	flagListLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List records of the connected bundle",
	Long: `List records in index order, optionally filtered by metadata.

Example:
  memview list --role user --limit 20
  memview list --grep "deploy pipeline"`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&flagListRole, "role", "", "Only records with this metadata role")
	listCmd.Flags().StringVar(&flagListThread, "thread", "", "Only records with this thread id")
	listCmd.Flags().StringVar(&flagListGrep, "grep", "", "Only records whose id or content contains every word of this query")
	listCmd.Flags().IntVar(&flagListOffset, "offset", 0, "Skip this many matching records")
	listCmd.Flags().IntVar(&flagListLimit, "limit", 50, "Show at most this many records (0 = all)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	if flagListOffset < 0 || flagListLimit < 0 {
		return errors.New("--offset and --limit must not be negative")
	}
	s, err := newSession(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireConnected(s.manager); err != nil {
		return err
	}

	f := search.Filter{Role: flagListRole, ThreadID: flagListThread, Keyword: flagListGrep}
	records, positions := f.Apply(s.manager.ListRecords())
	total := len(records)
	records, positions = page(records, flagListOffset, flagListLimit), page(positions, flagListOffset, flagListLimit)

	fmt.Fprintf(stdout, "\nRecords (%d of %d shown):\n", len(records), total)
	printRecords(records, positions)
	return nil
}

func page[T any](s []T, offset, limit int) []T {
	if offset >= len(s) {
		return nil
	}
	s = s[offset:]
	if limit > 0 && len(s) > limit {
		s = s[:limit]
	}
	return s
}

func printRecords(records []bundle.Record, positions []int) {
	if len(records) == 0 {
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  #\tID\tROLE\tTHREAD\tCONTENT")
	for i, r := range records {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n",
			positions[i], r.ID, orDash(r.Metadata.Role), orDash(r.Metadata.ThreadID), preview(r.Metadata.Content, 60))
	}
	_ = w.Flush()
}
