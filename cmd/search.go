package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kamusis/memview/internal/connection"
	"github.com/kamusis/memview/internal/embeddings"
	"github.com/kamusis/memview/internal/search"
	"github.com/spf13/cobra"
)

var (
	flagSearchVector string
	flagSearchLike   string
	flagSearchText   string
	flagSearchK      int
	flagSearchRole   string
	flagSearchThread string
	flagSearchGrep   string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the records nearest to a query",
	Long: `Run a k-nearest-neighbour query against the connected bundle.

The query is one of:
  --vector 0.1,0.2,...   a literal vector of the bundle's dimension
  --like <record-id>     the vector of an existing record (excluded from results)
  --text "..."           text embedded with the configured embeddings provider

Example:
  memview search --like msg-42 -k 5
  memview search --text "database migration" --role assistant`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&flagSearchVector, "vector", "", "Query vector, comma or space separated")
	searchCmd.Flags().StringVar(&flagSearchLike, "like", "", "Use the vector of this record id")
	searchCmd.Flags().StringVar(&flagSearchText, "text", "", "Embed this text as the query (needs MEMVIEW_EMBEDDINGS_*)")
	searchCmd.Flags().IntVarP(&flagSearchK, "k", "k", 0, "Number of results (default: default_k from config)")
	searchCmd.Flags().StringVar(&flagSearchRole, "role", "", "Only records with this metadata role")
	searchCmd.Flags().StringVar(&flagSearchThread, "thread", "", "Only records with this thread id")
	searchCmd.Flags().StringVar(&flagSearchGrep, "grep", "", "Only records matching every word of this query")
	searchCmd.MarkFlagsMutuallyExclusive("vector", "like", "text")
	searchCmd.MarkFlagsOneRequired("vector", "like", "text")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireConnected(s.manager); err != nil {
		return err
	}

	k := flagSearchK
	if !cmd.Flags().Changed("k") {
		k = s.cfg.DefaultK
	}
	filter := connection.WithFilter(search.Filter{Role: flagSearchRole, ThreadID: flagSearchThread, Keyword: flagSearchGrep})

	var (
		results []search.Result
		query   string
	)
	switch {
	case flagSearchLike != "":
		query = "like " + flagSearchLike
		results, err = s.manager.SearchSimilar(ctx, flagSearchLike, k, filter)
	case flagSearchText != "":
		query = strconv.Quote(flagSearchText)
		var vec []float32
		if vec, err = embedQuery(ctx, flagSearchText); err != nil {
			return err
		}
		results, err = s.manager.Search(ctx, vec, k, filter)
	default:
		query = "vector"
		var vec []float32
		if vec, err = parseVector(flagSearchVector); err != nil {
			return err
		}
		results, err = s.manager.Search(ctx, vec, k, filter)
	}
	if err != nil {
		return err
	}
	printSearchResults(query, results)
	return nil
}

// parseVector parses components separated by commas and/or whitespace.
// Surrounding brackets are accepted so a pasted JSON array works.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil, errors.New("empty query vector")
	}
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %d (%q): %w", i, f, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func embedQuery(ctx context.Context, text string) ([]float32, error) {
	embCfg, err := embeddings.LoadConfig()
	if err != nil {
		return nil, err
	}
	prov, err := embeddings.NewFromConfig(embCfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	vecs, err := prov.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("cannot embed query with %s: %w", prov.ModelID(), err)
	}
	return vecs[0], nil
}

func printSearchResults(query string, results []search.Result) {
	fmt.Fprintf(stdout, "\nmemview search %s\n\n", query)
	fmt.Fprintf(stdout, "Results (%d found):\n", len(results))
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	for i, r := range results {
		fmt.Fprintf(w, "  %d.\t[%.4f]\t%s\t%s\n", i+1, r.Distance, r.Record.ID, orDash(r.Record.Metadata.Role))
		if c := r.Record.Metadata.Content; c != "" {
			fmt.Fprintf(w, "  - %s\n", preview(c, 100))
		}
	}
	_ = w.Flush()
}
