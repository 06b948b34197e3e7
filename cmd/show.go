package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var flagShowFull bool

var showCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show one record with its metadata and vector",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&flagShowFull, "full", false, "Print every vector component")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireConnected(s.manager); err != nil {
		return err
	}

	r, ok := s.manager.LookupRecord(args[0])
	if !ok {
		printMiss(args[0], "no such record")
		return fmt.Errorf("record %q not found in %s", args[0], s.manager.SourcePath())
	}

	fmt.Fprintf(stdout, "\n● %s\n", r.ID)
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  Role:\t%s\n", orDash(r.Metadata.Role))
	fmt.Fprintf(w, "  Thread:\t%s\n", orDash(r.Metadata.ThreadID))
	fmt.Fprintf(w, "  Timestamp:\t%s\n", orDash(r.Metadata.Timestamp))
	for _, k := range slices.Sorted(maps.Keys(r.Metadata.Extra)) {
		v, err := json.Marshal(r.Metadata.Extra[k])
		if err != nil {
			v = []byte(fmt.Sprint(r.Metadata.Extra[k]))
		}
		fmt.Fprintf(w, "  %s:\t%s\n", k, v)
	}
	n := 8
	if flagShowFull {
		n = len(r.Vector)
	}
	fmt.Fprintf(w, "  Vector:\t%d dims %s\n", len(r.Vector), formatVector(r.Vector, n))
	_ = w.Flush()

	if r.Metadata.Content != "" {
		printBullet("Content:")
		fmt.Fprintln(stdout, r.Metadata.Content)
	}
	return nil
}
