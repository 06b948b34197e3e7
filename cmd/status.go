package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/kamusis/memview/internal/connection"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connection state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer s.Close()

	m := s.manager
	printSection("Connection")
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  State:\t%s\n", m.State())
	switch m.State() {
	case connection.Connected:
		fmt.Fprintf(w, "  Bundle:\t%s\n", m.SourcePath())
		fmt.Fprintf(w, "  Dimension:\t%d\n", m.Dimension())
		fmt.Fprintf(w, "  Records:\t%d\n", m.Count())
	case connection.Error:
		fmt.Fprintf(w, "  Error:\t%v\n", m.LastError())
	}
	_ = w.Flush()

	printSection("Environment")
	w = tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  Staging:\t%s\n", s.area.Dir())
	fmt.Fprintf(w, "  State:\t%s (%s)\n", s.cfg.StatePath, s.cfg.StateBackend)
	fmt.Fprintf(w, "  Strict count:\t%t\n", s.cfg.Strict())
	fmt.Fprintf(w, "  Search workers:\t%d\n", s.cfg.SearchWorkers)
	_ = w.Flush()

	if m.State() == connection.Disconnected {
		fmt.Fprintln(stdout)
		printMiss("", "no saved connection (run 'memview connect <bundle>')")
	}
	return nil
}
