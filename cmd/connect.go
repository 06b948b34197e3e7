package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect <bundle>",
	Short: "Open a bundle and remember it for later commands",
	Long: `Parse the bundle, stage its index payload, open it and verify that the
index row count matches the number of records.

The bundle path is saved in ~/.memview and reopened by every later command
until 'memview disconnect'.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Close the connection and forget the saved bundle",
	Args:  cobra.NoArgs,
	RunE:  runDisconnect,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reopen the saved bundle from disk",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

func init() {
	rootCmd.AddCommand(connectCmd, disconnectCmd, refreshCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.Connect(cmd.Context(), args[0]); err != nil {
		return err
	}
	printOK("", fmt.Sprintf("connected: %s", s.manager.SourcePath()))
	printInfo("", fmt.Sprintf("dimension %d, %d record(s)", s.manager.Dimension(), s.manager.Count()))
	return nil
}

func runDisconnect(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.Disconnect(cmd.Context()); err != nil {
		return err
	}
	printOK("", "disconnected")
	return nil
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	found, err := s.manager.Restore(cmd.Context())
	if err != nil {
		return err
	}
	if !found {
		printSkip("", "no saved bundle — nothing to refresh")
		return nil
	}
	printOK("", fmt.Sprintf("refreshed: %s", s.manager.SourcePath()))
	printInfo("", fmt.Sprintf("dimension %d, %d record(s)", s.manager.Dimension(), s.manager.Count()))
	return nil
}
