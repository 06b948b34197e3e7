package cmd

import (
	"fmt"
	"os"

	"github.com/kamusis/memview/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.memview with a default config",
	Long: `Initialize ~/.memview/:

  config.yaml   staging directory, state backend, search defaults, logging
  .env          embeddings provider settings (MEMVIEW_EMBEDDINGS_*)

Existing files are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var flagInitBackend string

func init() {
	initCmd.Flags().StringVar(&flagInitBackend, "state-backend", config.BackendFile, "Where the saved connection lives: file or sqlite")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	dir, err := config.MemviewDir()
	if err != nil {
		return err
	}
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	printOK("", fmt.Sprintf("memview directory ready: %s", dir))

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		switch flagInitBackend {
		case config.BackendFile, config.BackendSQLite:
			cfg.StateBackend = flagInitBackend
		default:
			return fmt.Errorf("unsupported --state-backend: %s", flagInitBackend)
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}

	if err := config.EnsureDotEnvTemplate(); err != nil {
		return err
	}
	envPath, _ := config.DotEnvPath()
	printOK("", fmt.Sprintf(".env ready: %s", envPath))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.StagingDir, 0o700); err != nil {
		return fmt.Errorf("cannot create staging dir %s: %w", cfg.StagingDir, err)
	}
	printOK("", fmt.Sprintf("Staging directory ready: %s", cfg.StagingDir))

	fmt.Fprintln(stdout, "\n✓  memview init complete. Run 'memview connect <bundle>' to open a bundle.")
	return nil
}
