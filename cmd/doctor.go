package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kamusis/memview/internal/bundle"
	"github.com/kamusis/memview/internal/config"
	"github.com/kamusis/memview/internal/embeddings"
	"github.com/kamusis/memview/internal/staging"
	"github.com/spf13/cobra"
)

// orphanAge is how old a staged file must be before doctor treats it as left
// behind by a crashed process.
const orphanAge = 10 * time.Minute

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight environment checks",
	Long: `Check that memview's configuration, staging directory, saved connection
and embeddings settings are usable. Run this command when something seems
wrong, or before filing a bug report.`,
	RunE: runDoctor,
}

var doctorFixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Automatically fix detected issues",
	Long: `Fix detected issues in the memview environment.

Currently fixes:
  - Orphaned staging files: removes staged index files older than 10 minutes

Run 'memview doctor' first to see what will be fixed.`,
	RunE: runDoctorFix,
}

func init() {
	doctorCmd.AddCommand(doctorFixCmd)
	rootCmd.AddCommand(doctorCmd)
}

func runDoctorFix(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	area, err := staging.New(cfg.StagingDir)
	if err != nil {
		return err
	}

	printSection("memview doctor fix")
	fmt.Fprintln(stdout, "\n[ Orphaned staging files ]")
	n, err := area.Sweep(orphanAge)
	if err != nil {
		return err
	}
	if n == 0 {
		printOK("", "no orphaned staging files — nothing to fix")
		return nil
	}
	printOK("", fmt.Sprintf("%d orphaned staging file(s) removed from %s", n, area.Dir()))
	return nil
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}

	printSection("memview doctor")
	fmt.Fprintln(stdout)

	// ── Check 1: config ──────────────────────────────────────────────────────
	fmt.Fprintln(stdout, "[ config.yaml ]")
	cfgPath, err := config.ConfigPath()
	if err != nil {
		failD("cannot determine home directory: %v", err)
	} else if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		printWarn("", fmt.Sprintf("%s not found — using defaults (run 'memview init' to write one)", cfgPath))
	}
	cfg, loadErr := loadConfig()
	if loadErr != nil {
		failD("%v", loadErr)
	} else {
		printOK("", fmt.Sprintf("valid — state backend %s, default k %d", cfg.StateBackend, cfg.DefaultK))
	}
	fmt.Fprintln(stdout)

	// ── Check 2: staging directory ───────────────────────────────────────────
	fmt.Fprintln(stdout, "[ Staging ]")
	if loadErr == nil {
		if area, err := staging.New(cfg.StagingDir); err != nil {
			failD("%v", err)
		} else {
			checkStaging(cmd.Context(), area, failD)
		}
	} else {
		printSkip("", "skipped (config not loaded)")
	}
	fmt.Fprintln(stdout)

	// ── Check 3: saved connection ────────────────────────────────────────────
	fmt.Fprintln(stdout, "[ Saved connection ]")
	if loadErr == nil {
		checkSavedConnection(cmd.Context(), cfg, failD)
	} else {
		printSkip("", "skipped (config not loaded)")
	}
	fmt.Fprintln(stdout)

	// ── Check 4: embeddings ──────────────────────────────────────────────────
	fmt.Fprintln(stdout, "[ Embeddings ]")
	if embCfg, err := embeddings.LoadConfig(); err != nil {
		failD("cannot read embeddings settings: %v", err)
	} else if _, err := embeddings.NewFromConfig(embCfg); errors.Is(err, embeddings.ErrNotConfigured) {
		printSkip("", "not configured (search --text and pack --embed unavailable)")
	} else if err != nil {
		failD("%v", err)
	} else if embCfg.Model == "" || embCfg.APIKey == "" {
		printWarn("", fmt.Sprintf("provider %s set but %s or %s is empty", embCfg.Provider, embeddings.EnvModel, embeddings.EnvAPIKey))
	} else {
		printOK("", fmt.Sprintf("%s:%s at %s", embCfg.Provider, embCfg.Model, embCfg.BaseURL))
	}
	fmt.Fprintln(stdout)

	// ── Summary ──────────────────────────────────────────────────────────────
	fmt.Fprintln(stdout, "===================")
	if allOK {
		fmt.Fprintln(stdout, "✓  All checks passed. memview is ready to use.")
		return nil
	}
	fmt.Fprintln(stderr, "✗  One or more checks failed. See details above.")
	return errors.New("doctor found issues")
}

func checkStaging(ctx context.Context, area *staging.Area, failD func(string, ...any)) {
	probe, err := area.Stage(ctx, []byte("probe"))
	if err != nil {
		failD("staging dir not writable: %v", err)
		return
	}
	if err := probe.Release(); err != nil {
		failD("cannot remove staged file: %v", err)
		return
	}
	printOK("", fmt.Sprintf("writable: %s", area.Dir()))

	orphans, err := area.Orphans(orphanAge)
	switch {
	case err != nil:
		failD("%v", err)
	case len(orphans) > 0:
		for _, o := range orphans {
			printWarn("", o)
		}
		printWarn("", fmt.Sprintf("%d orphaned staging file(s) — run 'memview doctor fix'", len(orphans)))
	default:
		printOK("", "no orphaned staging files")
	}
}

func checkSavedConnection(ctx context.Context, cfg *config.Config, failD func(string, ...any)) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		failD("cannot open state %s: %v", cfg.StatePath, err)
		return
	}
	defer func() { _ = closeStore() }()

	path, err := store.Load(ctx)
	if err != nil {
		failD("cannot read state %s: %v", cfg.StatePath, err)
		return
	}
	if path == "" {
		printSkip("", "none")
		return
	}
	b, err := bundle.Parse(path)
	if err != nil {
		failD("%s: %v", path, err)
		return
	}
	printOK("", fmt.Sprintf("%s (%d records, %d-byte index)", path, len(b.Records), len(b.Index)))
}
