package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kamusis/memview/internal/config"
	"github.com/kamusis/memview/internal/connection"
	"github.com/kamusis/memview/internal/engine/flat"
	"github.com/kamusis/memview/internal/logging"
	"github.com/kamusis/memview/internal/staging"
	"github.com/kamusis/memview/internal/state"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "memview",
	Short:         "memview — inspect and search vector-index bundles",
	SilenceUsage:  true, // don't print usage on operational errors
	SilenceErrors: true, // Execute prints errors itself
	Long: `memview opens a vector-index bundle (a JSON file carrying a binary index
and the records it was built from), keeps one connection to it, and answers
nearest-neighbour queries against it.

The last connected bundle is remembered in ~/.memview and restored by the
next command.`,
}

var flagLogLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}

// Execute is called by main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printErr("", err.Error())
		os.Exit(1)
	}
}

// session is the per-command wiring of config, logger, staging area, engine
// and state store around one connection Manager.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	area    *staging.Area
	manager *connection.Manager
	closers []func() error
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w\nRun 'memview init' first.", err)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(stderr, level, cfg.LogFormat)
}

// openStore returns the PathStore selected by state_backend and its closer.
func openStore(ctx context.Context, cfg *config.Config) (connection.PathStore, func() error, error) {
	switch cfg.StateBackend {
	case config.BackendSQLite:
		s, err := state.OpenSQLite(ctx, cfg.StatePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return state.NewFileStore(cfg.StatePath), func() error { return nil }, nil
	}
}

// newSession wires a Manager. When restore is set the persisted connection is
// reopened; a failed restore leaves the Manager in Error for the caller to report.
func newSession(ctx context.Context, restore bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	area, err := staging.New(cfg.StagingDir, staging.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	eng := flat.New(
		flat.WithWorkers(cfg.SearchWorkers),
		flat.WithMaxBodySize(cfg.MaxIndexBytes),
		flat.WithLogger(logger),
	)
	m := connection.New(eng, area,
		connection.WithLogger(logger),
		connection.WithStore(store),
		connection.WithStrictCount(cfg.Strict()),
	)
	s := &session{cfg: cfg, logger: logger, area: area, manager: m, closers: []func() error{closeStore}}

	if restore {
		if _, err := m.Restore(ctx); err != nil {
			logger.Debug("restore failed", "error", err)
		}
	}
	return s, nil
}

// Close releases the engine handle and the state store. The saved bundle path
// is kept for the next command.
func (s *session) Close() {
	if err := s.manager.Close(); err != nil {
		s.logger.Warn("cannot close connection", "error", err)
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.Warn("cannot close state store", "error", err)
		}
	}
}

// requireConnected returns an error describing why m has no usable connection.
func requireConnected(m *connection.Manager) error {
	switch m.State() {
	case connection.Connected:
		return nil
	case connection.Error:
		return fmt.Errorf("connection failed: %v", m.LastError())
	default:
		return errors.New("not connected\nRun 'memview connect <bundle>' first.")
	}
}
