// gridd is the persistence backend for the conference priority grid frontend.
// It stores one 2D grid of text cells per page in a relational database and
// serves them over a small JSON API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"prioritygrid/internal/config"
	"prioritygrid/internal/server"
	"prioritygrid/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger
	logger   *zap.Logger
	logLevel zap.AtomicLevel
)

var rootCmd = &cobra.Command{
	Use:   "gridd",
	Short: "Persistence backend for the conference priority grid",
	Long: `gridd stores named 2D grids of text cells, one grid per page
(industrial | logistics | commercial), in a relational database.

A page that has never been saved materializes a page-specific default
grid on first read. Saves overwrite the whole grid.

The database connection string must be supplied via the config file or
the DATABASE_URL environment variable; there is no built-in default.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		if verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		}
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = logLevel
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run schema migrations and serve the grid API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run schema migrations and exit",
	Long: `Brings the backing schema up to date without serving requests.
Migrations are versioned and idempotent; serve runs them too, so this
command exists for bootstrap pipelines that migrate separately.`,
	RunE: runMigrate,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.New(st, server.Options{
		CORS:   cfg.Server.CORS,
		Logger: logger.Named("http"),
	})

	shutdownTimeout, err := cfg.ShutdownTimeout()
	if err != nil {
		return err
	}
	return srv.Run(ctx, cfg.Server.Addr, shutdownTimeout)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	logger.Info("migrations complete")
	return st.Close()
}

// loadConfig reads the effective configuration and applies its log level.
// The --verbose flag wins over the configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if !verbose {
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
		logLevel.SetLevel(level)
	}
	return cfg, nil
}

// openStore connects and migrates. Open runs the versioned schema bootstrap
// before returning, so the process never serves against a missing schema.
func openStore(ctx context.Context, cfg *config.Config) (store.GridStore, error) {
	return store.Open(ctx, store.Options{
		DSN:     cfg.Storage.DSN,
		Backend: cfg.Storage.Backend,
		Logger:  logger.Named("store"),
	})
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
