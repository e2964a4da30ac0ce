package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"foragerfit/internal/config"
	"foragerfit/internal/logging"
	"foragerfit/pkg/foragerfit"
)

type app struct {
	configPath string
	verbose    bool
	storeKind  string
	dbPath     string
	workers    int

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "foragerctl",
		Short: "Fit and compare foraging models on two-armed bandit recordings",
		Long: `foragerctl fits the default catalog of reinforcement-learning foragers
to per-subject choice recordings, stores the comparisons, and aggregates
them into population tables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (defaults when empty or missing)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.storeKind, "store", "", "Store backend override: memory or sqlite")
	root.PersistentFlags().StringVar(&a.dbPath, "db-path", "", "SQLite database path override")
	root.PersistentFlags().IntVar(&a.workers, "workers", -1, "Override fit worker count (0 uses all CPUs)")

	root.AddCommand(
		newFitCmd(a),
		newCVPatchCmd(a),
		newCombineCmd(a),
		newAggregateCmd(a),
		newShowCmd(a),
		newRunsCmd(a),
		newFullQCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.storeKind != "" {
		cfg.Storage.Backend = a.storeKind
	}
	if a.dbPath != "" {
		cfg.Storage.DBPath = a.dbPath
	}
	if a.workers >= 0 {
		cfg.Fit.Workers = a.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: a.verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger.With(zap.String("command", cmd.Name()))
	return nil
}

// client opens the facade from the loaded config. kFold > 0 cross-validates
// session-wise fits. Callers close it.
func (a *app) client(ctx context.Context, kFold int) (*foragerfit.Client, error) {
	method, err := a.cfg.Method()
	if err != nil {
		return nil, err
	}
	settings, err := a.cfg.FitSettings()
	if err != nil {
		return nil, err
	}
	return foragerfit.New(ctx, foragerfit.Options{
		StoreKind: a.cfg.Storage.Backend,
		DBPath:    a.cfg.Storage.DBPath,
		Workers:   a.cfg.Fit.Workers,
		Logger:    a.logger,
		Method:    method,
		Settings:  &settings,
		Models:    a.cfg.Fit.Models,
		KFold:     kFold,
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
