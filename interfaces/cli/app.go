// Package cli provides the command-line interface for the learning
// engine.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	reinforcego "github.com/felixgeelhaar/reinforce-go"
	"github.com/felixgeelhaar/reinforce-go/application"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/config"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/logging"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/persistence"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/storage/badger"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/storage/memory"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/storage/sqlite"
)

// Version information, overridable at build time.
var (
	Version   = reinforcego.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
	storage    string
	dsn        string
	dataDir    string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "reinforce",
		Short: "Tabular reinforcement-learning engine for simulated agents",
		Long: `reinforce runs independent Q-learning loops, one per agent type, over a
synthetic environment: episodes, a priority replay buffer, periodic
retraining, and versioned model snapshots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to engine configuration file")
	app.root.PersistentFlags().StringVar(&app.storage, "storage", "memory", "Storage backend (memory, sqlite, badger)")
	app.root.PersistentFlags().StringVar(&app.dsn, "dsn", "", "SQLite DSN (with --storage sqlite)")
	app.root.PersistentFlags().StringVar(&app.dataDir, "data-dir", "", "BadgerDB data directory (with --storage badger)")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newSimulateCmd(),
		app.newStatsCmd(),
		app.newTrainCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadConfig loads the engine configuration from --config, or the
// defaults when none is given.
func (a *App) loadConfig() (*config.EngineConfig, error) {
	if a.configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.NewLoader().LoadFile(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// buildRegistry composes a registry from the global flags.
func (a *App) buildRegistry(ctx context.Context, opts ...application.Option) (*application.Registry, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	gateway, err := a.buildGateway(ctx)
	if err != nil {
		return nil, err
	}

	opts = append([]application.Option{
		application.WithConfig(cfg),
		application.WithGateway(gateway),
	}, opts...)
	return application.New(opts...)
}

// buildGateway opens the storage backend selected by --storage.
func (a *App) buildGateway(ctx context.Context) (*persistence.Gateway, error) {
	switch a.storage {
	case "memory":
		return persistence.New(ctx,
			memory.NewExperienceStore(),
			memory.NewModelStore(),
			memory.NewEpisodeStore()), nil

	case "sqlite":
		cfg := sqlite.DefaultConfig()
		if a.dsn != "" {
			cfg.DSN = a.dsn
		}
		experiences, err := sqlite.NewExperienceStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite experience store: %w", err)
		}
		models, err := sqlite.NewModelStoreFromDB(experiences.DB())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite model store: %w", err)
		}
		episodes, err := sqlite.NewEpisodeStoreFromDB(experiences.DB())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite episode store: %w", err)
		}
		return persistence.New(ctx, experiences, models, episodes), nil

	case "badger":
		cfg := badger.DefaultConfig()
		if a.dataDir == "" {
			cfg.InMemory = true
		} else {
			cfg.Dir = a.dataDir
		}
		models, err := badger.NewModelStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger model store: %w", err)
		}
		return persistence.New(ctx,
			memory.NewExperienceStore(),
			models,
			memory.NewEpisodeStore()), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q (memory, sqlite, badger)", a.storage)
	}
}

// parseAgentType validates the --agent flag.
func parseAgentType(s string) (rl.AgentType, error) {
	agentType := rl.AgentType(s)
	if !agentType.IsValid() {
		return "", fmt.Errorf("unknown agent type %q (ddos, shell, exfil)", s)
	}
	return agentType, nil
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "reinforce version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
