package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/driftlake-labs/driftlake/internal/cli/config"
	"github.com/driftlake-labs/driftlake/internal/cli/output"
	intconfig "github.com/driftlake-labs/driftlake/internal/config"
	"github.com/driftlake-labs/driftlake/internal/engine"
	"github.com/driftlake-labs/driftlake/pkg/adapter"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cleanup := func() {
		_ = eng.Close()
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: r,
	}, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an
// engine. Useful for commands that don't need warehouse access.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Helper functions shared across commands

// getConfig returns the current configuration. It uses
// config.GetCurrentConfig() if available, otherwise falls back to
// environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	// Fallback: read from environment with defaults
	return &config.Config{
		SnapshotsDir: getEnvOrDefault("DRIFTLAKE_SNAPSHOTS_DIR", intconfig.DefaultSnapshotsDir),
		SeedsDir:     getEnvOrDefault("DRIFTLAKE_SEEDS_DIR", intconfig.DefaultSeedsDir),
		StatePath:    getEnvOrDefault("DRIFTLAKE_STATE_PATH", config.DefaultStateFile),
		Environment:  getEnvOrDefault("DRIFTLAKE_ENVIRONMENT", config.DefaultEnv),
		Verbose:      os.Getenv("DRIFTLAKE_VERBOSE") == "true",
		OutputFormat: os.Getenv("DRIFTLAKE_OUTPUT"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	// Ensure state directory exists
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, err
		}
	}

	var adapterConfig *adapter.Config
	if cfg.Target != nil {
		ac := cfg.Target.AdapterConfig()
		adapterConfig = &ac
	}

	engineCfg := engine.Config{
		SnapshotsDir:  cfg.SnapshotsDir,
		SeedsDir:      cfg.SeedsDir,
		StatePath:     cfg.StatePath,
		AdapterConfig: adapterConfig,
		Logger:        logger,
	}

	return engine.New(engineCfg)
}
