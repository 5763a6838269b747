package bootstrap

import (
	"fmt"
	"os"

	"github.com/min-tian-thomas/deployment/config"
	"github.com/min-tian-thomas/deployment/deploy"
	"github.com/min-tian-thomas/deployment/filesystem"

	"github.com/rs/zerolog"
)

func initialize(configFilename string) (*config.Config, zerolog.Logger) {
	cfg, err := config.Parse(configFilename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %s\n", err)
		os.Exit(1)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	switch cfg.LogLevel {
	case "debug":
		logger = logger.Level(zerolog.DebugLevel)
	case "warning":
		logger = logger.Level(zerolog.WarnLevel)
	case "error":
		logger = logger.Level(zerolog.ErrorLevel)
	default:
		logger = logger.Level(zerolog.InfoLevel)
	}
	return cfg, logger
}

func newEngine(cfg *config.Config, logger zerolog.Logger) *deploy.Engine {
	topologyRepo := filesystem.NewTopologyRepository(cfg.Root, logger.With().Str("component", "topology-repository").Logger())
	planRepo := filesystem.NewPlanRepository(cfg.Root, logger.With().Str("component", "plan-repository").Logger())
	templateRepo := filesystem.NewTemplateRepository(cfg.Root)
	registry := filesystem.NewBinaryRepository(cfg.Root, cfg.BinariesDir, logger.With().Str("component", "binary-repository").Logger())
	return deploy.NewEngine(topologyRepo, planRepo, templateRepo, registry, logger.With().Str("component", "engine").Logger())
}

// Generate runs every stage and writes the output tree. Empty filter values
// match everything.
func Generate(configFilename, datacenter, host, app string) {
	cfg, logger := initialize(configFilename)
	engine := newEngine(cfg, logger)

	result, err := engine.Run(deploy.Filter{Datacenter: datacenter, Host: host, App: app})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Error().Msg("generation failed, no output written")
		os.Exit(1)
	}

	writer := filesystem.NewOutputWriter(cfg.OutputDir, logger.With().Str("component", "output-writer").Logger())
	if err := writer.WriteAll(result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Error().Msg("cannot write output tree")
		os.Exit(1)
	}
	logger.Info().Int("configs", len(result.Files)).Msg("generation complete")
}

// Validate is a full dry run: every stage except writing.
func Validate(configFilename string) {
	cfg, logger := initialize(configFilename)
	engine := newEngine(cfg, logger)

	if _, err := engine.Run(deploy.Filter{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Error().Msg("validation failed")
		os.Exit(1)
	}
	logger.Info().Msg("validation passed")
}

// Binaries reconciles the binary directory tree against required_versions.
func Binaries(configFilename string) {
	cfg, logger := initialize(configFilename)
	registry := filesystem.NewBinaryRepository(cfg.Root, cfg.BinariesDir, logger.With().Str("component", "binary-repository").Logger())
	if err := registry.Reconcile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Error().Msg("binary reconciliation failed")
		os.Exit(1)
	}
	logger.Info().Msg("binaries reconciled")
}

// Annotate refreshes the numa and ip comments inside every deployments.yaml.
func Annotate(configFilename string) {
	cfg, logger := initialize(configFilename)
	topologyRepo := filesystem.NewTopologyRepository(cfg.Root, logger.With().Str("component", "topology-repository").Logger())
	topology, err := topologyRepo.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Error().Msg("cannot load topology")
		os.Exit(1)
	}
	annotator := filesystem.NewPlanAnnotator(cfg.Root, logger.With().Str("component", "plan-annotator").Logger())
	if err := annotator.RefreshAll(topology); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Error().Msg("annotation failed")
		os.Exit(1)
	}
}
