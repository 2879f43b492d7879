// Command evoforged runs the Evolution Orchestrator's control plane: it
// loads config, wires the configured model providers behind the Oracle
// Client, and serves mandate submission, run status, and the live event
// feed until it receives a shutdown signal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/robfig/cron/v3"

	"github.com/evoforge/evoforge/internal/api"
	"github.com/evoforge/evoforge/internal/config"
	"github.com/evoforge/evoforge/internal/evolution"
	"github.com/evoforge/evoforge/internal/models"
	"github.com/evoforge/evoforge/internal/oracle"
	"github.com/evoforge/evoforge/internal/swarm"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "evoforge.toml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("evoforged v%s (built %s)\n", version, buildTime)
		return 0
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))

	server, _, err := setup(cfg, logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	setupSignalHandlers(ctx, cancel, cfg, *configPath, logger)

	sweeper := startRetentionSweep(cfg.Retention, server, logger)
	defer sweeper.Stop()

	printBanner(cfg)
	logger.Info("evoforged starting", "version", version, "port", cfg.Server.Port)
	if err := server.Start(ctx); err != nil {
		logger.Error("control plane error", "error", err)
		return 1
	}

	logger.Info("evoforged stopped")
	return 0
}

// setup wires config -> model providers -> Oracle Client -> Swarm
// Coordinator -> Evolution Orchestrator -> control-plane Server, the same
// layering order the upstream agent runtime used for its provider/router/
// orchestrator stack.
func setup(cfg *config.Config, logger *slog.Logger) (*api.Server, *models.Router, error) {
	router := models.NewRouter(logger)
	if err := registerProviders(router, cfg, logger); err != nil {
		return nil, nil, fmt.Errorf("register providers: %w", err)
	}

	oc := oracle.New(models.AsOracleBackend(router), logger)
	coordinator := swarm.New(oc, logger)

	orch := evolution.New(coordinator, logger, evolution.Config{
		BreakthroughThreshold: cfg.Evolution.BreakthroughThreshold,
		PhaseDeadline:         time.Duration(cfg.Evolution.PhaseDeadlineSec) * time.Second,
		IdeasPerAgent:         cfg.Evolution.IdeasPerAgent,
		IdeatorModel:          cfg.Models.DefaultIdeator,
		SimulatorModel:        cfg.Models.DefaultSimulator,
		CriticModel:           cfg.Models.DefaultCritic,
		SynthesisModel:        cfg.Models.DefaultSynthesis,
	})

	server := api.NewServer(cfg.Server.Port, orch, logger, cfg.Server.DataDir)
	return server, router, nil
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no config found, creating default", "path", path)
			cfg = config.DefaultConfig()
			if err := cfg.Save(path); err != nil {
				return nil, fmt.Errorf("save default config: %w", err)
			}
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// printBanner prints the startup box the teacher's cmd/evoclaw/main.go
// draws by hand with fmt.Println box-drawing characters; here it is the
// same shape rendered through lipgloss so the bordered box, title color,
// and key/value rows stay consistent with a terminal dashboard rather than
// being hand-aligned string literals.
func printBanner(cfg *config.Config) {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Render("EvoForge")
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	rows := fmt.Sprintf(
		"%s  evolution orchestrator\n\n%s http://localhost:%d\n%s %s\n%s %s, %s, %s, %s",
		title,
		label.Render("control plane:"), cfg.Server.Port,
		label.Render("oracle provider:"), cfg.Oracle.Provider,
		label.Render("default models:"),
		cfg.Models.DefaultIdeator, cfg.Models.DefaultSimulator, cfg.Models.DefaultCritic, cfg.Models.DefaultSynthesis,
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("86")).
		Padding(0, 2)
	fmt.Println(box.Render(rows))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// registerProviders wires every configured provider entry into the router,
// picking the concrete Backend implementation by provider name the same way
// the upstream runtime did.
func registerProviders(router *models.Router, cfg *config.Config, logger *slog.Logger) error {
	for name, provCfg := range cfg.Models.Providers {
		if provCfg.APIKey == "" {
			provCfg.APIKey = cfg.Oracle.APIKey
		}
		logger.Info("registering provider", "name", name, "models", len(provCfg.Models))

		switch name {
		case "anthropic":
			router.RegisterProvider(models.NewAnthropicProvider(provCfg))
		case "ollama":
			router.RegisterProvider(models.NewOllamaProvider(provCfg))
		case "openai":
			router.RegisterProvider(models.NewOpenAIProvider("openai", provCfg))
		case "openrouter":
			router.RegisterProvider(models.NewOpenAIProvider("openrouter", provCfg))
		default:
			router.RegisterProvider(models.NewOpenAIProvider(name, provCfg))
		}
	}
	return nil
}

// startRetentionSweep runs the configured cron schedule, evicting finished
// runs older than MaxRunAgeMins from the control plane's in-memory run map
// (spec.md states run state is never persisted across restarts; this only
// bounds how long a finished run is kept in memory before that restart).
func startRetentionSweep(cfg config.RetentionConfig, server *api.Server, logger *slog.Logger) *cron.Cron {
	c := cron.New()
	maxAge := time.Duration(cfg.MaxRunAgeMins) * time.Minute
	_, err := c.AddFunc(cfg.Schedule, func() {
		server.EvictFinishedRuns(maxAge)
	})
	if err != nil {
		logger.Warn("invalid retention schedule, sweep disabled", "schedule", cfg.Schedule, "error", err)
		return c
	}
	c.Start()
	return c
}
