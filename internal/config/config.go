package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all evoforge configuration: the Oracle provider(s), the
// per-role default models, and the run-level defaults exposed to every
// mandate that doesn't override them.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Oracle    OracleConfig    `toml:"oracle"`
	Models    ModelsConfig    `toml:"models"`
	Evolution EvolutionConfig `toml:"evolution"`
	EventBus  EventBusConfig  `toml:"event_bus"`
	Retention RetentionConfig `toml:"retention"`
}

// ServerConfig controls the control-plane HTTP listener.
type ServerConfig struct {
	Port     int    `toml:"port"`
	DataDir  string `toml:"data_dir"`
	LogLevel string `toml:"log_level"`
}

// OracleConfig names the default text-completion backend and its
// credential. ORACLE_API_KEY overrides APIKey at load time.
type OracleConfig struct {
	Provider string `toml:"provider"` // "anthropic", "openai", "ollama"
	APIKey   string `toml:"api_key,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
}

// ModelsConfig carries the per-role default model identifiers of spec §6
// (DEFAULT_IDEATOR_MODEL et al.) plus the provider catalog used by
// internal/models.Router for cost tracking.
type ModelsConfig struct {
	Providers         map[string]ProviderConfig `toml:"providers"`
	DefaultIdeator    string                    `toml:"default_ideator_model"`
	DefaultSimulator  string                    `toml:"default_simulator_model"`
	DefaultCritic     string                    `toml:"default_critic_model"`
	DefaultSynthesis  string                    `toml:"default_synthesis_model"`
}

// ProviderConfig is one entry in the model cost-tracking catalog.
type ProviderConfig struct {
	BaseURL string  `toml:"base_url"`
	APIKey  string  `toml:"api_key,omitempty"`
	Models  []Model `toml:"models"`
}

// Model is one provider-advertised model, used by internal/models.Router
// for cost accounting.
type Model struct {
	ID            string   `toml:"id"`
	Name          string   `toml:"name"`
	ContextWindow int      `toml:"context_window"`
	CostInput     float64  `toml:"cost_input"`  // per million tokens
	CostOutput    float64  `toml:"cost_output"` // per million tokens
	Capabilities  []string `toml:"capabilities"`
}

// EvolutionConfig carries the orchestrator tuning passed to
// evolution.New (BreakthroughThreshold, PhaseDeadlineSec, IdeasPerAgent)
// plus MaxAgents and MaxIterations, which MAX_AGENTS and MAX_ITERATIONS
// override. MaxAgents and MaxIterations are not read outside this package:
// POST /runs fills a mandate's omitted budgets with fixed values (10
// iterations, 5 agents), not with these.
type EvolutionConfig struct {
	MaxAgents             int     `toml:"max_agents"`
	MaxIterations         int     `toml:"max_iterations"`
	BreakthroughThreshold float64 `toml:"breakthrough_threshold"`
	PhaseDeadlineSec      int     `toml:"phase_deadline_sec"`
	IdeasPerAgent         int     `toml:"ideas_per_agent"`
}

// EventBusConfig holds the per-subscriber inbox size (overridden by
// EVENT_BUS_CAPACITY) and the retained-event count. Neither value is read
// outside this package: each run's bus is built with the eventbus package
// default capacity (256) and a fixed retain count of 256.
type EventBusConfig struct {
	SubscriberCapacity int `toml:"subscriber_capacity"`
	RetainEvents       int `toml:"retain_events"`
}

// RetentionConfig drives the supplemented run-retention sweep (cron-based,
// outside spec.md's core scope but part of a complete control-plane
// deployment): how long a finished run's state is kept in memory before
// being dropped.
type RetentionConfig struct {
	Schedule      string `toml:"schedule"`        // cron expression
	MaxRunAgeMins int    `toml:"max_run_age_min"` // finished runs older than this are swept
}

// DefaultConfig returns the spec §6 defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8042,
			DataDir:  "./data",
			LogLevel: "info",
		},
		Oracle: OracleConfig{
			Provider: "anthropic",
		},
		Models: ModelsConfig{
			Providers: map[string]ProviderConfig{
				"anthropic": {
					BaseURL: "https://api.anthropic.com",
					Models: []Model{
						{ID: "claude-sonnet-4", Name: "Claude Sonnet 4", ContextWindow: 200000, CostInput: 3.0, CostOutput: 15.0, Capabilities: []string{"reasoning", "code"}},
					},
				},
			},
			DefaultIdeator:   "anthropic/claude-sonnet-4",
			DefaultSimulator: "anthropic/claude-sonnet-4",
			DefaultCritic:    "anthropic/claude-sonnet-4",
			DefaultSynthesis: "anthropic/claude-sonnet-4",
		},
		Evolution: EvolutionConfig{
			MaxAgents:             5,
			MaxIterations:         10,
			BreakthroughThreshold: 0.85,
			PhaseDeadlineSec:      300,
			IdeasPerAgent:         2,
		},
		EventBus: EventBusConfig{
			SubscriberCapacity: 256,
			RetainEvents:       256,
		},
		Retention: RetentionConfig{
			Schedule:      "0 * * * *", // hourly
			MaxRunAgeMins: 1440,        // 24h
		},
	}
}

// Load reads config from a TOML file, starting from DefaultConfig and then
// applying environment-variable overrides named in spec §6.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides implements the environment variables of spec §6:
// ORACLE_API_KEY, DEFAULT_*_MODEL, HTTP_PORT, MAX_AGENTS, MAX_ITERATIONS,
// EVENT_BUS_CAPACITY, LOG_LEVEL.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("DEFAULT_IDEATOR_MODEL"); v != "" {
		cfg.Models.DefaultIdeator = v
	}
	if v := os.Getenv("DEFAULT_SIMULATOR_MODEL"); v != "" {
		cfg.Models.DefaultSimulator = v
	}
	if v := os.Getenv("DEFAULT_CRITIC_MODEL"); v != "" {
		cfg.Models.DefaultCritic = v
	}
	if v := os.Getenv("DEFAULT_SYNTHESIS_MODEL"); v != "" {
		cfg.Models.DefaultSynthesis = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("MAX_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Evolution.MaxAgents = n
		}
	}
	if v := os.Getenv("MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Evolution.MaxIterations = n
		}
	}
	if v := os.Getenv("EVENT_BUS_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventBus.SubscriberCapacity = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
}

// Save writes config to a TOML file, creating its parent directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
