package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/BurntSushi/toml"
)

// ReloadResult describes what changed during a config reload.
type ReloadResult struct {
	Changed []string // list of changed fields
	Applied []string // successfully applied
	Skipped []string // require restart
	Errors  []error
}

// restartRequiredFields lists top-level config fields that cannot be
// hot-reloaded and require a full process restart: the HTTP listener and
// the on-disk data directory are bound at process start.
var restartRequiredFields = map[string]bool{
	"Server.Port":    true,
	"Server.DataDir": true,
}

// hotReloadableFields lists fields that can be applied at runtime.
var hotReloadableFields = []string{
	"Models",
	"Evolution",
	"EventBus",
	"Retention",
	"Oracle",
	"Server.LogLevel",
}

// mu protects the Config during concurrent reload operations.
var mu sync.RWMutex

// RLock acquires a read lock on the config.
func RLock() { mu.RLock() }

// RUnlock releases a read lock on the config.
func RUnlock() { mu.RUnlock() }

// Reload re-reads the config from path, diffs against the current config,
// and applies hot-reloadable changes in place. Fields that require a
// restart are logged as skipped rather than applied. A reload changes only
// this Config value: components that copied settings out of it at
// construction (the orchestrator, the model router, the retention sweep,
// the logger) keep the values they were built with, and live runs are
// unaffected.
func (c *Config) Reload(path string) (*ReloadResult, error) {
	newCfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, newCfg); err != nil {
		return nil, fmt.Errorf("parse config for reload: %w", err)
	}
	applyEnvOverrides(newCfg)

	result := &ReloadResult{}

	mu.Lock()
	defer mu.Unlock()

	diffAndApply(c, newCfg, result)

	return result, nil
}

// diffAndApply compares old and new configs, applying hot-reloadable changes.
func diffAndApply(old, new *Config, result *ReloadResult) {
	if old.Server.Port != new.Server.Port {
		result.Changed = append(result.Changed, "Server.Port")
		result.Skipped = append(result.Skipped, "Server.Port (requires restart)")
	}
	if old.Server.DataDir != new.Server.DataDir {
		result.Changed = append(result.Changed, "Server.DataDir")
		result.Skipped = append(result.Skipped, "Server.DataDir (requires restart)")
	}
	if old.Server.LogLevel != new.Server.LogLevel {
		result.Changed = append(result.Changed, "Server.LogLevel")
		old.Server.LogLevel = new.Server.LogLevel
		result.Applied = append(result.Applied, "Server.LogLevel")
	}

	if !reflect.DeepEqual(old.Oracle, new.Oracle) {
		result.Changed = append(result.Changed, "Oracle")
		old.Oracle = new.Oracle
		result.Applied = append(result.Applied, "Oracle")
	}

	if !reflect.DeepEqual(old.Models, new.Models) {
		result.Changed = append(result.Changed, "Models")
		old.Models = new.Models
		result.Applied = append(result.Applied, "Models")
	}

	if !reflect.DeepEqual(old.Evolution, new.Evolution) {
		result.Changed = append(result.Changed, "Evolution")
		old.Evolution = new.Evolution
		result.Applied = append(result.Applied, "Evolution")
	}

	if !reflect.DeepEqual(old.EventBus, new.EventBus) {
		result.Changed = append(result.Changed, "EventBus")
		old.EventBus = new.EventBus
		result.Applied = append(result.Applied, "EventBus")
	}

	if !reflect.DeepEqual(old.Retention, new.Retention) {
		result.Changed = append(result.Changed, "Retention")
		old.Retention = new.Retention
		result.Applied = append(result.Applied, "Retention")
	}
}

// LogResult logs the reload result at the appropriate levels.
func (r *ReloadResult) LogResult(logger *slog.Logger) {
	if len(r.Changed) == 0 {
		logger.Info("config reload: no changes detected")
		return
	}

	logger.Info("config reload complete",
		"changed", len(r.Changed),
		"applied", len(r.Applied),
		"skipped", len(r.Skipped),
		"errors", len(r.Errors),
	)

	for _, field := range r.Applied {
		logger.Info("config field hot-reloaded", "field", field)
	}

	for _, field := range r.Skipped {
		logger.Warn("config field requires restart", "field", field)
	}

	for _, err := range r.Errors {
		logger.Error("config reload error", "error", err)
	}
}

// IsRestartRequired returns true if the field requires a restart.
func IsRestartRequired(field string) bool {
	return restartRequiredFields[field]
}

// HotReloadableFields returns the list of hot-reloadable field names.
func HotReloadableFields() []string {
	return hotReloadableFields
}
