//go:build !windows

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/evoforge/evoforge/internal/config"
)

// setupSignalHandlers wires SIGINT/SIGTERM to graceful shutdown and SIGHUP
// to a hot config reload (spec §6's restart-required vs. hot-reloadable
// field split, internal/config.Reload). A reload only updates cfg and the
// fields internal/config.Reload calls hot-reloadable; it does not reach
// into the already-built Router or Orchestrator, which keep the model
// defaults and phase deadlines they were constructed with.
func setupSignalHandlers(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, configPath string, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("shutdown signal received", "signal", sig)
				cancel()
				return
			case syscall.SIGHUP:
				logger.Info("reload signal received", "path", configPath)
				result, err := cfg.Reload(configPath)
				if err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				result.LogResult(logger)
			}
		}
	}()
}
