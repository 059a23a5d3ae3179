// Package main provides the entry point for the feiju meme server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/feiju-bot/feiju/internal/di"
	"github.com/feiju-bot/feiju/internal/logger"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services. A failed migration ends up here and must not
	// leave a half-open server behind.
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// The container shuts handles down in reverse dependency order:
	// HTTP server first, database last.
	if report := injector.Shutdown(); !report.Succeed {
		log.Error("Shutdown error", "error", report)
		os.Exit(1)
	}

	log.Info("Bye")
}
