// Package di provides dependency injection configuration for the feiju server.
package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/feiju-bot/feiju/internal/command"
	"github.com/feiju-bot/feiju/internal/config"
	"github.com/feiju-bot/feiju/internal/di/providers"
	"github.com/feiju-bot/feiju/internal/fetch"
	"github.com/feiju-bot/feiju/internal/logger"
	"github.com/feiju-bot/feiju/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := NewCoreContainer(nil)

	// Chat and HTTP surface
	do.Provide(injector, providers.ProvideCommandRouter)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// NewCoreContainer registers everything but the HTTP server. Command-line
// tools use it to run library operations against the configured database.
// A nil cfg is loaded from the process arguments and environment.
func NewCoreContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	if cfg != nil {
		do.ProvideValue(injector, cfg)
	} else {
		do.Provide(injector, providers.ProvideConfig)
	}
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideNameIndex)

	// Downloads
	do.Provide(injector, providers.ProvideFetchCache)
	do.Provide(injector, providers.ProvideHostLimiter)
	do.Provide(injector, providers.ProvideFetcher)

	// Business services
	do.Provide(injector, providers.ProvideCooldown)
	do.Provide(injector, providers.ProvideMemeService)
	do.Provide(injector, providers.ProvideAliasService)

	return injector
}

// Bootstrap initializes all services and starts the HTTP server.
// A database that fails to open or migrate stops the bootstrap before
// anything is served.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if _, err := do.Invoke[*providers.NameIndexHandle](injector); err != nil {
		return fmt.Errorf("load name index: %w", err)
	}
	if _, err := do.Invoke[*fetch.Client](injector); err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	// Business services
	_ = do.MustInvoke[*service.MemeService](injector)
	_ = do.MustInvoke[*service.AliasService](injector)
	_ = do.MustInvoke[*command.Router](injector)

	if _, err := providers.RunStartupReindex(injector); err != nil {
		return fmt.Errorf("startup reindex: %w", err)
	}

	// Server
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	return nil
}
