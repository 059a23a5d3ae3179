package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/feiju-bot/feiju/internal/config"
	"github.com/feiju-bot/feiju/internal/logger"
	"github.com/feiju-bot/feiju/internal/ratelimit"
	"github.com/feiju-bot/feiju/internal/service"
)

// HostLimiterHandle wraps the per-host download limiter.
// KeyedRateLimiter is nil when downloads are not throttled.
type HostLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *HostLimiterHandle) Shutdown() error {
	if h.KeyedRateLimiter != nil {
		h.Stop()
	}
	return nil
}

// ProvideHostLimiter provides the per-host download limiter.
func ProvideHostLimiter(i do.Injector) (*HostLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Fetch.HostRPS == 0 {
		return &HostLimiterHandle{}, nil
	}
	return &HostLimiterHandle{
		KeyedRateLimiter: ratelimit.New(cfg.Fetch.HostRPS, cfg.Fetch.HostBurst),
	}, nil
}

// CooldownHandle wraps the per-context meme cooldown.
// KeyedRateLimiter is nil when there is no cooldown.
type CooldownHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *CooldownHandle) Shutdown() error {
	if h.KeyedRateLimiter != nil {
		h.Stop()
	}
	return nil
}

// ProvideCooldown provides the per-context meme cooldown.
func ProvideCooldown(i do.Injector) (*CooldownHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Meme.CooldownRPS == 0 {
		return &CooldownHandle{}, nil
	}
	return &CooldownHandle{
		KeyedRateLimiter: ratelimit.New(cfg.Meme.CooldownRPS, cfg.Meme.CooldownBurst),
	}, nil
}

// RunStartupReindex resizes and rehashes stored images before the server
// starts taking traffic. It runs when configured, and always after Open
// converted a legacy database, whose hashes came from the old pipeline and
// would miss duplicates. It returns nil when nothing ran.
func RunStartupReindex(i do.Injector) (*service.ReindexReport, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	_, migrated := storeHandle.LegacyMigration()
	if !cfg.Meme.ReindexOnStart && !migrated {
		return nil, nil
	}

	log := do.MustInvoke[*logger.Logger](i)
	memes := do.MustInvoke[*service.MemeService](i)

	if migrated {
		log.Info("Legacy database migrated, rehashing stored images")
	}
	report, err := memes.Reindex(context.Background())
	if err != nil {
		return nil, err
	}
	log.Info("Startup reindex completed",
		"scanned", report.Scanned,
		"resized", report.Resized,
		"rehashed", report.Rehashed,
		"failed", report.Failed,
	)
	return report, nil
}
