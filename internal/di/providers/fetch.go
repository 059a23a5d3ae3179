package providers

import (
	"github.com/samber/do/v2"

	"github.com/feiju-bot/feiju/internal/cache"
	"github.com/feiju-bot/feiju/internal/config"
	"github.com/feiju-bot/feiju/internal/fetch"
	"github.com/feiju-bot/feiju/internal/logger"
)

// FetchCacheHandle wraps the download cache with shutdown capability.
// Cache is nil when caching is disabled.
type FetchCacheHandle struct {
	*cache.Cache
}

// Shutdown implements do.Shutdownable.
func (h *FetchCacheHandle) Shutdown() error {
	if h.Cache == nil {
		return nil
	}
	return h.Close()
}

// ProvideFetchCache opens the on-disk download cache.
func ProvideFetchCache(i do.Injector) (*FetchCacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Fetch.CacheTTL == 0 {
		log.Info("Download cache disabled")
		return &FetchCacheHandle{}, nil
	}

	c, err := cache.Open(cache.Options{
		Path:   cfg.Fetch.CachePath,
		TTL:    cfg.Fetch.CacheTTL,
		Logger: log.Component("cache"),
	})
	if err != nil {
		return nil, err
	}
	return &FetchCacheHandle{Cache: c}, nil
}

// ProvideFetcher provides the image downloader.
func ProvideFetcher(i do.Injector) (*fetch.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	cacheHandle := do.MustInvoke[*FetchCacheHandle](i)
	limiterHandle := do.MustInvoke[*HostLimiterHandle](i)

	opts := fetch.Options{
		Timeout:  cfg.Fetch.Timeout,
		MaxBytes: cfg.Fetch.MaxBytes,
		Logger:   log.Component("fetch"),
	}
	// Leave the interfaces nil rather than holding typed nil pointers.
	if cacheHandle.Cache != nil {
		opts.Cache = cacheHandle.Cache
	}
	if limiterHandle.KeyedRateLimiter != nil {
		opts.Limiter = limiterHandle.KeyedRateLimiter
	}

	return fetch.NewClient(opts), nil
}
