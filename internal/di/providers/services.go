package providers

import (
	"github.com/samber/do/v2"

	"github.com/feiju-bot/feiju/internal/command"
	"github.com/feiju-bot/feiju/internal/config"
	"github.com/feiju-bot/feiju/internal/fetch"
	"github.com/feiju-bot/feiju/internal/imagehash"
	"github.com/feiju-bot/feiju/internal/logger"
	"github.com/feiju-bot/feiju/internal/media/images"
	"github.com/feiju-bot/feiju/internal/service"
)

// ProvideMemeService provides the meme library service.
func ProvideMemeService(i do.Injector) (*service.MemeService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*NameIndexHandle](i)
	cooldown := do.MustInvoke[*CooldownHandle](i)
	fetcher := do.MustInvoke[*fetch.Client](i)

	var opts []service.MemeOption
	if indexHandle.NameIndex != nil {
		opts = append(opts, service.WithNameIndex(indexHandle.NameIndex))
	}
	if cooldown.KeyedRateLimiter != nil {
		opts = append(opts, service.WithCooldown(cooldown.KeyedRateLimiter))
	}

	return service.NewMemeService(
		storeHandle.Store,
		fetcher,
		images.NewNormalizer(cfg.Meme.MaxDimension, log.Component("images")),
		imagehash.NewComparator(cfg.Meme.DuplicateThreshold),
		log.Component("memes"),
		opts...,
	), nil
}

// ProvideAliasService provides the alias service.
func ProvideAliasService(i do.Injector) (*service.AliasService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAliasService(storeHandle.Store, log.Component("aliases")), nil
}

// ProvideCommandRouter provides the chat command router.
func ProvideCommandRouter(i do.Injector) (*command.Router, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	memes := do.MustInvoke[*service.MemeService](i)
	aliases := do.MustInvoke[*service.AliasService](i)

	return command.NewRouter(memes, aliases, command.Options{
		SelfID:     cfg.Bot.SelfID,
		Superusers: cfg.Bot.Superusers,
		Logger:     log.Component("command"),
	}), nil
}
