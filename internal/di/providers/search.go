package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/feiju-bot/feiju/internal/config"
	"github.com/feiju-bot/feiju/internal/logger"
	"github.com/feiju-bot/feiju/internal/search"
)

// NameIndexHandle wraps the name index with shutdown capability.
// NameIndex is nil when the prefix index is disabled.
type NameIndexHandle struct {
	*search.NameIndex
}

// Shutdown implements do.Shutdownable.
func (h *NameIndexHandle) Shutdown() error {
	if h.NameIndex == nil {
		return nil
	}
	return h.Close()
}

// ProvideNameIndex builds the in-memory name index from the store and
// subscribes it to name changes.
func ProvideNameIndex(i do.Injector) (*NameIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	if !cfg.Meme.PrefixIndex {
		log.Info("Name index disabled, triggers resolve through the store")
		return &NameIndexHandle{}, nil
	}

	index, err := search.NewNameIndex(search.Options{Logger: log.Component("search")})
	if err != nil {
		return nil, err
	}

	// Subscribe before loading. Load replays bindings made while it reads.
	storeHandle.SetNameIndexer(index)
	if err := index.Load(context.Background(), storeHandle.Store); err != nil {
		index.Close()
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Name index initialized", "names", docCount)

	return &NameIndexHandle{NameIndex: index}, nil
}
