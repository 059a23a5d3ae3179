package providers

import (
	"github.com/samber/do/v2"

	"github.com/feiju-bot/feiju/internal/config"
	"github.com/feiju-bot/feiju/internal/logger"
	"github.com/feiju-bot/feiju/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the meme database. A failed legacy migration is
// returned as is so the process can exit without serving.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := sqlite.Open(cfg.Data.DBPath, log.Component("store"))
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", cfg.Data.DBPath)

	return &StoreHandle{Store: db}, nil
}
