package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/feiju-bot/feiju/internal/api"
	"github.com/feiju-bot/feiju/internal/command"
	"github.com/feiju-bot/feiju/internal/config"
	"github.com/feiju-bot/feiju/internal/logger"
	"github.com/feiju-bot/feiju/internal/service"
)

// Version is reported in the OpenAPI document. Set with -ldflags.
var Version = "dev"

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer provides the HTTP server and starts serving.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	indexHandle := do.MustInvoke[*NameIndexHandle](i)

	services := &api.Services{
		Memes:    do.MustInvoke[*service.MemeService](i),
		Aliases:  do.MustInvoke[*service.AliasService](i),
		Commands: do.MustInvoke[*command.Router](i),
		Index:    indexHandle.NameIndex,
	}

	handler := api.NewServer(services, api.Options{
		APIToken:           cfg.Server.APIToken,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RequestsPerSecond:  cfg.Server.RateLimitRPS,
		Burst:              cfg.Server.RateLimitBurst,
		Version:            Version,
	}, log.Component("api"))

	addr := cfg.Server.ListenAddr()
	if cfg.Server.APIToken == "" {
		log.Warn("API_TOKEN is not set, the admin API is open to anyone who can reach it", "addr", addr)
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
