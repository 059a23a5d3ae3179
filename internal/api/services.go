package api

import (
	"github.com/feiju-bot/feiju/internal/command"
	"github.com/feiju-bot/feiju/internal/search"
	"github.com/feiju-bot/feiju/internal/service"
)

// Services groups the business logic used by the API server.
type Services struct {
	Memes    *service.MemeService
	Aliases  *service.AliasService
	Commands *command.Router
	Index    *search.NameIndex // Optional; nil when the prefix index is disabled
}
