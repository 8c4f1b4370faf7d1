package service

import (
	"github.com/rdelolmomor/CalioBackend/internal/config"
	"github.com/rdelolmomor/CalioBackend/internal/repository"
	"github.com/rdelolmomor/CalioBackend/internal/routing"
	"github.com/rdelolmomor/CalioBackend/internal/utils"
)

// Services aggregates every service of the application.
type Services struct {
	Registry   *Registry
	Hub        *Hub
	Dispatcher *Dispatcher
	Router     *routing.Router
}

func NewServices(repos *repository.Repositories, cfg *config.Config) *Services {
	tokens := utils.NewTokenIssuer(cfg.Session.TokenSecret, cfg.Session.TTL())
	registry := NewRegistry(repos, tokens, cfg.Session.TTL())
	router := routing.NewRouter(cfg.Chat.Platforms)
	hub := NewHub()
	dispatcher := NewDispatcher(registry, router, repos, hub, cfg.Chat.ReleaseRoomID)
	hub.Bind(dispatcher)
	return &Services{
		Registry:   registry,
		Hub:        hub,
		Dispatcher: dispatcher,
		Router:     router,
	}
}
