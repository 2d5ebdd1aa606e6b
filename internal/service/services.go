package service

import (
	"github.com/kirinyoku/openmic/internal/access"
	"github.com/kirinyoku/openmic/internal/repository"
	redisrepo "github.com/kirinyoku/openmic/internal/repository/redis"
	"github.com/kirinyoku/openmic/internal/service/claims"
	"github.com/kirinyoku/openmic/internal/service/effects"
	"github.com/kirinyoku/openmic/internal/service/lineup"
	"github.com/kirinyoku/openmic/internal/service/slots"
	"github.com/kirinyoku/openmic/internal/service/waitlist"
)

type Services struct {
	Claims   *claims.Service
	Waitlist *waitlist.Service
	Slots    *slots.Service
	Lineup   *lineup.Service
}

type Config struct {
	Claims   claims.Config
	Waitlist waitlist.Config
	Slots    slots.Config
	Lineup   lineup.Config
}

// NewServices wires the services over one store. cache and limiter may be
// nil; fx carries the post-commit side effects shared by all of them.
func NewServices(
	store repository.Store,
	policy access.Policy,
	cache *redisrepo.Cache,
	limiter claims.Limiter,
	fx *effects.Effects,
	cfg Config,
) *Services {
	wl := waitlist.New(store, policy, fx, cfg.Waitlist)

	return &Services{
		Claims:   claims.New(store, wl, limiter, fx, cfg.Claims),
		Waitlist: wl,
		Slots:    slots.New(store, policy, cache, fx, cfg.Slots),
		Lineup:   lineup.New(store, policy, cache, fx, cfg.Lineup),
	}
}
