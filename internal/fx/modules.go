package fx

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/intellectmind/ranked-arena/internal/battle"
	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/database"
	"github.com/intellectmind/ranked-arena/internal/host"
	"github.com/intellectmind/ranked-arena/internal/logger"
	"github.com/intellectmind/ranked-arena/internal/queue"
	"github.com/intellectmind/ranked-arena/internal/repository"
	"github.com/intellectmind/ranked-arena/internal/reward"
	"github.com/intellectmind/ranked-arena/internal/scheduler"
	"github.com/intellectmind/ranked-arena/internal/season"
	"github.com/intellectmind/ranked-arena/internal/selection"
	"github.com/intellectmind/ranked-arena/internal/server"
	"github.com/intellectmind/ranked-arena/internal/service"
)

func ProvideHost(cfg *config.Config, log zerolog.Logger) host.Host {
	return host.NewRemote(cfg.HostAPIURL, cfg.HostAPIKey, log)
}

func ProvidePlayerGateway(h host.Host) host.PlayerGateway {
	return h
}

func ProvideRatingSource(s *service.RankService) queue.RatingSource {
	return s
}

func ProvideBattleStarter(m *battle.Manager) queue.BattleStarter {
	return m
}

func ProvideDuoBattleStarter(m *battle.Manager) queue.DuoBattleStarter {
	return m
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// host boundary
	fx.Provide(ProvideHost),
	fx.Provide(ProvidePlayerGateway),
	// repos
	fx.Provide(repository.NewRankRepository),
	fx.Provide(repository.NewSeasonRepository),
	// seasons and rewards
	fx.Provide(season.NewManager),
	fx.Provide(reward.NewManager),
	// battle lifecycle
	fx.Provide(battle.NewManager),
	// matchmaking
	fx.Provide(selection.NewCoordinator),
	fx.Provide(ProvideRatingSource),
	fx.Provide(ProvideBattleStarter),
	fx.Provide(ProvideDuoBattleStarter),
	fx.Provide(queue.NewSoloQueue),
	fx.Provide(queue.NewDuoQueue),
	// svc
	fx.Provide(service.NewRankService),
	fx.Provide(service.NewEventService),
	// infra
	fx.Provide(scheduler.New),
	fx.Provide(server.New),
)
