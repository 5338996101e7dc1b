package reward

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host"
)

// Manager grants rank rewards the first time a player reaches a tier in a
// season. The claim marker lives on the rank record, so callers persist
// the record after a grant.
type Manager struct {
	cfg    *config.Config
	hst    host.PlayerGateway
	logger zerolog.Logger
}

func NewManager(cfg *config.Config, hst host.PlayerGateway, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		hst:    hst,
		logger: logger,
	}
}

// GrantIfEligible hands out the reward for the record's current tier unless
// it was already claimed this season. It mutates the record's claim set;
// the caller owns persisting it.
func (m *Manager) GrantIfEligible(ctx context.Context, record *domain.PlayerRankRecord) bool {
	title := domain.TitleFor(record.Rating, m.cfg.RankTitles)
	if title == "" || record.HasClaimedReward(title) {
		return false
	}

	if err := m.hst.GrantReward(ctx, record.PlayerID, title); err != nil {
		m.logger.Error().Err(err).
			Str("player", record.PlayerID.String()).
			Str("title", title).
			Msg("failed to grant rank reward")
		return false
	}

	record.MarkRewardClaimed(title)
	m.logger.Info().
		Str("player", record.PlayerID.String()).
		Str("title", title).
		Int("rating", record.Rating).
		Msg("rank reward granted")
	m.hst.Broadcast(fmt.Sprintf("%s reached %s rank in %s!",
		m.hst.DisplayName(record.PlayerID), title, record.Format))
	return true
}
