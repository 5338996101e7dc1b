package season

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host"
	"github.com/intellectmind/ranked-arena/internal/repository"
)

// Manager owns the season timeline. It loads or creates the current season
// on startup and rolls over to the next one once the end date passes.
type Manager struct {
	cfg     *config.Config
	seasons *repository.SeasonRepository
	ranks   *repository.RankRepository
	hst     host.PlayerGateway
	logger  zerolog.Logger

	mu      sync.RWMutex
	current domain.Season
}

func NewManager(
	cfg *config.Config,
	seasons *repository.SeasonRepository,
	ranks *repository.RankRepository,
	hst host.PlayerGateway,
	logger zerolog.Logger,
) (*Manager, error) {
	m := &Manager{
		cfg:     cfg,
		seasons: seasons,
		ranks:   ranks,
		hst:     hst,
		logger:  logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load(ctx context.Context) error {
	current, err := m.seasons.Latest(ctx)
	if err == sql.ErrNoRows {
		first := m.newSeason(1, time.Now())
		if err := m.seasons.Save(ctx, &first); err != nil {
			return fmt.Errorf("failed to create first season: %w", err)
		}
		m.current = first
		m.logger.Info().Int("season", first.ID).Time("ends", first.EndDate).Msg("first season created")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load current season: %w", err)
	}

	m.current = *current
	m.logger.Info().
		Int("season", current.ID).
		Time("ends", current.EndDate).
		Bool("ended", current.Ended).
		Msg("season loaded")
	return nil
}

// CurrentID returns the id of the active season.
func (m *Manager) CurrentID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.ID
}

// Current returns a snapshot of the active season.
func (m *Manager) Current() domain.Season {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// EndCheck rolls the season over when its end date has passed. It runs on
// the scheduler tick.
func (m *Manager) EndCheck(ctx context.Context) {
	m.mu.RLock()
	due := !m.current.Ended && time.Now().After(m.current.EndDate)
	m.mu.RUnlock()
	if !due {
		return
	}
	if err := m.Rollover(ctx); err != nil {
		m.logger.Error().Err(err).Msg("season rollover failed")
	}
}

// Rollover closes the current season and opens the next one. Claimed reward
// markers of the closed season are wiped so the next season starts clean.
func (m *Manager) Rollover(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	closing := m.current
	if err := m.seasons.MarkEnded(ctx, closing.ID); err != nil {
		return fmt.Errorf("failed to end season %d: %w", closing.ID, err)
	}
	if err := m.ranks.ClearClaimedRewards(ctx, closing.ID); err != nil {
		return fmt.Errorf("failed to clear claimed rewards: %w", err)
	}

	next := m.newSeason(closing.ID+1, time.Now())
	if err := m.seasons.Save(ctx, &next); err != nil {
		return fmt.Errorf("failed to create season %d: %w", next.ID, err)
	}
	m.current = next

	m.logger.Info().
		Int("closed", closing.ID).
		Int("opened", next.ID).
		Time("ends", next.EndDate).
		Msg("season rolled over")
	m.hst.Broadcast(fmt.Sprintf("Season %d has ended. Season %d begins now!", closing.ID, next.ID))
	return nil
}

// newSeason starts at midnight of the current day and ends at the last
// second of the day the configured duration later.
func (m *Manager) newSeason(id int, now time.Time) domain.Season {
	start := now.Truncate(24 * time.Hour)
	endDay := start.Add(m.cfg.SeasonDuration)
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), 23, 59, 59, 0, endDay.Location())
	return domain.Season{
		ID:        id,
		Name:      fmt.Sprintf("Season %d", id),
		StartDate: start,
		EndDate:   end,
	}
}
