package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/constants"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/repository"
	"github.com/intellectmind/ranked-arena/internal/season"
)

// PlayerSummary is the read model for a player's ladder standing.
type PlayerSummary struct {
	PlayerID      uuid.UUID     `json:"player_id"`
	PlayerName    string        `json:"player_name"`
	SeasonID      int           `json:"season_id"`
	Format        domain.Format `json:"format"`
	Rating        int           `json:"rating"`
	Title         string        `json:"title"`
	Rank          int           `json:"rank"`
	Wins          int           `json:"wins"`
	Losses        int           `json:"losses"`
	WinRate       float64       `json:"win_rate"`
	WinStreak     int           `json:"win_streak"`
	BestWinStreak int           `json:"best_win_streak"`
	FleeCount     int           `json:"flee_count"`
}

// LeaderboardEntry is one row of the top-player listing.
type LeaderboardEntry struct {
	Position   int    `json:"position"`
	PlayerName string `json:"player_name"`
	Rating     int    `json:"rating"`
	Title      string `json:"title"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
}

// SeasonInfo is the read model for the season endpoint.
type SeasonInfo struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Remaining string    `json:"remaining"`
}

// RankService answers ladder queries. It never mutates records; the battle
// lifecycle owns all writes.
type RankService struct {
	cfg     *config.Config
	ranks   *repository.RankRepository
	seasons *season.Manager
	logger  zerolog.Logger
}

func NewRankService(cfg *config.Config, ranks *repository.RankRepository, seasons *season.Manager, logger zerolog.Logger) *RankService {
	return &RankService{
		cfg:     cfg,
		ranks:   ranks,
		seasons: seasons,
		logger:  logger,
	}
}

// CurrentRating resolves the rating matchmaking pairs on. Players without a
// record this season queue at the starting rating.
func (s *RankService) CurrentRating(ctx context.Context, playerID uuid.UUID, format domain.Format) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	record, err := s.ranks.Get(ctx, playerID, s.seasons.CurrentID(), format)
	if errors.Is(err, sql.ErrNoRows) {
		return s.cfg.StartingRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve rating: %w", err)
	}
	return record.Rating, nil
}

// PlayerSummary loads a player's record and ladder position concurrently.
func (s *RankService) PlayerSummary(ctx context.Context, playerID uuid.UUID, format domain.Format) (*PlayerSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	seasonID := s.seasons.CurrentID()

	var (
		record *domain.PlayerRankRecord
		rank   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.ranks.Get(gctx, playerID, seasonID, format)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	g.Go(func() error {
		r, err := s.ranks.Rank(gctx, playerID, seasonID, format)
		if err != nil {
			return err
		}
		rank = r
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load player summary: %w", err)
	}

	return &PlayerSummary{
		PlayerID:      record.PlayerID,
		PlayerName:    record.PlayerName,
		SeasonID:      record.SeasonID,
		Format:        record.Format,
		Rating:        record.Rating,
		Title:         domain.TitleFor(record.Rating, s.cfg.RankTitles),
		Rank:          rank,
		Wins:          record.Wins,
		Losses:        record.Losses,
		WinRate:       record.WinRate(),
		WinStreak:     record.WinStreak,
		BestWinStreak: record.BestWinStreak,
		FleeCount:     record.FleeCount,
	}, nil
}

func (s *RankService) Leaderboard(ctx context.Context, format domain.Format) ([]LeaderboardEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	records, err := s.ranks.Leaderboard(ctx, s.seasons.CurrentID(), format, constants.LeaderboardLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, len(records))
	for i, r := range records {
		entries[i] = LeaderboardEntry{
			Position:   i + 1,
			PlayerName: r.PlayerName,
			Rating:     r.Rating,
			Title:      domain.TitleFor(r.Rating, s.cfg.RankTitles),
			Wins:       r.Wins,
			Losses:     r.Losses,
		}
	}
	return entries, nil
}

// SeasonRecords lists every ladder record of the current season across all
// formats, for administrative inspection.
func (s *RankService) SeasonRecords(ctx context.Context) ([]PlayerSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	records, err := s.ranks.AllForSeason(ctx, s.seasons.CurrentID())
	if err != nil {
		return nil, fmt.Errorf("failed to load season records: %w", err)
	}

	summaries := make([]PlayerSummary, len(records))
	for i, r := range records {
		summaries[i] = PlayerSummary{
			PlayerID:      r.PlayerID,
			PlayerName:    r.PlayerName,
			SeasonID:      r.SeasonID,
			Format:        r.Format,
			Rating:        r.Rating,
			Title:         domain.TitleFor(r.Rating, s.cfg.RankTitles),
			Wins:          r.Wins,
			Losses:        r.Losses,
			WinRate:       r.WinRate(),
			WinStreak:     r.WinStreak,
			BestWinStreak: r.BestWinStreak,
			FleeCount:     r.FleeCount,
		}
	}
	return summaries, nil
}

// ResetPlayer drops a player's current-season record for one format. This
// is the explicit administrative reset path; nothing else deletes records.
func (s *RankService) ResetPlayer(ctx context.Context, playerID uuid.UUID, format domain.Format) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if err := s.ranks.Delete(ctx, playerID, s.seasons.CurrentID(), format); err != nil {
		return err
	}
	s.logger.Info().
		Str("player", playerID.String()).
		Str("format", string(format)).
		Msg("rank record reset")
	return nil
}

func (s *RankService) SeasonInfo() SeasonInfo {
	current := s.seasons.Current()
	return SeasonInfo{
		ID:        current.ID,
		Name:      current.Name,
		StartDate: current.StartDate,
		EndDate:   current.EndDate,
		Remaining: current.Remaining(time.Now()).Round(time.Second).String(),
	}
}

func (s *RankService) SpeciesUsage(ctx context.Context, format domain.Format) ([]domain.SpeciesUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	usage, err := s.ranks.SpeciesUsage(ctx, s.seasons.CurrentID(), format, constants.UsageReportLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load species usage: %w", err)
	}
	return usage, nil
}
