package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/intellectmind/ranked-arena/internal/domain"
)

// SeasonRepository persists the season timeline. Only one season is active
// at a time; the row with the highest season_id is the current one.
type SeasonRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSeasonRepository(sqlDB *sql.DB, logger zerolog.Logger) *SeasonRepository {
	return &SeasonRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *SeasonRepository) Latest(ctx context.Context) (*domain.Season, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT season_id, started_at, ends_at, ended
		FROM season_info
		ORDER BY season_id DESC
		LIMIT 1`)

	var (
		season domain.Season
		ended  int
	)
	if err := row.Scan(&season.ID, &season.StartDate, &season.EndDate, &ended); err != nil {
		return nil, err
	}
	season.Ended = ended != 0
	season.Name = fmt.Sprintf("Season %d", season.ID)
	return &season, nil
}

func (r *SeasonRepository) Save(ctx context.Context, season *domain.Season) error {
	ended := 0
	if season.Ended {
		ended = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO season_info (season_id, started_at, ends_at, ended)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(season_id) DO UPDATE SET
			started_at = excluded.started_at,
			ends_at = excluded.ends_at,
			ended = excluded.ended`,
		season.ID, season.StartDate, season.EndDate, ended)
	if err != nil {
		return fmt.Errorf("failed to save season %d: %w", season.ID, err)
	}
	return nil
}

func (r *SeasonRepository) MarkEnded(ctx context.Context, seasonID int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE season_info SET ended = 1 WHERE season_id = ?`,
		seasonID)
	if err != nil {
		return fmt.Errorf("failed to mark season %d ended: %w", seasonID, err)
	}
	return nil
}
