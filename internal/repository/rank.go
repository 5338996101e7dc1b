package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intellectmind/ranked-arena/internal/domain"
)

// RankRepository persists per-season ladder records and species usage counters.
type RankRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRankRepository(sqlDB *sql.DB, logger zerolog.Logger) *RankRepository {
	return &RankRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const rankColumns = `player_id, player_name, season_id, format, rating, wins, losses,
	win_streak, best_win_streak, flee_count, claimed_rewards, created_at, updated_at`

func (r *RankRepository) Get(ctx context.Context, playerID uuid.UUID, seasonID int, format domain.Format) (*domain.PlayerRankRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+rankColumns+`
		FROM player_rank_data
		WHERE player_id = ? AND season_id = ? AND format = ?`,
		playerID.String(), seasonID, string(format))

	return scanRankRecord(row)
}

func (r *RankRepository) Upsert(ctx context.Context, record *domain.PlayerRankRecord) error {
	_, err := r.db.ExecContext(ctx, upsertRankQuery, upsertRankArgs(record)...)
	if err != nil {
		return fmt.Errorf("failed to upsert rank record for %s: %w", record.PlayerID, err)
	}
	return nil
}

// UpsertAll writes every record of a resolved battle in one transaction, so
// a crash or write failure cannot leave one side updated and another stale.
// A solo battle passes two records, a duo relay all four.
func (r *RankRepository) UpsertAll(ctx context.Context, records ...*domain.PlayerRankRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		if _, err := tx.ExecContext(ctx, upsertRankQuery, upsertRankArgs(record)...); err != nil {
			return fmt.Errorf("failed to upsert rank record for %s: %w", record.PlayerID, err)
		}
	}

	return tx.Commit()
}

func (r *RankRepository) Leaderboard(ctx context.Context, seasonID int, format domain.Format, limit int) ([]domain.PlayerRankRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rankColumns+`
		FROM player_rank_data
		WHERE season_id = ? AND format = ?
		ORDER BY rating DESC, updated_at ASC
		LIMIT ?`,
		seasonID, string(format), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	return collectRankRecords(rows)
}

// Rank returns the 1-based ladder position of a player, or 0 when the
// player has no record this season.
func (r *RankRepository) Rank(ctx context.Context, playerID uuid.UUID, seasonID int, format domain.Format) (int, error) {
	// Anchored on the player's own row so a missing record yields no rows
	// instead of a NULL comparison counting as rank 1.
	row := r.db.QueryRowContext(ctx, `
		SELECT (
			SELECT COUNT(*) + 1
			FROM player_rank_data
			WHERE season_id = p.season_id AND format = p.format
			  AND rating > p.rating
		)
		FROM player_rank_data p
		WHERE p.player_id = ? AND p.season_id = ? AND p.format = ?`,
		playerID.String(), seasonID, string(format))

	var rank int
	if err := row.Scan(&rank); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query rank: %w", err)
	}
	return rank, nil
}

func (r *RankRepository) AllForSeason(ctx context.Context, seasonID int) ([]domain.PlayerRankRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rankColumns+`
		FROM player_rank_data
		WHERE season_id = ?`,
		seasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query season records: %w", err)
	}
	defer rows.Close()

	return collectRankRecords(rows)
}

func (r *RankRepository) Delete(ctx context.Context, playerID uuid.UUID, seasonID int, format domain.Format) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM player_rank_data
		WHERE player_id = ? AND season_id = ? AND format = ?`,
		playerID.String(), seasonID, string(format))
	if err != nil {
		return fmt.Errorf("failed to delete rank record: %w", err)
	}
	return nil
}

// ClearClaimedRewards wipes every claim set of a season so the next season
// starts with rewards available again.
func (r *RankRepository) ClearClaimedRewards(ctx context.Context, seasonID int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE player_rank_data
		SET claimed_rewards = '', updated_at = ?
		WHERE season_id = ?`,
		time.Now(), seasonID)
	if err != nil {
		return fmt.Errorf("failed to clear claimed rewards: %w", err)
	}
	return nil
}

func (r *RankRepository) IncrementSpeciesUsage(ctx context.Context, seasonID int, format domain.Format, species string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO species_usage (season_id, format, species, uses)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(season_id, format, species)
		DO UPDATE SET uses = uses + 1`,
		seasonID, string(format), species)
	if err != nil {
		return fmt.Errorf("failed to increment species usage: %w", err)
	}
	return nil
}

func (r *RankRepository) SpeciesUsage(ctx context.Context, seasonID int, format domain.Format, limit int) ([]domain.SpeciesUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT species, uses
		FROM species_usage
		WHERE season_id = ? AND format = ?
		ORDER BY uses DESC, species ASC
		LIMIT ?`,
		seasonID, string(format), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query species usage: %w", err)
	}
	defer rows.Close()

	var usage []domain.SpeciesUsage
	for rows.Next() {
		var u domain.SpeciesUsage
		if err := rows.Scan(&u.Species, &u.Count); err != nil {
			return nil, fmt.Errorf("failed to scan species usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

const upsertRankQuery = `
	INSERT INTO player_rank_data (` + rankColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(player_id, season_id, format) DO UPDATE SET
		player_name = excluded.player_name,
		rating = excluded.rating,
		wins = excluded.wins,
		losses = excluded.losses,
		win_streak = excluded.win_streak,
		best_win_streak = excluded.best_win_streak,
		flee_count = excluded.flee_count,
		claimed_rewards = excluded.claimed_rewards,
		updated_at = excluded.updated_at`

func upsertRankArgs(record *domain.PlayerRankRecord) []any {
	return []any{
		record.PlayerID.String(),
		record.PlayerName,
		record.SeasonID,
		string(record.Format),
		record.Rating,
		record.Wins,
		record.Losses,
		record.WinStreak,
		record.BestWinStreak,
		record.FleeCount,
		joinClaims(record.ClaimedRewards),
		record.CreatedAt,
		record.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRankRecord(row rowScanner) (*domain.PlayerRankRecord, error) {
	var (
		record   domain.PlayerRankRecord
		playerID string
		format   string
		claims   string
	)
	err := row.Scan(
		&playerID,
		&record.PlayerName,
		&record.SeasonID,
		&format,
		&record.Rating,
		&record.Wins,
		&record.Losses,
		&record.WinStreak,
		&record.BestWinStreak,
		&record.FleeCount,
		&claims,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(playerID)
	if err != nil {
		return nil, fmt.Errorf("corrupt player_id %q: %w", playerID, err)
	}
	record.PlayerID = id
	record.Format = domain.Format(format)
	record.ClaimedRewards = splitClaims(claims)
	return &record, nil
}

func collectRankRecords(rows *sql.Rows) ([]domain.PlayerRankRecord, error) {
	var records []domain.PlayerRankRecord
	for rows.Next() {
		record, err := scanRankRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rank record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func joinClaims(claims map[string]struct{}) string {
	if len(claims) == 0 {
		return ""
	}
	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func splitClaims(raw string) map[string]struct{} {
	claims := make(map[string]struct{})
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			claims[k] = struct{}{}
		}
	}
	return claims
}
