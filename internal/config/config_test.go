package config_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "arena.db", cfg.DBPath)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 1000, cfg.StartingRating)
	assert.Equal(t, 0, cfg.RatingFloor)
	assert.Equal(t, 32, cfg.KFactor)
	assert.Equal(t, 1.0, cfg.LoserProtectionRate)
	assert.Equal(t, 200, cfg.MaxRatingDiff)
	assert.Equal(t, 5*time.Minute, cfg.MaxQueueWait)
	assert.Equal(t, 3.0, cfg.MaxRangeMultiplier)
	assert.Equal(t, 5*time.Second, cfg.ScanInterval)
	assert.Equal(t, 90*time.Second, cfg.SelectionTimeout)
	assert.True(t, cfg.EnableTeamPreview)
	assert.Equal(t, 30*24*time.Hour, cfg.SeasonDuration)

	assert.Equal(t, []domain.Format{
		domain.FormatSingles, domain.FormatDoubles, domain.FormatDuo,
	}, cfg.AllowedFormats)

	require.NotEmpty(t, cfg.RankTitles)
	assert.Equal(t, "Bronze", cfg.RankTitles[0].Name)
	assert.Equal(t, "Master", cfg.RankTitles[len(cfg.RankTitles)-1].Name)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STARTING_RATING", "1200")
	t.Setenv("K_FACTOR", "16")
	t.Setenv("SCAN_INTERVAL", "250ms")
	t.Setenv("ENABLE_TEAM_PREVIEW", "false")
	t.Setenv("ALLOWED_FORMATS", "singles")

	cfg, err := config.Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.StartingRating)
	assert.Equal(t, 16, cfg.KFactor)
	assert.Equal(t, 250*time.Millisecond, cfg.ScanInterval)
	assert.False(t, cfg.EnableTeamPreview)
	assert.Equal(t, []domain.Format{domain.FormatSingles}, cfg.AllowedFormats)
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("STARTING_RATING", "lots")
	t.Setenv("SCAN_INTERVAL", "soon")

	cfg, err := config.Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.StartingRating)
	assert.Equal(t, 5*time.Second, cfg.ScanInterval)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	t.Setenv("ALLOWED_FORMATS", "singles,triples")

	_, err := config.Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "triples")
}

func TestLoadRejectsEmptyFormats(t *testing.T) {
	t.Setenv("ALLOWED_FORMATS", " , ")

	_, err := config.Load(zerolog.Nop())
	require.Error(t, err)
}

func TestLoadAcceptsDuoAlias(t *testing.T) {
	t.Setenv("ALLOWED_FORMATS", "duo")

	cfg, err := config.Load(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []domain.Format{domain.FormatDuo}, cfg.AllowedFormats)
}

func TestLoadRejectsNonPositiveKFactor(t *testing.T) {
	t.Setenv("K_FACTOR", "0")

	_, err := config.Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "K_FACTOR")
}

func TestLoadRejectsBadTeamBounds(t *testing.T) {
	t.Setenv("MIN_TEAM_SIZE", "4")
	t.Setenv("MAX_TEAM_SIZE", "2")

	_, err := config.Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "team size")
}

func TestFormatAllowed(t *testing.T) {
	cfg := &config.Config{AllowedFormats: []domain.Format{domain.FormatSingles}}

	assert.True(t, cfg.FormatAllowed(domain.FormatSingles))
	assert.False(t, cfg.FormatAllowed(domain.FormatDoubles))
	assert.False(t, cfg.FormatAllowed(domain.FormatDuo))
}

func TestPickCount(t *testing.T) {
	cfg := &config.Config{SinglesPickCount: 3, DoublesPickCount: 4}

	assert.Equal(t, 3, cfg.PickCount(domain.FormatSingles))
	assert.Equal(t, 4, cfg.PickCount(domain.FormatDoubles))
	assert.Equal(t, 3, cfg.PickCount(domain.FormatDuo))
}
