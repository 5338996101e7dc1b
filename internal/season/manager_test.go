package season_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/database"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host/hosttest"
	"github.com/intellectmind/ranked-arena/internal/repository"
	"github.com/intellectmind/ranked-arena/internal/season"
)

type fixture struct {
	cfg     *config.Config
	fake    *hosttest.Fake
	ranks   *repository.RankRepository
	seasons *repository.SeasonRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &fixture{
		cfg:     &config.Config{SeasonDuration: 30 * 24 * time.Hour},
		fake:    hosttest.New(),
		ranks:   repository.NewRankRepository(db, zerolog.Nop()),
		seasons: repository.NewSeasonRepository(db, zerolog.Nop()),
	}
}

func (f *fixture) manager(t *testing.T) *season.Manager {
	t.Helper()
	m, err := season.NewManager(f.cfg, f.seasons, f.ranks, f.fake, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestFirstStartCreatesSeasonOne(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t)

	assert.Equal(t, 1, m.CurrentID())
	current := m.Current()
	assert.False(t, current.Ended)
	assert.True(t, current.EndDate.After(time.Now().Add(29*24*time.Hour)))
}

func TestRestartLoadsExistingSeason(t *testing.T) {
	f := newFixture(t)
	first := f.manager(t)
	require.NoError(t, first.Rollover(context.Background()))

	reloaded := f.manager(t)
	assert.Equal(t, 2, reloaded.CurrentID())
}

func TestRolloverClearsClaimedRewards(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t)
	ctx := context.Background()

	record := domain.NewPlayerRankRecord(uuid.New(), 1, domain.FormatSingles, 2000)
	record.MarkRewardClaimed("Gold")
	require.NoError(t, f.ranks.Upsert(ctx, record))

	require.NoError(t, m.Rollover(ctx))

	assert.Equal(t, 2, m.CurrentID())
	got, err := f.ranks.Get(ctx, record.PlayerID, 1, domain.FormatSingles)
	require.NoError(t, err)
	assert.Empty(t, got.ClaimedRewards, "claims reset so next season's rewards are available")
	assert.NotEmpty(t, f.fake.Broadcasts())
}

func TestEndCheckOnlyFiresAfterEndDate(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t)
	ctx := context.Background()

	m.EndCheck(ctx)
	assert.Equal(t, 1, m.CurrentID(), "a running season is left alone")

	// A season whose end date already passed rolls over on the next check.
	f2 := newFixture(t)
	f2.cfg.SeasonDuration = -48 * time.Hour
	expired := f2.manager(t)
	expired.EndCheck(ctx)
	assert.Equal(t, 2, expired.CurrentID())
}
