package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host/hosttest"
	"github.com/intellectmind/ranked-arena/internal/queue"
	"github.com/intellectmind/ranked-arena/internal/selection"
)

type soloFixture struct {
	cfg         *config.Config
	fake        *hosttest.Fake
	ratings     *fakeRatings
	starter     *fakeStarter
	coordinator *selection.Coordinator
	queue       *queue.SoloQueue
}

func newSoloFixture(t *testing.T, cfg *config.Config) *soloFixture {
	t.Helper()
	fake := hosttest.New()
	ratings := newFakeRatings()
	starter := newFakeStarter()
	coordinator := selection.NewCoordinator(cfg, fake, zerolog.Nop())
	return &soloFixture{
		cfg:         cfg,
		fake:        fake,
		ratings:     ratings,
		starter:     starter,
		coordinator: coordinator,
		queue:       queue.NewSoloQueue(cfg, fake, ratings, coordinator, starter, zerolog.Nop()),
	}
}

func TestSoloJoinAndStatus(t *testing.T) {
	f := newSoloFixture(t, testConfig())
	playerID := uuid.New()

	status := f.queue.Join(context.Background(), playerID, "alice", domain.FormatSingles, newTeam(3))
	assert.Equal(t, queue.JoinAccepted, status)

	format, queued := f.queue.Status(playerID)
	assert.True(t, queued)
	assert.Equal(t, domain.FormatSingles, format)
	assert.Equal(t, 1, f.queue.Len(domain.FormatSingles))
}

func TestSoloJoinRejections(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedFormats = []domain.Format{domain.FormatSingles}
	f := newSoloFixture(t, cfg)
	ctx := context.Background()
	playerID := uuid.New()

	assert.Equal(t, queue.JoinEmptyTeam, f.queue.Join(ctx, playerID, "a", domain.FormatSingles, nil))
	assert.Equal(t, queue.JoinFormatNotAllowed, f.queue.Join(ctx, playerID, "a", domain.FormatDoubles, newTeam(3)))
	assert.Equal(t, queue.JoinFormatNotAllowed, f.queue.Join(ctx, playerID, "a", domain.FormatDuo, newTeam(3)))
	assert.Equal(t, queue.JoinTeamInvalid, f.queue.Join(ctx, playerID, "a", domain.FormatSingles, newTeam(7)))

	f.fake.SetTeamInvalid(playerID, true)
	assert.Equal(t, queue.JoinTeamInvalid, f.queue.Join(ctx, playerID, "a", domain.FormatSingles, newTeam(3)))
	f.fake.SetTeamInvalid(playerID, false)

	f.fake.SetInBattle(playerID, true)
	assert.Equal(t, queue.JoinAlreadyInBattle, f.queue.Join(ctx, playerID, "a", domain.FormatSingles, newTeam(3)))
	f.fake.SetInBattle(playerID, false)

	assert.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, playerID, "a", domain.FormatSingles, newTeam(3)))
	assert.Equal(t, queue.JoinAlreadyQueued, f.queue.Join(ctx, playerID, "a", domain.FormatSingles, newTeam(3)))
}

func TestSoloScanPairsCompatiblePlayers(t *testing.T) {
	f := newSoloFixture(t, testConfig())
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, a, "alice", domain.FormatSingles, newTeam(3)))
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, b, "bob", domain.FormatSingles, newTeam(3)))

	f.queue.Scan(ctx)
	f.starter.wait(t)

	require.Equal(t, 1, f.starter.matchCount())
	m := f.starter.lastMatch()
	assert.ElementsMatch(t, []uuid.UUID{a, b}, []uuid.UUID{m.PlayerA, m.PlayerB})
	assert.Equal(t, 0, f.queue.Len(domain.FormatSingles))
}

func TestSoloScanRespectsRatingWindow(t *testing.T) {
	f := newSoloFixture(t, testConfig())
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	f.ratings.set(a, 1000)
	f.ratings.set(b, 1300)
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, a, "alice", domain.FormatSingles, newTeam(3)))
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, b, "bob", domain.FormatSingles, newTeam(3)))

	f.queue.Scan(ctx)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, f.starter.matchCount(), "a 300 point gap exceeds the fresh window")
	assert.Equal(t, 2, f.queue.Len(domain.FormatSingles))
}

func TestSoloScanKeepsFormatsSeparate(t *testing.T) {
	f := newSoloFixture(t, testConfig())
	ctx := context.Background()

	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, uuid.New(), "a", domain.FormatSingles, newTeam(3)))
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, uuid.New(), "b", domain.FormatDoubles, newTeam(4)))

	f.queue.Scan(ctx)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, f.starter.matchCount())
}

func TestSoloConcurrentScansClaimPairOnce(t *testing.T) {
	f := newSoloFixture(t, testConfig())
	ctx := context.Background()

	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, uuid.New(), "a", domain.FormatSingles, newTeam(3)))
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, uuid.New(), "b", domain.FormatSingles, newTeam(3)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.queue.Scan(ctx)
		}()
	}
	wg.Wait()
	f.starter.wait(t)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, f.starter.matchCount(), "a pair must be claimed exactly once")
}

func TestSoloDisconnectedPlayerSweptFromQueue(t *testing.T) {
	f := newSoloFixture(t, testConfig())
	ctx := context.Background()
	playerID := uuid.New()

	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, playerID, "a", domain.FormatSingles, newTeam(3)))
	f.fake.SetDisconnected(playerID, true)

	f.queue.Scan(ctx)
	assert.Equal(t, 0, f.queue.Len(domain.FormatSingles))
}

func TestSoloIneligiblePlayerAtFormationRequeuesOpponent(t *testing.T) {
	f := newSoloFixture(t, testConfig())
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, a, "alice", domain.FormatSingles, newTeam(3)))
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, b, "bob", domain.FormatSingles, newTeam(3)))

	// The pair is claimed, but the final eligibility check fails for one
	// side: the player wandered into another battle during the window.
	f.fake.SetInBattle(b, true)
	f.queue.Scan(ctx)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0, f.starter.matchCount())
	_, queued := f.queue.Status(a)
	assert.True(t, queued, "surviving player returns to the queue")
	_, queued = f.queue.Status(b)
	assert.False(t, queued)
}

func TestSoloStartFailureAppliesCooldown(t *testing.T) {
	f := newSoloFixture(t, testConfig())
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	f.starter.setFail(true)
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, a, "alice", domain.FormatSingles, newTeam(3)))
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, b, "bob", domain.FormatSingles, newTeam(3)))

	f.queue.Scan(ctx)
	f.starter.wait(t)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, queue.JoinInCooldown, f.queue.Join(ctx, a, "alice", domain.FormatSingles, newTeam(3)))
	assert.Equal(t, queue.JoinInCooldown, f.queue.Join(ctx, b, "bob", domain.FormatSingles, newTeam(3)))
}

func TestSoloLeave(t *testing.T) {
	f := newSoloFixture(t, testConfig())
	playerID := uuid.New()

	assert.False(t, f.queue.Leave(playerID))
	require.Equal(t, queue.JoinAccepted, f.queue.Join(context.Background(), playerID, "a", domain.FormatSingles, newTeam(3)))
	assert.True(t, f.queue.Leave(playerID))
	assert.False(t, f.queue.Leave(playerID))
}

func TestSoloClaimHeldThroughDraft(t *testing.T) {
	cfg := testConfig()
	cfg.EnableTeamPreview = true
	cfg.SelectionTimeout = time.Hour
	f := newSoloFixture(t, cfg)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	teamA, teamB := newTeam(6), newTeam(6)
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, a, "alice", domain.FormatSingles, teamA))
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, b, "bob", domain.FormatSingles, teamB))

	f.queue.Scan(ctx)

	var offer selection.DraftOffer
	require.Eventually(t, func() bool {
		var open bool
		offer, open = f.coordinator.Offer(a)
		return open
	}, 2*time.Second, 5*time.Millisecond, "draft must open")

	// While the draft is pending neither player can enter a second match.
	assert.Equal(t, queue.JoinAlreadyQueued, f.queue.Join(ctx, a, "alice", domain.FormatSingles, teamA))
	assert.Equal(t, queue.JoinAlreadyQueued, f.queue.Join(ctx, b, "bob", domain.FormatSingles, teamB))
	assert.Equal(t, 0, f.starter.matchCount())

	f.coordinator.Submit(ctx, a, offer.SessionID, teamA[:3])
	f.coordinator.Submit(ctx, b, offer.SessionID, teamB[:3])
	f.starter.wait(t)

	// The battle started, so the claim is released.
	require.Eventually(t, func() bool {
		return f.queue.Join(ctx, a, "alice", domain.FormatSingles, teamA) == queue.JoinAccepted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSoloClaimReleasedWhenDraftCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableTeamPreview = true
	cfg.SelectionTimeout = time.Hour
	f := newSoloFixture(t, cfg)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	teamA, teamB := newTeam(6), newTeam(6)
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, a, "alice", domain.FormatSingles, teamA))
	require.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, b, "bob", domain.FormatSingles, teamB))

	f.queue.Scan(ctx)
	require.Eventually(t, func() bool {
		_, open := f.coordinator.Offer(a)
		return open
	}, 2*time.Second, 5*time.Millisecond, "draft must open")

	assert.True(t, f.coordinator.CancelFor(a))

	assert.Equal(t, 0, f.starter.matchCount())
	require.Eventually(t, func() bool {
		return f.queue.Join(ctx, b, "bob", domain.FormatSingles, teamB) == queue.JoinAccepted
	}, 2*time.Second, 5*time.Millisecond, "cancelled draft must release the claim")
}
