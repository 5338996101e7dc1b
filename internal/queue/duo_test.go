package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host/hosttest"
	"github.com/intellectmind/ranked-arena/internal/queue"
)

type duoFixture struct {
	fake    *hosttest.Fake
	ratings *fakeRatings
	starter *fakeStarter
	queue   *queue.DuoQueue
}

func newDuoFixture(t *testing.T) *duoFixture {
	t.Helper()
	fake := hosttest.New()
	ratings := newFakeRatings()
	starter := newFakeStarter()
	return &duoFixture{
		fake:    fake,
		ratings: ratings,
		starter: starter,
		queue:   queue.NewDuoQueue(testConfig(), fake, ratings, starter, zerolog.Nop()),
	}
}

func (f *duoFixture) join(t *testing.T, rating int) uuid.UUID {
	t.Helper()
	playerID := uuid.New()
	f.ratings.set(playerID, rating)
	require.Equal(t, queue.JoinAccepted,
		f.queue.Join(context.Background(), playerID, "p", newTeam(3)))
	return playerID
}

func TestDuoJoinLeaveAndUpdate(t *testing.T) {
	f := newDuoFixture(t)
	ctx := context.Background()
	playerID := uuid.New()

	assert.Equal(t, queue.JoinEmptyTeam, f.queue.Join(ctx, playerID, "p", nil))
	assert.Equal(t, queue.JoinAccepted, f.queue.Join(ctx, playerID, "p", newTeam(3)))
	assert.Equal(t, queue.JoinAlreadyQueued, f.queue.Join(ctx, playerID, "p", newTeam(3)))
	assert.True(t, f.queue.Queued(playerID))

	assert.True(t, f.queue.UpdateTeam(ctx, playerID, newTeam(4)))
	assert.False(t, f.queue.UpdateTeam(ctx, uuid.New(), newTeam(4)), "unknown player")
	assert.False(t, f.queue.UpdateTeam(ctx, playerID, nil), "empty team")

	assert.True(t, f.queue.Leave(playerID))
	assert.False(t, f.queue.Queued(playerID))
}

func TestDuoScanNeedsFourPlayers(t *testing.T) {
	f := newDuoFixture(t)
	ctx := context.Background()

	f.join(t, 1000)
	f.join(t, 1010)
	f.join(t, 1020)

	f.queue.Scan(ctx)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, f.starter.duoCount())
	assert.Equal(t, 3, f.queue.Len())
}

func TestDuoScanBalancesTeamsOuterAgainstInner(t *testing.T) {
	f := newDuoFixture(t)
	ctx := context.Background()

	lowest := f.join(t, 1000)
	midLow := f.join(t, 1040)
	midHigh := f.join(t, 1080)
	highest := f.join(t, 1120)

	f.queue.Scan(ctx)
	f.starter.wait(t)

	require.Equal(t, 1, f.starter.duoCount())
	teams := f.starter.lastDuo()

	var outer, inner *domain.DuoTeam
	for _, team := range teams {
		if team.Has(lowest) {
			outer = team
		} else {
			inner = team
		}
	}
	require.NotNil(t, outer)
	require.NotNil(t, inner)
	assert.True(t, outer.Has(highest), "lowest pairs with highest")
	assert.True(t, inner.Has(midLow) && inner.Has(midHigh))
	assert.Equal(t, 0, f.queue.Len())
}

func TestDuoScanRespectsSpread(t *testing.T) {
	f := newDuoFixture(t)
	ctx := context.Background()

	f.join(t, 1000)
	f.join(t, 1010)
	f.join(t, 1020)
	f.join(t, 1400)

	f.queue.Scan(ctx)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, f.starter.duoCount(), "outlier stretches the spread past the window")
	assert.Equal(t, 4, f.queue.Len())
}

func TestDuoIneligiblePlayerAtFormationRequeuesRest(t *testing.T) {
	f := newDuoFixture(t)
	ctx := context.Background()

	players := []uuid.UUID{
		f.join(t, 1000), f.join(t, 1010), f.join(t, 1020), f.join(t, 1030),
	}

	// Claimed, but fails the final check inside the pre-start window.
	f.fake.SetInBattle(players[2], true)
	f.queue.Scan(ctx)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0, f.starter.duoCount())
	assert.Equal(t, 3, f.queue.Len(), "the three eligible players return to the queue")
	assert.False(t, f.queue.Queued(players[2]))
}

func TestDuoStartFailureAppliesCooldown(t *testing.T) {
	f := newDuoFixture(t)
	ctx := context.Background()

	f.starter.setFail(true)
	players := []uuid.UUID{
		f.join(t, 1000), f.join(t, 1010), f.join(t, 1020), f.join(t, 1030),
	}

	f.queue.Scan(ctx)
	f.starter.wait(t)
	time.Sleep(50 * time.Millisecond)

	for _, p := range players {
		assert.Equal(t, queue.JoinInCooldown, f.queue.Join(ctx, p, "p", newTeam(3)))
	}
}

func TestDuoClaimHeldUntilStartResolves(t *testing.T) {
	f := newDuoFixture(t)
	ctx := context.Background()

	hold := make(chan struct{})
	f.starter.setHold(hold)

	p1 := f.join(t, 1000)
	p2 := f.join(t, 1010)
	p3 := f.join(t, 1020)
	p4 := f.join(t, 1030)

	f.queue.Scan(ctx)
	f.starter.wait(t)

	// The start call is still in flight; all four stay claimed.
	assert.Equal(t, queue.JoinAlreadyQueued, f.queue.Join(ctx, p1, "p", newTeam(3)))
	assert.Equal(t, queue.JoinAlreadyQueued, f.queue.Join(ctx, p2, "p", newTeam(3)))
	assert.Equal(t, queue.JoinAlreadyQueued, f.queue.Join(ctx, p4, "p", newTeam(3)))

	close(hold)
	require.Eventually(t, func() bool {
		return f.queue.Join(ctx, p3, "p", newTeam(3)) == queue.JoinAccepted
	}, 2*time.Second, 5*time.Millisecond, "resolved start must release the claim")
}
