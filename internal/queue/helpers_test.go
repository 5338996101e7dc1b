package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/selection"
)

func testConfig() *config.Config {
	return &config.Config{
		StartingRating:     1000,
		MaxRatingDiff:      200,
		MaxQueueWait:       5 * time.Minute,
		MaxRangeMultiplier: 3.0,
		ScanInterval:       5 * time.Second,
		PreStartDelay:      10 * time.Millisecond,
		StartCooldown:      time.Hour,
		EnableTeamPreview:  false,
		SinglesPickCount:   3,
		DoublesPickCount:   4,
		MinTeamSize:        1,
		MaxTeamSize:        6,
		AllowedFormats: []domain.Format{
			domain.FormatSingles, domain.FormatDoubles, domain.FormatDuo,
		},
	}
}

func newTeam(n int) []uuid.UUID {
	team := make([]uuid.UUID, n)
	for i := range team {
		team[i] = uuid.New()
	}
	return team
}

// fakeRatings serves fixed ratings, defaulting to 1000.
type fakeRatings struct {
	mu      sync.Mutex
	ratings map[uuid.UUID]int
}

func newFakeRatings() *fakeRatings {
	return &fakeRatings{ratings: make(map[uuid.UUID]int)}
}

func (f *fakeRatings) set(playerID uuid.UUID, rating int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings[playerID] = rating
}

func (f *fakeRatings) CurrentRating(_ context.Context, playerID uuid.UUID, _ domain.Format) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.ratings[playerID]; ok {
		return r, nil
	}
	return 1000, nil
}

// fakeStarter records started matches and can be told to fail. A hold
// channel, when set, blocks duo starts until the test closes it.
type fakeStarter struct {
	mu      sync.Mutex
	fail    bool
	matches []selection.Match
	duos    [][2]*domain.DuoTeam
	started chan struct{}
	hold    chan struct{}
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{started: make(chan struct{}, 16)}
}

func (f *fakeStarter) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeStarter) StartRankedBattle(_ context.Context, m selection.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		f.started <- struct{}{}
		return errors.New("host unavailable")
	}
	f.matches = append(f.matches, m)
	f.started <- struct{}{}
	return nil
}

func (f *fakeStarter) setHold(hold chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = hold
}

func (f *fakeStarter) BeginDuoMatch(_ context.Context, teamA, teamB *domain.DuoTeam) error {
	f.mu.Lock()
	fail := f.fail
	hold := f.hold
	if !fail {
		f.duos = append(f.duos, [2]*domain.DuoTeam{teamA, teamB})
	}
	f.mu.Unlock()

	f.started <- struct{}{}
	if hold != nil {
		<-hold
	}
	if fail {
		return errors.New("host unavailable")
	}
	return nil
}

func (f *fakeStarter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for battle start")
	}
}

func (f *fakeStarter) matchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matches)
}

func (f *fakeStarter) lastMatch() selection.Match {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches[len(f.matches)-1]
}

func (f *fakeStarter) duoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.duos)
}

func (f *fakeStarter) lastDuo() [2]*domain.DuoTeam {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duos[len(f.duos)-1]
}
