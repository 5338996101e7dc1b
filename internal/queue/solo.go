package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host"
	"github.com/intellectmind/ranked-arena/internal/selection"
)

// SoloQueue holds waiting players per format and pairs them by rating on
// each scan. A claimed pair moves through a pre-start grace delay and a
// final eligibility re-check before the draft begins.
type SoloQueue struct {
	cfg         *config.Config
	hst         host.Host
	ratings     RatingSource
	coordinator *selection.Coordinator
	battles     BattleStarter
	logger      zerolog.Logger

	mu         sync.Mutex
	entries    map[domain.Format]map[uuid.UUID]*domain.QueueEntry
	processing map[uuid.UUID]struct{}
	cooldowns  map[uuid.UUID]time.Time
}

func NewSoloQueue(
	cfg *config.Config,
	hst host.Host,
	ratings RatingSource,
	coordinator *selection.Coordinator,
	battles BattleStarter,
	logger zerolog.Logger,
) *SoloQueue {
	entries := make(map[domain.Format]map[uuid.UUID]*domain.QueueEntry)
	for _, f := range []domain.Format{domain.FormatSingles, domain.FormatDoubles} {
		entries[f] = make(map[uuid.UUID]*domain.QueueEntry)
	}
	return &SoloQueue{
		cfg:         cfg,
		hst:         hst,
		ratings:     ratings,
		coordinator: coordinator,
		battles:     battles,
		logger:      logger,
		entries:     entries,
		processing:  make(map[uuid.UUID]struct{}),
		cooldowns:   make(map[uuid.UUID]time.Time),
	}
}

func (q *SoloQueue) Join(ctx context.Context, playerID uuid.UUID, playerName string, format domain.Format, team []uuid.UUID) JoinStatus {
	if format != domain.FormatSingles && format != domain.FormatDoubles {
		return JoinFormatNotAllowed
	}
	if !q.cfg.FormatAllowed(format) {
		return JoinFormatNotAllowed
	}
	if len(team) == 0 {
		return JoinEmptyTeam
	}
	if len(team) < q.cfg.MinTeamSize || len(team) > q.cfg.MaxTeamSize {
		return JoinTeamInvalid
	}
	if q.hst.IsInBattle(playerID) {
		return JoinAlreadyInBattle
	}
	if !q.hst.ValidateTeam(ctx, playerID, team, format) {
		return JoinTeamInvalid
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if until, ok := q.cooldowns[playerID]; ok {
		if time.Now().Before(until) {
			return JoinInCooldown
		}
		delete(q.cooldowns, playerID)
	}
	if q.queuedLocked(playerID) {
		return JoinAlreadyQueued
	}

	q.entries[format][playerID] = &domain.QueueEntry{
		PlayerID:   playerID,
		PlayerName: playerName,
		Format:     format,
		Team:       team,
		JoinedAt:   time.Now(),
	}
	q.logger.Info().
		Str("player", playerID.String()).
		Str("format", string(format)).
		Int("team_size", len(team)).
		Msg("player joined solo queue")
	return JoinAccepted
}

// Leave removes a waiting player. Players already claimed for a forming
// match are past the point of leaving.
func (q *SoloQueue) Leave(playerID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for format, byPlayer := range q.entries {
		if _, ok := byPlayer[playerID]; ok {
			delete(byPlayer, playerID)
			q.logger.Info().
				Str("player", playerID.String()).
				Str("format", string(format)).
				Msg("player left solo queue")
			return true
		}
	}
	return false
}

// Status reports the format a player is waiting in.
func (q *SoloQueue) Status(playerID uuid.UUID) (domain.Format, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for format, byPlayer := range q.entries {
		if _, ok := byPlayer[playerID]; ok {
			return format, true
		}
	}
	return "", false
}

func (q *SoloQueue) Len(format domain.Format) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries[format])
}

// Clear empties the queue, used on shutdown so nobody stays claimed.
func (q *SoloQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, byPlayer := range q.entries {
		for id := range byPlayer {
			delete(byPlayer, id)
		}
	}
	q.processing = make(map[uuid.UUID]struct{})
}

// Scan pairs compatible waiting players. It runs on the scheduler tick.
func (q *SoloQueue) Scan(ctx context.Context) {
	q.sweepStale()

	for _, format := range []domain.Format{domain.FormatSingles, domain.FormatDoubles} {
		candidates := q.ratedSnapshot(ctx, format)
		pairs := q.claimPairs(format, candidates)
		for _, p := range pairs {
			go q.formMatch(ctx, format, p[0], p[1])
		}
	}
}

type ratedEntry struct {
	entry  domain.QueueEntry
	rating int
}

// sweepStale drops entries whose player went offline while waiting.
func (q *SoloQueue) sweepStale() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for format, byPlayer := range q.entries {
		for id := range byPlayer {
			if q.hst.IsDisconnected(id) {
				delete(byPlayer, id)
				q.logger.Debug().
					Str("player", id.String()).
					Str("format", string(format)).
					Msg("removed disconnected player from queue")
			}
		}
	}
}

// ratedSnapshot copies the waiting entries and resolves their ratings
// outside the lock, since rating lookups hit the database.
func (q *SoloQueue) ratedSnapshot(ctx context.Context, format domain.Format) []ratedEntry {
	q.mu.Lock()
	snapshot := make([]domain.QueueEntry, 0, len(q.entries[format]))
	for _, e := range q.entries[format] {
		snapshot = append(snapshot, *e)
	}
	q.mu.Unlock()

	rated := make([]ratedEntry, 0, len(snapshot))
	for _, e := range snapshot {
		rating, err := q.ratings.CurrentRating(ctx, e.PlayerID, format)
		if err != nil {
			q.logger.Error().Err(err).
				Str("player", e.PlayerID.String()).
				Msg("failed to resolve rating, skipping this scan")
			continue
		}
		rated = append(rated, ratedEntry{entry: e, rating: rating})
	}
	sort.Slice(rated, func(i, j int) bool { return rated[i].rating < rated[j].rating })
	return rated
}

// claimPairs atomically claims rating-adjacent pairs whose gap fits the
// wait-widened window. Claimed players leave the queue and are marked
// processing so a concurrent scan cannot claim them twice.
func (q *SoloQueue) claimPairs(format domain.Format, rated []ratedEntry) [][2]domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var pairs [][2]domain.QueueEntry

	i := 0
	for i < len(rated)-1 {
		a, b := rated[i], rated[i+1]

		// The snapshot may be stale: the player could have left or been
		// claimed since it was taken.
		if _, ok := q.entries[format][a.entry.PlayerID]; !ok {
			i++
			continue
		}
		if _, ok := q.entries[format][b.entry.PlayerID]; !ok {
			i += 2
			continue
		}

		longestWait := now.Sub(a.entry.JoinedAt)
		if w := now.Sub(b.entry.JoinedAt); w > longestWait {
			longestWait = w
		}
		gap := b.rating - a.rating
		if gap > allowedRatingGap(q.cfg.MaxRatingDiff, longestWait, q.cfg.MaxQueueWait, q.cfg.MaxRangeMultiplier) {
			i++
			continue
		}

		delete(q.entries[format], a.entry.PlayerID)
		delete(q.entries[format], b.entry.PlayerID)
		q.processing[a.entry.PlayerID] = struct{}{}
		q.processing[b.entry.PlayerID] = struct{}{}
		pairs = append(pairs, [2]domain.QueueEntry{a.entry, b.entry})
		i += 2
	}
	return pairs
}

// formMatch takes a claimed pair through the pre-start delay, re-checks
// both players, and hands survivors to the draft coordinator.
func (q *SoloQueue) formMatch(ctx context.Context, format domain.Format, a, b domain.QueueEntry) {
	q.hst.Notify(a.PlayerID, "Opponent found, battle starting soon.")
	q.hst.Notify(b.PlayerID, "Opponent found, battle starting soon.")

	timer := time.NewTimer(q.cfg.PreStartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		q.releaseProcessing(a.PlayerID, b.PlayerID)
		return
	case <-timer.C:
	}

	okA := q.stillEligible(ctx, a, format)
	okB := q.stillEligible(ctx, b, format)
	if !okA || !okB {
		q.releaseProcessing(a.PlayerID, b.PlayerID)
		if okA {
			q.requeue(a, b.PlayerName)
		}
		if okB {
			q.requeue(b, a.PlayerName)
		}
		return
	}

	match := selection.Match{
		Format:  format,
		PlayerA: a.PlayerID,
		PlayerB: b.PlayerID,
		NameA:   a.PlayerName,
		NameB:   b.PlayerName,
		TeamA:   a.Team,
		TeamB:   b.Team,
	}
	// Both players stay marked processing until the draft reaches a
	// terminal state, so no scan or re-join can claim them into a second
	// match while this one is still forming.
	q.coordinator.Begin(ctx, match, func(ctx context.Context, m selection.Match) {
		if err := q.battles.StartRankedBattle(ctx, m); err != nil {
			q.logger.Error().Err(err).
				Str("player_a", m.PlayerA.String()).
				Str("player_b", m.PlayerB.String()).
				Msg("failed to start ranked battle")
			q.applyCooldown(m.PlayerA, m.PlayerB)
			q.hst.Notify(m.PlayerA, "Battle could not be started, try again shortly.")
			q.hst.Notify(m.PlayerB, "Battle could not be started, try again shortly.")
		}
	}, func() {
		q.releaseProcessing(a.PlayerID, b.PlayerID)
	})
}

func (q *SoloQueue) stillEligible(ctx context.Context, e domain.QueueEntry, format domain.Format) bool {
	if q.hst.IsDisconnected(e.PlayerID) || q.hst.IsInBattle(e.PlayerID) {
		return false
	}
	return q.hst.ValidateTeam(ctx, e.PlayerID, e.Team, format)
}

// requeue puts a player back at their original queue position after the
// other side of a forming match fell through.
func (q *SoloQueue) requeue(e domain.QueueEntry, opponentName string) {
	q.mu.Lock()
	entry := e
	q.entries[e.Format][e.PlayerID] = &entry
	q.mu.Unlock()
	q.hst.Notify(e.PlayerID, "Opponent unavailable, you are back in the queue.")
	q.logger.Info().
		Str("player", e.PlayerID.String()).
		Str("opponent", opponentName).
		Msg("requeued player after failed match formation")
}

func (q *SoloQueue) releaseProcessing(ids ...uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		delete(q.processing, id)
	}
}

func (q *SoloQueue) applyCooldown(ids ...uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	until := time.Now().Add(q.cfg.StartCooldown)
	for _, id := range ids {
		q.cooldowns[id] = until
	}
}

func (q *SoloQueue) queuedLocked(playerID uuid.UUID) bool {
	if _, ok := q.processing[playerID]; ok {
		return true
	}
	for _, byPlayer := range q.entries {
		if _, ok := byPlayer[playerID]; ok {
			return true
		}
	}
	return false
}
