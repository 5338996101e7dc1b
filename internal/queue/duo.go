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
	"github.com/intellectmind/ranked-arena/internal/rating"
)

// DuoQueue holds players waiting for the 2v2 relay format. Players queue
// alone; each scan groups four rating-adjacent players and splits them into
// two balanced teams by pairing the outer ratings against the inner ones.
type DuoQueue struct {
	cfg     *config.Config
	hst     host.Host
	ratings RatingSource
	battles DuoBattleStarter
	logger  zerolog.Logger

	mu         sync.Mutex
	entries    map[uuid.UUID]*domain.QueueEntry
	processing map[uuid.UUID]struct{}
	cooldowns  map[uuid.UUID]time.Time
}

func NewDuoQueue(
	cfg *config.Config,
	hst host.Host,
	ratings RatingSource,
	battles DuoBattleStarter,
	logger zerolog.Logger,
) *DuoQueue {
	return &DuoQueue{
		cfg:        cfg,
		hst:        hst,
		ratings:    ratings,
		battles:    battles,
		logger:     logger,
		entries:    make(map[uuid.UUID]*domain.QueueEntry),
		processing: make(map[uuid.UUID]struct{}),
		cooldowns:  make(map[uuid.UUID]time.Time),
	}
}

func (q *DuoQueue) Join(ctx context.Context, playerID uuid.UUID, playerName string, team []uuid.UUID) JoinStatus {
	if !q.cfg.FormatAllowed(domain.FormatDuo) {
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
	if !q.hst.ValidateTeam(ctx, playerID, team, domain.FormatDuo) {
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
	if _, ok := q.entries[playerID]; ok {
		return JoinAlreadyQueued
	}
	if _, ok := q.processing[playerID]; ok {
		return JoinAlreadyQueued
	}

	q.entries[playerID] = &domain.QueueEntry{
		PlayerID:   playerID,
		PlayerName: playerName,
		Format:     domain.FormatDuo,
		Team:       team,
		JoinedAt:   time.Now(),
	}
	q.logger.Info().
		Str("player", playerID.String()).
		Int("team_size", len(team)).
		Msg("player joined duo queue")
	return JoinAccepted
}

func (q *DuoQueue) Leave(playerID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[playerID]; !ok {
		return false
	}
	delete(q.entries, playerID)
	q.logger.Info().Str("player", playerID.String()).Msg("player left duo queue")
	return true
}

func (q *DuoQueue) Queued(playerID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[playerID]
	return ok
}

// UpdateTeam swaps the creature list of a waiting player.
func (q *DuoQueue) UpdateTeam(ctx context.Context, playerID uuid.UUID, team []uuid.UUID) bool {
	if len(team) == 0 || !q.hst.ValidateTeam(ctx, playerID, team, domain.FormatDuo) {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.entries[playerID]
	if !ok {
		return false
	}
	entry.Team = team
	return true
}

func (q *DuoQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *DuoQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[uuid.UUID]*domain.QueueEntry)
	q.processing = make(map[uuid.UUID]struct{})
}

// Scan groups waiting players into matches of four.
func (q *DuoQueue) Scan(ctx context.Context) {
	q.sweepStale()

	rated := q.ratedSnapshot(ctx)
	groups := q.claimQuads(rated)
	for _, g := range groups {
		go q.formMatch(ctx, g)
	}
}

func (q *DuoQueue) sweepStale() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id := range q.entries {
		if q.hst.IsDisconnected(id) {
			delete(q.entries, id)
			q.logger.Debug().Str("player", id.String()).Msg("removed disconnected player from duo queue")
		}
	}
}

func (q *DuoQueue) ratedSnapshot(ctx context.Context) []ratedEntry {
	q.mu.Lock()
	snapshot := make([]domain.QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		snapshot = append(snapshot, *e)
	}
	q.mu.Unlock()

	rated := make([]ratedEntry, 0, len(snapshot))
	for _, e := range snapshot {
		r, err := q.ratings.CurrentRating(ctx, e.PlayerID, domain.FormatDuo)
		if err != nil {
			q.logger.Error().Err(err).
				Str("player", e.PlayerID.String()).
				Msg("failed to resolve rating, skipping this scan")
			continue
		}
		rated = append(rated, ratedEntry{entry: e, rating: r})
	}
	sort.Slice(rated, func(i, j int) bool { return rated[i].rating < rated[j].rating })
	return rated
}

type duoGroup struct {
	players [4]domain.QueueEntry
	ratings [4]int
}

// claimQuads claims windows of four rating-adjacent players whose total
// spread fits the wait-widened window.
func (q *DuoQueue) claimQuads(rated []ratedEntry) []duoGroup {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var groups []duoGroup

	i := 0
	for i <= len(rated)-4 {
		window := rated[i : i+4]

		stale := false
		for _, c := range window {
			if _, ok := q.entries[c.entry.PlayerID]; !ok {
				stale = true
				break
			}
		}
		if stale {
			i++
			continue
		}

		var longestWait time.Duration
		for _, c := range window {
			if w := now.Sub(c.entry.JoinedAt); w > longestWait {
				longestWait = w
			}
		}
		spread := window[3].rating - window[0].rating
		if spread > allowedRatingGap(q.cfg.MaxRatingDiff, longestWait, q.cfg.MaxQueueWait, q.cfg.MaxRangeMultiplier) {
			i++
			continue
		}

		var g duoGroup
		for j, c := range window {
			g.players[j] = c.entry
			g.ratings[j] = c.rating
			delete(q.entries, c.entry.PlayerID)
			q.processing[c.entry.PlayerID] = struct{}{}
		}
		groups = append(groups, g)
		i += 4
	}
	return groups
}

// formMatch splits a claimed group into two teams. Pairing the lowest with
// the highest rating against the two middle ratings keeps the team averages
// as close as the window allows.
func (q *DuoQueue) formMatch(ctx context.Context, g duoGroup) {
	for _, p := range g.players {
		q.hst.Notify(p.PlayerID, "Relay match found, battle starting soon.")
	}

	timer := time.NewTimer(q.cfg.PreStartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		q.release(g)
		return
	case <-timer.C:
	}

	for _, p := range g.players {
		if q.hst.IsDisconnected(p.PlayerID) || q.hst.IsInBattle(p.PlayerID) ||
			!q.hst.ValidateTeam(ctx, p.PlayerID, p.Team, domain.FormatDuo) {
			q.abort(g, p.PlayerID)
			return
		}
	}
	// All four stay marked processing until the battle start resolves, so
	// nobody can be claimed into a second match meanwhile.
	defer q.release(g)

	teamA := &domain.DuoTeam{
		PlayerA:  g.players[0].PlayerID,
		PlayerB:  g.players[3].PlayerID,
		TeamA:    g.players[0].Team,
		TeamB:    g.players[3].Team,
		JoinedAt: g.players[0].JoinedAt,
	}
	teamB := &domain.DuoTeam{
		PlayerA:  g.players[1].PlayerID,
		PlayerB:  g.players[2].PlayerID,
		TeamA:    g.players[1].Team,
		TeamB:    g.players[2].Team,
		JoinedAt: g.players[1].JoinedAt,
	}
	q.logger.Info().
		Int("avg_a", rating.TeamAverage(g.ratings[0], g.ratings[3])).
		Int("avg_b", rating.TeamAverage(g.ratings[1], g.ratings[2])).
		Msg("duo match formed")

	if err := q.battles.BeginDuoMatch(ctx, teamA, teamB); err != nil {
		q.logger.Error().Err(err).Msg("failed to begin duo match")
		q.mu.Lock()
		until := time.Now().Add(q.cfg.StartCooldown)
		for _, p := range g.players {
			q.cooldowns[p.PlayerID] = until
		}
		q.mu.Unlock()
		for _, p := range g.players {
			q.hst.Notify(p.PlayerID, "Battle could not be started, try again shortly.")
		}
	}
}

// abort requeues the eligible members of a failed group at their original
// positions and drops the offender.
func (q *DuoQueue) abort(g duoGroup, offender uuid.UUID) {
	q.mu.Lock()
	for _, p := range g.players {
		delete(q.processing, p.PlayerID)
		if p.PlayerID == offender {
			continue
		}
		entry := p
		q.entries[p.PlayerID] = &entry
	}
	q.mu.Unlock()
	for _, p := range g.players {
		if p.PlayerID != offender {
			q.hst.Notify(p.PlayerID, "A player became unavailable, you are back in the queue.")
		}
	}
	q.logger.Info().Str("player", offender.String()).Msg("duo match formation aborted")
}

func (q *DuoQueue) release(g duoGroup) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range g.players {
		delete(q.processing, p.PlayerID)
	}
}
