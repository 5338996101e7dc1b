package battle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/constants"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host"
	"github.com/intellectmind/ranked-arena/internal/rating"
	"github.com/intellectmind/ranked-arena/internal/repository"
	"github.com/intellectmind/ranked-arena/internal/reward"
	"github.com/intellectmind/ranked-arena/internal/season"
	"github.com/intellectmind/ranked-arena/internal/selection"
)

type registration struct {
	domain.BattleRegistration
	matchID uuid.UUID // zero for solo battles
}

// duoMatch is the relay state of one 2v2 match. used accumulates creatures
// knocked out in earlier rounds; they cannot return in later rounds.
type duoMatch struct {
	id    uuid.UUID
	teamA *domain.DuoTeam
	teamB *domain.DuoTeam
	used  map[uuid.UUID]struct{}
	round int
	done  bool
}

// Manager owns every running ranked battle. It registers host battle
// handles, applies results when the host reports them, and drives the 2v2
// relay round machine.
type Manager struct {
	cfg     *config.Config
	hst     host.Host
	ranks   *repository.RankRepository
	seasons *season.Manager
	rewards *reward.Manager
	logger  zerolog.Logger

	mu            sync.Mutex
	registrations map[host.BattleHandle]*registration
	duoMatches    map[uuid.UUID]*duoMatch
	returnLocs    map[uuid.UUID]host.Location
}

func NewManager(
	cfg *config.Config,
	hst host.Host,
	ranks *repository.RankRepository,
	seasons *season.Manager,
	rewards *reward.Manager,
	logger zerolog.Logger,
) *Manager {
	return &Manager{
		cfg:           cfg,
		hst:           hst,
		ranks:         ranks,
		seasons:       seasons,
		rewards:       rewards,
		logger:        logger,
		registrations: make(map[host.BattleHandle]*registration),
		duoMatches:    make(map[uuid.UUID]*duoMatch),
		returnLocs:    make(map[uuid.UUID]host.Location),
	}
}

// StartRankedBattle launches a solo battle for a drafted match and registers
// the host handle so result events can be resolved back to ranked state.
func (b *Manager) StartRankedBattle(ctx context.Context, m selection.Match) error {
	b.saveReturnLocation(m.PlayerA)
	b.saveReturnLocation(m.PlayerB)

	handle, err := b.hst.StartBattle(ctx, m.Format, m.PlayerA, m.PlayerB, m.TeamA, m.TeamB)
	if err != nil {
		b.dropReturnLocation(m.PlayerA)
		b.dropReturnLocation(m.PlayerB)
		return fmt.Errorf("host refused to start battle: %w", err)
	}

	b.mu.Lock()
	b.registrations[handle] = &registration{
		BattleRegistration: domain.BattleRegistration{
			BattleID: uuid.New(),
			Format:   m.Format,
			SideA:    []uuid.UUID{m.PlayerA},
			SideB:    []uuid.UUID{m.PlayerB},
		},
	}
	b.mu.Unlock()

	b.recordUsage(ctx, m.Format, m.TeamA, m.TeamB)
	b.logger.Info().
		Str("handle", string(handle)).
		Str("format", string(m.Format)).
		Str("player_a", m.PlayerA.String()).
		Str("player_b", m.PlayerB.String()).
		Msg("ranked battle started")
	return nil
}

// BeginDuoMatch opens a 2v2 relay match and starts its first round.
func (b *Manager) BeginDuoMatch(ctx context.Context, teamA, teamB *domain.DuoTeam) error {
	dm := &duoMatch{
		id:    uuid.New(),
		teamA: teamA,
		teamB: teamB,
		used:  make(map[uuid.UUID]struct{}),
	}

	b.mu.Lock()
	b.duoMatches[dm.id] = dm
	b.mu.Unlock()

	for _, p := range teamA.Members() {
		b.saveReturnLocation(p)
	}
	for _, p := range teamB.Members() {
		b.saveReturnLocation(p)
	}
	b.recordUsage(ctx, domain.FormatDuo, teamA.TeamA, teamA.TeamB)
	b.recordUsage(ctx, domain.FormatDuo, teamB.TeamA, teamB.TeamB)

	if err := b.startRound(ctx, dm); err != nil {
		b.mu.Lock()
		delete(b.duoMatches, dm.id)
		b.mu.Unlock()
		return err
	}
	b.logger.Info().
		Str("match", dm.id.String()).
		Msg("duo match started")
	return nil
}

// startRound launches the battle between both teams' active members,
// excluding creatures already knocked out in earlier rounds.
func (b *Manager) startRound(ctx context.Context, dm *duoMatch) error {
	b.mu.Lock()
	if dm.done {
		b.mu.Unlock()
		return nil
	}
	pA := dm.teamA.ActivePlayer()
	pB := dm.teamB.ActivePlayer()
	teamA := filterUsed(dm.teamA.ActiveTeam(), dm.used)
	teamB := filterUsed(dm.teamB.ActiveTeam(), dm.used)
	dm.round++
	round := dm.round
	b.mu.Unlock()

	// A relay member with nothing left to send loses the match outright.
	if len(teamA) == 0 {
		b.resolveDuo(ctx, dm, dm.teamB, dm.teamA, false)
		return nil
	}
	if len(teamB) == 0 {
		b.resolveDuo(ctx, dm, dm.teamA, dm.teamB, false)
		return nil
	}

	handle, err := b.hst.StartBattle(ctx, domain.FormatDuo, pA, pB, teamA, teamB)
	if err != nil {
		return fmt.Errorf("host refused to start relay round %d: %w", round, err)
	}

	b.mu.Lock()
	b.registrations[handle] = &registration{
		BattleRegistration: domain.BattleRegistration{
			BattleID: uuid.New(),
			Format:   domain.FormatDuo,
			SideA:    []uuid.UUID{pA},
			SideB:    []uuid.UUID{pB},
		},
		matchID: dm.id,
	}
	b.mu.Unlock()

	b.logger.Info().
		Str("match", dm.id.String()).
		Int("round", round).
		Str("handle", string(handle)).
		Msg("relay round started")
	return nil
}

// OnBattleVictory resolves a host victory event. Events for handles that
// were never registered, or were already resolved, are logged and ignored.
func (b *Manager) OnBattleVictory(ctx context.Context, handle host.BattleHandle, winner uuid.UUID) {
	b.mu.Lock()
	reg, ok := b.registrations[handle]
	if ok && reg.SideOf(winner) < 0 {
		b.mu.Unlock()
		b.logger.Warn().
			Str("handle", string(handle)).
			Str("winner", winner.String()).
			Msg("victory event names a non-participant, ignored")
		return
	}
	if ok {
		delete(b.registrations, handle)
	}
	b.mu.Unlock()
	if !ok {
		b.logger.Debug().
			Str("handle", string(handle)).
			Msg("victory event for unknown battle ignored")
		return
	}

	loser := otherParticipant(reg, winner)
	if reg.matchID == uuid.Nil {
		b.applySoloResult(ctx, reg.Format, winner, loser, false)
		return
	}
	b.advanceDuo(ctx, handle, reg, winner, loser)
}

// OnParticipantDisconnect forfeits the battle a player was in. Solo battles
// resolve to the opponent; a relay match resolves against the disconnected
// player's whole team.
func (b *Manager) OnParticipantDisconnect(ctx context.Context, playerID uuid.UUID) bool {
	b.mu.Lock()
	var (
		handle host.BattleHandle
		reg    *registration
	)
	for h, r := range b.registrations {
		if r.SideOf(playerID) >= 0 {
			handle, reg = h, r
			break
		}
	}
	if reg != nil {
		delete(b.registrations, handle)
	}
	b.mu.Unlock()

	if reg == nil {
		return b.forfeitPendingDuo(ctx, playerID)
	}

	b.logger.Info().
		Str("handle", string(handle)).
		Str("player", playerID.String()).
		Msg("participant disconnected mid-battle")

	winner := otherParticipant(reg, playerID)
	if reg.matchID == uuid.Nil {
		b.applySoloResult(ctx, reg.Format, winner, playerID, true)
		b.hst.Notify(winner, "Your opponent fled. Victory is yours.")
		return true
	}

	dm := b.takeDuo(reg.matchID)
	if dm == nil {
		return true
	}
	winnerTeam, loserTeam := dm.teamA, dm.teamB
	if dm.teamA.Has(playerID) {
		winnerTeam, loserTeam = dm.teamB, dm.teamA
	}
	b.resolveDuo(ctx, dm, winnerTeam, loserTeam, true)
	return true
}

// forfeitPendingDuo handles a disconnect that lands between relay rounds,
// when no battle handle is registered but the match is still alive.
func (b *Manager) forfeitPendingDuo(ctx context.Context, playerID uuid.UUID) bool {
	b.mu.Lock()
	var dm *duoMatch
	for _, m := range b.duoMatches {
		if !m.done && (m.teamA.Has(playerID) || m.teamB.Has(playerID)) {
			dm = m
			break
		}
	}
	b.mu.Unlock()
	if dm == nil {
		return false
	}

	winnerTeam, loserTeam := dm.teamA, dm.teamB
	if dm.teamA.Has(playerID) {
		winnerTeam, loserTeam = dm.teamB, dm.teamA
	}
	b.resolveDuo(ctx, dm, winnerTeam, loserTeam, true)
	return true
}

// advanceDuo records the round outcome and either relays in the losing
// team's second member or ends the match.
func (b *Manager) advanceDuo(ctx context.Context, handle host.BattleHandle, reg *registration, winner, loser uuid.UUID) {
	b.mu.Lock()
	dm, ok := b.duoMatches[reg.matchID]
	if !ok || dm.done {
		b.mu.Unlock()
		b.logger.Debug().
			Str("handle", string(handle)).
			Msg("victory event for resolved duo match ignored")
		return
	}
	for _, p := range []uuid.UUID{winner, loser} {
		for _, c := range b.hst.FaintedCreatures(handle, p) {
			dm.used[c] = struct{}{}
		}
	}
	winnerTeam, loserTeam := dm.teamA, dm.teamB
	if dm.teamA.Has(loser) {
		winnerTeam, loserTeam = dm.teamB, dm.teamA
	}
	exhausted := !loserTeam.Advance()
	b.mu.Unlock()

	if exhausted {
		b.resolveDuo(ctx, dm, winnerTeam, loserTeam, false)
		return
	}

	next := loserTeam.ActivePlayer()
	b.hst.Notify(next, "Your teammate fell. You are up next!")
	b.logger.Info().
		Str("match", dm.id.String()).
		Str("next", next.String()).
		Msg("relaying in next team member")

	// Short grace period before the next round so the incoming player can
	// get ready. Disconnects during the window forfeit the match.
	time.AfterFunc(b.cfg.RoundGraceDelay, func() {
		rctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
		defer cancel()
		if b.hst.IsDisconnected(next) {
			b.resolveDuo(rctx, dm, winnerTeam, loserTeam, true)
			return
		}
		if err := b.startRound(rctx, dm); err != nil {
			b.logger.Error().Err(err).
				Str("match", dm.id.String()).
				Msg("failed to start relay round, forfeiting match")
			b.resolveDuo(rctx, dm, winnerTeam, loserTeam, false)
		}
	})
}

// resolveDuo ends a relay match and applies the team result.
func (b *Manager) resolveDuo(ctx context.Context, dm *duoMatch, winnerTeam, loserTeam *domain.DuoTeam, forfeit bool) {
	b.mu.Lock()
	if dm.done {
		b.mu.Unlock()
		return
	}
	dm.done = true
	delete(b.duoMatches, dm.id)
	b.mu.Unlock()

	b.applyDuoResult(ctx, winnerTeam.Members(), loserTeam.Members(), forfeit)
	b.logger.Info().
		Str("match", dm.id.String()).
		Bool("forfeit", forfeit).
		Msg("duo match resolved")
}

func (b *Manager) takeDuo(matchID uuid.UUID) *duoMatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	dm, ok := b.duoMatches[matchID]
	if !ok {
		return nil
	}
	return dm
}

func (b *Manager) applySoloResult(ctx context.Context, format domain.Format, winner, loser uuid.UUID, forfeit bool) {
	seasonID := b.seasons.CurrentID()
	wr, err := b.loadOrCreate(ctx, winner, seasonID, format)
	if err != nil {
		b.logger.Error().Err(err).Str("player", winner.String()).Msg("failed to load winner record")
		return
	}
	lr, err := b.loadOrCreate(ctx, loser, seasonID, format)
	if err != nil {
		b.logger.Error().Err(err).Str("player", loser.String()).Msg("failed to load loser record")
		return
	}

	oldW, oldL := wr.Rating, lr.Rating
	newW, newL := rating.Delta(wr.Rating, lr.Rating, b.cfg.KFactor, b.cfg.RatingFloor, b.cfg.LoserProtectionRate)
	wr.RecordWin(newW)
	lr.RecordLoss(newL, forfeit)
	b.rewards.GrantIfEligible(ctx, wr)

	if err := b.persistRecords(ctx, wr, lr); err != nil {
		b.logger.Error().Err(err).Msg("failed to persist battle result")
		return
	}

	b.hst.Notify(winner, fmt.Sprintf("Victory! Rating %d -> %d", oldW, newW))
	b.hst.Notify(loser, fmt.Sprintf("Defeat. Rating %d -> %d", oldL, newL))
	b.returnPlayer(winner)
	b.returnPlayer(loser)

	b.logger.Info().
		Str("winner", winner.String()).
		Str("loser", loser.String()).
		Int("winner_rating", newW).
		Int("loser_rating", newL).
		Bool("forfeit", forfeit).
		Msg("battle result applied")
}

// applyDuoResult rates the match on team averages, then moves each member
// by the average delta so teammates rise and fall together.
func (b *Manager) applyDuoResult(ctx context.Context, winners, losers [2]uuid.UUID, forfeit bool) {
	seasonID := b.seasons.CurrentID()

	var wrs, lrs [2]*domain.PlayerRankRecord
	for i, p := range winners {
		r, err := b.loadOrCreate(ctx, p, seasonID, domain.FormatDuo)
		if err != nil {
			b.logger.Error().Err(err).Str("player", p.String()).Msg("failed to load winner record")
			return
		}
		wrs[i] = r
	}
	for i, p := range losers {
		r, err := b.loadOrCreate(ctx, p, seasonID, domain.FormatDuo)
		if err != nil {
			b.logger.Error().Err(err).Str("player", p.String()).Msg("failed to load loser record")
			return
		}
		lrs[i] = r
	}

	avgW := rating.TeamAverage(wrs[0].Rating, wrs[1].Rating)
	avgL := rating.TeamAverage(lrs[0].Rating, lrs[1].Rating)
	newAvgW, newAvgL := rating.Delta(avgW, avgL, b.cfg.KFactor, b.cfg.RatingFloor, b.cfg.LoserProtectionRate)
	deltaW, deltaL := newAvgW-avgW, newAvgL-avgL

	for _, r := range wrs {
		old := r.Rating
		r.RecordWin(clampFloor(r.Rating+deltaW, b.cfg.RatingFloor))
		b.rewards.GrantIfEligible(ctx, r)
		b.hst.Notify(r.PlayerID, fmt.Sprintf("Relay victory! Rating %d -> %d", old, r.Rating))
	}
	for _, r := range lrs {
		old := r.Rating
		r.RecordLoss(clampFloor(r.Rating+deltaL, b.cfg.RatingFloor), forfeit)
		b.hst.Notify(r.PlayerID, fmt.Sprintf("Relay defeat. Rating %d -> %d", old, r.Rating))
	}

	if err := b.persistRecords(ctx, wrs[0], wrs[1], lrs[0], lrs[1]); err != nil {
		b.logger.Error().Err(err).Msg("failed to persist duo result")
		return
	}

	for _, p := range winners {
		b.returnPlayer(p)
	}
	for _, p := range losers {
		b.returnPlayer(p)
	}
}

func (b *Manager) loadOrCreate(ctx context.Context, playerID uuid.UUID, seasonID int, format domain.Format) (*domain.PlayerRankRecord, error) {
	record, err := b.ranks.Get(ctx, playerID, seasonID, format)
	if errors.Is(err, sql.ErrNoRows) {
		record = domain.NewPlayerRankRecord(playerID, seasonID, format, b.cfg.StartingRating)
		record.PlayerName = b.hst.DisplayName(playerID)
		return record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rank record: %w", err)
	}
	if record.PlayerName == "" {
		record.PlayerName = b.hst.DisplayName(playerID)
	}
	return record, nil
}

// persistRecords retries transient write failures so a busy database cannot
// drop a battle result. All records land in one transaction.
func (b *Manager) persistRecords(ctx context.Context, records ...*domain.PlayerRankRecord) error {
	backoff := retry.WithMaxRetries(constants.PersistMaxRetries, retry.NewExponential(constants.PersistRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := b.ranks.UpsertAll(ctx, records...); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (b *Manager) recordUsage(ctx context.Context, format domain.Format, teams ...[]uuid.UUID) {
	seasonID := b.seasons.CurrentID()
	for _, team := range teams {
		for _, creature := range team {
			species, ok := b.hst.SpeciesOf(creature)
			if !ok {
				continue
			}
			if err := b.ranks.IncrementSpeciesUsage(ctx, seasonID, format, species); err != nil {
				b.logger.Warn().Err(err).Str("species", species).Msg("failed to record species usage")
			}
		}
	}
}

func (b *Manager) saveReturnLocation(playerID uuid.UUID) {
	loc, ok := b.hst.CurrentLocation(playerID)
	if !ok {
		return
	}
	b.mu.Lock()
	b.returnLocs[playerID] = loc
	b.mu.Unlock()
}

func (b *Manager) dropReturnLocation(playerID uuid.UUID) {
	b.mu.Lock()
	delete(b.returnLocs, playerID)
	b.mu.Unlock()
}

func (b *Manager) returnPlayer(playerID uuid.UUID) {
	b.mu.Lock()
	loc, ok := b.returnLocs[playerID]
	delete(b.returnLocs, playerID)
	b.mu.Unlock()
	if !ok {
		return
	}
	if err := b.hst.Teleport(playerID, loc); err != nil {
		b.logger.Warn().Err(err).Str("player", playerID.String()).Msg("failed to return player")
	}
}

func otherParticipant(reg *registration, playerID uuid.UUID) uuid.UUID {
	for _, p := range reg.Participants() {
		if p != playerID {
			return p
		}
	}
	return uuid.Nil
}

func filterUsed(team []uuid.UUID, used map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(team))
	for _, c := range team {
		if _, gone := used[c]; !gone {
			out = append(out, c)
		}
	}
	return out
}

func clampFloor(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}
