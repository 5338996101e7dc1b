package selection

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host"
)

// Match is a formed pairing ready for the draft phase.
type Match struct {
	Format  domain.Format
	PlayerA uuid.UUID
	PlayerB uuid.UUID
	NameA   string
	NameB   string
	TeamA   []uuid.UUID
	TeamB   []uuid.UUID
}

// StartFunc receives the final match once both drafts resolve.
type StartFunc func(ctx context.Context, m Match)

// DraftOffer is what a player sees during team preview: their own roster
// with real identifiers, and the opponent's roster under fresh identifiers
// so creature identity cannot be correlated across matches.
type DraftOffer struct {
	SessionID    string       `json:"session_id"`
	Format       domain.Format `json:"format"`
	OpponentName string       `json:"opponent_name"`
	PickCount    int          `json:"pick_count"`
	OwnTeam      []uuid.UUID  `json:"own_team"`
	Opponent     []DraftEntry `json:"opponent"`
	Deadline     time.Time    `json:"deadline"`
}

// DraftEntry is one obfuscated opponent roster slot.
type DraftEntry struct {
	ID      uuid.UUID `json:"id"`
	Species string    `json:"species"`
}

type session struct {
	id       string
	match    Match
	picks    map[uuid.UUID][]uuid.UUID
	offers   map[uuid.UUID]DraftOffer
	timer    *time.Timer
	started  bool
	start    StartFunc
	done     func()
	doneOnce sync.Once
}

// finish fires the caller's terminal callback exactly once, after the
// session either started its battle or was cancelled.
func (s *session) finish() {
	if s.done == nil {
		return
	}
	s.doneOnce.Do(s.done)
}

// Coordinator runs the pre-battle draft. Sessions are keyed by player so
// both participants resolve to the same session.
type Coordinator struct {
	cfg    *config.Config
	hst    host.PlayerGateway
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

func NewCoordinator(cfg *config.Config, hst host.PlayerGateway, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		hst:      hst,
		logger:   logger,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Begin opens a draft for the match, or starts it immediately when the
// draft cannot narrow anything down. done fires exactly once when the
// session reaches a terminal state (battle started or cancelled), so the
// caller can hold its claim on both players until then.
func (c *Coordinator) Begin(ctx context.Context, m Match, start StartFunc, done func()) {
	limit := c.cfg.PickCount(m.Format)
	if !c.cfg.EnableTeamPreview || (len(m.TeamA) <= limit && len(m.TeamB) <= limit) {
		start(ctx, m)
		if done != nil {
			done()
		}
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		// Draft bookkeeping is best-effort; fall back to full teams.
		c.logger.Error().Err(err).Msg("failed to generate draft session id")
		start(ctx, m)
		if done != nil {
			done()
		}
		return
	}

	deadline := time.Now().Add(c.cfg.SelectionTimeout)
	s := &session{
		id:    id,
		match: m,
		picks: make(map[uuid.UUID][]uuid.UUID),
		offers: map[uuid.UUID]DraftOffer{
			m.PlayerA: {
				SessionID:    id,
				Format:       m.Format,
				OpponentName: m.NameB,
				PickCount:    limit,
				OwnTeam:      m.TeamA,
				Opponent:     obfuscate(m.TeamB, c.hst),
				Deadline:     deadline,
			},
			m.PlayerB: {
				SessionID:    id,
				Format:       m.Format,
				OpponentName: m.NameA,
				PickCount:    limit,
				OwnTeam:      m.TeamB,
				Opponent:     obfuscate(m.TeamA, c.hst),
				Deadline:     deadline,
			},
		},
		start: start,
		done:  done,
	}

	c.mu.Lock()
	c.sessions[m.PlayerA] = s
	c.sessions[m.PlayerB] = s
	s.timer = time.AfterFunc(c.cfg.SelectionTimeout, func() {
		c.resolveTimeout(ctx, s)
	})
	c.mu.Unlock()

	c.hst.Notify(m.PlayerA, "Team preview started, submit your picks.")
	c.hst.Notify(m.PlayerB, "Team preview started, submit your picks.")
	c.logger.Info().
		Str("session", id).
		Str("format", string(m.Format)).
		Msg("draft session opened")
}

// Offer returns the pending draft offer for a player.
func (c *Coordinator) Offer(playerID uuid.UUID) (DraftOffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[playerID]
	if !ok {
		return DraftOffer{}, false
	}
	return s.offers[playerID], true
}

// Submit records a player's picks. Invalid submissions are dropped without
// feedback so a malicious client learns nothing about the session state.
func (c *Coordinator) Submit(ctx context.Context, playerID uuid.UUID, sessionID string, picks []uuid.UUID) {
	c.mu.Lock()
	s, ok := c.sessions[playerID]
	if !ok || s.started || s.id != sessionID {
		c.mu.Unlock()
		return
	}
	if _, done := s.picks[playerID]; done {
		c.mu.Unlock()
		return
	}
	roster := s.match.TeamA
	if playerID == s.match.PlayerB {
		roster = s.match.TeamB
	}
	if !validPicks(picks, roster, c.cfg.PickCount(s.match.Format)) {
		c.mu.Unlock()
		return
	}

	s.picks[playerID] = picks
	if len(s.picks) < 2 {
		c.mu.Unlock()
		c.hst.Notify(playerID, "Picks locked in, waiting for your opponent.")
		return
	}

	s.started = true
	s.timer.Stop()
	final := s.finalMatch(c.cfg)
	c.removeLocked(s)
	c.mu.Unlock()

	c.logger.Info().Str("session", s.id).Msg("draft complete, starting battle")
	go func() {
		s.start(ctx, final)
		s.finish()
	}()
}

// CancelFor tears down the session a player is part of, for example on
// disconnect. The remaining player is told the match is off.
func (c *Coordinator) CancelFor(playerID uuid.UUID) bool {
	c.mu.Lock()
	s, ok := c.sessions[playerID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	s.started = true
	s.timer.Stop()
	c.removeLocked(s)
	c.mu.Unlock()

	other := s.match.PlayerA
	if playerID == s.match.PlayerA {
		other = s.match.PlayerB
	}
	c.hst.Notify(other, "Your opponent left, the match was cancelled.")
	c.logger.Info().
		Str("session", s.id).
		Str("player", playerID.String()).
		Msg("draft session cancelled")
	s.finish()
	return true
}

// Shutdown cancels every open session.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for _, s := range c.sessions {
		if !s.started {
			s.started = true
			s.timer.Stop()
		}
	}
	open := c.sessions
	c.sessions = make(map[uuid.UUID]*session)
	c.mu.Unlock()

	for _, s := range open {
		s.finish()
	}
}

// resolveTimeout fills missing picks with the leading roster slots and
// starts the battle anyway.
func (c *Coordinator) resolveTimeout(ctx context.Context, s *session) {
	c.mu.Lock()
	if s.started {
		c.mu.Unlock()
		return
	}
	s.started = true
	final := s.finalMatch(c.cfg)
	c.removeLocked(s)
	c.mu.Unlock()

	c.logger.Info().Str("session", s.id).Msg("draft timed out, defaulting picks")
	s.start(ctx, final)
	s.finish()
}

func (c *Coordinator) removeLocked(s *session) {
	delete(c.sessions, s.match.PlayerA)
	delete(c.sessions, s.match.PlayerB)
}

// finalMatch applies picks, defaulting any missing side to the first slots
// of its roster snapshot.
func (s *session) finalMatch(cfg *config.Config) Match {
	limit := cfg.PickCount(s.match.Format)
	final := s.match
	final.TeamA = pickedOrDefault(s.picks[s.match.PlayerA], s.match.TeamA, limit)
	final.TeamB = pickedOrDefault(s.picks[s.match.PlayerB], s.match.TeamB, limit)
	return final
}

func pickedOrDefault(picks, roster []uuid.UUID, limit int) []uuid.UUID {
	if len(picks) > 0 {
		return picks
	}
	if len(roster) <= limit {
		return roster
	}
	return roster[:limit]
}

func validPicks(picks, roster []uuid.UUID, limit int) bool {
	// A submission must fill every slot. Rosters shorter than the pick
	// limit field everything they have.
	required := limit
	if len(roster) < required {
		required = len(roster)
	}
	if len(picks) != required {
		return false
	}
	seen := make(map[uuid.UUID]struct{}, len(picks))
	for _, p := range picks {
		if _, dup := seen[p]; dup {
			return false
		}
		seen[p] = struct{}{}
		if !contains(roster, p) {
			return false
		}
	}
	return true
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// obfuscate rewrites a roster with fresh identifiers while keeping the
// species visible for preview.
func obfuscate(team []uuid.UUID, hst host.PlayerGateway) []DraftEntry {
	entries := make([]DraftEntry, 0, len(team))
	for _, creature := range team {
		species, _ := hst.SpeciesOf(creature)
		entries = append(entries, DraftEntry{
			ID:      uuid.New(),
			Species: species,
		})
	}
	return entries
}
