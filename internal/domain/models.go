package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Format is a named ruleset with its own independent rating pool.
type Format string

const (
	FormatSingles Format = "singles"
	FormatDoubles Format = "doubles"
	FormatDuo     Format = "2v2singles"
)

func (f Format) Valid() bool {
	switch f {
	case FormatSingles, FormatDoubles, FormatDuo:
		return true
	}
	return false
}

// PlayerRankRecord is the per-player, per-season, per-format ladder entry.
// It is mutated only by the battle lifecycle manager after a battle resolves.
type PlayerRankRecord struct {
	PlayerID       uuid.UUID
	PlayerName     string
	SeasonID       int
	Format         Format
	Rating         int
	Wins           int
	Losses         int
	WinStreak      int
	BestWinStreak  int
	FleeCount      int
	ClaimedRewards map[string]struct{}
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewPlayerRankRecord(playerID uuid.UUID, seasonID int, format Format, startingRating int) *PlayerRankRecord {
	now := time.Now()
	return &PlayerRankRecord{
		PlayerID:       playerID,
		SeasonID:       seasonID,
		Format:         format,
		Rating:         startingRating,
		ClaimedRewards: make(map[string]struct{}),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *PlayerRankRecord) WinRate() float64 {
	total := r.Wins + r.Losses
	if total == 0 {
		return 0
	}
	return float64(r.Wins) / float64(total)
}

// RecordWin applies the post-battle bookkeeping for the winning side.
func (r *PlayerRankRecord) RecordWin(newRating int) {
	r.Rating = newRating
	r.Wins++
	r.WinStreak++
	if r.WinStreak > r.BestWinStreak {
		r.BestWinStreak = r.WinStreak
	}
	r.UpdatedAt = time.Now()
}

// RecordLoss applies the post-battle bookkeeping for the losing side.
// forfeit marks losses caused by a disconnect or forfeit.
func (r *PlayerRankRecord) RecordLoss(newRating int, forfeit bool) {
	r.Rating = newRating
	r.Losses++
	r.WinStreak = 0
	if forfeit {
		r.FleeCount++
	}
	r.UpdatedAt = time.Now()
}

// RewardKey builds the claimed-reward set key for a rank title.
func (r *PlayerRankRecord) RewardKey(rankTitle string) string {
	return fmt.Sprintf("%d:%s:%s", r.SeasonID, r.Format, rankTitle)
}

func (r *PlayerRankRecord) HasClaimedReward(rankTitle string) bool {
	_, ok := r.ClaimedRewards[r.RewardKey(rankTitle)]
	return ok
}

func (r *PlayerRankRecord) MarkRewardClaimed(rankTitle string) {
	if r.ClaimedRewards == nil {
		r.ClaimedRewards = make(map[string]struct{})
	}
	r.ClaimedRewards[r.RewardKey(rankTitle)] = struct{}{}
}

// QueueEntry is a waiting matchmaking participant. It is owned exclusively
// by its queue until a match is formed or the participant leaves.
type QueueEntry struct {
	PlayerID   uuid.UUID
	PlayerName string
	Format     Format
	Team       []uuid.UUID
	JoinedAt   time.Time
}

// DuoTeam is a two-player relay team. ActiveSide tracks whose member is
// currently battling (0 = player A, 1 = player B).
type DuoTeam struct {
	PlayerA    uuid.UUID
	PlayerB    uuid.UUID
	TeamA      []uuid.UUID
	TeamB      []uuid.UUID
	JoinedAt   time.Time
	ActiveSide int
}

// SamePair reports whether both teams are formed from the same two players,
// regardless of ordering.
func (t *DuoTeam) SamePair(o *DuoTeam) bool {
	if o == nil {
		return false
	}
	return (t.PlayerA == o.PlayerA && t.PlayerB == o.PlayerB) ||
		(t.PlayerA == o.PlayerB && t.PlayerB == o.PlayerA)
}

func (t *DuoTeam) Has(playerID uuid.UUID) bool {
	return t.PlayerA == playerID || t.PlayerB == playerID
}

func (t *DuoTeam) Members() [2]uuid.UUID {
	return [2]uuid.UUID{t.PlayerA, t.PlayerB}
}

func (t *DuoTeam) ActivePlayer() uuid.UUID {
	if t.ActiveSide == 0 {
		return t.PlayerA
	}
	return t.PlayerB
}

func (t *DuoTeam) ActiveTeam() []uuid.UUID {
	if t.ActiveSide == 0 {
		return t.TeamA
	}
	return t.TeamB
}

// Advance switches the active side to the unused member. It returns false
// when both members have already played, meaning the team is exhausted.
func (t *DuoTeam) Advance() bool {
	if t.ActiveSide == 0 {
		t.ActiveSide = 1
		return true
	}
	return false
}

// BattleRegistration maps a host-owned battle handle to ranked metadata.
type BattleRegistration struct {
	BattleID uuid.UUID
	Format   Format
	SideA    []uuid.UUID
	SideB    []uuid.UUID
}

func (r BattleRegistration) Participants() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.SideA)+len(r.SideB))
	out = append(out, r.SideA...)
	out = append(out, r.SideB...)
	return out
}

func (r BattleRegistration) SideOf(playerID uuid.UUID) int {
	for _, id := range r.SideA {
		if id == playerID {
			return 0
		}
	}
	for _, id := range r.SideB {
		if id == playerID {
			return 1
		}
	}
	return -1
}

// Season is a bounded rating period with independent records per format.
type Season struct {
	ID        int
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Ended     bool
}

func (s Season) Remaining(now time.Time) time.Duration {
	if now.After(s.EndDate) {
		return 0
	}
	return s.EndDate.Sub(now)
}

// RankTitle is a named tier entered by crossing a rating threshold.
type RankTitle struct {
	Threshold int
	Name      string
}

// TitleFor resolves the highest tier whose threshold the rating has crossed.
// titles must be sorted by ascending threshold.
func TitleFor(rating int, titles []RankTitle) string {
	name := ""
	for _, t := range titles {
		if rating >= t.Threshold {
			name = t.Name
		}
	}
	return name
}

// SpeciesUsage is an aggregate usage counter for the season statistics view.
type SpeciesUsage struct {
	Species string
	Count   int
}
