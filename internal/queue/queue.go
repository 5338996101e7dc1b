package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/selection"
)

// JoinStatus is the outcome of a queue join attempt.
type JoinStatus int

const (
	JoinAccepted JoinStatus = iota
	JoinAlreadyQueued
	JoinInCooldown
	JoinFormatNotAllowed
	JoinAlreadyInBattle
	JoinTeamInvalid
	JoinEmptyTeam
)

func (s JoinStatus) String() string {
	switch s {
	case JoinAccepted:
		return "accepted"
	case JoinAlreadyQueued:
		return "already_queued"
	case JoinInCooldown:
		return "in_cooldown"
	case JoinFormatNotAllowed:
		return "format_not_allowed"
	case JoinAlreadyInBattle:
		return "already_in_battle"
	case JoinTeamInvalid:
		return "team_invalid"
	case JoinEmptyTeam:
		return "empty_team"
	}
	return "unknown"
}

// RatingSource resolves the current ladder rating used for pairing.
type RatingSource interface {
	CurrentRating(ctx context.Context, playerID uuid.UUID, format domain.Format) (int, error)
}

// BattleStarter hands a formed solo match to the battle lifecycle.
type BattleStarter interface {
	StartRankedBattle(ctx context.Context, m selection.Match) error
}

// DuoBattleStarter hands a formed 2v2 relay match to the battle lifecycle.
type DuoBattleStarter interface {
	BeginDuoMatch(ctx context.Context, teamA, teamB *domain.DuoTeam) error
}

// allowedRatingGap widens the base pairing window linearly with the longest
// wait of the candidates, up to maxMultiplier at maxWait.
func allowedRatingGap(baseDiff int, longestWait, maxWait time.Duration, maxMultiplier float64) int {
	if maxWait <= 0 {
		return baseDiff
	}
	ratio := float64(longestWait) / float64(maxWait)
	if ratio > 1 {
		ratio = 1
	}
	multiplier := 1 + ratio*(maxMultiplier-1)
	return int(float64(baseDiff) * multiplier)
}
