package host

import (
	"context"

	"github.com/google/uuid"

	"github.com/intellectmind/ranked-arena/internal/domain"
)

// BattleHandle identifies a battle owned by the host game engine. The ranked
// system treats it as opaque and only maps it back to its registration.
type BattleHandle string

// TeamValidator checks creature rosters against the active ruleset before a
// player may queue or submit a draft.
type TeamValidator interface {
	ValidateTeam(ctx context.Context, playerID uuid.UUID, team []uuid.UUID, format domain.Format) bool
}

// BattleGateway is the boundary to the host's battle engine. Starting a
// battle hands control to the host; results come back through events.
type BattleGateway interface {
	IsInBattle(playerID uuid.UUID) bool
	IsDisconnected(playerID uuid.UUID) bool
	StartBattle(ctx context.Context, format domain.Format, sideA, sideB uuid.UUID, teamA, teamB []uuid.UUID) (BattleHandle, error)
	// FaintedCreatures lists the creatures of player that were knocked out
	// in the battle identified by handle.
	FaintedCreatures(handle BattleHandle, playerID uuid.UUID) []uuid.UUID
}

// PlayerGateway is the boundary to player-facing host features: messaging,
// party inspection, movement, and reward delivery.
type PlayerGateway interface {
	Notify(playerID uuid.UUID, message string)
	Broadcast(message string)
	PartyOf(playerID uuid.UUID) []uuid.UUID
	SpeciesOf(creatureID uuid.UUID) (string, bool)
	CurrentLocation(playerID uuid.UUID) (Location, bool)
	Teleport(playerID uuid.UUID, loc Location) error
	GrantReward(ctx context.Context, playerID uuid.UUID, rankTitle string) error
	DisplayName(playerID uuid.UUID) string
}

// Location is an opaque host position used to return players after a battle.
type Location struct {
	World string
	X     float64
	Y     float64
	Z     float64
}

// Host bundles the gateways the ranked system needs from the game engine.
type Host interface {
	TeamValidator
	BattleGateway
	PlayerGateway
}
