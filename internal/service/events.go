package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intellectmind/ranked-arena/internal/battle"
	"github.com/intellectmind/ranked-arena/internal/host"
	"github.com/intellectmind/ranked-arena/internal/queue"
	"github.com/intellectmind/ranked-arena/internal/selection"
)

// EventService is the single entry point for host lifecycle events. It fans
// a disconnect out to every subsystem that may hold state for the player.
type EventService struct {
	solo        *queue.SoloQueue
	duo         *queue.DuoQueue
	coordinator *selection.Coordinator
	battles     *battle.Manager
	logger      zerolog.Logger
}

func NewEventService(
	solo *queue.SoloQueue,
	duo *queue.DuoQueue,
	coordinator *selection.Coordinator,
	battles *battle.Manager,
	logger zerolog.Logger,
) *EventService {
	return &EventService{
		solo:        solo,
		duo:         duo,
		coordinator: coordinator,
		battles:     battles,
		logger:      logger,
	}
}

// OnBattleVictory forwards a host victory event to the battle lifecycle.
func (s *EventService) OnBattleVictory(ctx context.Context, handle host.BattleHandle, winner uuid.UUID) {
	s.battles.OnBattleVictory(ctx, handle, winner)
}

// OnPlayerDisconnect clears a player out of every stage of the pipeline.
// Each stage is independent; a player can only ever be in one of them, and
// the calls are no-ops for the rest.
func (s *EventService) OnPlayerDisconnect(ctx context.Context, playerID uuid.UUID) {
	left := s.solo.Leave(playerID)
	left = s.duo.Leave(playerID) || left
	left = s.coordinator.CancelFor(playerID) || left
	left = s.battles.OnParticipantDisconnect(ctx, playerID) || left

	if left {
		s.logger.Info().Str("player", playerID.String()).Msg("disconnected player cleaned up")
	}
}
