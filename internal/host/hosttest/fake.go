// Package hosttest provides an in-memory Host implementation for tests.
package hosttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host"
)

// Fake is a configurable, mutex-guarded host double. The zero value from
// New accepts every team and reports every player online and idle.
type Fake struct {
	mu sync.Mutex

	invalidTeams  map[uuid.UUID]bool
	inBattle      map[uuid.UUID]bool
	disconnected  map[uuid.UUID]bool
	parties       map[uuid.UUID][]uuid.UUID
	species       map[uuid.UUID]string
	locations     map[uuid.UUID]host.Location
	fainted       map[string][]uuid.UUID
	startErr      error
	nextHandle    int
	notifications map[uuid.UUID][]string
	broadcasts    []string
	teleports     map[uuid.UUID][]host.Location
	rewards       map[uuid.UUID][]string
	started       []StartedBattle
}

// StartedBattle records one StartBattle call.
type StartedBattle struct {
	Handle host.BattleHandle
	Format domain.Format
	SideA  uuid.UUID
	SideB  uuid.UUID
	TeamA  []uuid.UUID
	TeamB  []uuid.UUID
}

func New() *Fake {
	return &Fake{
		invalidTeams:  make(map[uuid.UUID]bool),
		inBattle:      make(map[uuid.UUID]bool),
		disconnected:  make(map[uuid.UUID]bool),
		parties:       make(map[uuid.UUID][]uuid.UUID),
		species:       make(map[uuid.UUID]string),
		locations:     make(map[uuid.UUID]host.Location),
		fainted:       make(map[string][]uuid.UUID),
		notifications: make(map[uuid.UUID][]string),
		teleports:     make(map[uuid.UUID][]host.Location),
		rewards:       make(map[uuid.UUID][]string),
	}
}

func (f *Fake) ValidateTeam(_ context.Context, playerID uuid.UUID, team []uuid.UUID, _ domain.Format) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(team) > 0 && !f.invalidTeams[playerID]
}

func (f *Fake) IsInBattle(playerID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inBattle[playerID]
}

func (f *Fake) IsDisconnected(playerID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected[playerID]
}

func (f *Fake) StartBattle(_ context.Context, format domain.Format, sideA, sideB uuid.UUID, teamA, teamB []uuid.UUID) (host.BattleHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.nextHandle++
	handle := host.BattleHandle(fmt.Sprintf("battle-%d", f.nextHandle))
	f.started = append(f.started, StartedBattle{
		Handle: handle,
		Format: format,
		SideA:  sideA,
		SideB:  sideB,
		TeamA:  teamA,
		TeamB:  teamB,
	})
	return handle, nil
}

func (f *Fake) FaintedCreatures(handle host.BattleHandle, playerID uuid.UUID) []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fainted[faintKey(handle, playerID)]
}

func (f *Fake) Notify(playerID uuid.UUID, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications[playerID] = append(f.notifications[playerID], message)
}

func (f *Fake) Broadcast(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, message)
}

func (f *Fake) PartyOf(playerID uuid.UUID) []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parties[playerID]
}

func (f *Fake) SpeciesOf(creatureID uuid.UUID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.species[creatureID]
	return name, ok
}

func (f *Fake) CurrentLocation(playerID uuid.UUID) (host.Location, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc, ok := f.locations[playerID]
	return loc, ok
}

func (f *Fake) Teleport(playerID uuid.UUID, loc host.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teleports[playerID] = append(f.teleports[playerID], loc)
	return nil
}

func (f *Fake) GrantReward(_ context.Context, playerID uuid.UUID, rankTitle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewards[playerID] = append(f.rewards[playerID], rankTitle)
	return nil
}

func (f *Fake) DisplayName(playerID uuid.UUID) string {
	return "player-" + playerID.String()[:8]
}

// Test configuration helpers.

func (f *Fake) SetTeamInvalid(playerID uuid.UUID, invalid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidTeams[playerID] = invalid
}

func (f *Fake) SetInBattle(playerID uuid.UUID, in bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inBattle[playerID] = in
}

func (f *Fake) SetDisconnected(playerID uuid.UUID, off bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected[playerID] = off
}

func (f *Fake) SetParty(playerID uuid.UUID, party []uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parties[playerID] = party
}

func (f *Fake) SetSpecies(creatureID uuid.UUID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.species[creatureID] = name
}

func (f *Fake) SetLocation(playerID uuid.UUID, loc host.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations[playerID] = loc
}

func (f *Fake) SetFainted(handle host.BattleHandle, playerID uuid.UUID, creatures []uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fainted[faintKey(handle, playerID)] = creatures
}

func (f *Fake) SetStartError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

// Test inspection helpers.

func (f *Fake) Started() []StartedBattle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]StartedBattle, len(f.started))
	copy(out, f.started)
	return out
}

func (f *Fake) LastStarted() (StartedBattle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.started) == 0 {
		return StartedBattle{}, false
	}
	return f.started[len(f.started)-1], true
}

func (f *Fake) Notifications(playerID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.notifications[playerID]))
	copy(out, f.notifications[playerID])
	return out
}

func (f *Fake) Broadcasts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.broadcasts))
	copy(out, f.broadcasts)
	return out
}

func (f *Fake) Teleports(playerID uuid.UUID) []host.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]host.Location, len(f.teleports[playerID]))
	copy(out, f.teleports[playerID])
	return out
}

func (f *Fake) Rewards(playerID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.rewards[playerID]))
	copy(out, f.rewards[playerID])
	return out
}

func faintKey(handle host.BattleHandle, playerID uuid.UUID) string {
	return string(handle) + "|" + playerID.String()
}
