package host

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/intellectmind/ranked-arena/internal/domain"
)

// Remote talks to the game engine's ranked API over HTTP. Methods that the
// interfaces expose without a context use a fixed internal deadline, since
// the callers sit on hot paths like queue scans.
type Remote struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

const remoteCallTimeout = 5 * time.Second

func NewRemote(baseURL, apiKey string, logger zerolog.Logger) *Remote {
	return &Remote{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

type validateTeamRequest struct {
	PlayerID uuid.UUID   `json:"player_id"`
	Team     []uuid.UUID `json:"team"`
	Format   string      `json:"format"`
}

func (r *Remote) ValidateTeam(ctx context.Context, playerID uuid.UUID, team []uuid.UUID, format domain.Format) bool {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := r.post(ctx, "/ranked/team/validate", validateTeamRequest{
		PlayerID: playerID,
		Team:     team,
		Format:   string(format),
	}, &out)
	if err != nil {
		r.logger.Warn().Err(err).Str("player", playerID.String()).Msg("team validation call failed")
		return false
	}
	return out.Valid
}

type playerStatus struct {
	Online   bool `json:"online"`
	InBattle bool `json:"in_battle"`
}

func (r *Remote) IsInBattle(playerID uuid.UUID) bool {
	status, err := r.status(playerID)
	if err != nil {
		r.logger.Warn().Err(err).Str("player", playerID.String()).Msg("status call failed")
		return false
	}
	return status.InBattle
}

func (r *Remote) IsDisconnected(playerID uuid.UUID) bool {
	status, err := r.status(playerID)
	if err != nil {
		// An unreachable host reads as everyone disconnected, which would
		// drain the queues. Treat call failures as still online.
		r.logger.Warn().Err(err).Str("player", playerID.String()).Msg("status call failed")
		return false
	}
	return !status.Online
}

func (r *Remote) status(playerID uuid.UUID) (*playerStatus, error) {
	var out playerStatus
	if err := r.get(fmt.Sprintf("/ranked/players/%s/status", playerID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type startBattleRequest struct {
	Format string      `json:"format"`
	SideA  uuid.UUID   `json:"side_a"`
	SideB  uuid.UUID   `json:"side_b"`
	TeamA  []uuid.UUID `json:"team_a"`
	TeamB  []uuid.UUID `json:"team_b"`
}

func (r *Remote) StartBattle(ctx context.Context, format domain.Format, sideA, sideB uuid.UUID, teamA, teamB []uuid.UUID) (BattleHandle, error) {
	var out struct {
		Handle string `json:"handle"`
	}
	err := r.post(ctx, "/ranked/battles", startBattleRequest{
		Format: string(format),
		SideA:  sideA,
		SideB:  sideB,
		TeamA:  teamA,
		TeamB:  teamB,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("failed to start battle: %w", err)
	}
	if out.Handle == "" {
		return "", fmt.Errorf("host returned empty battle handle")
	}
	return BattleHandle(out.Handle), nil
}

func (r *Remote) FaintedCreatures(handle BattleHandle, playerID uuid.UUID) []uuid.UUID {
	var out struct {
		Creatures []uuid.UUID `json:"creatures"`
	}
	path := fmt.Sprintf("/ranked/battles/%s/fainted?player=%s", handle, playerID)
	if err := r.get(path, &out); err != nil {
		r.logger.Warn().Err(err).Str("handle", string(handle)).Msg("fainted query failed")
		return nil
	}
	return out.Creatures
}

func (r *Remote) Notify(playerID uuid.UUID, message string) {
	body := map[string]string{"message": message}
	path := fmt.Sprintf("/ranked/players/%s/notify", playerID)
	if err := r.postNoCtx(path, body, nil); err != nil {
		r.logger.Warn().Err(err).Str("player", playerID.String()).Msg("notify failed")
	}
}

func (r *Remote) Broadcast(message string) {
	if err := r.postNoCtx("/ranked/broadcast", map[string]string{"message": message}, nil); err != nil {
		r.logger.Warn().Err(err).Msg("broadcast failed")
	}
}

func (r *Remote) PartyOf(playerID uuid.UUID) []uuid.UUID {
	var out struct {
		Creatures []uuid.UUID `json:"creatures"`
	}
	if err := r.get(fmt.Sprintf("/ranked/players/%s/party", playerID), &out); err != nil {
		r.logger.Warn().Err(err).Str("player", playerID.String()).Msg("party query failed")
		return nil
	}
	return out.Creatures
}

func (r *Remote) SpeciesOf(creatureID uuid.UUID) (string, bool) {
	var out struct {
		Species string `json:"species"`
	}
	if err := r.get(fmt.Sprintf("/ranked/creatures/%s", creatureID), &out); err != nil {
		return "", false
	}
	return out.Species, out.Species != ""
}

func (r *Remote) CurrentLocation(playerID uuid.UUID) (Location, bool) {
	var out Location
	if err := r.get(fmt.Sprintf("/ranked/players/%s/location", playerID), &out); err != nil {
		return Location{}, false
	}
	return out, true
}

func (r *Remote) Teleport(playerID uuid.UUID, loc Location) error {
	return r.postNoCtx(fmt.Sprintf("/ranked/players/%s/teleport", playerID), loc, nil)
}

func (r *Remote) GrantReward(ctx context.Context, playerID uuid.UUID, rankTitle string) error {
	body := map[string]string{"title": rankTitle}
	return r.post(ctx, fmt.Sprintf("/ranked/players/%s/reward", playerID), body, nil)
}

func (r *Remote) DisplayName(playerID uuid.UUID) string {
	var out struct {
		Name string `json:"name"`
	}
	if err := r.get(fmt.Sprintf("/ranked/players/%s/name", playerID), &out); err != nil {
		return playerID.String()
	}
	return out.Name
}

func (r *Remote) get(path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", r.apiKey)

	if err := r.client.DoDeadline(req, resp, time.Now().Add(remoteCallTimeout)); err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (r *Remote) post(ctx context.Context, path string, body, out any) error {
	deadline := time.Now().Add(remoteCallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return r.doPost(path, body, out, deadline)
}

func (r *Remote) postNoCtx(path string, body, out any) error {
	return r.doPost(path, body, out, time.Now().Add(remoteCallTimeout))
}

func (r *Remote) doPost(path string, body, out any, deadline time.Time) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req.SetRequestURI(r.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", r.apiKey)
	req.SetBody(payload)

	if err := r.client.DoDeadline(req, resp, deadline); err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *fasthttp.Response, out any) error {
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("host API error: %d", resp.StatusCode())
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}
