package server

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/domain"
	"github.com/intellectmind/ranked-arena/internal/host"
	"github.com/intellectmind/ranked-arena/internal/middleware"
	"github.com/intellectmind/ranked-arena/internal/queue"
	"github.com/intellectmind/ranked-arena/internal/selection"
	"github.com/intellectmind/ranked-arena/internal/service"
)

// Server exposes the ranked system over HTTP: queue management for game
// clients and lifecycle callbacks for the host.
type Server struct {
	cfg         *config.Config
	rank        *service.RankService
	events      *service.EventService
	solo        *queue.SoloQueue
	duo         *queue.DuoQueue
	coordinator *selection.Coordinator
	logger      zerolog.Logger
	router      *gin.Engine
}

func New(
	cfg *config.Config,
	rank *service.RankService,
	events *service.EventService,
	solo *queue.SoloQueue,
	duo *queue.DuoQueue,
	coordinator *selection.Coordinator,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		cfg:         cfg,
		rank:        rank,
		events:      events,
		solo:        solo,
		duo:         duo,
		coordinator: coordinator,
		logger:      logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(s.logger))
	router.Use(cors.Default())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/queue/join", s.joinQueue)
		v1.POST("/queue/leave", s.leaveQueue)
		v1.POST("/queue/team", s.updateDuoTeam)
		v1.GET("/queue/status/:player", s.queueStatus)

		v1.GET("/selection/offer/:player", s.selectionOffer)
		v1.POST("/selection/submit", s.selectionSubmit)

		v1.GET("/leaderboard", s.leaderboard)
		v1.GET("/players/:player", s.playerSummary)
		v1.GET("/season", s.seasonInfo)
		v1.GET("/usage", s.speciesUsage)

		v1.POST("/events/victory", s.battleVictory)
		v1.POST("/events/disconnect", s.playerDisconnect)

		admin := v1.Group("/admin")
		admin.GET("/records", s.seasonRecords)
		admin.DELETE("/players/:player", s.resetPlayer)
	}

	return router
}

type joinRequest struct {
	PlayerID   uuid.UUID   `json:"player_id" binding:"required"`
	PlayerName string      `json:"player_name"`
	Format     string      `json:"format" binding:"required"`
	Team       []uuid.UUID `json:"team" binding:"required"`
}

func (s *Server) joinQueue(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	format := domain.Format(req.Format)
	if !format.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown format"})
		return
	}

	var status queue.JoinStatus
	if format == domain.FormatDuo {
		status = s.duo.Join(c.Request.Context(), req.PlayerID, req.PlayerName, req.Team)
	} else {
		status = s.solo.Join(c.Request.Context(), req.PlayerID, req.PlayerName, format, req.Team)
	}

	code := http.StatusOK
	if status != queue.JoinAccepted {
		code = http.StatusConflict
	}
	c.JSON(code, gin.H{"status": status.String()})
}

type playerRequest struct {
	PlayerID uuid.UUID `json:"player_id" binding:"required"`
}

func (s *Server) leaveQueue(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	left := s.solo.Leave(req.PlayerID) || s.duo.Leave(req.PlayerID)
	c.JSON(http.StatusOK, gin.H{"left": left})
}

type teamUpdateRequest struct {
	PlayerID uuid.UUID   `json:"player_id" binding:"required"`
	Team     []uuid.UUID `json:"team" binding:"required"`
}

func (s *Server) updateDuoTeam(c *gin.Context) {
	var req teamUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !s.duo.UpdateTeam(c.Request.Context(), req.PlayerID, req.Team) {
		c.JSON(http.StatusConflict, gin.H{"error": "team update rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (s *Server) queueStatus(c *gin.Context) {
	playerID, err := uuid.Parse(c.Param("player"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}

	if format, ok := s.solo.Status(playerID); ok {
		c.JSON(http.StatusOK, gin.H{"queued": true, "format": string(format)})
		return
	}
	if s.duo.Queued(playerID) {
		c.JSON(http.StatusOK, gin.H{"queued": true, "format": string(domain.FormatDuo)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queued": false})
}

func (s *Server) selectionOffer(c *gin.Context) {
	playerID, err := uuid.Parse(c.Param("player"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}
	offer, ok := s.coordinator.Offer(playerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no draft in progress"})
		return
	}
	c.JSON(http.StatusOK, offer)
}

type submitRequest struct {
	PlayerID  uuid.UUID   `json:"player_id" binding:"required"`
	SessionID string      `json:"session_id" binding:"required"`
	Picks     []uuid.UUID `json:"picks" binding:"required"`
}

func (s *Server) selectionSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	// Submission outcomes are deliberately opaque.
	s.coordinator.Submit(c.Request.Context(), req.PlayerID, req.SessionID, req.Picks)
	c.JSON(http.StatusAccepted, gin.H{"status": "received"})
}

func (s *Server) leaderboard(c *gin.Context) {
	format, ok := parseFormat(c)
	if !ok {
		return
	}
	entries, err := s.rank.Leaderboard(c.Request.Context(), format)
	if err != nil {
		s.logger.Error().Err(err).Msg("leaderboard query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"format": string(format), "entries": entries})
}

func (s *Server) playerSummary(c *gin.Context) {
	playerID, err := uuid.Parse(c.Param("player"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}
	format, ok := parseFormat(c)
	if !ok {
		return
	}

	summary, err := s.rank.PlayerSummary(c.Request.Context(), playerID, format)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no record this season"})
			return
		}
		s.logger.Error().Err(err).Str("player", playerID.String()).Msg("player summary query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) seasonInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.rank.SeasonInfo())
}

func (s *Server) speciesUsage(c *gin.Context) {
	format, ok := parseFormat(c)
	if !ok {
		return
	}
	usage, err := s.rank.SpeciesUsage(c.Request.Context(), format)
	if err != nil {
		s.logger.Error().Err(err).Msg("species usage query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"format": string(format), "usage": usage})
}

type victoryRequest struct {
	Handle string    `json:"handle" binding:"required"`
	Winner uuid.UUID `json:"winner" binding:"required"`
}

func (s *Server) battleVictory(c *gin.Context) {
	var req victoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.events.OnBattleVictory(c.Request.Context(), host.BattleHandle(req.Handle), req.Winner)
	c.JSON(http.StatusAccepted, gin.H{"status": "received"})
}

func (s *Server) playerDisconnect(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.events.OnPlayerDisconnect(c.Request.Context(), req.PlayerID)
	c.JSON(http.StatusAccepted, gin.H{"status": "received"})
}

func (s *Server) seasonRecords(c *gin.Context) {
	records, err := s.rank.SeasonRecords(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("season records query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) resetPlayer(c *gin.Context) {
	playerID, err := uuid.Parse(c.Param("player"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}
	format, ok := parseFormat(c)
	if !ok {
		return
	}
	if err := s.rank.ResetPlayer(c.Request.Context(), playerID, format); err != nil {
		s.logger.Error().Err(err).Str("player", playerID.String()).Msg("rank reset failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func parseFormat(c *gin.Context) (domain.Format, bool) {
	format := domain.Format(c.DefaultQuery("format", string(domain.FormatSingles)))
	if !format.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown format"})
		return "", false
	}
	return format, true
}
