package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/intellectmind/ranked-arena/internal/config"
	"github.com/intellectmind/ranked-arena/internal/constants"
	fxmodules "github.com/intellectmind/ranked-arena/internal/fx"
	"github.com/intellectmind/ranked-arena/internal/queue"
	"github.com/intellectmind/ranked-arena/internal/scheduler"
	"github.com/intellectmind/ranked-arena/internal/season"
	"github.com/intellectmind/ranked-arena/internal/selection"
	"github.com/intellectmind/ranked-arena/internal/server"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runScheduler),
		fx.Invoke(runServer),
	).Run()
}

func runScheduler(
	lc fx.Lifecycle,
	sched *scheduler.Scheduler,
	cfg *config.Config,
	solo *queue.SoloQueue,
	duo *queue.DuoQueue,
	seasons *season.Manager,
	logger zerolog.Logger,
) error {
	scanCtx, cancelScans := context.WithCancel(context.Background())

	if err := sched.Every(cfg.ScanInterval, "solo_queue_scan", func() {
		solo.Scan(scanCtx)
	}); err != nil {
		cancelScans()
		return err
	}
	if err := sched.Every(cfg.ScanInterval, "duo_queue_scan", func() {
		duo.Scan(scanCtx)
	}); err != nil {
		cancelScans()
		return err
	}
	if err := sched.Every(constants.SeasonCheckPeriod, "season_end_check", func() {
		seasons.EndCheck(scanCtx)
	}); err != nil {
		cancelScans()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelScans()
			sched.Stop()
			return nil
		},
	})
	return nil
}

func runServer(
	lc fx.Lifecycle,
	srv *server.Server,
	cfg *config.Config,
	db *sql.DB,
	solo *queue.SoloQueue,
	duo *queue.DuoQueue,
	coordinator *selection.Coordinator,
	logger zerolog.Logger,
) {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: srv.Router(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", httpServer.Addr).Msg("server starting")
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			solo.Clear()
			duo.Clear()
			coordinator.Shutdown()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
