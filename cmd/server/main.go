package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	router "github.com/dkeye/Rooms/internal/adapters/http"
	"github.com/dkeye/Rooms/internal/app"
	"github.com/dkeye/Rooms/internal/app/orch"
	"github.com/dkeye/Rooms/internal/config"
	"github.com/dkeye/Rooms/internal/domain"
	"github.com/dkeye/Rooms/internal/logging"
	"github.com/dkeye/Rooms/internal/storage"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logFile, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	db, err := storage.Open(cfg.DB, cfg.Mode == "debug")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	repo := storage.NewRepository(db)

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Upload.Dir).Msg("failed to create upload dir")
	}
	uploadFs := afero.NewBasePathFs(afero.NewOsFs(), cfg.Upload.Dir)
	images := storage.NewImageStore(uploadFs, cfg.Upload.BaseURL, cfg.Upload.MaxBytes)

	action, err := app.ParseDisconnectAction(cfg.Relay.DisconnectPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("bad relay.disconnect_policy")
	}

	relay := app.NewRelay()
	locks := app.NewRoomLocks()
	defaults := domain.Limits{
		Capacity:    cfg.Game.Capacity,
		MinMembers:  cfg.Game.MinMembers,
		TotalRounds: cfg.Game.Rounds,
	}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomStore(repo, relay, locks, defaults),
		Rounds:   app.NewRoundController(repo, relay, locks),
		Ranks:    app.NewRankAggregator(repo, cfg.Ranks.AllowPartial),
		Relay:    relay,
		Policy:   app.SimplePolicy{Action: action},
	}

	r := router.SetupRouter(ctx, cfg, o, images, afero.NewHttpFs(uploadFs).Dir("/"))
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("policy", action.String()).Msg("Rooms server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	timeout := cfg.Shutdown
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// HTTP goes first so in-flight requests still have the database.
	wait := gfshutdown.GracefulShutdown(context.Background(), timeout, map[string]gfshutdown.Operation{
		"server": func(ctx context.Context) error {
			log.Info().Int("sockets", o.Registry.Count()).Msg("Shutting down")
			o.Registry.CancelAll()
			cancel()
			httpErr := srv.Shutdown(ctx)
			sqlDB, err := db.DB()
			if err != nil {
				return errors.Join(httpErr, err)
			}
			return errors.Join(httpErr, sqlDB.Close())
		},
	})

	code := <-wait
	log.Info().Int("code", code).Msg("Server exited")
	_ = logFile.Close()
	os.Exit(code)
}
