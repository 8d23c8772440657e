package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gmkornilov/chess-demo-backend/internal/api"
	"github.com/gmkornilov/chess-demo-backend/internal/config"
	"github.com/gmkornilov/chess-demo-backend/internal/dao"
	"github.com/gmkornilov/chess-demo-backend/internal/db"
	"github.com/gmkornilov/chess-demo-backend/internal/lobby"
	"github.com/gmkornilov/chess-demo-backend/internal/logging"
	"github.com/gmkornilov/chess-demo-backend/internal/session"
	"github.com/gmkornilov/chess-demo-backend/pkg/ai"
	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

const (
	sweepEvery      = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.InitConfig()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strategy, closeStrategy, err := newStrategy(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("init ai")
	}
	defer closeStrategy()

	repo, closeRepo, err := newRoomRepository(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("init room store")
	}
	defer closeRepo()

	validation, err := board.ParseValidation(cfg.Game.Validation)
	if err != nil {
		log.WithError(err).Fatal("init validation")
	}

	sessions := session.NewManager(strategy, session.Options{
		Validation: validation,
		TTL:        cfg.Game.SessionTTL,
		AITimeout:  cfg.Game.AITimeout,
	}, log)
	go sessions.Run(ctx, sweepEvery)

	rooms := lobby.NewService(repo, lobby.Options{
		RoomTTL:         cfg.Lobby.RoomTTL,
		PresenceTimeout: cfg.Lobby.PresenceTimeout,
		Validation:      validation,
	}, log)

	router := api.NewRouter(api.NewGameApi(sessions), api.NewLobbyApi(rooms, log), log)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"backend": cfg.Lobby.Backend,
			"engine":  cfg.AI.Engine,
		}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}

func newStrategy(cfg *config.Configuration, log logrus.FieldLogger) (ai.Strategy, func(), error) {
	random := ai.NewRandom(cfg.AI.Seed)
	if cfg.AI.Engine != config.EngineUCI {
		return random, func() {}, nil
	}
	engine, err := ai.NewEngine(cfg.Stockfish.Path, cfg.Stockfish.Depth, random, log, cfg.Stockfish.Args...)
	if err != nil {
		return nil, nil, err
	}
	return engine, engine.Close, nil
}

func newRoomRepository(cfg *config.Configuration, log logrus.FieldLogger) (dao.RoomRepository, func(), error) {
	switch cfg.Lobby.Backend {
	case config.BackendRedis:
		rdb, err := db.NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := dao.NewRedisRoomRepository(rdb, cfg.Redis.Prefix, cfg.Lobby.CallTimeout, log)
		return repo, func() { _ = rdb.Close() }, nil
	case config.BackendMongo:
		client, err := db.NewDbClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := dao.NewMongoRoomRepository(client, cfg.Lobby.CallTimeout, log)
		return repo, func() { _ = client.Close() }, nil
	}
	return dao.NewMemoryRoomRepository(log), func() {}, nil
}
