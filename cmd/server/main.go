// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/rps/internal/auth"
	"github.com/jason-s-yu/rps/internal/cache"
	"github.com/jason-s-yu/rps/internal/config"
	"github.com/jason-s-yu/rps/internal/database"
	"github.com/jason-s-yu/rps/internal/handlers"
	"github.com/jason-s-yu/rps/internal/middleware"
	_ "github.com/joho/godotenv/autoload"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	if cfg.AuthKeyPath != "" {
		err = auth.InitFromFile(cfg.AuthKeyPath, cfg.TokenTTL)
	} else {
		err = auth.Init(cfg.TokenTTL)
	}
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize auth keys")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.UseDatabase {
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = database.DSNFromEnv()
		}
		if err := database.ConnectDB(ctx, dsn); err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer database.Close()
		if err := database.Migrate(dsn, logger); err != nil {
			logger.WithError(err).Fatal("failed to apply schema")
		}
		logger.Info("connected to database")
	}

	stats, rdb := statsRecorder(ctx, cfg, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	hub := handlers.NewConnectionHub(logger)
	gs := handlers.NewGameServer(logger, clockwork.NewRealClock(), hub, stats)
	gs.Supervisor.WaitTimeout = cfg.WaitTimeout
	gs.Supervisor.MoveTimeout = cfg.MoveTimeout
	gs.Supervisor.IdleTimeout = cfg.IdleTimeout
	gs.StatsTimeout = cfg.StatsTimeout

	mux := http.NewServeMux()

	// game websocket
	mux.Handle("/game/ws", handlers.GameWSHandler(logger, gs, hub, handlers.WSOptions{
		OriginPatterns: cfg.AllowedOrigins,
	}))
	mux.Handle("/rooms", handlers.ListRoomsHandler(gs))

	// single rounds against the house
	mux.Handle("/bot/play", handlers.BotPlayHandler(logger, nil))

	if cfg.UseDatabase {
		mux.Handle("/user/create", handlers.CreateUserHandler(logger))
		mux.Handle("/user/login", handlers.LoginHandler(logger))

		reader := handlers.PostgresStats{}
		mux.Handle("/stats/user", handlers.UserStatsHandler(logger, reader))
		mux.Handle("/stats", handlers.AllStatsHandler(logger, reader, cfg.StatsMinRound))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Warn("failed to write health check response")
		}
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", auth.HeaderName},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: c.Handler(middleware.LogMiddleware(logger)(mux)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

// statsRecorder picks where resolved rounds go. An unreachable Redis falls
// back to logging so the game keeps running.
func statsRecorder(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (handlers.StatsRecorder, *redis.Client) {
	switch cfg.StatsBackend {
	case config.StatsPostgres:
		return database.RoundWriter{}, nil
	case config.StatsRedis:
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, round statistics will only be logged")
			return handlers.LogStats{Logger: logger}, nil
		}
		logger.WithField("queue", cfg.RoundQueue).Info("publishing round statistics to redis")
		return cache.NewRoundQueue(rdb, cfg.RoundQueue), rdb
	default:
		return handlers.LogStats{Logger: logger}, nil
	}
}
