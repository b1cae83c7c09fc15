// cmd/historian/main.go drains round records queued in Redis by the game
// server and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/rps/internal/cache"
	"github.com/jason-s-yu/rps/internal/config"
	"github.com/jason-s-yu/rps/internal/database"
	"github.com/jason-s-yu/rps/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const backlogInterval = time.Minute

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer rdb.Close()

	queue := cache.NewRoundQueue(rdb, cfg.RoundQueue)
	hs := historian.New(queue, database.InsertRoundRecords, logger)
	hs.BatchSize = cfg.HistorianBatchSize
	hs.FlushDelay = cfg.HistorianFlushDelay

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hs.Run(gctx)
	})
	g.Go(func() error {
		return reportBacklog(gctx, rdb, queue.Name(), logger)
	})

	logger.WithField("queue", queue.Name()).Info("rps-historian started")
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("historian stopped with error")
	}
	logger.Info("rps-historian shutdown complete")
}

// reportBacklog logs the queue length so a stalled historian is visible.
func reportBacklog(ctx context.Context, rdb *redis.Client, queue string, logger *logrus.Logger) error {
	ticker := time.NewTicker(backlogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := rdb.LLen(ctx, queue).Result()
			if err != nil {
				logger.WithError(err).Warn("failed to read queue length")
				continue
			}
			logger.WithField("backlog", n).Debug("round queue backlog")
		}
	}
}
