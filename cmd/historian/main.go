// cmd/historian/main.go is an asynchronous historian service that pops match events from a
// Redis queue and persists them to a PostgreSQL database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/nightstake/internal/cache"
	"github.com/jason-s-yu/nightstake/internal/config"
	"github.com/jason-s-yu/nightstake/internal/database"
	"github.com/jason-s-yu/nightstake/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.ConnectDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("database: %v", err)
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	hs := historian.NewService(rdb, database.NewStore(pool), historian.Config{
		QueueName:  cfg.Redis.Queue,
		BatchSize:  cfg.History.BatchSize,
		FlushDelay: cfg.History.FlushDelay,
		Inactivity: cfg.History.Inactivity,
	}, logger)
	if err := hs.Run(ctx); err != nil {
		logger.Errorf("historian exited: %v", err)
	}
	logger.Info("Historian shutdown complete.")
}
