// cmd/historian/main.go drains server lifecycle events from the Redis queue into PostgreSQL.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/partyhost/internal/cache"
	"github.com/jason-s-yu/partyhost/internal/config"
	"github.com/jason-s-yu/partyhost/internal/database"
	"github.com/jason-s-yu/partyhost/internal/historian"
	"github.com/jason-s-yu/partyhost/internal/logging"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Dir: cfg.LogDir, Name: "historian"})
	if err != nil {
		logrus.Fatalf("logging: %v", err)
	}
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("historian exited")
	}
}

func run(cfg config.Config, logger *logrus.Logger) error {
	if cfg.RedisAddr == "" || cfg.DatabaseURL == "" {
		return errors.New("historian needs REDIS_ADDR and DATABASE_URL")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := historian.NewService(
		historian.RedisSource{Client: rdb, Queue: cfg.EventsQueue},
		database.NewServerEventStore(db),
		cfg.HistorianBatchSize,
		cfg.HistorianFlushInterval,
		logrus.NewEntry(logger).WithField("component", "historian"),
	)
	return svc.Run(ctx)
}
