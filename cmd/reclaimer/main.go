package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/saxslab/sasjobs-backend/internal/config"
	"github.com/saxslab/sasjobs-backend/internal/db"
	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/queue"
	"github.com/saxslab/sasjobs-backend/internal/repos"
	"github.com/saxslab/sasjobs-backend/internal/services"
)

// Standalone deletion worker, for deployments that keep reclaim out of
// the API process.
func main() {
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(log)
	if err != nil {
		log.Error("Could not load configuration", "error", err)
		os.Exit(1)
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	jobRepo := repos.NewJobRepo(postgresService.DB(), log)

	rdb, err := queue.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		log.Error("Redis init failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	deletion := queue.NewRedisHandle(log, rdb, cfg.RedisPrefix, queue.QueueDeletion, cfg.AttemptsFor(queue.QueueDeletion))
	defer deletion.Close()

	reclaimService := services.NewReclaimService(log, cfg, jobRepo, services.QueueSet{Deletion: deletion})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(log, deletion, reclaimService.HandleDeletion)
	consumer.Start(ctx)

	log.Info("Reclaimer running", "queue", deletion.Name())
	<-ctx.Done()
	log.Info("Reclaimer shutting down")
}
