package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/saxslab/sasjobs-backend/internal/config"
	"github.com/saxslab/sasjobs-backend/internal/db"
	"github.com/saxslab/sasjobs-backend/internal/handlers"
	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/middleware"
	"github.com/saxslab/sasjobs-backend/internal/queue"
	"github.com/saxslab/sasjobs-backend/internal/repos"
	"github.com/saxslab/sasjobs-backend/internal/server"
	"github.com/saxslab/sasjobs-backend/internal/services"
	"github.com/saxslab/sasjobs-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	// Logger
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

	// Config
	log.Info("Loading configuration from main...")
	cfg, err := config.Load(log)
	if err != nil {
		log.Error("Could not load configuration", "error", err)
		os.Exit(1)
	}

	// Database
	gdb, err := openDatabase(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}

	// Repos
	log.Info("Setting up Repos from main...")
	jobRepo := repos.NewJobRepo(gdb, log)

	// Queues
	log.Info("Setting up queue handles from main...")
	queues, closeQueues, err := openQueues(log, cfg)
	if err != nil {
		log.Error("Queue init failed", "error", err)
		os.Exit(1)
	}
	defer closeQueues()

	// Services
	log.Info("Setting up Services from main...")
	dispatchService := services.NewDispatchService(log, cfg, gdb, jobRepo, queues)
	statusService := services.NewStatusService(log, cfg, jobRepo, queues)
	reclaimService := services.NewReclaimService(log, cfg, jobRepo, queues)

	// Handlers
	log.Info("Setting up handlers from main...")
	jobsHandler := handlers.NewJobsHandler(log, dispatchService, statusService, reclaimService, jobRepo)
	queuesHandler := handlers.NewQueuesHandler(log, queues)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, cfg.JWTSecret)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		JobsHandler:    jobsHandler,
		QueuesHandler:  queuesHandler,
		AuthMiddleware: authMiddleware,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The deletion queue is consumed in-process; the simulation queues
	// have their own out-of-process workers.
	deletionConsumer := queue.NewConsumer(log, queues.Deletion, reclaimService.HandleDeletion)
	deletionConsumer.Start(ctx)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}

func openDatabase(log *logger.Logger) (*gorm.DB, error) {
	driver := utils.GetEnv("DB_DRIVER", "postgres", log)
	if driver == "sqlite" {
		svc, err := db.NewSQLiteService(log, utils.GetEnv("SQLITE_PATH", "sasjobs.db", log))
		if err != nil {
			return nil, err
		}
		return svc.DB(), nil
	}

	svc, err := db.NewPostgresService(log)
	if err != nil {
		return nil, err
	}
	if err := svc.AutoMigrateAll(); err != nil {
		return nil, err
	}
	return svc.DB(), nil
}

func openQueues(log *logger.Logger, cfg *config.Config) (services.QueueSet, func(), error) {
	driver := utils.GetEnv("QUEUE_DRIVER", "redis", log)
	if driver == "memory" {
		set := services.QueueSet{
			Primary:    queue.NewMemoryHandle(queue.QueuePrimary, cfg.AttemptsFor(queue.QueuePrimary)),
			Conversion: queue.NewMemoryHandle(queue.QueueConversion, cfg.AttemptsFor(queue.QueueConversion)),
			Scoper:     queue.NewMemoryHandle(queue.QueueScoper, cfg.AttemptsFor(queue.QueueScoper)),
			Multi:      queue.NewMemoryHandle(queue.QueueMulti, cfg.AttemptsFor(queue.QueueMulti)),
			Deletion:   queue.NewMemoryHandle(queue.QueueDeletion, cfg.AttemptsFor(queue.QueueDeletion)),
			Webhooks:   queue.NewMemoryHandle(queue.QueueWebhooks, cfg.AttemptsFor(queue.QueueWebhooks)),
		}
		return set, func() { _ = set.Close() }, nil
	}

	rdb, err := queue.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		return services.QueueSet{}, nil, err
	}
	handle := func(name string) queue.Handle {
		return queue.NewRedisHandle(log, rdb, cfg.RedisPrefix, name, cfg.AttemptsFor(name))
	}
	set := services.QueueSet{
		Primary:    handle(queue.QueuePrimary),
		Conversion: handle(queue.QueueConversion),
		Scoper:     handle(queue.QueueScoper),
		Multi:      handle(queue.QueueMulti),
		Deletion:   handle(queue.QueueDeletion),
		Webhooks:   handle(queue.QueueWebhooks),
	}
	cleanup := func() {
		_ = set.Close()
		_ = rdb.Close()
	}
	return set, cleanup, nil
}
