package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"seedscraper/internal/config"
	"seedscraper/internal/core/extract"
	"seedscraper/internal/core/job"
	"seedscraper/internal/core/mapper"
	"seedscraper/internal/core/robots"
	"seedscraper/internal/core/runner"
	"seedscraper/internal/core/schedule"
	"seedscraper/internal/core/scrape"
	"seedscraper/internal/core/seller"
	"seedscraper/internal/logger"
	pg "seedscraper/internal/platform/postgres"
	rds "seedscraper/internal/platform/redis"
	tasks "seedscraper/internal/platform/tasks"
	"seedscraper/internal/server"
	"seedscraper/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Printf("[seedscraper] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	logr := logger.New("main")
	ctx := context.Background()

	// Platform services
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	pgSvc, err := pg.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pgSvc.Close()

	taskClient := tasks.New(redisSvc)
	defer taskClient.Close()

	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{tasks.QueueDefault: 1},
	})

	// Stores
	jobStore := job.NewPostgresStore(pgSvc)
	sellerStore := seller.NewPostgresStore(pgSvc)
	productStore := scrape.NewPostgresProductStore(pgSvc)

	if cfg.SellerSeedFile != "" {
		n, err := seller.SeedFromFile(ctx, sellerStore, cfg.SellerSeedFile)
		if err != nil {
			log.Fatalf("seed sellers: %v", err)
		}
		logr.LogInfof("seeded %d seller(s) from %s", n, cfg.SellerSeedFile)
	}

	// Core services
	jobSvc := job.NewService(jobStore, redisSvc)
	robotsSvc := robots.New(robots.Options{
		UserAgent: cfg.UserAgent,
		MinDelay:  cfg.MinCrawlDelay,
		MaxDelay:  cfg.MaxCrawlDelay,
	})
	registry := extract.DefaultRegistry()
	runnerSvc := runner.New(runner.Config{
		Client:     &http.Client{Timeout: cfg.FetchTimeout},
		MaxRetries: cfg.FetchRetries,
	})
	mapperSvc := mapper.New(robotsSvc)

	scrapeSvc := scrape.NewService(scrape.Deps{
		Jobs:     jobSvc,
		Sellers:  sellerStore,
		Robots:   robotsSvc,
		Registry: registry,
		Runner:   runnerSvc,
		Mapper:   mapperSvc,
		Products: productStore,
	})
	scheduleSvc := schedule.NewService(schedule.Deps{
		Jobs:       jobSvc,
		Sellers:    sellerStore,
		Registry:   registry,
		Queue:      taskClient,
		Entries:    schedule.NewRedisEntryStore(redisSvc),
		MaxRetries: cfg.TaskMaxRetries,
	})

	// Worker
	mux := worker.NewMux()
	mux.HandleFunc(tasks.TaskTypeScrape, scrapeSvc.HandleScrapeTask)
	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			log.Printf("[worker] stopped: %v\n", err)
		}
	}()

	// The cron scheduler holds its entries in memory only; rebuild persisted
	// auto schedules before it starts re-firing definitions.
	n, err := scheduleSvc.Resync(ctx)
	if err != nil {
		log.Fatalf("resync schedules: %v", err)
	}
	if n > 0 {
		logr.LogInfof("re-registered %d auto schedule(s)", n)
	}
	if err := taskClient.StartScheduler(); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "SeedScraper Engine",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})

	healthHandler := server.RegisterRoutes(app, server.Dependencies{
		Job:      jobSvc,
		Schedule: scheduleSvc,
		Sellers:  sellerStore,
		Redis:    redisSvc,
		Postgres: pgSvc,
	})

	go func() {
		time.Sleep(2 * time.Second)
		healthHandler.SetReady()
	}()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("shutting down...")
		taskClient.StopScheduler()
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
