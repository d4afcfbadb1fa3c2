package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"converter/admission"
	"converter/api"
	"converter/config"
	"converter/convert"
	"converter/format"
	"converter/metrics"
	"converter/notify"
	"converter/queue"
	"converter/storage"
	"converter/store"
	"converter/worker"
)

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func main() {
	log.Println("Starting conversion service...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from the environment")
	}
	cfg := config.Load()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis successfully")

	recordStore, err := store.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer recordStore.Close()
	log.Println("Connected to database successfully")

	registry := format.NewRegistry()
	rules := format.NewRules(registry)
	log.Printf("Loaded %d formats, %d supported conversion pairs", registry.Len(), rules.PairCount())

	m := metrics.New()
	m.SetWorkerCount(cfg.WorkerCount)

	blobs := storage.NewS3Store(cfg)
	jobQueue := queue.New(cfg, redisClient, m)
	notifier := notify.NewWebhook(cfg.WebhookURL)
	gate := admission.NewGate(registry, rules, recordStore, m)

	office := convert.NewRemote(cfg.OfficeConverterURL)
	image := convert.NewRemote(cfg.ImageConverterURL)
	converters := convert.NewRegistry()
	converters.Register(format.CategoryDocument, office)
	converters.Register(format.CategorySpreadsheet, office)
	converters.Register(format.CategoryPresentation, office)
	converters.Register(format.CategoryImage, image)

	pool := worker.NewPool(cfg, jobQueue, recordStore, blobs, converters, notifier, m, registry, rules)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			pool.Run(ctx, workerID)
		}(i)
	}
	log.Printf("Started %d conversion workers", cfg.WorkerCount)

	wg.Add(1)
	go func() {
		defer wg.Done()
		jobQueue.PromoteLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.RecoveryLoop(ctx)
	}()

	server := api.NewServer(cfg, gate, recordStore, jobQueue, blobs, registry, rules, m,
		redisPinger{redisClient}, recordStore)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}
	go func() {
		log.Printf("HTTP API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Println("Service is ready to process conversions")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout, forcing exit")
	}

	redisClient.Close()
	log.Println("Conversion service stopped")
}
