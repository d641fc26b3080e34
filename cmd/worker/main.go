package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kmadaan/filevault/internal/config"
	"github.com/kmadaan/filevault/internal/imaging"
	"github.com/kmadaan/filevault/internal/queue"
	"github.com/kmadaan/filevault/internal/storage"
	"github.com/kmadaan/filevault/internal/tracing"
	"github.com/kmadaan/filevault/internal/worker"
)

func main() {
	log.Println("Starting filevault worker...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName+"-worker", cfg.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	// Initialize MongoDB client
	log.Println("Connecting to MongoDB...")
	mongoStore, err := storage.NewMongoStore(context.Background(), cfg.GetMongoURI(), cfg.DBDatabase)
	if err != nil {
		log.Fatalf("Failed to initialize MongoDB client: %v", err)
	}
	defer mongoStore.Close(context.Background())

	// Initialize Redis client
	log.Println("Connecting to Redis...")
	redisClient, err := storage.NewRedisClient(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to initialize Redis client: %v", err)
	}
	defer redisClient.Close()

	// Initialize blob storage
	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}
	log.Printf("Blob storage initialized (%s backend)", cfg.BlobBackend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redeliver jobs orphaned by a previous crash, then drain the queue.
	jobQueue := queue.NewRedisQueue(redisClient.Client(), "jobs")
	if err := jobQueue.Recover(ctx); err != nil {
		log.Printf("Warning: failed to recover in-flight jobs: %v", err)
	}

	pipeline := worker.NewPipeline(jobQueue, mongoStore, blobs, imaging.Resize)

	log.Printf("Draining queue with %d workers", cfg.WorkerCount)
	pipeline.Run(ctx, cfg.WorkerCount)

	log.Println("Worker exited")
}

func newBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	if cfg.BlobBackend == config.BlobBackendS3 {
		return storage.NewS3Store(
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
		)
	}
	return storage.NewLocalStore(cfg.FolderPath)
}
