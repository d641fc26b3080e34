package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kmadaan/filevault/internal/auth"
	"github.com/kmadaan/filevault/internal/config"
	"github.com/kmadaan/filevault/internal/handlers"
	"github.com/kmadaan/filevault/internal/queue"
	"github.com/kmadaan/filevault/internal/service"
	"github.com/kmadaan/filevault/internal/storage"
	"github.com/kmadaan/filevault/internal/tracing"
)

func main() {
	log.Println("Starting filevault API server...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Service: %s, Port: %s", cfg.ServiceName, cfg.ServicePort)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint)
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
	log.Println("MongoDB client initialized")

	// Initialize Redis client
	log.Println("Connecting to Redis...")
	redisClient, err := storage.NewRedisClient(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to initialize Redis client: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis client initialized")

	// Initialize blob storage
	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}
	log.Printf("Blob storage initialized (%s backend)", cfg.BlobBackend)

	// Initialize job queue, access gate and services
	jobQueue := queue.NewRedisQueue(redisClient.Client(), "jobs")
	gate := auth.NewGate(redisClient, cfg.SessionTTL)
	fileService := service.NewFileService(mongoStore, blobs, jobQueue, gate)
	userService := service.NewUserService(mongoStore, jobQueue)

	// Initialize handlers and router
	router := handlers.NewRouter(
		handlers.NewAppHandler(mongoStore, redisClient),
		handlers.NewAuthHandler(userService, gate),
		handlers.NewFilesHandler(fileService, gate),
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      otelhttp.NewHandler(router, "http.server"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on port %s", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
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
