package main

import (
	"context"
	"log"
	"time"

	"github.com/prasetyawan/billing-extractor-service/internal/cache"
	"github.com/prasetyawan/billing-extractor-service/internal/config"
	"github.com/prasetyawan/billing-extractor-service/internal/database"
	"github.com/prasetyawan/billing-extractor-service/internal/extraction"
	"github.com/prasetyawan/billing-extractor-service/internal/gemini"
	"github.com/prasetyawan/billing-extractor-service/internal/handler"
	"github.com/prasetyawan/billing-extractor-service/internal/repository"
	"github.com/prasetyawan/billing-extractor-service/internal/server"
	"github.com/prasetyawan/billing-extractor-service/internal/service"
	"github.com/prasetyawan/billing-extractor-service/internal/storage"
)

// @title Billing Extractor Service API
// @version 1.0
// @description Extracts structured invoices from uploaded images and serves them with cache-accelerated reads.
// @BasePath /
func main() {
	log.Println("Loading configuration...")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect to PostgreSQL
	log.Println("Connecting to PostgreSQL...")
	db, err := database.NewPostgresDB(startupCtx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis and verify it with a round trip
	log.Println("Connecting to Redis...")
	redisClient, err := cache.NewRedisClient(startupCtx, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	invoiceCache := cache.NewRedisInvoiceCache(redisClient, cfg.CacheTTL)

	// Initialize the Gemini extraction pipeline
	geminiClient := gemini.NewClient(&gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		ModelID: cfg.GeminiModelID,
		Timeout: cfg.GeminiTimeout,
	})
	extractor := extraction.NewExtractor(geminiClient)

	// Image archiving is optional; the pipeline runs without it
	var archiver service.ImageArchiver
	if cfg.S3Bucket != "" {
		s3Archiver, err := storage.NewS3Archiver(&storage.Config{
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			AccessKeySecret: cfg.S3SecretAccessKey,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
		})
		if err != nil {
			log.Printf("Image archiving disabled: %v", err)
		} else {
			archiver = s3Archiver
		}
	}

	// Wire repositories and services
	repo := repository.NewPostgresInvoiceRepository(db.GetPool())
	invoiceService := service.NewInvoiceService(repo, invoiceCache)
	extractionService := service.NewExtractionService(extractor, invoiceService, repo, archiver, cfg.MaxWorkers)

	limits := handler.UploadLimits{
		AllowedMimeTypes: []string{"image/jpeg", "image/png"},
		MaxFileSizeBytes: cfg.MaxFileSizeMB * 1024 * 1024,
		MaxFilesPerBatch: cfg.MaxFilesPerBatch,
	}
	invoiceHandler := handler.NewInvoiceHandler(extractionService, invoiceService, limits)

	// Create and start the server (blocking call)
	log.Println("Configuring server...")
	appServer := server.NewServer(cfg, invoiceHandler)

	log.Printf("Starting server on port %d...", cfg.Port)
	if err := appServer.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}
