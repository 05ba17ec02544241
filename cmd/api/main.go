package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/rapprochement/rapprochement-api/internal/config"
	"github.com/rapprochement/rapprochement-api/internal/database"
	"github.com/rapprochement/rapprochement-api/internal/handlers"
	"github.com/rapprochement/rapprochement-api/internal/logger"
	"github.com/rapprochement/rapprochement-api/internal/middleware"
	"github.com/rapprochement/rapprochement-api/internal/services"
	"github.com/rapprochement/rapprochement-api/internal/utils"
)

// maxDocumentSize caps invoice documents at 10MB
const maxDocumentSize = 10 * 1024 * 1024

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log := logger.New("", "info")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	if envErr != nil {
		log.Warn().Msg(".env file not found, using system environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := database.Connect(ctx, database.Options{
		URL:            cfg.DatabaseURL,
		MaxConnections: cfg.DBMaxConnections,
		ConnectTimeout: cfg.DBConnectionTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("Connected to database")

	store := database.NewStore(pool)

	// Initialize services
	dispatcher := services.NewAsyncDispatcher(log, cfg.SideChannelTimeout)
	defer dispatcher.Wait()

	audit := services.NewStoreAuditLogger(store)
	defaults := services.NewSupplierDefaults(store)
	reconciler := services.NewReconciler(store, audit, defaults,
		services.WithDispatcher(dispatcher),
		services.WithLogger(log),
		services.WithInvoiceRetries(cfg.InvoiceWriteRetries),
	)
	entities := services.NewEntityRegistry(store, cfg.EntityCacheTTL)
	coordinator := services.NewCoordinator(reconciler, store, entities, defaults, services.CoordinatorOptions{
		OrphanInvoiceLimit:            cfg.OrphanInvoiceLimit,
		CandidatePoolLimit:            cfg.CandidatePoolLimit,
		SuggestAmountTolerancePercent: cfg.SuggestAmountTolerancePercent,
		Match: services.MatchOptions{
			AmountTolerancePercent: cfg.MatchAmountTolerancePercent,
			DateToleranceDays:      cfg.MatchDateToleranceDays,
			Limit:                  services.MaxCandidates,
		},
	}, log)

	// Storage is optional outside production; a nil interface disables document routes
	var storage handlers.StorageService
	if cfg.S3Bucket != "" {
		storageService, err := services.NewStorageService(ctx, cfg.S3Bucket, cfg.S3Region, cfg.AWSEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize storage service")
		}
		storage = storageService
		log.Info().Str("bucket", cfg.S3Bucket).Msg("Storage service initialized")
	} else {
		log.Warn().Msg("S3_BUCKET not set, invoice documents are disabled")
	}
	validator := services.NewDocumentValidator(maxDocumentSize)

	// Initialize handlers
	entityHandler := handlers.NewEntityHandler(coordinator)
	transactionHandler := handlers.NewTransactionHandler(coordinator, reconciler)
	invoiceHandler := handlers.NewInvoiceHandler(coordinator, reconciler, storage, validator)

	app := fiber.New(fiber.Config{
		AppName:      "rapprochement API v1.0",
		ErrorHandler: utils.ErrorHandler,
	})

	// Apply global middleware
	app.Use(middleware.RequestLogger(log))
	app.Use(middleware.CORS(cfg.CORSOrigins))

	// Health check endpoint (public)
	app.Get("/health", func(c fiber.Ctx) error {
		if err := pool.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "degraded",
				"service": "rapprochement-api",
			})
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "rapprochement-api",
		})
	})

	// Protected routes (require authentication)
	v1 := app.Group("/v1", middleware.ClerkAuth(middleware.ClerkVerifier(cfg.ClerkSecretKey)))

	v1.Get("/entities", entityHandler.GetEntities)

	// Period routes come before /:id so they are not captured as ids
	v1.Get("/transactions", transactionHandler.GetTransactions)
	v1.Get("/transactions/coverage", transactionHandler.GetCoverage)
	v1.Get("/transactions/export", transactionHandler.ExportPeriod)
	v1.Post("/transactions/batch", transactionHandler.ReviewBatch)

	// Matching
	v1.Get("/transactions/:id/candidates", transactionHandler.GetCandidates)
	v1.Get("/transactions/:id/suggestions", transactionHandler.GetSuggestions)
	v1.Get("/transactions/:id/category-suggestion", transactionHandler.GetCategorySuggestion)

	// Reconciliation transitions
	v1.Post("/transactions/:id/classify", transactionHandler.Classify)
	v1.Post("/transactions/:id/link", transactionHandler.Link)
	v1.Post("/transactions/:id/unlink", transactionHandler.Unlink)
	v1.Post("/transactions/:id/confirm", transactionHandler.Confirm)
	v1.Post("/transactions/:id/verify", transactionHandler.Verify)
	v1.Post("/transactions/:id/reject", transactionHandler.Reject)
	v1.Post("/transactions/:id/flag", transactionHandler.Flag)
	v1.Post("/transactions/:id/invoice", invoiceHandler.CreateAndLink)
	v1.Post("/transactions/:id/repair", transactionHandler.Repair)

	// Invoice routes
	v1.Get("/invoices/orphans", invoiceHandler.GetOrphans)
	v1.Get("/invoices/upload-url", invoiceHandler.GetUploadURL)
	v1.Get("/invoices/:id/document", invoiceHandler.GetDocumentURL)

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info().Str("addr", addr).Msg("rapprochement API is running")
	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		log.Error().Err(err).Msg("Server stopped")
	}
}
