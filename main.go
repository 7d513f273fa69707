package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/audit"
	"github.com/clinicgrid/intake-engine/pkg/auth"
	"github.com/clinicgrid/intake-engine/pkg/config"
	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/handlers"
	"github.com/clinicgrid/intake-engine/pkg/logging"
	"github.com/clinicgrid/intake-engine/pkg/matching"
	"github.com/clinicgrid/intake-engine/pkg/middleware"
	"github.com/clinicgrid/intake-engine/pkg/places"
	"github.com/clinicgrid/intake-engine/pkg/repositories"
	"github.com/clinicgrid/intake-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.Version)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("redis_cache", cfg.Redis.Host != ""),
		zap.Bool("places_provider", cfg.Places.IsAvailable()))

	ctx := context.Background()

	// Database
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Migrations run through database/sql (required by golang-migrate),
	// sharing the pgx pool.
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(sqlDB, "migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Optional Redis place-lookup cache
	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Authentication
	auth.InitSessionStore(cfg.Auth.SessionKey, cfg.Auth.TokenTTLMinutes*60)
	verifier, err := auth.NewTokenVerifier(&auth.VerifierConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		LocalSecret:        cfg.Auth.TokenSecret,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create token verifier", zap.Error(err))
	}
	defer verifier.Close()

	issuer := auth.NewTokenIssuer(cfg.Auth.TokenSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	authService := auth.NewAuthService(verifier, logger.Named("auth"))
	authMiddleware := auth.NewMiddleware(authService, logger.Named("auth"))

	// Repositories
	clinicRepo := repositories.NewClinicRepository(db)
	draftRepo := repositories.NewDraftRepository(db)
	locationRepo := repositories.NewLocationRepository(db)
	categoryRepo := repositories.NewCategoryRepository(db)
	specialtyRepo := repositories.NewSpecialtyRepository(db)
	providerRepo := repositories.NewProviderRepository(db)
	procedureRepo := repositories.NewProcedureRepository(db)
	photoRepo := repositories.NewPhotoRepository(db)
	metadataRepo := repositories.NewPlaceMetadataRepository(db)
	adminUserRepo := repositories.NewAdminUserRepository(db)

	// Place-data provider: nil when no API key is configured; rating and
	// photo enrichment then fall back to submitted values.
	var placeSource places.Source
	if cfg.Places.IsAvailable() {
		client, err := places.NewClient(&cfg.Places, logger)
		if err != nil {
			logger.Fatal("Failed to create places client", zap.Error(err))
		}
		placeSource = client
		if redisClient != nil {
			placeSource = places.NewCachedClient(client, redisClient,
				time.Duration(cfg.Redis.TTLMinutes)*time.Minute, logger)
		}
	} else {
		logger.Warn("Place-data provider not configured; rating and photo enrichment disabled")
	}

	// Services
	auditor := audit.NewSecurityAuditor(logger)
	screener := services.NewIntakeScreener()
	matchEngine := matching.NewEngine(clinicRepo, logger.Named("matching"))
	duplicateService := services.NewDuplicateCheckService(matchEngine, logger)
	draftService := services.NewDraftService(draftRepo, screener, auditor, logger)
	resolutionService := services.NewResolutionService(&services.ResolutionServiceDeps{
		DB:            db,
		DraftRepo:     draftRepo,
		ClinicRepo:    clinicRepo,
		LocationRepo:  locationRepo,
		CategoryRepo:  categoryRepo,
		SpecialtyRepo: specialtyRepo,
		ProviderRepo:  providerRepo,
		ProcedureRepo: procedureRepo,
		PhotoRepo:     photoRepo,
		MetadataRepo:  metadataRepo,
		Places:        placeSource,
		Logger:        logger,
	})
	dashboardService := services.NewDashboardService(draftRepo, clinicRepo, providerRepo, logger)
	bulkImportService := services.NewBulkImportService(draftService, duplicateService, cfg.Intake.BulkMaxRows, logger)
	adminUserService := services.NewAdminUserService(adminUserRepo, issuer, auditor, logger)

	if err := adminUserService.EnsureBootstrapAdmin(ctx, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword); err != nil {
		logger.Fatal("Failed to seed bootstrap admin", zap.Error(err))
	}

	mux := http.NewServeMux()

	// Register handlers
	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	authHandler := handlers.NewAuthHandler(adminUserService, logger.Named("auth"))
	authHandler.RegisterRoutes(mux)

	adminUsersHandler := handlers.NewAdminUsersHandler(adminUserService, logger.Named("admin-users"))
	adminUsersHandler.RegisterRoutes(mux, authMiddleware)

	submissionsHandler := handlers.NewSubmissionsHandler(draftService, duplicateService, logger.Named("submissions"))
	submissionsHandler.RegisterRoutes(mux)

	draftsHandler := handlers.NewDraftsHandler(draftService, resolutionService, duplicateService, logger.Named("drafts"))
	draftsHandler.RegisterRoutes(mux, authMiddleware)

	clinicsHandler := handlers.NewClinicsHandler(clinicRepo, providerRepo, procedureRepo, photoRepo, logger.Named("clinics"))
	clinicsHandler.RegisterRoutes(mux)

	dashboardHandler := handlers.NewDashboardHandler(dashboardService, logger.Named("dashboard"))
	dashboardHandler.RegisterRoutes(mux, authMiddleware)

	bulkImportHandler := handlers.NewBulkImportHandler(bulkImportService, logger.Named("bulk-import"))
	bulkImportHandler.RegisterRoutes(mux, authMiddleware)

	// Serve the operator console from ui/dist
	fs := http.FileServer(http.Dir("./ui/dist"))
	mux.Handle("/", fs)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting intake-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))

	if cfg.TLSCertPath != "" {
		err = http.ListenAndServeTLS(addr, cfg.TLSCertPath, cfg.TLSKeyPath, handler)
	} else {
		err = http.ListenAndServe(addr, handler)
	}
	if err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
