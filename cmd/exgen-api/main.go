package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/exgen-nl/exgen-api/api/swagger"
	"github.com/exgen-nl/exgen-api/internal/handler"
	"github.com/exgen-nl/exgen-api/internal/middleware"
	"github.com/exgen-nl/exgen-api/internal/repository"
	"github.com/exgen-nl/exgen-api/internal/service"
	"github.com/exgen-nl/exgen-api/pkg/cache"
	"github.com/exgen-nl/exgen-api/pkg/config"
	"github.com/exgen-nl/exgen-api/pkg/database"
	"github.com/exgen-nl/exgen-api/pkg/export"
	"github.com/exgen-nl/exgen-api/pkg/jobs"
	"github.com/exgen-nl/exgen-api/pkg/logger"
	corsmiddleware "github.com/exgen-nl/exgen-api/pkg/middleware/cors"
	reqidmiddleware "github.com/exgen-nl/exgen-api/pkg/middleware/requestid"
	"github.com/exgen-nl/exgen-api/pkg/models"
	"github.com/exgen-nl/exgen-api/pkg/storage"
)

// @title ExGen API
// @version 1.0.0
// @description Marketplace and editor backend for practical exam products.
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	cacheEnabled := err == nil
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
	} else {
		defer redisClient.Close()
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	downloadRepo := repository.NewDownloadRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Storage roots and signed URL issuers.
	docStorage, err := storage.NewLocalStorage(cfg.Storage.DocumentsDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	pkgStorage, err := storage.NewLocalStorage(cfg.Downloads.PackagesDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init package storage", "error", err)
	}
	workflowStorage, err := storage.NewLocalStorage(cfg.Workflows.OutputDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init workflow output storage", "error", err)
	}
	docSigner := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	pkgSigner := storage.NewSignedURLSigner(cfg.Downloads.SignedURLSecret, cfg.Downloads.SignedURLTTL)

	validate := validator.New()

	// Services.
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Catalog.CacheTTL, logr, cacheEnabled)
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "exgen-api",
		Audience:           []string{"exgen"},
	})
	creditService := service.NewCreditService(creditRepo, userRepo, cfg.Vouchers.WelcomeCredits, validate, logr)
	userService := service.NewUserService(userRepo, creditRepo, validate, logr)
	catalogService := service.NewCatalogService(productRepo, versionRepo, documentRepo, creditRepo, userRepo, cacheService, cfg.Catalog.CacheTTL, validate, logr)
	productService := service.NewProductService(productRepo, versionRepo, assessmentRepo, documentRepo, userRepo, validate, logr)
	documentService := service.NewDocumentService(documentRepo, versionRepo, docStorage, docSigner, service.DocumentPolicy{
		MaxFileSizeBytes: cfg.Storage.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Storage.AllowedMIMEs,
	}, logr)
	scoreSheets := export.NewScoreSheetExporter()
	archiver := export.NewPackageArchiver()
	downloadService := service.NewDownloadService(downloadRepo, creditRepo, productRepo, versionRepo, assessmentRepo, documentRepo,
		docStorage, pkgStorage, pkgSigner, archiver, scoreSheets, userRepo, metricsService, logr)

	workflowDocs := export.NewWorkflowDocExporter()
	generationWorker := service.NewGenerationWorker(workflowRepo, productRepo, workflowDocs, workflowStorage, docSigner,
		metricsService, cfg.Workflows.WorkerRetries, logr)
	queue := jobs.NewQueue("generation", generationWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Workflows.WorkerConcurrency,
		MaxRetries: cfg.Workflows.WorkerRetries,
		Logger:     logr,
	})
	workflowService := service.NewWorkflowService(workflowRepo, productRepo, queue, cfg.Workflows.Enabled, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()
	workflowService.RecoverPendingJobs(ctx)

	if cfg.Downloads.CleanupInterval > 0 {
		go cleanupPackages(ctx, pkgStorage, cfg.Downloads.CleanupInterval, logr)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	catalogHandler := handler.NewCatalogHandler(catalogService)
	versionHandler := handler.NewVersionHandler(productService)
	documentHandler := handler.NewDocumentHandler(documentService, docStorage, docSigner)
	creditHandler := handler.NewCreditHandler(creditService)
	userHandler := handler.NewUserHandler(userService)
	downloadHandler := handler.NewDownloadHandler(downloadService, pkgStorage, pkgSigner)
	workflowHandler := handler.NewWorkflowHandler(workflowService, workflowStorage, docSigner)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Token-gated file routes; the signed URL replaces the JWT here.
	api.GET("/files", documentHandler.ServeFile)
	api.GET("/downloads/files", downloadHandler.ServeFile)
	api.GET("/workflows/files", workflowHandler.ServeFile)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	secured := api.Group("", middleware.JWT(authService))
	{
		secured.POST("/auth/logout", authHandler.Logout)
		secured.POST("/auth/change-password", authHandler.ChangePassword)
		secured.GET("/auth/me", authHandler.Me)

		secured.GET("/products", catalogHandler.List)
		secured.GET("/products/:id", catalogHandler.Get)
		secured.GET("/products/:id/purchased", catalogHandler.HasPurchased)
		secured.POST("/purchases", middleware.Audit(userRepo, models.AuditActionPurchase, "purchase"), catalogHandler.Purchase)

		secured.GET("/credits/balance", creditHandler.Balance)
		secured.GET("/credits/packages", creditHandler.ListPackages)
		secured.POST("/credits/orders", creditHandler.CreateOrder)
		secured.GET("/credits/orders", creditHandler.ListOrders)
		secured.POST("/credits/vouchers/redeem", creditHandler.RedeemVoucher)

		secured.POST("/downloads", middleware.Audit(userRepo, models.AuditActionDownload, "download"), downloadHandler.Initiate)
		secured.POST("/downloads/:id/package", downloadHandler.Package)
		secured.GET("/downloads", downloadHandler.List)
		secured.POST("/downloads/verify", downloadHandler.Verify)

		secured.GET("/versions/:id", versionHandler.Get)
		secured.GET("/versions/:id/documents", documentHandler.List)
		secured.GET("/documents/:id/url", documentHandler.SignedURL)
	}

	admin := secured.Group("", middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/products", catalogHandler.Create)
		admin.PUT("/products/:id", catalogHandler.Update)
		admin.PATCH("/products/:id/status", catalogHandler.UpdateStatus)
		admin.DELETE("/products/:id", catalogHandler.Delete)

		admin.POST("/products/:id/versions", versionHandler.Create)
		admin.PUT("/versions/:id", versionHandler.Update)
		admin.PATCH("/versions/:id/status", versionHandler.SetEnabled)
		admin.DELETE("/versions/:id", versionHandler.Delete)
		admin.PATCH("/versions/:id/rubric-levels", versionHandler.ChangeRubricLevels)

		admin.POST("/versions/:id/onderdelen", versionHandler.AddOnderdeel)
		admin.PUT("/onderdelen/:id", versionHandler.RenameOnderdeel)
		admin.DELETE("/onderdelen/:id", versionHandler.RemoveOnderdeel)
		admin.POST("/onderdelen/:id/criteria", versionHandler.AddCriteria)
		admin.PUT("/criteria/:id", versionHandler.UpdateCriteria)
		admin.DELETE("/criteria/:id", versionHandler.RemoveCriteria)
		admin.PUT("/criteria/:id/levels/:levelId", versionHandler.UpdateLevel)

		admin.POST("/versions/:id/documents", documentHandler.Upload)
		admin.PATCH("/documents/:id/preview", documentHandler.SetPreview)
		admin.DELETE("/documents/:id", documentHandler.Delete)
		admin.POST("/versions/:id/documents/verify", documentHandler.VerifyStorage)

		admin.POST("/credits/packages", creditHandler.CreatePackage)
		admin.PUT("/credits/packages/:id", creditHandler.UpdatePackage)
		admin.DELETE("/credits/packages/:id", creditHandler.DeletePackage)
		admin.PATCH("/credits/orders/:id/status", creditHandler.UpdateOrderStatus)

		admin.GET("/workflows/steps", workflowHandler.ListSteps)
		admin.POST("/workflows/steps", workflowHandler.CreateStep)
		admin.PUT("/workflows/steps/:id", workflowHandler.UpdateStep)
		admin.DELETE("/workflows/steps/:id", workflowHandler.DeleteStep)
		admin.PUT("/workflows/steps/reorder", workflowHandler.ReorderSteps)
		admin.POST("/workflows/generate", workflowHandler.Generate)
		admin.GET("/workflows/generate/:id", workflowHandler.Status)

		admin.GET("/users", userHandler.List)
		admin.PATCH("/users/:id/role", userHandler.UpdateRole)
		admin.PATCH("/users/:id/email", userHandler.UpdateEmail)
		admin.POST("/users/:id/credits", userHandler.GrantCredits)

		admin.GET("/admin/metrics", metricsHandler.Snapshot)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

// cleanupPackages deletes expired download archives on an interval.
func cleanupPackages(ctx context.Context, store *storage.LocalStorage, interval time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupOlderThan(interval)
			if err != nil {
				logr.Sugar().Warnw("package cleanup failed", "error", err)
				continue
			}
			if len(removed) > 0 {
				logr.Sugar().Infow("expired packages removed", "count", len(removed))
			}
		}
	}
}
