package main

import (
	"context"
	"errors"
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

	_ "github.com/civicpulse/civicpulse-api/api/swagger"
	"github.com/civicpulse/civicpulse-api/internal/broker"
	"github.com/civicpulse/civicpulse-api/internal/handler"
	"github.com/civicpulse/civicpulse-api/internal/middleware"
	"github.com/civicpulse/civicpulse-api/internal/models"
	"github.com/civicpulse/civicpulse-api/internal/repository"
	"github.com/civicpulse/civicpulse-api/internal/service"
	"github.com/civicpulse/civicpulse-api/pkg/cache"
	"github.com/civicpulse/civicpulse-api/pkg/config"
	"github.com/civicpulse/civicpulse-api/pkg/database"
	"github.com/civicpulse/civicpulse-api/pkg/logger"
	corsmiddleware "github.com/civicpulse/civicpulse-api/pkg/middleware/cors"
	reqidmiddleware "github.com/civicpulse/civicpulse-api/pkg/middleware/requestid"
	"github.com/civicpulse/civicpulse-api/pkg/storage"
)

// @title CivicPulse API
// @version 1.0.0
// @description Citizen civic-reporting backend: geo-tagged reports, agent triage, gamification.
// @BasePath /api/v1
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis carries the leaderboard cache and cross-instance change
		// announcements; the API stays up without it.
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	reportRepo := repository.NewReportRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	agentRepo := repository.NewAgentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	photoStore, err := storage.NewLocalStorage(cfg.Photos.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare photo storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Photos.SignedURLSecret, cfg.Photos.SignedURLTTL)

	hub := broker.NewHub(cfg.Stream.SubscriberBuffer)
	defer hub.Close()

	metricsSvc := service.NewMetricsService(func() float64 {
		return float64(hub.TotalSubscribers())
	})
	streamSvc := service.NewStreamService(hub, cacheRepo, metricsSvc, logr, cfg.Stream.ResubscribeDelay)

	photoSvc := service.NewPhotoService(photoStore, signer, cfg.Photos.MaxPayloadBytes, cfg.APIPrefix+"/photos", logr)
	authSvc := service.NewAuthService(agentRepo, profileRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	geocodeSvc := service.NewGeocodeService(reportRepo, streamSvc, cfg.Geocoder, logr)
	reportSvc := service.NewReportService(reportRepo, profileRepo, photoSvc, streamSvc, geocodeSvc, metricsSvc, validate, logr)
	profileSvc := service.NewProfileService(profileRepo, cacheRepo, metricsSvc, logr, cfg.Leaderboard.Size, cfg.Leaderboard.CacheTTL)
	exportSvc := service.NewExportService(reportRepo, logr)

	streamSvc.SetSources(reportSvc, profileSvc)
	go streamSvc.Run(ctx)

	geocodeSvc.Start(ctx)
	defer geocodeSvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc, logr)
	reportHandler := handler.NewReportHandler(reportSvc, logr)
	profileHandler := handler.NewProfileHandler(profileSvc, logr)
	streamHandler := handler.NewStreamHandler(streamSvc, cfg.Stream.HeartbeatPeriod, logr)
	photoHandler := handler.NewPhotoHandler(photoSvc, logr)
	exportHandler := handler.NewExportHandler(exportSvc, logr)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/session", authHandler.CreateSession)
		api.POST("/auth/login", authHandler.Login)

		api.GET("/reports", reportHandler.List)
		api.POST("/reports", middleware.OptionalJWT(authSvc), reportHandler.Submit)
		api.GET("/reports/stream", streamHandler.Reports)
		api.POST("/reports/:id/validations", middleware.JWT(authSvc), reportHandler.Validate)
		api.PATCH("/reports/:id/status",
			middleware.JWT(authSvc),
			middleware.RequireRoles(models.RoleAgent, models.RoleAdmin),
			reportHandler.UpdateStatus,
		)
		api.GET("/reports/export",
			middleware.JWT(authSvc),
			middleware.RequireRoles(models.RoleAgent, models.RoleAdmin),
			exportHandler.Export,
		)

		api.GET("/photos", photoHandler.Download)

		api.GET("/profile", middleware.JWT(authSvc), profileHandler.Me)
		api.GET("/profile/stream", middleware.JWT(authSvc), streamHandler.Profile)
		api.GET("/leaderboard", profileHandler.Leaderboard)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("forced shutdown", "error", err)
	}
}
