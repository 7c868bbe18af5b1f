package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ovationlabs/venuepulse-backend/internal/cache"
	redisclient "github.com/ovationlabs/venuepulse-backend/internal/clients/redis"
	"github.com/ovationlabs/venuepulse-backend/internal/db"
	"github.com/ovationlabs/venuepulse-backend/internal/handlers"
	"github.com/ovationlabs/venuepulse-backend/internal/jobs"
	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/middleware"
	"github.com/ovationlabs/venuepulse-backend/internal/observability"
	"github.com/ovationlabs/venuepulse-backend/internal/repos"
	"github.com/ovationlabs/venuepulse-backend/internal/server"
	"github.com/ovationlabs/venuepulse-backend/internal/services"
	"github.com/ovationlabs/venuepulse-backend/internal/sse"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

func main() {
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

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	cacheTTL := utils.GetEnvAsInt("MINUTE_CACHE_TTL_SECONDS", 30, log)
	recentWindow := utils.GetEnvAsInt("RECENT_ACTIVITY_MINUTES", 30, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Tracing (env-gated)
	if stopTracing := observability.InitTracing(ctx, log, observability.Config{
		ServiceName: "venuepulse",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	}); stopTracing != nil {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := stopTracing(shutdownCtx); err != nil {
				log.Warn("Tracing shutdown failed", "error", err)
			}
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	countEventRepo := repos.NewCountEventRepo(thePG, log)
	minuteStatRepo := repos.NewMinuteStatRepo(thePG, log)
	resetLogRepo := repos.NewAdminResetLogRepo(thePG, log)

	// Cache
	minuteCache := cache.NewMinuteCache(log, time.Duration(cacheTTL)*time.Second, time.Minute)
	minuteCache.Start(ctx)

	// Live stream hub
	liveHub := sse.NewOccupancyHub(log)

	// Occupancy bus (optional); the forwarder feeds the live stream hub from
	// the shared redis channel so every instance sees every submission.
	var occupancyBus redisclient.OccupancyBus
	bus, err := redisclient.NewOccupancyBus(log)
	if err != nil {
		log.Warn("Occupancy bus disabled", "error", err)
	} else {
		occupancyBus = bus
		defer occupancyBus.Close()
		if err := occupancyBus.StartForwarder(ctx, func(u redisclient.OccupancyUpdate) {
			liveHub.Broadcast(sse.LiveUpdate{CurrentInside: u.CurrentInside, At: u.At})
		}); err != nil {
			log.Warn("Occupancy forwarder failed to start", "error", err)
		}
	}

	// Services
	log.Info("Setting up services from main...")
	aggregationService := services.NewAggregationService(thePG, log, countEventRepo, minuteStatRepo)
	countService := services.NewCountService(thePG, log, countEventRepo, aggregationService, occupancyBus)
	statsService := services.NewStatsService(thePG, log, countEventRepo, minuteStatRepo, aggregationService, minuteCache, time.Duration(recentWindow)*time.Minute)
	adminService := services.NewAdminService(thePG, log, countEventRepo, minuteStatRepo, resetLogRepo, minuteCache)

	// Scheduled jobs
	log.Info("Setting up scheduled jobs from main...")
	computeWorker := jobs.NewMinuteComputeWorker(log, aggregationService)
	computeWorker.Start(ctx)
	backfillWorker := jobs.NewBackfillWorker(log, aggregationService, minuteStatRepo, jobs.DefaultBackfillOptions())
	backfillWorker.Start(ctx)

	// Handlers
	log.Info("Setting up handlers from main...")
	countHandler := handlers.NewCountHandler(log, countService)
	statsHandler := handlers.NewStatsHandler(log, statsService)
	adminHandler := handlers.NewAdminHandler(log, adminService, backfillWorker)
	liveHandler := handlers.NewLiveHandler(log, liveHub)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware: authMiddleware,
		CountHandler:   countHandler,
		StatsHandler:   statsHandler,
		AdminHandler:   adminHandler,
		LiveHandler:    liveHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
	minuteCache.Stop()
}
