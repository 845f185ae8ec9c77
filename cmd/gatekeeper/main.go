// Command gatekeeper runs the membership decision engine: the REST API,
// the periodic expiry sweep and amnesty jobs, and the Prometheus
// metrics exporter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frekv/gatekeeper/internal/api/admin"
	"github.com/frekv/gatekeeper/internal/cache"
	"github.com/frekv/gatekeeper/internal/config"
	"github.com/frekv/gatekeeper/internal/models"
	"github.com/frekv/gatekeeper/internal/notifier"
	"github.com/frekv/gatekeeper/internal/repository"
	"github.com/frekv/gatekeeper/internal/service/decision"
	"github.com/frekv/gatekeeper/internal/service/reputation"
	"github.com/frekv/gatekeeper/internal/service/scheduler"
	"github.com/frekv/gatekeeper/internal/service/voting"
	"github.com/frekv/gatekeeper/internal/whitelist"
	"github.com/frekv/gatekeeper/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().
		Str("environment", cfg.Server.Environment).
		Msg("Starting gatekeeper")

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	redisCache, err := cache.NewRedisCache(&cfg.Database.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisCache.Close()

	wl := whitelist.NewClient(&cfg.RCON, log)
	notify := notifier.NewClient(&cfg.Notifier, log)

	userRepo := repository.NewUserRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	voteRepo := repository.NewVoteRepository(db)
	repRepo := repository.NewReputationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	defaults := buildDefaults(cfg.Policy)

	decisionService := decision.NewService(appRepo, userRepo, settingsRepo, defaults, wl, notify, log)
	votingService := voting.NewService(
		voteRepo,
		decisionService,
		redisCache,
		time.Duration(cfg.Database.Redis.CacheTTL)*time.Second,
		log,
	)
	reputationService := reputation.NewService(repRepo, userRepo, settingsRepo, defaults, wl, notify, log)

	schedulerService := scheduler.NewService(cfg, decisionService, reputationService, log)
	if err := schedulerService.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer schedulerService.Stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := admin.NewHandler(
		decisionService,
		votingService,
		reputationService,
		appRepo,
		settingsRepo,
		db,
		defaults,
		log,
	)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().
				Int("port", cfg.Metrics.Port).
				Str("path", cfg.Metrics.Path).
				Msg("Metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	log.Info().Msg("Shutdown complete")
}

// buildDefaults maps the policy section of the configuration onto the
// settings row seeded on first run.
func buildDefaults(p config.PolicyConfig) models.SystemSettings {
	return models.SystemSettings{
		VotingDurationHours:       p.VotingDurationHours,
		MinVotes:                  p.MinVotes,
		ParticipationPercent:      p.ParticipationPercent,
		ApprovalThresholdPercent:  p.ApprovalThresholdPercent,
		RejectionThresholdPercent: p.RejectionThresholdPercent,
		SmallCommunityThreshold:   p.SmallCommunityThreshold,
		NegativeRatingsThreshold:  p.NegativeRatingsThreshold,
		RatingCooldownMinutes:     p.RatingCooldownMinutes,
		MaxDailyRatings:           p.MaxDailyRatings,
		AmnestyReductionPercent:   p.AmnestyReductionPercent,
		RequireNegativeReason:     p.RequireNegativeReason,
	}
}
