// Package scheduler provides the periodic jobs of the membership core:
// the expiry sweep over applications whose voting window has passed, and
// the reputation amnesty decay.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/frekv/gatekeeper/internal/config"
	prommetrics "github.com/frekv/gatekeeper/internal/metrics"
	"github.com/frekv/gatekeeper/pkg/logger"
)

// DecisionService interface for the expiry sweep.
type DecisionService interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ReputationService interface for the amnesty job.
type ReputationService interface {
	RunAmnesty(ctx context.Context) (int, error)
}

// Service handles periodic job scheduling.
type Service struct {
	config     *config.Config
	decision   DecisionService
	reputation ReputationService
	log        *logger.Logger
	cron       *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.Config,
	decision DecisionService,
	reputation ReputationService,
	log *logger.Logger,
) *Service {
	return &Service{
		config:     cfg,
		decision:   decision,
		reputation: reputation,
		log:        log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	sweepSpec := fmt.Sprintf("@every %s", s.config.Scheduler.SweepInterval())
	_, err = s.cron.AddFunc(sweepSpec, func() {
		s.runSweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register expiry sweep job: %w", err)
	}

	if s.config.Scheduler.AmnestySchedule != "" {
		_, err = s.cron.AddFunc(s.config.Scheduler.AmnestySchedule, func() {
			s.runAmnesty(context.Background())
		})
		if err != nil {
			return fmt.Errorf("failed to register amnesty job: %w", err)
		}
		s.log.Info().
			Str("schedule", s.config.Scheduler.AmnestySchedule).
			Msg("Amnesty job registered")
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("sweep_schedule", sweepSpec).
		Str("timezone", s.config.Scheduler.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// runSweep executes the expiry sweep job.
func (s *Service) runSweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSweepDuration(time.Since(start).Seconds())
	}()

	s.log.Debug().Msg("Running expiry sweep")

	decided, err := s.decision.SweepExpired(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Expiry sweep failed")
		prommetrics.RecordSchedulerJobRun("sweep", "error")
		return
	}

	prommetrics.RecordSchedulerJobRun("sweep", "success")
	if decided > 0 {
		s.log.Info().
			Int("applications_decided", decided).
			Dur("duration", time.Since(start)).
			Msg("Expiry sweep completed")
	}
}

// runAmnesty executes the amnesty decay job.
func (s *Service) runAmnesty(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveAmnestyDuration(time.Since(start).Seconds())
	}()

	s.log.Info().Msg("Running amnesty decay job")

	decayed, err := s.reputation.RunAmnesty(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Amnesty job failed")
		prommetrics.RecordSchedulerJobRun("amnesty", "error")
		return
	}

	prommetrics.RecordSchedulerJobRun("amnesty", "success")
	s.log.Info().
		Int("users_decayed", decayed).
		Dur("duration", time.Since(start)).
		Msg("Amnesty job completed successfully")
}
