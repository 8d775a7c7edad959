// Package scheduler fires the timed forecast runs: a weekly daily-mode run
// and a monthly run, both publishing straight to the chart sinks with no
// user session involved.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// ForecastRunner runs one scheduled pipeline pass for a mode.
type ForecastRunner interface {
	RunScheduledForecast(ctx context.Context, mode models.IntentMode) (*models.WorkflowResponse, error)
}

type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    ForecastRunner
	cfg       config.SchedulerConfig
	logger    *logger.Logger
}

func New(cfg config.SchedulerConfig, runner ForecastRunner, log *logger.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		cfg:       cfg,
		logger:    log,
	}
}

// Start registers both cron jobs and starts the scheduler in the background.
// A disabled scheduler is a no-op, not an error.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("Scheduler disabled by configuration")
		return nil
	}

	if _, err := s.scheduler.Cron(s.cfg.WeeklyCron).Do(func() {
		s.runOnce(models.IntentDaily)
	}); err != nil {
		return fmt.Errorf("failed to schedule weekly forecast job: %w", err)
	}

	if _, err := s.scheduler.Cron(s.cfg.MonthlyCron).Do(func() {
		s.runOnce(models.IntentMonthly)
	}); err != nil {
		return fmt.Errorf("failed to schedule monthly forecast job: %w", err)
	}

	s.scheduler.StartAsync()

	s.logger.Info("Scheduler started",
		"weekly_cron", s.cfg.WeeklyCron,
		"monthly_cron", s.cfg.MonthlyCron,
	)
	return nil
}

// runOnce executes one scheduled pass. A failed run logs and waits for the
// next tick; there is no retry inside the schedule.
func (s *Scheduler) runOnce(mode models.IntentMode) {
	began := time.Now()
	s.logger.Info("Scheduled forecast run starting", "mode", string(mode))

	response, err := s.runner.RunScheduledForecast(context.Background(), mode)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled forecast run failed",
			"mode", string(mode),
			"duration_ms", time.Since(began).Milliseconds(),
		)
		return
	}

	s.logger.Info("Scheduled forecast run completed",
		"mode", string(mode),
		"session_id", response.SessionID,
		"duration_ms", time.Since(began).Milliseconds(),
	)
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.logger.Info("Scheduler stopped")
}
