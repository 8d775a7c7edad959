package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

type recordingRunner struct {
	mu    sync.Mutex
	modes []models.IntentMode
	err   error
}

func (r *recordingRunner) RunScheduledForecast(ctx context.Context, mode models.IntentMode) (*models.WorkflowResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
	if r.err != nil {
		return nil, r.err
	}
	return models.NewWorkflowResponse("scheduled-session", "req", "completed", "published"), nil
}

func schedulerLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.LogConfig{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestStartDisabledIsNoOp(t *testing.T) {
	runner := &recordingRunner{}
	sched := New(config.SchedulerConfig{Enabled: false}, runner, schedulerLogger(t))

	if err := sched.Start(); err != nil {
		t.Fatalf("disabled Start returned error: %v", err)
	}
	sched.Stop()

	if len(runner.modes) != 0 {
		t.Errorf("disabled scheduler must not run anything, ran %v", runner.modes)
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	sched := New(config.SchedulerConfig{
		Enabled:     true,
		WeeklyCron:  "not a cron line",
		MonthlyCron: "0 0 1 * *",
	}, &recordingRunner{}, schedulerLogger(t))
	defer sched.Stop()

	if err := sched.Start(); err == nil {
		t.Fatal("expected error for malformed cron expression")
	}
}

func TestStartAcceptsProductionSchedules(t *testing.T) {
	sched := New(config.SchedulerConfig{
		Enabled:     true,
		WeeklyCron:  "0 11 * * 0",
		MonthlyCron: "0 0 1 * *",
	}, &recordingRunner{}, schedulerLogger(t))
	defer sched.Stop()

	if err := sched.Start(); err != nil {
		t.Fatalf("Start returned error for valid cron schedules: %v", err)
	}
}

func TestRunOnceInvokesRunnerWithMode(t *testing.T) {
	runner := &recordingRunner{}
	sched := New(config.SchedulerConfig{Enabled: true}, runner, schedulerLogger(t))

	sched.runOnce(models.IntentDaily)
	sched.runOnce(models.IntentMonthly)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.modes) != 2 || runner.modes[0] != models.IntentDaily || runner.modes[1] != models.IntentMonthly {
		t.Errorf("expected [daily monthly], got %v", runner.modes)
	}
}

func TestRunOnceSurvivesRunnerFailure(t *testing.T) {
	runner := &recordingRunner{err: models.NewExternalError("POWER_ERROR", "provider unavailable")}
	sched := New(config.SchedulerConfig{Enabled: true}, runner, schedulerLogger(t))

	// Must not panic; the failure is logged and the next tick proceeds.
	sched.runOnce(models.IntentDaily)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.modes) != 1 {
		t.Errorf("expected exactly one attempted run, got %d", len(runner.modes))
	}
}
