package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/features"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/forecast"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// Capability surfaces the orchestrator drives. Concrete services satisfy
// these; pipeline tests substitute scripted stand-ins.

type AIService interface {
	ClassifyIntent(ctx context.Context, query string) (*models.Intent, error)
	SummarizeForecast(ctx context.Context, query string, intent *models.Intent, bucket *models.BucketedForecast) (string, error)
	FallbackResponse() string
	HealthCheck(ctx context.Context) error
}

type EnvironmentalService interface {
	FetchForIntent(ctx context.Context, intent *models.Intent) (models.RawSeries, error)
	HealthCheck(ctx context.Context) error
}

type ForecastPublisher interface {
	Publish(ctx context.Context, bucket *models.BucketedForecast) (*models.PublishOutcome, error)
}

type StateService interface {
	PublishAgentUpdate(ctx context.Context, userID string, update *models.AgentUpdate) error
	StoreWorkflowState(ctx context.Context, workflowCtx *models.WorkflowContext) error
	GetWorkflowState(ctx context.Context, workflowID string) (*models.WorkflowContext, error)
	HealthCheck(ctx context.Context) error
}

type SessionStore interface {
	CompleteUserQuery(ctx context.Context, sessionID, response string) error
	HealthCheck(ctx context.Context) error
}

type LocationResolver interface {
	Resolve(location string) (float64, float64)
}

/// Orchestrator runs rainfall sessions end to end: classify, fetch, engineer,
// forecast, bucket, publish, interpret, persist. Sessions are sequential
// internally; concurrency happens only across sessions.
type Orchestrator struct {
	redisService StateService
	aiService    AIService
	powerService EnvironmentalService
	publisher    ForecastPublisher
	geocoder     LocationResolver
	store        SessionStore

	engineer   *features.Engineer
	forecaster *forecast.Forecaster
	bucketer   *forecast.Bucketer

	config config.Config
	logger *logger.Logger

	activeWorkflows sync.Map // workflow_id -> *models.WorkflowContext

	startTime time.Time
}

type WorkflowExecutor struct {
	orchestrator *Orchestrator
	workflowCtx  *models.WorkflowContext
	logger       *logger.Logger
}

var (
	forecastWorkflowAgents = []string{
		"classifier",
		"parameter_fetcher",
		"preprocessor",
		"predictor",
		"publisher",
		"interpreter",
		"persistence",
	}

	fallbackWorkflowAgents = []string{
		"classifier",
		"fallback",
		"persistence",
	}

	scheduledWorkflowAgents = []string{
		"parameter_fetcher",
		"preprocessor",
		"predictor",
		"publisher",
		"persistence",
	}
)

func NewOrchestrator(
	redisService StateService,
	aiService AIService,
	powerService EnvironmentalService,
	publisher ForecastPublisher,
	geocoder LocationResolver,
	store SessionStore,
	engineer *features.Engineer,
	forecaster *forecast.Forecaster,
	bucketer *forecast.Bucketer,
	config config.Config,
	logger *logger.Logger) *Orchestrator {

	orchestrator := &Orchestrator{
		redisService:    redisService,
		aiService:       aiService,
		powerService:    powerService,
		publisher:       publisher,
		geocoder:        geocoder,
		store:           store,
		engineer:        engineer,
		forecaster:      forecaster,
		bucketer:        bucketer,
		config:          config,
		logger:          logger,
		activeWorkflows: sync.Map{},
		startTime:       time.Now(),
	}

	logger.Info("Orchestrator initialized",
		"workflow_types", []string{"forecast", "fallback", "scheduled"},
		"forecast_agents", len(forecastWorkflowAgents),
	)

	return orchestrator
}

// ExecuteWorkflow runs one user session to completion. Callers that want
// fire-and-forget behavior dispatch it on their own goroutine; the session
// carries context.Background() style lifetimes internally and is never
// cancelled midway.
func (orchestrator *Orchestrator) ExecuteWorkflow(ctx context.Context, req *models.WorkflowRequest) (*models.WorkflowResponse, error) {
	requestID := models.GenerateRequestID()
	workflowCtx := models.NewWorkflowContext(*req, requestID)

	if req.Latitude != nil {
		workflowCtx.Metadata["latitude"] = *req.Latitude
	}
	if req.Longitude != nil {
		workflowCtx.Metadata["longitude"] = *req.Longitude
	}

	return orchestrator.runWorkflow(ctx, workflowCtx)
}

// RunScheduledForecast runs the timer-driven variant: classification is
// preset, no user query is interpreted or persisted, the published sink is
// the sole output.
func (orchestrator *Orchestrator) RunScheduledForecast(ctx context.Context, mode models.IntentMode) (*models.WorkflowResponse, error) {
	if mode != models.IntentDaily && mode != models.IntentMonthly {
		return nil, models.NewValidationError("INVALID_MODE",
			fmt.Sprintf("scheduled forecasts support daily or monthly, got %q", mode))
	}

	intent := &models.Intent{
		Mode:        mode,
		Horizon:     mode.DefaultHorizon(),
		Latitude:    orchestrator.config.Forecast.DefaultLatitude,
		Longitude:   orchestrator.config.Forecast.DefaultLongitude,
		Confidence:  1.0,
		Explanation: "scheduled run",
	}

	workflowCtx := models.NewScheduledWorkflowContext(models.GenerateRequestID(), intent)

	return orchestrator.runWorkflow(ctx, workflowCtx)
}

func (orchestrator *Orchestrator) runWorkflow(ctx context.Context, workflowCtx *models.WorkflowContext) (*models.WorkflowResponse, error) {
	startTime := time.Now()

	if _, exists := orchestrator.activeWorkflows.LoadOrStore(workflowCtx.ID, workflowCtx); exists {
		return nil, models.NewValidationError("DUPLICATE_SESSION",
			fmt.Sprintf("session %s is already processing", workflowCtx.ID))
	}
	defer orchestrator.activeWorkflows.Delete(workflowCtx.ID)

	orchestrator.logger.LogWorkflow(workflowCtx.ID, workflowCtx.UserID, "workflow_started", 0, nil)
	workflowCtx.Status = models.WorkflowStatusProcessing

	if err := orchestrator.redisService.StoreWorkflowState(ctx, workflowCtx); err != nil {
		orchestrator.logger.WithError(err).Error("Failed to store initial workflow state")
	}

	if err := orchestrator.publishWorkflowUpdate(ctx, workflowCtx, models.UpdateTypeWorkflowStarted, "Workflow started"); err != nil {
		orchestrator.logger.WithError(err).Error("Failed to publish workflow start update")
	}

	executor := &WorkflowExecutor{
		orchestrator: orchestrator,
		workflowCtx:  workflowCtx,
		logger:       orchestrator.logger,
	}

	err := executor.run(ctx)
	if err == nil {
		err = executor.persistOutcome(ctx, nil)
	}

	duration := time.Since(startTime)
	if err != nil {
		workflowCtx.MarkFailed(err.Error())
		orchestrator.logger.LogWorkflow(workflowCtx.ID, workflowCtx.UserID, "workflow_failed", duration, err)

		executor.persistFailure(ctx, err)

		if storeErr := orchestrator.redisService.StoreWorkflowState(ctx, workflowCtx); storeErr != nil {
			orchestrator.logger.WithError(storeErr).Error("Failed to store failed workflow state")
		}

		if pubErr := orchestrator.publishWorkflowUpdate(ctx, workflowCtx, models.UpdateTypeWorkflowError,
			fmt.Sprintf("Workflow failed: %s", err.Error())); pubErr != nil {
			orchestrator.logger.WithError(pubErr).Error("Failed to publish workflow error update")
		}

		return models.NewWorkflowResponse(workflowCtx.ID, workflowCtx.RequestID, "failed", models.UserMessage(err)), err
	}

	workflowCtx.MarkCompleted()
	orchestrator.logger.LogWorkflow(workflowCtx.ID, workflowCtx.UserID, "workflow_completed", duration, nil)

	if err := orchestrator.redisService.StoreWorkflowState(ctx, workflowCtx); err != nil {
		orchestrator.logger.WithError(err).Error("Failed to store final workflow state")
	}

	if err := orchestrator.publishWorkflowUpdate(ctx, workflowCtx, models.UpdateTypeWorkflowCompleted, "Workflow completed successfully"); err != nil {
		orchestrator.logger.WithError(err).Error("Failed to publish workflow completed update")
	}

	totalTimeMs := float64(duration.Milliseconds())

	response := models.NewWorkflowResponse(
		workflowCtx.ID,
		workflowCtx.RequestID,
		"completed",
		workflowCtx.Response,
	)
	response.TotalTime = &totalTimeMs

	return response, nil
}

// run executes the pipeline with panic isolation: a panicking stage fails the
// session with an internal error instead of killing the process.
func (workflowExecutor *WorkflowExecutor) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.NewInternalError("UNEXPECTED_PANIC",
				fmt.Sprintf("workflow panicked: %v", r))
			workflowExecutor.logger.Error("Workflow panicked",
				"workflow_id", workflowExecutor.workflowCtx.ID,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()

	return workflowExecutor.executeMainPipeline(ctx)
}

func (workflowExecutor *WorkflowExecutor) executeMainPipeline(ctx context.Context) error {
	// Scheduled contexts arrive pre-classified.
	if workflowExecutor.workflowCtx.Intent == nil {
		if err := workflowExecutor.executeClassifier(ctx); err != nil {
			return fmt.Errorf("classifier failed: %w", err)
		}
	}

	if workflowExecutor.workflowCtx.Kind == models.WorkflowKindFallback {
		return workflowExecutor.executeFallback(ctx)
	}

	return workflowExecutor.executeForecastPipeline(ctx)
}

func (workflowExecutor *WorkflowExecutor) executeClassifier(ctx context.Context) error {
	startTime := time.Now()

	if err := workflowExecutor.publishAgentUpdate(ctx, "classifier", models.AgentStatusProcessing, "Analyzing query intent"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish classifier update")
	}

	intent, err := workflowExecutor.orchestrator.aiService.ClassifyIntent(ctx, workflowExecutor.workflowCtx.Query)
	if err != nil {
		return err
	}
	workflowExecutor.workflowCtx.ProcessingStats.APICallsCount++

	latitude, longitude := workflowExecutor.orchestrator.geocoder.Resolve(intent.Location)
	if lat, ok := workflowExecutor.workflowCtx.Metadata["latitude"].(float64); ok {
		latitude = lat
	}
	if lon, ok := workflowExecutor.workflowCtx.Metadata["longitude"].(float64); ok {
		longitude = lon
	}
	intent.Latitude = latitude
	intent.Longitude = longitude

	workflowExecutor.workflowCtx.SetIntent(intent)

	workflowExecutor.workflowCtx.UpdateAgentStats("classifier", models.AgentStats{
		Name:      "classifier",
		Duration:  time.Since(startTime),
		Status:    string(models.AgentStatusCompleted),
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	if err := workflowExecutor.publishAgentUpdate(ctx, "classifier", models.AgentStatusCompleted,
		fmt.Sprintf("Intent: %s (confidence: %.2f)", intent.Mode, intent.Confidence)); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish classifier completion")
	}

	return nil
}

func (workflowExecutor *WorkflowExecutor) executeFallback(ctx context.Context) error {
	startTime := time.Now()

	workflowExecutor.logger.LogWorkflow(workflowExecutor.workflowCtx.ID, workflowExecutor.workflowCtx.UserID, "fallback_workflow_started", 0, nil)

	if err := workflowExecutor.publishAgentUpdate(ctx, "fallback", models.AgentStatusProcessing, "Composing fallback response"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish fallback update")
	}

	workflowExecutor.workflowCtx.Response = workflowExecutor.orchestrator.aiService.FallbackResponse()

	workflowExecutor.workflowCtx.UpdateAgentStats("fallback", models.AgentStats{
		Name:      "fallback",
		Duration:  time.Since(startTime),
		Status:    string(models.AgentStatusCompleted),
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	if err := workflowExecutor.publishAgentUpdate(ctx, "fallback", models.AgentStatusCompleted, "Composed fallback response"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish fallback completion")
	}

	return nil
}

func (workflowExecutor *WorkflowExecutor) executeForecastPipeline(ctx context.Context) error {
	workflowExecutor.logger.LogWorkflow(workflowExecutor.workflowCtx.ID, workflowExecutor.workflowCtx.UserID, "forecast_workflow_started", 0, nil)

	if err := workflowExecutor.executeParameterFetcher(ctx); err != nil {
		return fmt.Errorf("parameter fetcher failed: %w", err)
	}

	if err := workflowExecutor.executePreprocessor(ctx); err != nil {
		return fmt.Errorf("preprocessor failed: %w", err)
	}

	if err := workflowExecutor.executePredictor(ctx); err != nil {
		return fmt.Errorf("predictor failed: %w", err)
	}

	// A failed publish is recorded but never stops interpretation.
	if err := workflowExecutor.executePublisher(ctx); err != nil {
		workflowExecutor.logger.WithError(err).Warn("Forecast publish failed, continuing workflow",
			"workflow_id", workflowExecutor.workflowCtx.ID,
		)
	}

	if workflowExecutor.workflowCtx.Scheduled {
		return nil
	}

	if err := workflowExecutor.executeInterpreter(ctx); err != nil {
		return fmt.Errorf("interpreter failed: %w", err)
	}

	return nil
}

func (workflowExecutor *WorkflowExecutor) executeParameterFetcher(ctx context.Context) error {
	startTime := time.Now()

	if err := workflowExecutor.publishAgentUpdate(ctx, "parameter_fetcher", models.AgentStatusProcessing, "Fetching environmental history"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish parameter fetcher update")
	}

	series, err := workflowExecutor.orchestrator.powerService.FetchForIntent(ctx, workflowExecutor.workflowCtx.Intent)
	if err != nil {
		workflowExecutor.publishAgentFailure(ctx, "parameter_fetcher", err)
		return err
	}

	workflowExecutor.workflowCtx.Series = series
	workflowExecutor.workflowCtx.ProcessingStats.SeriesRows = len(series)
	workflowExecutor.workflowCtx.ProcessingStats.APICallsCount++

	workflowExecutor.workflowCtx.UpdateAgentStats("parameter_fetcher", models.AgentStats{
		Name:      "parameter_fetcher",
		Duration:  time.Since(startTime),
		Status:    string(models.AgentStatusCompleted),
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	if err := workflowExecutor.publishAgentUpdate(ctx, "parameter_fetcher", models.AgentStatusCompleted,
		fmt.Sprintf("Fetched %d environmental records", len(series))); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish parameter fetcher completion")
	}

	return nil
}

func (workflowExecutor *WorkflowExecutor) executePreprocessor(ctx context.Context) error {
	startTime := time.Now()

	if err := workflowExecutor.publishAgentUpdate(ctx, "preprocessor", models.AgentStatusProcessing, "Engineering feature window"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish preprocessor update")
	}

	window, err := workflowExecutor.orchestrator.engineer.BuildWindow(
		workflowExecutor.workflowCtx.Series,
		workflowExecutor.workflowCtx.Intent.Mode,
	)
	if err != nil {
		workflowExecutor.publishAgentFailure(ctx, "preprocessor", err)
		return err
	}

	workflowExecutor.workflowCtx.Window = window
	workflowExecutor.workflowCtx.ProcessingStats.WindowRows = window.Length()

	workflowExecutor.workflowCtx.UpdateAgentStats("preprocessor", models.AgentStats{
		Name:      "preprocessor",
		Duration:  time.Since(startTime),
		Status:    string(models.AgentStatusCompleted),
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	if err := workflowExecutor.publishAgentUpdate(ctx, "preprocessor", models.AgentStatusCompleted,
		fmt.Sprintf("Built %dx%d feature window", window.Length(), window.Width())); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish preprocessor completion")
	}

	return nil
}

func (workflowExecutor *WorkflowExecutor) executePredictor(ctx context.Context) error {
	startTime := time.Now()

	if err := workflowExecutor.publishAgentUpdate(ctx, "predictor", models.AgentStatusProcessing, "Running autoregressive forecast"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish predictor update")
	}

	sequence, err := workflowExecutor.orchestrator.forecaster.Forecast(
		workflowExecutor.workflowCtx.Window,
		workflowExecutor.workflowCtx.Intent.Horizon,
	)
	if err != nil {
		workflowExecutor.publishAgentFailure(ctx, "predictor", err)
		return err
	}

	bucket, err := workflowExecutor.orchestrator.bucketer.Bucket(sequence, time.Now().UTC())
	if err != nil {
		workflowExecutor.publishAgentFailure(ctx, "predictor", err)
		return err
	}

	workflowExecutor.workflowCtx.Sequence = sequence
	workflowExecutor.workflowCtx.Bucket = bucket
	workflowExecutor.workflowCtx.ProcessingStats.DegradedSteps = sequence.DegradedSteps

	workflowExecutor.workflowCtx.UpdateAgentStats("predictor", models.AgentStats{
		Name:      "predictor",
		Duration:  time.Since(startTime),
		Status:    string(models.AgentStatusCompleted),
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	message := fmt.Sprintf("Forecast ready: %d steps bucketed into %d calendar points", len(sequence.Steps), bucket.Size())
	if sequence.DegradedSteps > 0 {
		message = fmt.Sprintf("%s (%d degraded steps)", message, sequence.DegradedSteps)
	}
	if err := workflowExecutor.publishAgentUpdate(ctx, "predictor", models.AgentStatusCompleted, message); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish predictor completion")
	}

	return nil
}

func (workflowExecutor *WorkflowExecutor) executePublisher(ctx context.Context) error {
	startTime := time.Now()

	if err := workflowExecutor.publishAgentUpdate(ctx, "publisher", models.AgentStatusProcessing, "Publishing forecast to chart sink"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish publisher update")
	}

	outcome, err := workflowExecutor.orchestrator.publisher.Publish(ctx, workflowExecutor.workflowCtx.Bucket)
	workflowExecutor.workflowCtx.Publish = outcome
	workflowExecutor.workflowCtx.ProcessingStats.APICallsCount++

	status := models.AgentStatusCompleted
	message := "Forecast published"
	if outcome != nil && outcome.Success {
		message = fmt.Sprintf("Forecast published to %s after %d attempt(s)", outcome.Sink, outcome.Attempts)
	}
	if err != nil {
		status = models.AgentStatusFailed
		message = fmt.Sprintf("Forecast publish failed: %s", err.Error())
	}

	workflowExecutor.workflowCtx.UpdateAgentStats("publisher", models.AgentStats{
		Name:      "publisher",
		Duration:  time.Since(startTime),
		Status:    string(status),
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	if pubErr := workflowExecutor.publishAgentUpdate(ctx, "publisher", status, message); pubErr != nil {
		workflowExecutor.logger.WithError(pubErr).Error("Failed to publish publisher completion")
	}

	return err
}

func (workflowExecutor *WorkflowExecutor) executeInterpreter(ctx context.Context) error {
	startTime := time.Now()

	if err := workflowExecutor.publishAgentUpdate(ctx, "interpreter", models.AgentStatusProcessing, "Interpreting forecast"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish interpreter update")
	}

	summary, err := workflowExecutor.orchestrator.aiService.SummarizeForecast(
		ctx,
		workflowExecutor.workflowCtx.Query,
		workflowExecutor.workflowCtx.Intent,
		workflowExecutor.workflowCtx.Bucket,
	)
	if err != nil {
		workflowExecutor.publishAgentFailure(ctx, "interpreter", err)
		return err
	}

	workflowExecutor.workflowCtx.Response = summary
	workflowExecutor.workflowCtx.ProcessingStats.APICallsCount++

	workflowExecutor.workflowCtx.UpdateAgentStats("interpreter", models.AgentStats{
		Name:      "interpreter",
		Duration:  time.Since(startTime),
		Status:    string(models.AgentStatusCompleted),
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	if err := workflowExecutor.publishAgentUpdate(ctx, "interpreter", models.AgentStatusCompleted,
		fmt.Sprintf("Generated forecast summary (%d chars)", len(summary))); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish interpreter completion")
	}

	return nil
}

// persistOutcome writes the session's terminal text exactly once. Scheduled
// runs have no user query row, so they skip it.
func (workflowExecutor *WorkflowExecutor) persistOutcome(ctx context.Context, failure error) error {
	if workflowExecutor.workflowCtx.Scheduled {
		return nil
	}

	startTime := time.Now()

	if err := workflowExecutor.publishAgentUpdate(ctx, "persistence", models.AgentStatusProcessing, "Persisting session outcome"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish persistence update")
	}

	text := workflowExecutor.workflowCtx.Response
	if failure != nil {
		text = models.UserMessage(failure)
	}

	err := workflowExecutor.orchestrator.store.CompleteUserQuery(ctx, workflowExecutor.workflowCtx.ID, text)
	if err != nil {
		workflowExecutor.publishAgentFailure(ctx, "persistence", err)
		return fmt.Errorf("persistence failed: %w", err)
	}

	workflowExecutor.workflowCtx.UpdateAgentStats("persistence", models.AgentStats{
		Name:      "persistence",
		Duration:  time.Since(startTime),
		Status:    string(models.AgentStatusCompleted),
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	if err := workflowExecutor.publishAgentUpdate(ctx, "persistence", models.AgentStatusCompleted, "Session outcome persisted"); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish persistence completion")
	}

	return nil
}

// persistFailure records the user-facing error text after a failed session.
// Best effort: a second write failure is logged, not retried.
func (workflowExecutor *WorkflowExecutor) persistFailure(ctx context.Context, failure error) {
	if workflowExecutor.workflowCtx.Scheduled {
		return
	}

	if err := workflowExecutor.persistOutcome(ctx, failure); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to persist session failure",
			"workflow_id", workflowExecutor.workflowCtx.ID,
		)
	}
}

func (workflowExecutor *WorkflowExecutor) publishAgentFailure(ctx context.Context, agentName string, failure error) {
	workflowExecutor.workflowCtx.UpdateAgentStats(agentName, models.AgentStats{
		Name:      agentName,
		Status:    string(models.AgentStatusFailed),
		StartTime: time.Now(),
		EndTime:   time.Now(),
	})

	if err := workflowExecutor.publishAgentUpdateWithError(ctx, agentName, failure); err != nil {
		workflowExecutor.logger.WithError(err).Error("Failed to publish agent failure update")
	}
}

func calculateAgentProgress(kind models.WorkflowKind, agentName string, status models.AgentStatus) float64 {
	agents := getAgentSequence(kind)

	agentIndex := -1
	for i, agent := range agents {
		if agent == agentName {
			agentIndex = i
			break
		}
	}

	if agentIndex == -1 {
		return 0.0
	}

	totalAgents := float64(len(agents))
	baseProgress := float64(agentIndex) / totalAgents

	switch status {
	case models.AgentStatusProcessing:
		return baseProgress + (0.5 / totalAgents)
	case models.AgentStatusCompleted:
		return float64(agentIndex+1) / totalAgents
	case models.AgentStatusFailed:
		return baseProgress
	default:
		return baseProgress
	}
}

func getAgentSequence(kind models.WorkflowKind) []string {
	switch kind {
	case models.WorkflowKindForecast:
		return forecastWorkflowAgents
	case models.WorkflowKindFallback:
		return fallbackWorkflowAgents
	case models.WorkflowKindScheduled:
		return scheduledWorkflowAgents
	default:
		return []string{}
	}
}

func getTotalAgents(kind models.WorkflowKind) int {
	return len(getAgentSequence(kind))
}

func (workflowExecutor *WorkflowExecutor) publishAgentUpdate(ctx context.Context, agentName string, status models.AgentStatus, message string) error {
	progress := calculateAgentProgress(workflowExecutor.workflowCtx.Kind, agentName, status)

	update := &models.AgentUpdate{
		WorkflowID: workflowExecutor.workflowCtx.ID,
		RequestID:  workflowExecutor.workflowCtx.RequestID,
		AgentName:  agentName,
		Status:     status,
		Message:    message,
		Progress:   progress,
		Data:       make(map[string]interface{}),
		Timestamp:  time.Now(),
		Retryable:  status == models.AgentStatusFailed,
	}

	update.Data["workflow_type"] = string(workflowExecutor.workflowCtx.Kind)
	update.Data["agent_sequence"] = getAgentSequence(workflowExecutor.workflowCtx.Kind)
	update.Data["total_agents"] = getTotalAgents(workflowExecutor.workflowCtx.Kind)

	return workflowExecutor.orchestrator.redisService.PublishAgentUpdate(ctx, workflowExecutor.workflowCtx.UserID, update)
}

func (workflowExecutor *WorkflowExecutor) publishAgentUpdateWithError(ctx context.Context, agentName string, failure error) error {
	update := &models.AgentUpdate{
		WorkflowID: workflowExecutor.workflowCtx.ID,
		RequestID:  workflowExecutor.workflowCtx.RequestID,
		AgentName:  agentName,
		Status:     models.AgentStatusFailed,
		Message:    fmt.Sprintf("%s failed", agentName),
		Progress:   calculateAgentProgress(workflowExecutor.workflowCtx.Kind, agentName, models.AgentStatusFailed),
		Error:      failure.Error(),
		Timestamp:  time.Now(),
		Retryable:  models.IsTransientPublish(failure) || models.IsErrorType(failure, models.ErrorTypeTimeout),
	}

	return workflowExecutor.orchestrator.redisService.PublishAgentUpdate(ctx, workflowExecutor.workflowCtx.UserID, update)
}

func (orchestrator *Orchestrator) publishWorkflowUpdate(ctx context.Context, workflowCtx *models.WorkflowContext, updateType models.UpdateType, message string) error {
	update := &models.AgentUpdate{
		WorkflowID: workflowCtx.ID,
		RequestID:  workflowCtx.RequestID,
		AgentName:  string(updateType),
		Status:     models.AgentStatusCompleted,
		Message:    message,
		Progress:   1.0,
		Timestamp:  time.Now(),
	}

	return orchestrator.redisService.PublishAgentUpdate(ctx, workflowCtx.UserID, update)
}

func (orchestrator *Orchestrator) GetWorkflowStatus(workflowID string) (*models.WorkflowContext, error) {
	if workflow, exists := orchestrator.activeWorkflows.Load(workflowID); exists {
		return workflow.(*models.WorkflowContext), nil
	}

	ctx := context.Background()
	return orchestrator.redisService.GetWorkflowState(ctx, workflowID)
}

func (orchestrator *Orchestrator) GetActiveWorkflowsCount() int {
	count := 0
	orchestrator.activeWorkflows.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (orchestrator *Orchestrator) HealthCheck(ctx context.Context) error {
	services := map[string]func() error{
		"redis":    func() error { return orchestrator.redisService.HealthCheck(ctx) },
		"gemini":   func() error { return orchestrator.aiService.HealthCheck(ctx) },
		"power":    func() error { return orchestrator.powerService.HealthCheck(ctx) },
		"database": func() error { return orchestrator.store.HealthCheck(ctx) },
	}

	for serviceName, healthCheck := range services {
		if err := healthCheck(); err != nil {
			return fmt.Errorf("service %s health check failed: %w", serviceName, err)
		}
	}

	return nil
}

func (orchestrator *Orchestrator) GetStats() map[string]interface{} {
	uptime := time.Since(orchestrator.startTime)

	return map[string]interface{}{
		"service":             "orchestrator",
		"uptime_seconds":      uptime.Seconds(),
		"active_workflows":    orchestrator.GetActiveWorkflowsCount(),
		"supported_workflows": []string{"forecast", "fallback", "scheduled"},
		"forecast_agents":     forecastWorkflowAgents,
		"fallback_agents":     fallbackWorkflowAgents,
		"scheduled_agents":    scheduledWorkflowAgents,
	}
}

func (orchestrator *Orchestrator) Close() error {
	orchestrator.logger.Info("Orchestrator shutting down")

	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			activeCount := orchestrator.GetActiveWorkflowsCount()
			if activeCount > 0 {
				orchestrator.logger.Warn("Timeout waiting for workflows to complete", "active_workflows", activeCount)
			}
			return nil
		case <-ticker.C:
			if orchestrator.GetActiveWorkflowsCount() == 0 {
				orchestrator.logger.Info("All workflows completed, orchestrator closed")
				return nil
			}
		}
	}
}
