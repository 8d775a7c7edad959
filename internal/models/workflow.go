package models

import (
	"time"

	"github.com/google/uuid"
)

type WorkflowRequest struct {
	UserID    string         `json:"user_id" binding:"required"`
	Query     string         `json:"query" binding:"required"`
	SessionID string         `json:"session_id,omitempty"`
	Latitude  *float64       `json:"latitude,omitempty"`
	Longitude *float64       `json:"longitude,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type WorkflowResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	TotalTime *float64  `json:"total_time_ms,omitempty"`
}

type WorkflowKind string

const (
	WorkflowKindForecast  WorkflowKind = "forecast"
	WorkflowKindFallback  WorkflowKind = "fallback"
	WorkflowKindScheduled WorkflowKind = "scheduled"
)

// WorkflowContext is the single mutable record threaded through one session.
// Exactly one stage mutates it at a time; the terminal stage persists either
// the response text or the error text, never both.
type WorkflowContext struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	RequestID string         `json:"request_id"`
	Query     string         `json:"query"`
	Kind      WorkflowKind   `json:"kind"`
	Status    WorkflowStatus `json:"status"`
	Scheduled bool           `json:"scheduled,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   *time.Time     `json:"end_time,omitempty"`

	Intent *Intent `json:"intent,omitempty"`

	// Series and Window are heavy intermediates; they live only for the
	// session and are not part of the persisted state snapshot.
	Series RawSeries      `json:"-"`
	Window *FeatureWindow `json:"-"`

	Sequence *ForecastSequence `json:"sequence,omitempty"`
	Bucket   *BucketedForecast `json:"bucket,omitempty"`
	Publish  *PublishOutcome   `json:"publish,omitempty"`

	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`

	Metadata        map[string]any  `json:"metadata,omitempty"`
	ProcessingStats ProcessingStats `json:"processing_stats,omitempty"`
}

type ProcessingStats struct {
	TotalDuration time.Duration         `json:"total_duration"`
	AgentStats    map[string]AgentStats `json:"agent_stats"`
	SeriesRows    int                   `json:"series_rows,omitempty"`
	WindowRows    int                   `json:"window_rows,omitempty"`
	APICallsCount int                   `json:"api_calls_count,omitempty"`
	DegradedSteps int                   `json:"degraded_steps,omitempty"`
}

type AgentStats struct {
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusProcessing WorkflowStatus = "processing"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusFailed     WorkflowStatus = "failed"
)

type AgentStatus string

const (
	AgentStatusProcessing AgentStatus = "processing"
	AgentStatusCompleted  AgentStatus = "completed"
	AgentStatusFailed     AgentStatus = "failed"
)

type UpdateType string

const (
	UpdateTypeWorkflowStarted   UpdateType = "workflow_started"
	UpdateTypeWorkflowCompleted UpdateType = "workflow_completed"
	UpdateTypeWorkflowError     UpdateType = "workflow_error"
)

// AgentUpdate is one progress event on the session's Redis stream.
type AgentUpdate struct {
	WorkflowID     string                 `json:"workflow_id"`
	RequestID      string                 `json:"request_id"`
	AgentName      string                 `json:"agent_name"`
	Status         AgentStatus            `json:"status"`
	Message        string                 `json:"message"`
	Progress       float64                `json:"progress"`
	Data           map[string]interface{} `json:"data,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time_ms,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Retryable      bool                   `json:"retryable"`
}

func NewWorkflowContext(req WorkflowRequest, requestID string) *WorkflowContext {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	return &WorkflowContext{
		ID:        sessionID,
		UserID:    req.UserID,
		RequestID: requestID,
		Query:     req.Query,
		Kind:      WorkflowKindForecast,
		Status:    WorkflowStatusPending,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		ProcessingStats: ProcessingStats{
			AgentStats: make(map[string]AgentStats),
		},
	}
}

// NewScheduledWorkflowContext builds the synthetic session a timed run uses:
// no user, no query text beyond a marker, classification already decided.
func NewScheduledWorkflowContext(requestID string, intent *Intent) *WorkflowContext {
	return &WorkflowContext{
		ID:        uuid.New().String(),
		UserID:    "scheduler",
		RequestID: requestID,
		Query:     "scheduled " + string(intent.Mode) + " rainfall forecast",
		Kind:      WorkflowKindScheduled,
		Status:    WorkflowStatusPending,
		Scheduled: true,
		StartTime: time.Now(),
		Intent:    intent,
		Metadata:  make(map[string]any),
		ProcessingStats: ProcessingStats{
			AgentStats: make(map[string]AgentStats),
		},
	}
}

func NewWorkflowResponse(sessionID, requestID, status, message string) *WorkflowResponse {
	return &WorkflowResponse{
		SessionID: sessionID,
		Status:    status,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

func (wc *WorkflowContext) MarkCompleted() {
	wc.Status = WorkflowStatusCompleted
	now := time.Now()
	wc.EndTime = &now
	wc.ProcessingStats.TotalDuration = time.Since(wc.StartTime)
}

func (wc *WorkflowContext) MarkFailed(errMessage string) {
	wc.Status = WorkflowStatusFailed
	wc.Error = errMessage
	now := time.Now()
	wc.EndTime = &now
	wc.ProcessingStats.TotalDuration = time.Since(wc.StartTime)
}

func (wc *WorkflowContext) SetIntent(intent *Intent) {
	wc.Intent = intent
	if intent.Mode == IntentUnrelated {
		wc.Kind = WorkflowKindFallback
	}
}

func (wc *WorkflowContext) UpdateAgentStats(agentName string, stats AgentStats) {
	wc.ProcessingStats.AgentStats[agentName] = stats
}

func (wc *WorkflowContext) GetDuration() time.Duration {
	if wc.EndTime != nil {
		return wc.EndTime.Sub(wc.StartTime)
	}
	return time.Since(wc.StartTime)
}

func (wc *WorkflowContext) IsCompleted() bool {
	return wc.Status == WorkflowStatusCompleted
}

func (wc *WorkflowContext) IsFailed() bool {
	return wc.Status == WorkflowStatusFailed
}

func (wc *WorkflowContext) IsProcessing() bool {
	return wc.Status == WorkflowStatusProcessing
}

func GenerateRequestID() string {
	return uuid.New().String()
}

func GenerateSessionID() string {
	return uuid.New().String()
}
