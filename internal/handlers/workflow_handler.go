package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/storage"
)

// Orchestrator is the workflow surface the handlers drive.
type Orchestrator interface {
	ExecuteWorkflow(ctx context.Context, req *models.WorkflowRequest) (*models.WorkflowResponse, error)
	RunScheduledForecast(ctx context.Context, mode models.IntentMode) (*models.WorkflowResponse, error)
	GetWorkflowStatus(workflowID string) (*models.WorkflowContext, error)
	GetActiveWorkflowsCount() int
	HealthCheck(ctx context.Context) error
}

// SessionStore is the slice of persistence the chat endpoints need.
type SessionStore interface {
	Create(ctx context.Context, query *storage.UserQuery) error
	GetBySessionID(ctx context.Context, sessionID string) (*storage.UserQuery, error)
	GetLatestByUserID(ctx context.Context, userID string) (*storage.UserQuery, error)
}

type WorkflowHandler struct {
	orchestrator Orchestrator
	sessions     SessionStore
	logger       *logger.Logger
}

func NewWorkflowHandler(orchestrator Orchestrator, sessions SessionStore, log *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		orchestrator: orchestrator,
		sessions:     sessions,
		logger:       log,
	}
}

type userInputRequest struct {
	UserID    string   `json:"user_id" binding:"required"`
	Message   string   `json:"message" binding:"required"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HandleUserInput creates the session record and dispatches the workflow
// fire-and-forget: the request returns 202 immediately and the pipeline runs
// detached with its own lifetime.
func (h *WorkflowHandler) HandleUserInput(c *gin.Context) {
	var req userInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"details": err.Error(),
		})
		return
	}

	sessionID := models.GenerateSessionID()
	requestID := models.GenerateRequestID()

	record := &storage.UserQuery{
		SessionID: sessionID,
		UserID:    req.UserID,
		QueryText: req.Message,
	}
	if err := h.sessions.Create(c.Request.Context(), record); err != nil {
		h.logger.WithError(err).Error("Failed to create session record",
			"user_id", req.UserID,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	workflowReq := &models.WorkflowRequest{
		UserID:    req.UserID,
		Query:     req.Message,
		SessionID: sessionID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}

	// Detached execution: the workflow outlives this request, so it gets a
	// fresh background context rather than the request-scoped one.
	go func() {
		response, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflowReq)
		if err != nil {
			h.logger.WithError(err).Error("Detached workflow failed",
				"session_id", sessionID,
				"user_id", req.UserID,
			)
			return
		}
		h.logger.Info("Detached workflow finished",
			"session_id", sessionID,
			"status", response.Status,
		)
	}()

	h.logger.Info("Workflow dispatched",
		"session_id", sessionID,
		"request_id", requestID,
		"user_id", req.UserID,
	)

	c.JSON(http.StatusAccepted, gin.H{
		"session_id": sessionID,
		"request_id": requestID,
		"status":     "processing",
	})
}

type chatbotResponse struct {
	SessionID           string   `json:"session_id"`
	Query               string   `json:"query"`
	Response            *string  `json:"response"`
	Completed           bool     `json:"completed"`
	ResponseTimeSeconds *float64 `json:"response_time_seconds,omitempty"`
}

// GetChatbotResponse returns one session's terminal text by session id.
func (h *WorkflowHandler) GetChatbotResponse(c *gin.Context) {
	sessionID := c.Param("session_id")

	record, err := h.sessions.GetBySessionID(c.Request.Context(), sessionID)
	if err != nil {
		h.respondSessionLookup(c, err, "session_id", sessionID)
		return
	}

	c.JSON(http.StatusOK, toChatbotResponse(record))
}

// GetLatestChatbotResponse returns the most recent session for a user.
func (h *WorkflowHandler) GetLatestChatbotResponse(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	record, err := h.sessions.GetLatestByUserID(c.Request.Context(), userID)
	if err != nil {
		h.respondSessionLookup(c, err, "user_id", userID)
		return
	}

	c.JSON(http.StatusOK, toChatbotResponse(record))
}

func toChatbotResponse(record *storage.UserQuery) chatbotResponse {
	return chatbotResponse{
		SessionID:           record.SessionID,
		Query:               record.QueryText,
		Response:            record.ResponseText,
		Completed:           record.Completed,
		ResponseTimeSeconds: record.ResponseTimeSeconds,
	}
}

func (h *WorkflowHandler) respondSessionLookup(c *gin.Context, err error, key, value string) {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code == "SESSION_NOT_FOUND" {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", key: value})
		return
	}

	h.logger.WithError(err).Error("Session lookup failed", key, value)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
}

// GetWorkflowStatus returns the live or Redis-backed workflow state snapshot.
func (h *WorkflowHandler) GetWorkflowStatus(c *gin.Context) {
	sessionID := c.Param("session_id")

	workflowCtx, err := h.orchestrator.GetWorkflowStatus(sessionID)
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == "WORKFLOW_NOT_FOUND" {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found", "session_id": sessionID})
			return
		}
		h.logger.WithError(err).Error("Workflow status lookup failed", "session_id", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read workflow status"})
		return
	}

	c.JSON(http.StatusOK, workflowCtx)
}

// RunWeeklyForecast triggers the scheduled daily-mode pipeline on demand.
func (h *WorkflowHandler) RunWeeklyForecast(c *gin.Context) {
	h.runScheduled(c, models.IntentDaily)
}

// RunMonthlyForecast triggers the scheduled monthly-mode pipeline on demand.
func (h *WorkflowHandler) RunMonthlyForecast(c *gin.Context) {
	h.runScheduled(c, models.IntentMonthly)
}

func (h *WorkflowHandler) runScheduled(c *gin.Context, mode models.IntentMode) {
	go func() {
		response, err := h.orchestrator.RunScheduledForecast(context.Background(), mode)
		if err != nil {
			h.logger.WithError(err).Error("Manual scheduled forecast failed", "mode", string(mode))
			return
		}
		h.logger.Info("Manual scheduled forecast finished",
			"mode", string(mode),
			"session_id", response.SessionID,
		)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status": "processing",
		"mode":   string(mode),
	})
}

// HealthCheck reports downstream health: Redis, Postgres, Gemini, POWER.
func (h *WorkflowHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.orchestrator.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"active_workflows": h.orchestrator.GetActiveWorkflowsCount(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}
