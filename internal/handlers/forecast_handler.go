package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/storage"
)

// ForecastStore is the slice of persistence the sink endpoints need.
type ForecastStore interface {
	Insert(ctx context.Context, mode models.IntentMode, points []models.ForecastPoint) (*storage.ForecastRecord, error)
	GetLatestByType(ctx context.Context, mode models.IntentMode) (*storage.ForecastRecord, error)
}

// BucketCache keeps the latest published bucket hot so chart reads skip the
// database.
type BucketCache interface {
	StoreLatestBucket(ctx context.Context, bucket *models.BucketedForecast) error
	GetLatestBucket(ctx context.Context, mode models.IntentMode) (*models.BucketedForecast, error)
}

// ForecastHandler hosts the publish sinks and the chart read endpoints. The
// sinks accept exactly the payload shape the publisher sends: a bare JSON
// array of {date, rainfall} points.
type ForecastHandler struct {
	forecasts ForecastStore
	cache     BucketCache
	logger    *logger.Logger
}

func NewForecastHandler(forecasts ForecastStore, cache BucketCache, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		forecasts: forecasts,
		cache:     cache,
		logger:    log,
	}
}

// ReceiveDailyForecast accepts the 7-entry weekly bucket.
func (h *ForecastHandler) ReceiveDailyForecast(c *gin.Context) {
	h.receive(c, models.IntentDaily, 7)
}

// ReceiveMonthlyForecast accepts the 3-entry monthly bucket.
func (h *ForecastHandler) ReceiveMonthlyForecast(c *gin.Context) {
	h.receive(c, models.IntentMonthly, 3)
}

func (h *ForecastHandler) receive(c *gin.Context, mode models.IntentMode, size int) {
	var points []models.ForecastPoint
	if err := c.ShouldBindJSON(&points); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid payload",
			"details": err.Error(),
		})
		return
	}

	if err := validatePoints(points, size); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.forecasts.Insert(c.Request.Context(), mode, points)
	if err != nil {
		h.logger.WithError(err).Error("Failed to store forecast record", "mode", string(mode))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store forecast"})
		return
	}

	// Cache refresh is best effort; a cold cache falls back to the database.
	bucket := &models.BucketedForecast{Mode: mode, Points: points}
	if err := h.cache.StoreLatestBucket(c.Request.Context(), bucket); err != nil {
		h.logger.WithError(err).Warn("Failed to cache latest forecast", "mode", string(mode))
	}

	h.logger.Info("Forecast stored",
		"mode", string(mode),
		"record_id", record.ID,
		"points", len(points),
	)

	c.JSON(http.StatusCreated, gin.H{
		"status": "stored",
		"id":     record.ID,
		"mode":   string(mode),
		"points": len(points),
	})
}

// validatePoints enforces the chart contract on incoming buckets: exact size,
// parseable dates, non-negative rainfall.
func validatePoints(points []models.ForecastPoint, size int) error {
	if len(points) != size {
		return fmt.Errorf("payload must contain exactly %d points, got %d", size, len(points))
	}
	for i, point := range points {
		if _, err := time.Parse("2006-01-02", point.Date); err != nil {
			return fmt.Errorf("point %d has invalid date %q, expected YYYY-MM-DD", i, point.Date)
		}
		if point.Rainfall < 0 {
			return fmt.Errorf("point %d has negative rainfall %f", i, point.Rainfall)
		}
	}
	return nil
}

// LatestDailyForecast serves the newest weekly bucket for chart consumers.
func (h *ForecastHandler) LatestDailyForecast(c *gin.Context) {
	h.latest(c, models.IntentDaily)
}

// LatestMonthlyForecast serves the newest monthly bucket.
func (h *ForecastHandler) LatestMonthlyForecast(c *gin.Context) {
	h.latest(c, models.IntentMonthly)
}

func (h *ForecastHandler) latest(c *gin.Context, mode models.IntentMode) {
	if bucket, err := h.cache.GetLatestBucket(c.Request.Context(), mode); err == nil {
		c.JSON(http.StatusOK, gin.H{
			"mode":   string(mode),
			"points": bucket.Points,
			"source": "cache",
		})
		return
	}

	record, err := h.forecasts.GetLatestByType(c.Request.Context(), mode)
	if err != nil {
		if models.IsErrorType(err, models.ErrorTypeValidation) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no forecast available", "mode": string(mode)})
			return
		}
		h.logger.WithError(err).Error("Failed to read latest forecast", "mode", string(mode))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read forecast"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":       string(mode),
		"points":     record.Points,
		"created_at": record.CreatedAt.UTC().Format(time.RFC3339),
		"source":     "database",
	})
}
