package services

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

const (
	workflowStateTTL = 6 * time.Hour
	latestBucketTTL  = 7 * 24 * time.Hour
	agentStreamLimit = 1024
)

// RedisService carries the pipeline's volatile state: per-user agent-update
// streams on one client, workflow state and the latest published forecast on
// the other.
type RedisService struct {
	streams *redis.Client
	memory  *redis.Client
	logger  *logger.Logger
	config  config.RedisConfig
}

func NewRedisService(config config.RedisConfig, log *logger.Logger) (*RedisService, error) {
	streamsOpt, err := redis.ParseURL(config.StreamsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis streams URL: %w", err)
	}

	memoryOpt, err := redis.ParseURL(config.MemoryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis memory URL: %w", err)
	}

	configureRedisOptions(streamsOpt, config)
	configureRedisOptions(memoryOpt, config)

	streamsClient := redis.NewClient(streamsOpt)
	memoryClient := redis.NewClient(memoryOpt)

	service := &RedisService{
		streams: streamsClient,
		memory:  memoryClient,
		logger:  log,
		config:  config,
	}

	if err := service.testConnection(); err != nil {
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("Redis service initialized",
		"streams_url", config.StreamsURL,
		"memory_url", config.MemoryURL,
		"pool_size", config.PoolSize)

	return service, nil
}

func (service *RedisService) testConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := service.streams.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connection to Redis failed: %w", err)
	}

	if err := service.memory.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connection to Redis failed: %w", err)
	}

	service.logger.Info("Redis connection tested successfully")
	return nil
}

func (service *RedisService) Close() error {
	service.logger.Info("Closing Redis service")

	var errs []error
	if err := service.streams.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close streams failed: %w", err))
	}

	if err := service.memory.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close memory failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("error closing Redis connections: %v", errs)
	}

	service.logger.Info("Redis service closed successfully")
	return nil
}

func configureRedisOptions(opt *redis.Options, cfg config.RedisConfig) {
	opt.PoolSize = cfg.PoolSize
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout
	opt.DialTimeout = cfg.DialTimeout
}

// PublishAgentUpdate appends one progress event to the user's update stream.
// The stream is capped so abandoned sessions cannot grow unbounded.
func (service *RedisService) PublishAgentUpdate(ctx context.Context, userID string, update *models.AgentUpdate) error {
	streamName := fmt.Sprintf("user:%s:agent_updates", userID)

	updateData := map[string]interface{}{
		"type":            "agent_update",
		"workflow_id":     update.WorkflowID,
		"request_id":      update.RequestID,
		"agent_name":      update.AgentName,
		"status":          string(update.Status),
		"message":         update.Message,
		"progress":        fmt.Sprintf("%.2f", update.Progress),
		"processing_time": update.ProcessingTime.Milliseconds(),
		"timestamp":       update.Timestamp.Format(time.RFC3339),
		"retryable":       update.Retryable,
	}

	if update.Data != nil {
		dataJSON, err := json.Marshal(update.Data)
		if err == nil {
			updateData["data"] = string(dataJSON)
		} else {
			service.logger.WithError(err).Warn("Failed to marshal agent update data")
		}
	}

	if update.Error != "" {
		updateData["error"] = update.Error
	}

	result, err := service.streams.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: updateData,
		MaxLen: agentStreamLimit,
	}).Result()

	if err != nil {
		service.logger.LogService("redis", "publish_agent_update", 0, map[string]interface{}{
			"stream_name": streamName,
			"agent_name":  update.AgentName,
			"workflow_id": update.WorkflowID,
		}, err)
		return models.NewExternalError("REDIS_PUBLISH_FAILED", "failed to publish agent update").WithCause(err)
	}

	service.logger.WithFields(logger.Fields{
		"stream_name": streamName,
		"message_id":  result,
		"agent_name":  update.AgentName,
		"status":      update.Status,
		"workflow_id": update.WorkflowID,
	}).Debug("Published agent update")

	return nil
}

func (service *RedisService) StoreWorkflowState(ctx context.Context, workflowCtx *models.WorkflowContext) error {
	key := fmt.Sprintf("workflow:%s:state", workflowCtx.ID)
	startTime := time.Now()

	stateJSON, err := json.Marshal(workflowCtx)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "failed to serialize workflow state").WithCause(err)
	}

	err = service.memory.Set(ctx, key, stateJSON, workflowStateTTL).Err()
	if err != nil {
		service.logger.LogService("redis", "store_workflow_state", time.Since(startTime), map[string]interface{}{
			"workflow_id": workflowCtx.ID,
			"key":         key,
		}, err)
		return models.NewExternalError("REDIS_STORE_FAILED", "failed to store workflow state").WithCause(err)
	}

	service.logger.LogService("redis", "store_workflow_state", time.Since(startTime), map[string]interface{}{
		"workflow_id": workflowCtx.ID,
		"status":      string(workflowCtx.Status),
	}, nil)

	return nil
}

func (service *RedisService) GetWorkflowState(ctx context.Context, workflowID string) (*models.WorkflowContext, error) {
	key := fmt.Sprintf("workflow:%s:state", workflowID)
	startTime := time.Now()

	stateJSON, err := service.memory.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, models.ErrWorkflowNotFound.WithMetadata("workflow_id", workflowID)
		}
		service.logger.LogService("redis", "get_workflow_state", time.Since(startTime), map[string]interface{}{
			"workflow_id": workflowID,
			"key":         key,
		}, err)
		return nil, models.NewExternalError("REDIS_GET_FAILED", "failed to get workflow state").WithCause(err)
	}

	var workflowContext models.WorkflowContext
	err = json.Unmarshal([]byte(stateJSON), &workflowContext)
	if err != nil {
		return nil, models.NewInternalError("DESERIALIZATION_FAILED", "failed to deserialize workflow state").WithCause(err)
	}

	service.logger.LogService("redis", "get_workflow_state", time.Since(startTime), map[string]interface{}{
		"workflow_id": workflowID,
	}, nil)

	return &workflowContext, nil
}

// StoreLatestBucket caches the most recently published forecast per mode so
// chart reads do not need a database round trip.
func (service *RedisService) StoreLatestBucket(ctx context.Context, bucket *models.BucketedForecast) error {
	if bucket == nil || !bucket.Mode.IsValid() {
		return models.NewValidationError("INVALID_BUCKET", "cannot cache an empty or modeless bucket")
	}

	key := fmt.Sprintf("forecast:latest:%s", bucket.Mode)
	startTime := time.Now()

	bucketJSON, err := json.Marshal(bucket)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "failed to serialize forecast bucket").WithCause(err)
	}

	err = service.memory.Set(ctx, key, bucketJSON, latestBucketTTL).Err()
	if err != nil {
		service.logger.LogService("redis", "store_latest_bucket", time.Since(startTime), map[string]interface{}{
			"mode": string(bucket.Mode),
			"key":  key,
		}, err)
		return models.NewExternalError("REDIS_STORE_FAILED", "failed to cache forecast bucket").WithCause(err)
	}

	service.logger.LogService("redis", "store_latest_bucket", time.Since(startTime), map[string]interface{}{
		"mode":   string(bucket.Mode),
		"points": bucket.Size(),
	}, nil)

	return nil
}

func (service *RedisService) GetLatestBucket(ctx context.Context, mode models.IntentMode) (*models.BucketedForecast, error) {
	key := fmt.Sprintf("forecast:latest:%s", mode)
	startTime := time.Now()

	bucketJSON, err := service.memory.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, models.ErrForecastNotCached.WithMetadata("mode", string(mode))
		}
		service.logger.LogService("redis", "get_latest_bucket", time.Since(startTime), map[string]interface{}{
			"mode": string(mode),
			"key":  key,
		}, err)
		return nil, models.NewExternalError("REDIS_GET_FAILED", "failed to read cached forecast").WithCause(err)
	}

	var bucket models.BucketedForecast
	err = json.Unmarshal([]byte(bucketJSON), &bucket)
	if err != nil {
		return nil, models.NewInternalError("DESERIALIZATION_FAILED", "failed to deserialize cached forecast").WithCause(err)
	}

	service.logger.LogService("redis", "get_latest_bucket", time.Since(startTime), map[string]interface{}{
		"mode":   string(mode),
		"points": bucket.Size(),
	}, nil)

	return &bucket, nil
}

func (service *RedisService) HealthCheck(ctx context.Context) error {
	if err := service.memory.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("memory connection unhealthy: %w", err)
	}

	if err := service.streams.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("streams connection unhealthy: %w", err)
	}
	return nil
}
