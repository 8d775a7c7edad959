package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// PublisherService delivers bucketed forecasts to the chart sinks. Transport
// failures retry with exponential backoff up to the configured attempt
// budget; any response the sink actually produced outside 2xx is final and
// never retried. The payload bytes are marshaled once and reused across
// attempts.
type PublisherService struct {
	config config.PublisherConfig
	client *http.Client
	log    *logger.Logger
}

func NewPublisherService(cfg config.PublisherConfig, log *logger.Logger) *PublisherService {
	service := &PublisherService{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}

	log.Info("Publisher service initialized",
		"daily_sink", cfg.DailySinkURL,
		"monthly_sink", cfg.MonthlySinkURL,
		"max_attempts", cfg.MaxAttempts,
	)

	return service
}

// Publish posts the bucket's points as a bare JSON array to the mode's sink.
// The outcome is returned alongside the error so a failed publish can still
// be reported downstream without aborting the session.
func (s *PublisherService) Publish(ctx context.Context, bucket *models.BucketedForecast) (*models.PublishOutcome, error) {
	began := time.Now()

	if bucket == nil || bucket.Size() == 0 {
		err := models.NewValidationError("EMPTY_BUCKET", "publish requires a non-empty bucketed forecast")
		return &models.PublishOutcome{Success: false, Error: err.Message}, err
	}

	sink, err := s.sinkFor(bucket.Mode)
	if err != nil {
		return &models.PublishOutcome{Success: false, Error: err.Error()}, err
	}

	payload, err := json.Marshal(bucket.Points)
	if err != nil {
		wrapped := models.NewInternalError("PAYLOAD_MARSHAL_FAILED",
			"failed to encode forecast payload").WithCause(err)
		return &models.PublishOutcome{Success: false, Sink: sink, Error: wrapped.Message}, wrapped
	}

	attempts := 0
	operation := func() (int, error) {
		attempts++

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, sink, bytes.NewReader(payload))
		if reqErr != nil {
			return 0, backoff.Permanent(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := s.client.Do(req)
		if doErr != nil {
			// Transport-level failure: the sink never answered, retry.
			return 0, doErr
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp.StatusCode, backoff.Permanent(
				models.NewPersistentPublishError("PUBLISH_REJECTED",
					fmt.Sprintf("sink returned status %d", resp.StatusCode)).
					WithMetadata("sink", sink).
					WithMetadata("status", resp.StatusCode))
		}

		return resp.StatusCode, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.config.InitialBackoff

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(s.config.MaxAttempts)),
	)

	outcome := &models.PublishOutcome{
		Success:  err == nil,
		Attempts: attempts,
		Sink:     sink,
	}

	if err != nil {
		var appErr *models.AppError
		if !errors.As(err, &appErr) || appErr.Type != models.ErrorTypePersistentPublish {
			err = models.NewTransientPublishError("PUBLISH_RETRIES_EXHAUSTED",
				fmt.Sprintf("publish failed after %d attempts", attempts)).
				WithCause(err).
				WithMetadata("sink", sink)
		}
		outcome.Error = err.Error()
	}

	s.log.LogService("publisher", "publish_"+string(bucket.Mode), time.Since(began), logger.Fields{
		"sink":     sink,
		"attempts": attempts,
		"points":   bucket.Size(),
		"success":  outcome.Success,
	}, err)

	return outcome, err
}

func (s *PublisherService) sinkFor(mode models.IntentMode) (string, error) {
	switch mode {
	case models.IntentDaily:
		return s.config.DailySinkURL, nil
	case models.IntentMonthly:
		return s.config.MonthlySinkURL, nil
	default:
		return "", models.NewValidationError("INVALID_MODE",
			fmt.Sprintf("no sink configured for mode %q", mode))
	}
}
