package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
)

var ErrForecastNotFound = models.NewValidationError("FORECAST_NOT_FOUND", "no stored forecast for that mode")

// ForecastRecord is one published bucket as stored: the ordered calendar
// points under a daily or monthly type tag.
type ForecastRecord struct {
	ID           int64                  `json:"id"`
	ForecastType models.IntentMode      `json:"forecast_type"`
	Points       []models.ForecastPoint `json:"points"`
	CreatedAt    time.Time              `json:"created_at"`
}

type ForecastRepository struct {
	db DBTX
}

func NewForecastRepository(db DBTX) *ForecastRepository {
	return &ForecastRepository{db: db}
}

// Insert stores a published bucket. The point order is preserved inside the
// JSONB payload, which is the chart contract.
func (r *ForecastRepository) Insert(ctx context.Context, mode models.IntentMode, points []models.ForecastPoint) (*ForecastRecord, error) {
	if mode != models.IntentDaily && mode != models.IntentMonthly {
		return nil, models.NewValidationError("INVALID_MODE",
			fmt.Sprintf("forecast records are daily or monthly, got %q", mode))
	}
	if len(points) == 0 {
		return nil, models.NewValidationError("EMPTY_PAYLOAD", "forecast record requires at least one point")
	}

	payload, err := json.Marshal(points)
	if err != nil {
		return nil, models.NewInternalError("SERIALIZATION_FAILED", "failed to serialize forecast payload").WithCause(err)
	}

	record := &ForecastRecord{
		ForecastType: mode,
		Points:       points,
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO forecasts (forecast_type, payload)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		string(mode),
		payload,
	)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return nil, models.NewExternalError("DB_INSERT_FAILED", "failed to store forecast record").WithCause(err)
	}
	return record, nil
}

// GetLatestByType returns the most recently stored bucket for a mode.
func (r *ForecastRepository) GetLatestByType(ctx context.Context, mode models.IntentMode) (*ForecastRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, forecast_type, payload, created_at
		 FROM forecasts
		 WHERE forecast_type = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		string(mode),
	)

	var record ForecastRecord
	var payload []byte
	err := row.Scan(&record.ID, &record.ForecastType, &payload, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrForecastNotFound.WithMetadata("mode", string(mode))
		}
		return nil, models.NewExternalError("DB_QUERY_FAILED", "failed to read forecast record").WithCause(err)
	}

	if err := json.Unmarshal(payload, &record.Points); err != nil {
		return nil, models.NewInternalError("DESERIALIZATION_FAILED", "failed to decode forecast payload").WithCause(err)
	}
	return &record, nil
}
