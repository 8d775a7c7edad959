package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
)

func weeklyPoints() []models.ForecastPoint {
	points := make([]models.ForecastPoint, 7)
	start := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	for i := range points {
		points[i] = models.ForecastPoint{
			Date:     start.AddDate(0, 0, i).Format("2006-01-02"),
			Rainfall: float64(i) * 0.5,
		}
	}
	return points
}

func TestForecastInsertPreservesPointOrder(t *testing.T) {
	created := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	db := &fakeDBTX{
		row: &fakeRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 3
			*dest[1].(*time.Time) = created
			return nil
		}},
	}
	repo := NewForecastRepository(db)

	points := weeklyPoints()
	record, err := repo.Insert(context.Background(), models.IntentDaily, points)
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if record.ID != 3 || record.ForecastType != models.IntentDaily {
		t.Errorf("unexpected record: %+v", record)
	}

	if len(db.querySQL) != 1 || !strings.Contains(db.querySQL[0], "INSERT INTO forecasts") {
		t.Fatalf("expected one insert into forecasts, got %v", db.querySQL)
	}

	payload, ok := db.queryArgs[0][1].([]byte)
	if !ok {
		t.Fatalf("expected JSON payload bytes, got %T", db.queryArgs[0][1])
	}
	var stored []models.ForecastPoint
	if err := json.Unmarshal(payload, &stored); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(stored) != 7 {
		t.Fatalf("expected 7 stored points, got %d", len(stored))
	}
	for i, point := range stored {
		if point.Date != points[i].Date || point.Rainfall != points[i].Rainfall {
			t.Errorf("point %d reordered or altered: got %+v, want %+v", i, point, points[i])
		}
	}
}

func TestForecastInsertRejectsInvalidMode(t *testing.T) {
	repo := NewForecastRepository(&fakeDBTX{})

	_, err := repo.Insert(context.Background(), models.IntentUnrelated, weeklyPoints())
	if err == nil {
		t.Fatal("expected error for unrelated mode")
	}
	if !models.IsErrorType(err, models.ErrorTypeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestForecastInsertRejectsEmptyPayload(t *testing.T) {
	repo := NewForecastRepository(&fakeDBTX{})

	_, err := repo.Insert(context.Background(), models.IntentDaily, nil)
	if err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestForecastGetLatestByType(t *testing.T) {
	points := weeklyPoints()
	payload, _ := json.Marshal(points)
	created := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)

	db := &fakeDBTX{
		row: &fakeRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 5
			*dest[1].(*models.IntentMode) = models.IntentDaily
			*dest[2].(*[]byte) = payload
			*dest[3].(*time.Time) = created
			return nil
		}},
	}
	repo := NewForecastRepository(db)

	record, err := repo.GetLatestByType(context.Background(), models.IntentDaily)
	if err != nil {
		t.Fatalf("GetLatestByType returned error: %v", err)
	}
	if len(record.Points) != 7 || record.Points[0].Date != points[0].Date {
		t.Errorf("unexpected decoded points: %+v", record.Points)
	}

	sql := db.querySQL[0]
	if !strings.Contains(sql, "ORDER BY created_at DESC") {
		t.Errorf("latest query must order by recency:\n%s", sql)
	}
}

func TestForecastGetLatestByTypeNotFound(t *testing.T) {
	db := &fakeDBTX{
		row: &fakeRow{scanFn: func(dest ...any) error {
			return pgx.ErrNoRows
		}},
	}
	repo := NewForecastRepository(db)

	_, err := repo.GetLatestByType(context.Background(), models.IntentMonthly)
	if err == nil {
		t.Fatal("expected not-found error")
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != "FORECAST_NOT_FOUND" {
		t.Errorf("expected FORECAST_NOT_FOUND, got %v", err)
	}
}
