package forecast

import (
	"testing"
	"time"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
)

func sequenceOf(mode models.IntentMode, values ...float64) *models.ForecastSequence {
	steps := make([]models.ForecastStep, len(values))
	for i, v := range values {
		steps[i] = models.ForecastStep{HorizonIndex: i + 1, ValueMM: v}
	}
	return &models.ForecastSequence{Mode: mode, Steps: steps}
}

func TestBucketDailyPadsToSevenWithZeroTail(t *testing.T) {
	bucketer := NewBucketer(WeekAnchorNext)
	// Wednesday; the next Sunday is March 16th.
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

	bucket, err := bucketer.Bucket(sequenceOf(models.IntentDaily, 1.234, 2.5, 0.75), now)
	if err != nil {
		t.Fatalf("Bucket failed: %v", err)
	}

	if bucket.Size() != DailyBucketSize {
		t.Fatalf("Expected 7 points, got %d", bucket.Size())
	}

	wantDates := []string{
		"2025-03-16", "2025-03-17", "2025-03-18", "2025-03-19",
		"2025-03-20", "2025-03-21", "2025-03-22",
	}
	wantRain := []float64{1.23, 2.5, 0.75, 0, 0, 0, 0}

	for i, point := range bucket.Points {
		if point.Date != wantDates[i] {
			t.Errorf("Point %d expected date %s, got %s", i, wantDates[i], point.Date)
		}
		if point.Rainfall != wantRain[i] {
			t.Errorf("Point %d expected rainfall %f, got %f", i, wantRain[i], point.Rainfall)
		}
	}
}

func TestBucketDailySizeInvariant(t *testing.T) {
	bucketer := NewBucketer(WeekAnchorNext)
	now := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)

	for length := 0; length <= 10; length++ {
		values := make([]float64, length)
		for i := range values {
			values[i] = float64(i) + 0.5
		}

		bucket, err := bucketer.Bucket(sequenceOf(models.IntentDaily, values...), now)
		if err != nil {
			t.Fatalf("Bucket failed for length %d: %v", length, err)
		}
		if bucket.Size() != DailyBucketSize {
			t.Errorf("Length %d: expected 7 points, got %d", length, bucket.Size())
		}
	}
}

func TestBucketWeekAnchorNextOnSunday(t *testing.T) {
	bucketer := NewBucketer(WeekAnchorNext)
	// Already a Sunday: the bucket starts a full week later.
	now := time.Date(2025, 3, 16, 8, 0, 0, 0, time.UTC)

	bucket, err := bucketer.Bucket(sequenceOf(models.IntentDaily, 5), now)
	if err != nil {
		t.Fatalf("Bucket failed: %v", err)
	}

	if bucket.Points[0].Date != "2025-03-23" {
		t.Errorf("Expected start 2025-03-23, got %s", bucket.Points[0].Date)
	}
}

func TestBucketWeekAnchorCurrent(t *testing.T) {
	bucketer := NewBucketer(WeekAnchorCurrent)

	now := time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)
	bucket, err := bucketer.Bucket(sequenceOf(models.IntentDaily, 5), now)
	if err != nil {
		t.Fatalf("Bucket failed: %v", err)
	}
	if bucket.Points[0].Date != "2025-03-09" {
		t.Errorf("Expected start 2025-03-09, got %s", bucket.Points[0].Date)
	}

	sunday := time.Date(2025, 3, 16, 8, 0, 0, 0, time.UTC)
	bucket, err = bucketer.Bucket(sequenceOf(models.IntentDaily, 5), sunday)
	if err != nil {
		t.Fatalf("Bucket failed: %v", err)
	}
	if bucket.Points[0].Date != "2025-03-16" {
		t.Errorf("Expected start 2025-03-16 on a Sunday, got %s", bucket.Points[0].Date)
	}
}

func TestBucketMonthlyYearRollover(t *testing.T) {
	bucketer := NewBucketer(WeekAnchorNext)
	now := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)

	bucket, err := bucketer.Bucket(sequenceOf(models.IntentMonthly, 10.123, 2.345, 0.5), now)
	if err != nil {
		t.Fatalf("Bucket failed: %v", err)
	}

	if bucket.Size() != MonthlyBucketSize {
		t.Fatalf("Expected 3 points, got %d", bucket.Size())
	}

	wantDates := []string{"2025-11-01", "2025-12-01", "2026-01-01"}
	for i, point := range bucket.Points {
		if point.Date != wantDates[i] {
			t.Errorf("Point %d expected date %s, got %s", i, wantDates[i], point.Date)
		}
	}

	if bucket.Points[0].Rainfall != 10.12 {
		t.Errorf("Expected rounded rainfall 10.12, got %f", bucket.Points[0].Rainfall)
	}
}

func TestBucketMonthlyPads(t *testing.T) {
	bucketer := NewBucketer(WeekAnchorNext)
	now := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)

	bucket, err := bucketer.Bucket(sequenceOf(models.IntentMonthly, 4.2), now)
	if err != nil {
		t.Fatalf("Bucket failed: %v", err)
	}

	if bucket.Size() != MonthlyBucketSize {
		t.Fatalf("Expected 3 points, got %d", bucket.Size())
	}

	if bucket.Points[1].Rainfall != 0 || bucket.Points[2].Rainfall != 0 {
		t.Errorf("Expected zero padding, got %f and %f",
			bucket.Points[1].Rainfall, bucket.Points[2].Rainfall)
	}

	if bucket.Points[1].Date != "2025-07-01" || bucket.Points[2].Date != "2025-08-01" {
		t.Errorf("Expected padded months July and August, got %s and %s",
			bucket.Points[1].Date, bucket.Points[2].Date)
	}
}

func TestBucketRejectsInvalidInput(t *testing.T) {
	bucketer := NewBucketer(WeekAnchorNext)
	now := time.Now()

	if _, err := bucketer.Bucket(nil, now); !models.IsErrorType(err, models.ErrorTypeValidation) {
		t.Errorf("Expected validation error for nil sequence, got %v", err)
	}

	unrelated := &models.ForecastSequence{Mode: models.IntentUnrelated}
	if _, err := bucketer.Bucket(unrelated, now); !models.IsErrorType(err, models.ErrorTypeValidation) {
		t.Errorf("Expected validation error for unrelated mode, got %v", err)
	}
}
