package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
)

const (
	// WeekAnchorNext buckets onto the strictly next Sunday-to-Saturday week.
	WeekAnchorNext = "next"
	// WeekAnchorCurrent buckets onto the week containing today.
	WeekAnchorCurrent = "current"

	DailyBucketSize   = 7
	MonthlyBucketSize = 3

	dateLayout = "2006-01-02"
)

// Bucketer aligns a forecast sequence onto a calendar schedule: a Sun-Sat
// week for daily forecasts, three calendar months for monthly. Short
// sequences pad with zero rainfall, long ones truncate, so the published
// shape is always the same.
type Bucketer struct {
	weekAnchor string
}

func NewBucketer(weekAnchor string) *Bucketer {
	return &Bucketer{weekAnchor: weekAnchor}
}

func (b *Bucketer) Bucket(sequence *models.ForecastSequence, now time.Time) (*models.BucketedForecast, error) {
	if sequence == nil {
		return nil, models.NewValidationError("MISSING_SEQUENCE", "bucketing requires a forecast sequence")
	}

	switch sequence.Mode {
	case models.IntentDaily:
		return &models.BucketedForecast{
			Mode:   sequence.Mode,
			Points: b.bucketDaily(sequence.Values(), now),
		}, nil
	case models.IntentMonthly:
		return &models.BucketedForecast{
			Mode:   sequence.Mode,
			Points: bucketMonthly(sequence.Values(), now),
		}, nil
	default:
		return nil, models.NewValidationError("INVALID_MODE",
			fmt.Sprintf("cannot bucket sequence with mode %q", sequence.Mode))
	}
}

// weekStart resolves the Sunday the weekly bucket begins on.
func (b *Bucketer) weekStart(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekday := int(day.Weekday())

	if b.weekAnchor == WeekAnchorCurrent {
		return day.AddDate(0, 0, -weekday)
	}

	ahead := (7 - weekday) % 7
	if ahead == 0 {
		ahead = 7
	}
	return day.AddDate(0, 0, ahead)
}

func (b *Bucketer) bucketDaily(values []float64, now time.Time) []models.ForecastPoint {
	start := b.weekStart(now)
	points := make([]models.ForecastPoint, 0, DailyBucketSize)
	for i := 0; i < DailyBucketSize; i++ {
		value := 0.0
		if i < len(values) {
			value = values[i]
		}
		points = append(points, models.ForecastPoint{
			Date:     start.AddDate(0, 0, i).Format(dateLayout),
			Rainfall: round2(value),
		})
	}
	return points
}

func bucketMonthly(values []float64, now time.Time) []models.ForecastPoint {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	points := make([]models.ForecastPoint, 0, MonthlyBucketSize)
	for i := 0; i < MonthlyBucketSize; i++ {
		value := 0.0
		if i < len(values) {
			value = values[i]
		}
		points = append(points, models.ForecastPoint{
			Date:     first.AddDate(0, i, 0).Format(dateLayout),
			Rainfall: round2(value),
		})
	}
	return points
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
