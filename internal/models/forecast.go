package models

import (
	"fmt"
	"time"
)

type IntentMode string

const (
	IntentDaily     IntentMode = "daily"
	IntentMonthly   IntentMode = "monthly"
	IntentUnrelated IntentMode = "unrelated"
)

func (mode IntentMode) IsValid() bool {
	switch mode {
	case IntentDaily, IntentMonthly, IntentUnrelated:
		return true
	default:
		return false
	}
}

// DefaultHorizon is the number of future periods a forecast run computes:
// one Sun-Sat week for daily mode, one quarter for monthly mode.
func (mode IntentMode) DefaultHorizon() int {
	switch mode {
	case IntentMonthly:
		return 3
	default:
		return 7
	}
}

// Intent is the classifier's verdict on a user query. It is immutable once
// produced; every downstream stage reads it, none writes it.
type Intent struct {
	Mode        IntentMode `json:"mode"`
	Horizon     int        `json:"horizon"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Confidence  float64    `json:"confidence"`
	Location    string     `json:"location,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
}

// RawRecord is one provider row: a timestamp plus named environmental fields.
// Missing values carry the provider sentinel -999.0 until feature cleaning.
type RawRecord struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

type RawSeries []RawRecord

// Validate enforces the series invariant: strictly increasing dates.
func (series RawSeries) Validate() error {
	for i := 1; i < len(series); i++ {
		if !series[i].Date.After(series[i-1].Date) {
			return NewValidationError("SERIES_NOT_ORDERED",
				fmt.Sprintf("series dates must strictly increase, got %s then %s",
					series[i-1].Date.Format("2006-01-02"), series[i].Date.Format("2006-01-02")))
		}
	}
	return nil
}

// FeatureWindow is the model-ready table: exactly N chronological rows over a
// fixed column order with the transformed rainfall target last.
type FeatureWindow struct {
	Mode    IntentMode  `json:"mode"`
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

func (window *FeatureWindow) Width() int {
	return len(window.Columns)
}

func (window *FeatureWindow) Length() int {
	return len(window.Rows)
}

func (window *FeatureWindow) LastRow() []float64 {
	if len(window.Rows) == 0 {
		return nil
	}
	return window.Rows[len(window.Rows)-1]
}

// TargetHistory returns the target column (last column) oldest first.
func (window *FeatureWindow) TargetHistory() []float64 {
	history := make([]float64, len(window.Rows))
	targetIdx := len(window.Columns) - 1
	for i, row := range window.Rows {
		history[i] = row[targetIdx]
	}
	return history
}

// Clone deep-copies the window so the forecaster can slide it without
// mutating the caller's copy.
func (window *FeatureWindow) Clone() *FeatureWindow {
	columns := make([]string, len(window.Columns))
	copy(columns, window.Columns)

	rows := make([][]float64, len(window.Rows))
	for i, row := range window.Rows {
		rows[i] = make([]float64, len(row))
		copy(rows[i], row)
	}

	return &FeatureWindow{
		Mode:    window.Mode,
		Columns: columns,
		Rows:    rows,
	}
}

// ForecastStep is one autoregressive output in millimeters, never negative.
type ForecastStep struct {
	HorizonIndex int     `json:"horizon_index"`
	ValueMM      float64 `json:"value_mm"`
}

type ForecastSequence struct {
	Mode IntentMode `json:"mode"`

	// Steps has exactly the requested horizon length.
	Steps []ForecastStep `json:"steps"`

	// DegradedSteps counts predictions that fell back to the defined zero
	// value after an inference failure.
	DegradedSteps int `json:"degraded_steps,omitempty"`
}

func (sequence *ForecastSequence) Values() []float64 {
	values := make([]float64, len(sequence.Steps))
	for i, step := range sequence.Steps {
		values[i] = step.ValueMM
	}
	return values
}

// ForecastPoint is one calendar slot of a published bucket.
type ForecastPoint struct {
	Date     string  `json:"date"`
	Rainfall float64 `json:"rainfall"`
}

// BucketedForecast is the chart contract: exactly 7 points daily, 3 monthly.
type BucketedForecast struct {
	Mode   IntentMode      `json:"mode"`
	Points []ForecastPoint `json:"points"`
}

func (bucket *BucketedForecast) Size() int {
	return len(bucket.Points)
}

type PublishOutcome struct {
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Sink     string `json:"sink"`
	Error    string `json:"error,omitempty"`
}
