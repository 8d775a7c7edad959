package forecast

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/features"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

type predictorFunc func(row []float64) (float64, error)

func (fn predictorFunc) Predict(row []float64) (float64, error) {
	return fn(row)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.LogConfig{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	log.SetOutput(io.Discard)
	return log
}

// identityScaler passes values through untouched: min 0, range 1 everywhere.
func identityScaler() *MinMaxScaler {
	cols := features.WindowColumns()
	min := make([]float64, len(cols))
	rng := make([]float64, len(cols))
	for i := range rng {
		rng[i] = 1
	}
	return &MinMaxScaler{Columns: cols, DataMin: min, DataRange: rng}
}

// makeSteadyWindow builds a window whose lag, rolling and target columns all
// agree on one log-value, so a target-echoing predictor reproduces it forever.
func makeSteadyWindow(mode models.IntentMode, logValue float64) *models.FeatureWindow {
	cols := features.WindowColumns()
	width := len(cols)
	length := features.WindowLength(mode)

	rows := make([][]float64, length)
	for i := range rows {
		row := make([]float64, width)
		for j := 0; j < width-6; j++ {
			row[j] = 0.5
		}
		row[width-6] = logValue // lag1
		row[width-5] = logValue // lag3
		row[width-4] = logValue // lag7
		row[width-3] = logValue // rolling mean
		row[width-2] = 0        // rolling std
		row[width-1] = logValue // target
		rows[i] = row
	}

	return &models.FeatureWindow{Mode: mode, Columns: cols, Rows: rows}
}

func artifactsWith(model Predictor, scaler *MinMaxScaler, mode models.IntentMode) *Artifacts {
	set := &ArtifactSet{Model: model, Scaler: scaler}
	if mode == models.IntentMonthly {
		return NewArtifacts(nil, set)
	}
	return NewArtifacts(set, nil)
}

func TestForecastExactHorizonAndNonNegative(t *testing.T) {
	model := predictorFunc(func(row []float64) (float64, error) { return 0.3, nil })
	artifacts := artifactsWith(model, identityScaler(), models.IntentDaily)
	forecaster := NewForecaster(artifacts, newTestLogger(t))

	window := makeSteadyWindow(models.IntentDaily, math.Log1p(2.0))

	for _, horizon := range []int{1, 5, 7, 12} {
		sequence, err := forecaster.Forecast(window, horizon)
		if err != nil {
			t.Fatalf("Forecast failed for horizon %d: %v", horizon, err)
		}

		if len(sequence.Steps) != horizon {
			t.Errorf("Expected %d steps for horizon %d, got %d", horizon, horizon, len(sequence.Steps))
		}

		for _, step := range sequence.Steps {
			if step.ValueMM < 0 {
				t.Errorf("Step %d has negative rainfall %f", step.HorizonIndex, step.ValueMM)
			}
		}
	}
}

func TestForecastDeterminism(t *testing.T) {
	model := predictorFunc(func(row []float64) (float64, error) { return row[len(row)-1] * 0.9, nil })
	artifacts := artifactsWith(model, identityScaler(), models.IntentDaily)
	forecaster := NewForecaster(artifacts, newTestLogger(t))

	window := makeSteadyWindow(models.IntentDaily, math.Log1p(4.0))

	first, err := forecaster.Forecast(window, 7)
	if err != nil {
		t.Fatalf("First forecast failed: %v", err)
	}
	second, err := forecaster.Forecast(window, 7)
	if err != nil {
		t.Fatalf("Second forecast failed: %v", err)
	}

	for i := range first.Steps {
		if first.Steps[i] != second.Steps[i] {
			t.Errorf("Step %d differs between runs: %+v vs %+v", i, first.Steps[i], second.Steps[i])
		}
	}
}

func TestForecastSteadyStateRecurrence(t *testing.T) {
	// A predictor echoing the scaled target keeps a steady window steady:
	// every synthesized row equals its predecessor, so every step emits the
	// same rainfall.
	model := predictorFunc(func(row []float64) (float64, error) { return row[len(row)-1], nil })
	artifacts := artifactsWith(model, identityScaler(), models.IntentDaily)
	forecaster := NewForecaster(artifacts, newTestLogger(t))

	logValue := math.Log1p(3.25)
	window := makeSteadyWindow(models.IntentDaily, logValue)

	sequence, err := forecaster.Forecast(window, 7)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	want := math.Round(3.25*1000) / 1000
	for _, step := range sequence.Steps {
		if math.Abs(step.ValueMM-want) > 1e-9 {
			t.Errorf("Step %d expected steady rainfall %f, got %f", step.HorizonIndex, want, step.ValueMM)
		}
	}

	if sequence.DegradedSteps != 0 {
		t.Errorf("Expected no degraded steps, got %d", sequence.DegradedSteps)
	}
}

func TestForecastInputWindowUntouched(t *testing.T) {
	model := predictorFunc(func(row []float64) (float64, error) { return 0.8, nil })
	artifacts := artifactsWith(model, identityScaler(), models.IntentDaily)
	forecaster := NewForecaster(artifacts, newTestLogger(t))

	window := makeSteadyWindow(models.IntentDaily, math.Log1p(1.5))
	before := window.Clone()

	if _, err := forecaster.Forecast(window, 7); err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	for i := range window.Rows {
		for j := range window.Rows[i] {
			if window.Rows[i][j] != before.Rows[i][j] {
				t.Fatalf("Input window mutated at row %d col %d", i, j)
			}
		}
	}
}

func TestForecastStepDegradation(t *testing.T) {
	calls := 0
	model := predictorFunc(func(row []float64) (float64, error) {
		calls++
		if calls == 2 {
			return 0, errors.New("inference backend unavailable")
		}
		return 0.4, nil
	})
	artifacts := artifactsWith(model, identityScaler(), models.IntentDaily)
	forecaster := NewForecaster(artifacts, newTestLogger(t))

	window := makeSteadyWindow(models.IntentDaily, math.Log1p(2.0))

	sequence, err := forecaster.Forecast(window, 5)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	if len(sequence.Steps) != 5 {
		t.Fatalf("Expected 5 steps despite a failing step, got %d", len(sequence.Steps))
	}

	if sequence.DegradedSteps != 1 {
		t.Errorf("Expected 1 degraded step, got %d", sequence.DegradedSteps)
	}

	// The degraded step carries the zero-prediction rainfall, expm1(0) == 0.
	if sequence.Steps[1].ValueMM != 0 {
		t.Errorf("Expected degraded step rainfall 0, got %f", sequence.Steps[1].ValueMM)
	}

	if sequence.Steps[0].ValueMM <= 0 {
		t.Errorf("Expected healthy step rainfall > 0, got %f", sequence.Steps[0].ValueMM)
	}
}

func TestForecastMonthlyWindow(t *testing.T) {
	model := predictorFunc(func(row []float64) (float64, error) { return row[len(row)-1], nil })
	artifacts := artifactsWith(model, identityScaler(), models.IntentMonthly)
	forecaster := NewForecaster(artifacts, newTestLogger(t))

	window := makeSteadyWindow(models.IntentMonthly, math.Log1p(12.0))

	sequence, err := forecaster.Forecast(window, 3)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	if len(sequence.Steps) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(sequence.Steps))
	}

	want := math.Round(12.0*1000) / 1000
	for _, step := range sequence.Steps {
		if math.Abs(step.ValueMM-want) > 1e-9 {
			t.Errorf("Expected steady monthly rainfall %f, got %f", want, step.ValueMM)
		}
	}
}

func TestForecastInvalidHorizon(t *testing.T) {
	artifacts := artifactsWith(predictorFunc(func(row []float64) (float64, error) { return 0, nil }),
		identityScaler(), models.IntentDaily)
	forecaster := NewForecaster(artifacts, newTestLogger(t))

	window := makeSteadyWindow(models.IntentDaily, 1.0)

	if _, err := forecaster.Forecast(window, 0); !models.IsErrorType(err, models.ErrorTypeValidation) {
		t.Errorf("Expected validation error for horizon 0, got %v", err)
	}

	if _, err := forecaster.Forecast(nil, 7); !models.IsErrorType(err, models.ErrorTypeValidation) {
		t.Errorf("Expected validation error for nil window, got %v", err)
	}
}

func TestForecastMissingArtifacts(t *testing.T) {
	artifacts := artifactsWith(predictorFunc(func(row []float64) (float64, error) { return 0, nil }),
		identityScaler(), models.IntentDaily)
	forecaster := NewForecaster(artifacts, newTestLogger(t))

	window := makeSteadyWindow(models.IntentMonthly, 1.0)

	_, err := forecaster.Forecast(window, 3)
	if !models.IsErrorType(err, models.ErrorTypeArtifact) {
		t.Errorf("Expected artifact error for missing monthly artifacts, got %v", err)
	}
}

func TestForecastWidthMismatch(t *testing.T) {
	narrow := &MinMaxScaler{
		Columns:   []string{"a", "b"},
		DataMin:   []float64{0, 0},
		DataRange: []float64{1, 1},
	}
	artifacts := artifactsWith(predictorFunc(func(row []float64) (float64, error) { return 0, nil }),
		narrow, models.IntentDaily)
	forecaster := NewForecaster(artifacts, newTestLogger(t))

	window := makeSteadyWindow(models.IntentDaily, 1.0)

	_, err := forecaster.Forecast(window, 7)
	if !models.IsErrorType(err, models.ErrorTypeArtifact) {
		t.Errorf("Expected artifact error for width mismatch, got %v", err)
	}
}

func TestLinearModelPredict(t *testing.T) {
	model := &LinearModel{Intercept: 0.5, Coefficients: []float64{1, 2, 3}}

	got, err := model.Predict([]float64{1, 1, 1})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if got != 6.5 {
		t.Errorf("Expected 6.5, got %f", got)
	}

	if _, err := model.Predict([]float64{1, 1}); err == nil {
		t.Error("Expected error for feature count mismatch")
	}
}

func TestScalerRoundTrip(t *testing.T) {
	scaler := &MinMaxScaler{
		Columns:   []string{"a", "b", "c"},
		DataMin:   []float64{0, 10, -5},
		DataRange: []float64{2, 5, 10},
	}

	rows := [][]float64{{1, 12.5, 0}}
	scaled, err := scaler.Transform(rows)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	want := []float64{0.5, 0.5, 0.5}
	for j, v := range scaled[0] {
		if math.Abs(v-want[j]) > 1e-12 {
			t.Errorf("Column %d expected %f, got %f", j, want[j], v)
		}
	}

	back, err := scaler.InverseRow(scaled[0])
	if err != nil {
		t.Fatalf("InverseRow failed: %v", err)
	}
	for j, v := range back {
		if math.Abs(v-rows[0][j]) > 1e-12 {
			t.Errorf("Column %d expected round trip %f, got %f", j, rows[0][j], v)
		}
	}

	if _, err := scaler.Transform([][]float64{{1, 2}}); err == nil {
		t.Error("Expected error for row width mismatch")
	}
}
