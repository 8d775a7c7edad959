package forecast

import (
	"fmt"
	"math"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/features"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// Forecaster runs the autoregressive multi-step loop over an engineered
// feature window. Steps are strictly sequential: step k+1 consumes the row
// synthesized from step k's prediction.
type Forecaster struct {
	artifacts *Artifacts
	log       *logger.Logger
}

func NewForecaster(artifacts *Artifacts, log *logger.Logger) *Forecaster {
	return &Forecaster{
		artifacts: artifacts,
		log:       log,
	}
}

// Forecast produces exactly horizon steps from the window. A single step's
// predict failure degrades that step to a zero scaled prediction and the loop
// continues, so downstream bucket sizes stay deterministic.
func (f *Forecaster) Forecast(window *models.FeatureWindow, horizon int) (*models.ForecastSequence, error) {
	if window == nil || window.Length() == 0 {
		return nil, models.NewValidationError("MISSING_WINDOW", "forecast requires a non-empty feature window")
	}
	if horizon < 1 {
		return nil, models.NewValidationError("INVALID_HORIZON",
			fmt.Sprintf("forecast horizon must be at least 1, got %d", horizon))
	}

	set, err := f.artifacts.ForMode(window.Mode)
	if err != nil {
		return nil, err
	}
	if window.Width() != set.Scaler.Width() {
		return nil, models.NewArtifactError("ARTIFACT_MISMATCH",
			fmt.Sprintf("window has %d columns but scaler expects %d", window.Width(), set.Scaler.Width()))
	}

	work := window.Clone()
	width := work.Width()

	// Column layout is fixed: covariates, lag1/lag3/lag7, rolling mean/std,
	// target last.
	targetIdx := width - 1
	stdIdx := width - 2
	meanIdx := width - 3
	lag7Idx := width - 4
	lag3Idx := width - 5
	lag1Idx := width - 6

	span := features.RollingWindow(work.Mode)

	steps := make([]models.ForecastStep, 0, horizon)
	degradedSteps := 0

	for k := 1; k <= horizon; k++ {
		scaled, err := set.Scaler.Transform(work.Rows)
		if err != nil {
			return nil, models.NewInternalError("SCALING_FAILED",
				fmt.Sprintf("failed to scale window at step %d", k)).WithCause(err)
		}
		lastScaled := scaled[len(scaled)-1]

		degraded := false
		predScaled, perr := set.Model.Predict(lastScaled)
		if perr != nil {
			f.log.Warn("Step inference failed, substituting zero prediction",
				"mode", string(work.Mode),
				"step", k,
				"error", perr.Error(),
			)
			predScaled = 0
			degraded = true
		}

		probe := make([]float64, len(lastScaled))
		copy(probe, lastScaled)
		probe[targetIdx] = predScaled

		rainfall := 0.0
		inverse, ierr := set.Scaler.InverseRow(probe)
		if ierr != nil {
			f.log.Warn("Inverse transform failed, substituting zero rainfall",
				"mode", string(work.Mode),
				"step", k,
				"error", ierr.Error(),
			)
			degraded = true
		} else {
			rainfall = math.Expm1(inverse[targetIdx])
			if rainfall < 0 {
				rainfall = 0
			}
		}

		if degraded {
			degradedSteps++
		}

		steps = append(steps, models.ForecastStep{
			HorizonIndex: k,
			ValueMM:      math.Round(rainfall*1000) / 1000,
		})

		// The synthesized row feeds the unrounded value back so successive
		// steps do not accumulate rounding drift.
		newLog := math.Log1p(rainfall)

		prev := work.Rows[len(work.Rows)-1]
		next := make([]float64, width)
		copy(next, prev)

		history := targetColumn(work.Rows, targetIdx)
		n := len(history)
		lag1 := history[n-1]
		lag3 := lag1
		if n >= 3 {
			lag3 = history[n-3]
		}
		lag7 := lag1
		if n >= 7 {
			lag7 = history[n-7]
		}
		next[lag1Idx] = lag1
		next[lag3Idx] = lag3
		next[lag7Idx] = lag7

		tail := history
		if n >= span-1 {
			tail = history[n-span+1:]
		}
		rolling := make([]float64, 0, len(tail)+1)
		rolling = append(rolling, tail...)
		rolling = append(rolling, newLog)
		next[meanIdx] = features.Mean(rolling)
		next[stdIdx] = features.SampleStd(rolling)
		next[targetIdx] = newLog

		work.Rows = append(work.Rows, next)
		work.Rows = work.Rows[1:]
	}

	f.log.Info("Forecast sequence complete",
		"mode", string(work.Mode),
		"steps", len(steps),
		"degraded_steps", degradedSteps,
	)

	return &models.ForecastSequence{
		Mode:          work.Mode,
		Steps:         steps,
		DegradedSteps: degradedSteps,
	}, nil
}

func targetColumn(rows [][]float64, targetIdx int) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = row[targetIdx]
	}
	return out
}
