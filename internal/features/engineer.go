package features

import (
	"fmt"
	"math"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// BaseFeatures lists the environmental covariates in model column order.
// The models were trained against this exact ordering.
var BaseFeatures = []string{
	"RH2M", "WS10M", "T2M", "WD10M",
	"ALLSKY_SFC_SW_DWN", "EVPTRNS", "PS",
	"QV2M", "T2M_RANGE", "TS", "CLRSKY_SFC_SW_DWN",
}

// TargetColumn is the corrected precipitation field the models predict.
const TargetColumn = "PRECTOTCORR"

// LogTargetColumn is the log-transformed target, always the last window column.
const LogTargetColumn = "log_PRECTOTCORR"

const (
	DailyWindowLength   = 15
	MonthlyWindowLength = 7

	DailyRollingWindow   = 7
	MonthlyRollingWindow = 3
)

const sentinelValue = -999.0

var lagOffsets = []int{1, 3, 7}

// WindowColumns returns the full engineered column set in model order:
// log-transformed covariates, target lags, rolling stats, then the
// log-transformed target last.
func WindowColumns() []string {
	cols := make([]string, 0, len(BaseFeatures)+len(lagOffsets)+3)
	for _, f := range BaseFeatures {
		cols = append(cols, "log_"+f)
	}
	for _, lag := range lagOffsets {
		cols = append(cols, fmt.Sprintf("%s_lag%d", LogTargetColumn, lag))
	}
	cols = append(cols, "rain_rolling_mean", "rain_rolling_std", LogTargetColumn)
	return cols
}

// WindowLength returns the required engineered window length for a mode.
func WindowLength(mode models.IntentMode) int {
	if mode == models.IntentMonthly {
		return MonthlyWindowLength
	}
	return DailyWindowLength
}

// RollingWindow returns the rolling-statistic span for a mode.
func RollingWindow(mode models.IntentMode) int {
	if mode == models.IntentMonthly {
		return MonthlyRollingWindow
	}
	return DailyRollingWindow
}

// Engineer turns raw environmental history into fixed-length feature windows.
type Engineer struct {
	log *logger.Logger
}

func NewEngineer(log *logger.Logger) *Engineer {
	return &Engineer{log: log}
}

// BuildWindow cleans the series and derives the engineered window for the
// given mode. Cleaning order matters: missing columns become zero, sentinel
// values become gaps, gaps forward- then backward-fill, daily values clip at
// zero, then everything is log1p transformed before lags and rolling stats.
// Rows that still carry a gap after derivation are dropped; too few surviving
// rows is an insufficient-data error, never a short window.
func (e *Engineer) BuildWindow(series models.RawSeries, mode models.IntentMode) (*models.FeatureWindow, error) {
	if !mode.IsValid() || mode == models.IntentUnrelated {
		return nil, models.NewValidationError("INVALID_MODE",
			fmt.Sprintf("cannot engineer features for mode %q", mode))
	}

	if err := series.Validate(); err != nil {
		return nil, err
	}

	n := len(series)
	columns := append(append([]string{}, BaseFeatures...), TargetColumn)
	raw := make(map[string][]float64, len(columns))

	for _, col := range columns {
		raw[col] = extractColumn(series, col)
	}

	for _, col := range columns {
		fillGaps(raw[col])
		if mode == models.IntentDaily {
			clipNonNegative(raw[col])
		}
	}

	logged := make(map[string][]float64, len(columns))
	for _, col := range columns {
		logged[col] = log1pColumn(raw[col])
	}

	logTarget := logged[TargetColumn]

	lags := make(map[int][]float64, len(lagOffsets))
	for _, lag := range lagOffsets {
		lags[lag] = shiftColumn(logTarget, lag)
	}

	span := RollingWindow(mode)
	rollMean, rollStd := rollingStats(logTarget, span)

	windowCols := WindowColumns()
	rows := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		row := make([]float64, 0, len(windowCols))
		for _, f := range BaseFeatures {
			row = append(row, logged[f][i])
		}
		for _, lag := range lagOffsets {
			row = append(row, lags[lag][i])
		}
		row = append(row, rollMean[i], rollStd[i], logTarget[i])

		if rowHasGap(row) {
			continue
		}
		rows = append(rows, row)
	}

	need := WindowLength(mode)
	if len(rows) < need {
		e.log.Warn("Insufficient rows after feature engineering",
			"mode", string(mode),
			"raw_rows", n,
			"usable_rows", len(rows),
			"required", need,
		)
		if mode == models.IntentMonthly {
			return nil, models.NewInsufficientDataError("INSUFFICIENT_MONTHLY_DATA",
				"Not enough data to compute lag7 for monthly prediction.").
				WithMetadata("usable_rows", len(rows)).
				WithMetadata("required", need)
		}
		return nil, models.NewInsufficientDataError("INSUFFICIENT_DAILY_DATA",
			"Not enough data to make daily prediction.").
			WithMetadata("usable_rows", len(rows)).
			WithMetadata("required", need)
	}

	rows = rows[len(rows)-need:]

	e.log.Debug("Feature window built",
		"mode", string(mode),
		"raw_rows", n,
		"window_rows", len(rows),
		"window_cols", len(windowCols),
	)

	return &models.FeatureWindow{
		Mode:    mode,
		Columns: windowCols,
		Rows:    rows,
	}, nil
}

// extractColumn pulls one field across the series. A field absent from every
// record is treated as a zero column; a field absent from some records leaves
// gaps for fillGaps to close.
func extractColumn(series models.RawSeries, col string) []float64 {
	out := make([]float64, len(series))
	seen := false
	for i, rec := range series {
		if v, ok := rec.Values[col]; ok {
			out[i] = v
			seen = true
		} else {
			out[i] = math.NaN()
		}
	}
	if !seen {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	for i, v := range out {
		if v == sentinelValue {
			out[i] = math.NaN()
		}
	}
	return out
}

// fillGaps forward-fills then backward-fills in place. A column that is all
// gaps stays all gaps.
func fillGaps(vals []float64) {
	last := math.NaN()
	for i, v := range vals {
		if math.IsNaN(v) {
			vals[i] = last
		} else {
			last = v
		}
	}
	next := math.NaN()
	for i := len(vals) - 1; i >= 0; i-- {
		if math.IsNaN(vals[i]) {
			vals[i] = next
		} else {
			next = vals[i]
		}
	}
}

func clipNonNegative(vals []float64) {
	for i, v := range vals {
		if !math.IsNaN(v) && v < 0 {
			vals[i] = 0
		}
	}
}

func log1pColumn(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Log1p(v)
	}
	return out
}

// shiftColumn mirrors a positive series shift: position i takes the value
// from i-lag, with gaps where no prior value exists.
func shiftColumn(vals []float64, lag int) []float64 {
	out := make([]float64, len(vals))
	for i := range vals {
		if i < lag {
			out[i] = math.NaN()
		} else {
			out[i] = vals[i-lag]
		}
	}
	return out
}

// rollingStats computes a trailing mean and sample standard deviation over
// the given span, with gaps until a full span is available.
func rollingStats(vals []float64, span int) (means, stds []float64) {
	means = make([]float64, len(vals))
	stds = make([]float64, len(vals))
	for i := range vals {
		if i < span-1 {
			means[i] = math.NaN()
			stds[i] = math.NaN()
			continue
		}
		window := vals[i-span+1 : i+1]
		means[i] = Mean(window)
		stds[i] = SampleStd(window)
	}
	return means, stds
}

// Mean averages the slice. Gaps propagate.
func Mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// SampleStd is the n-1 standard deviation, the convention the training
// pipeline used for rolling stats. A single-element window has no spread.
func SampleStd(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := Mean(vals)
	sum := 0.0
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

func rowHasGap(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
