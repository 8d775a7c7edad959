package forecast

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
)

// Predictor maps one scaled feature row to one scaled target value.
type Predictor interface {
	Predict(row []float64) (float64, error)
}

// LinearModel is the exported-weights form of the trained regressors. The
// coefficient order matches the scaler's column order.
type LinearModel struct {
	Intercept    float64
	Coefficients []float64
}

func (m *LinearModel) Predict(row []float64) (float64, error) {
	if len(row) != len(m.Coefficients) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Coefficients), len(row))
	}
	sum := m.Intercept
	for i, c := range m.Coefficients {
		sum += c * row[i]
	}
	return sum, nil
}

// MinMaxScaler mirrors the fitted scaling used at training time:
// scaled = (x - min) / range per column. Zero ranges are stored as 1 so
// constant columns pass through shifted, never divided by zero.
type MinMaxScaler struct {
	Columns   []string
	DataMin   []float64
	DataRange []float64
}

func (s *MinMaxScaler) Width() int {
	return len(s.Columns)
}

func (s *MinMaxScaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != s.Width() {
			return nil, fmt.Errorf("row %d has %d values, scaler expects %d", i, len(row), s.Width())
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.DataMin[j]) / s.DataRange[j]
		}
		out[i] = scaled
	}
	return out, nil
}

func (s *MinMaxScaler) InverseRow(row []float64) ([]float64, error) {
	if len(row) != s.Width() {
		return nil, fmt.Errorf("row has %d values, scaler expects %d", len(row), s.Width())
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.DataRange[j] + s.DataMin[j]
	}
	return out, nil
}

// ArtifactSet pairs one mode's predictor with its scaler.
type ArtifactSet struct {
	Model  Predictor
	Scaler *MinMaxScaler
}

// Artifacts holds the per-mode artifact sets, loaded once at startup and
// immutable for the process lifetime.
type Artifacts struct {
	sets map[models.IntentMode]*ArtifactSet
}

func NewArtifacts(daily, monthly *ArtifactSet) *Artifacts {
	sets := make(map[models.IntentMode]*ArtifactSet, 2)
	if daily != nil {
		sets[models.IntentDaily] = daily
	}
	if monthly != nil {
		sets[models.IntentMonthly] = monthly
	}
	return &Artifacts{sets: sets}
}

// LoadArtifacts reads both mode's model/scaler pairs from the configured
// paths.
func LoadArtifacts(cfg config.ForecastConfig) (*Artifacts, error) {
	daily, err := LoadArtifactSet(cfg.DailyModelPath, cfg.DailyScalerPath)
	if err != nil {
		return nil, err
	}
	monthly, err := LoadArtifactSet(cfg.MonthlyModelPath, cfg.MonthlyScalerPath)
	if err != nil {
		return nil, err
	}
	return NewArtifacts(daily, monthly), nil
}

func LoadArtifactSet(modelPath, scalerPath string) (*ArtifactSet, error) {
	model, err := LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	scaler, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}
	if linear, ok := model.(*LinearModel); ok && len(linear.Coefficients) != scaler.Width() {
		return nil, models.NewArtifactError("ARTIFACT_MISMATCH",
			fmt.Sprintf("model %s has %d coefficients but scaler %s has %d columns",
				modelPath, len(linear.Coefficients), scalerPath, scaler.Width()))
	}
	return &ArtifactSet{Model: model, Scaler: scaler}, nil
}

type modelFile struct {
	Type         string    `json:"type"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func LoadModel(path string) (Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewArtifactError("MODEL_NOT_FOUND",
				fmt.Sprintf("model file not found: %s", path)).WithCause(err)
		}
		return nil, models.NewArtifactError("MODEL_UNREADABLE",
			fmt.Sprintf("failed to read model file: %s", path)).WithCause(err)
	}

	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, models.NewArtifactError("MODEL_MALFORMED",
			fmt.Sprintf("failed to parse model file: %s", path)).WithCause(err)
	}

	switch mf.Type {
	case "linear":
		if len(mf.Coefficients) == 0 {
			return nil, models.NewArtifactError("MODEL_MALFORMED",
				fmt.Sprintf("model file %s has no coefficients", path))
		}
		return &LinearModel{Intercept: mf.Intercept, Coefficients: mf.Coefficients}, nil
	default:
		return nil, models.NewArtifactError("MODEL_UNSUPPORTED",
			fmt.Sprintf("unsupported model type %q in %s", mf.Type, path))
	}
}

type scalerFile struct {
	Columns   []string  `json:"columns"`
	DataMin   []float64 `json:"data_min"`
	DataRange []float64 `json:"data_range"`
}

func LoadScaler(path string) (*MinMaxScaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewArtifactError("SCALER_NOT_FOUND",
				fmt.Sprintf("scaler file not found: %s", path)).WithCause(err)
		}
		return nil, models.NewArtifactError("SCALER_UNREADABLE",
			fmt.Sprintf("failed to read scaler file: %s", path)).WithCause(err)
	}

	var sf scalerFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, models.NewArtifactError("SCALER_MALFORMED",
			fmt.Sprintf("failed to parse scaler file: %s", path)).WithCause(err)
	}

	if len(sf.Columns) == 0 || len(sf.DataMin) != len(sf.Columns) || len(sf.DataRange) != len(sf.Columns) {
		return nil, models.NewArtifactError("SCALER_MALFORMED",
			fmt.Sprintf("scaler file %s has inconsistent column/min/range lengths", path))
	}

	ranges := make([]float64, len(sf.DataRange))
	for i, r := range sf.DataRange {
		if r == 0 {
			ranges[i] = 1
		} else {
			ranges[i] = r
		}
	}

	return &MinMaxScaler{
		Columns:   sf.Columns,
		DataMin:   sf.DataMin,
		DataRange: ranges,
	}, nil
}

// ForMode returns the artifact set for a forecast mode. A missing set is an
// artifact error, fatal for the requesting session.
func (a *Artifacts) ForMode(mode models.IntentMode) (*ArtifactSet, error) {
	set, ok := a.sets[mode]
	if !ok || set == nil || set.Model == nil || set.Scaler == nil {
		return nil, models.NewArtifactError("ARTIFACTS_UNAVAILABLE",
			fmt.Sprintf("no trained artifacts loaded for mode %q", mode))
	}
	return set, nil
}
