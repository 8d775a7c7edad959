package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// powerParameters is the fixed field set requested from NASA POWER, in the
// order the training data used.
var powerParameters = []string{
	"T2M", "RH2M", "WS10M", "WD10M", "ALLSKY_SFC_SW_DWN",
	"EVPTRNS", "PS", "QV2M", "T2M_RANGE", "TS", "CLRSKY_SFC_SW_DWN", "PRECTOTCORR",
}

const (
	dailyEndpoint   = "/api/temporal/daily/point"
	monthlyEndpoint = "/api/temporal/monthly/point"

	dailyKeyLayout   = "20060102"
	monthlyKeyLayout = "200601"
)

var (
	errPowerRateLimited = errors.New("nasa power rate limited")
	errPowerServer      = errors.New("nasa power server error")
	errPowerUnexpected  = errors.New("nasa power unexpected status")
)

// PowerService fetches environmental history from the NASA POWER temporal
// API. Requests run behind a circuit breaker with bounded exponential-backoff
// retries; sentinel -999.0 values pass through untouched for the feature
// engineer to clean.
type PowerService struct {
	config  config.PowerConfig
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewPowerService(cfg config.PowerConfig, log *logger.Logger) *PowerService {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nasa-power",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	service := &PowerService{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuit: cb,
		log:     log,
	}

	log.Info("NASA POWER service initialized",
		"base_url", cfg.BaseURL,
		"community", cfg.Community,
		"max_retries", cfg.MaxRetries,
	)

	return service
}

// FetchForIntent resolves the lookback range for the intent's mode and
// fetches the matching history at the intent's coordinates.
func (s *PowerService) FetchForIntent(ctx context.Context, intent *models.Intent) (models.RawSeries, error) {
	if intent == nil {
		return nil, models.NewValidationError("MISSING_INTENT", "series fetch requires an intent")
	}

	if intent.Mode == models.IntentMonthly {
		endYear := time.Now().UTC().Year()
		startYear := endYear - s.config.MonthlyLookbackYears
		return s.FetchMonthly(ctx, intent.Latitude, intent.Longitude, startYear, endYear)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -s.config.DailyLookbackDays)
	return s.FetchDaily(ctx, intent.Latitude, intent.Longitude, start, end)
}

// FetchDaily returns one record per day over [start, end].
func (s *PowerService) FetchDaily(ctx context.Context, lat, lon float64, start, end time.Time) (models.RawSeries, error) {
	began := time.Now()

	query := s.baseQuery(lat, lon)
	query.Set("start", start.Format(dailyKeyLayout))
	query.Set("end", end.Format(dailyKeyLayout))

	resp, err := s.fetch(ctx, dailyEndpoint, query)
	s.log.LogService("nasa_power", "fetch_daily", time.Since(began), logger.Fields{
		"latitude":  lat,
		"longitude": lon,
		"start":     start.Format(dailyKeyLayout),
		"end":       end.Format(dailyKeyLayout),
	}, err)
	if err != nil {
		return nil, err
	}

	series := seriesFromParameters(resp.Properties.Parameter, dailyKeyLayout)
	if len(series) == 0 {
		return nil, models.NewInsufficientDataError("EMPTY_DAILY_SERIES",
			"NASA POWER returned no daily records for the requested range")
	}
	return series, nil
}

// FetchMonthly returns one record per calendar month over the year range.
// POWER's monthly payload carries YYYY13 annual aggregates alongside YYYYMM
// keys; only real months survive.
func (s *PowerService) FetchMonthly(ctx context.Context, lat, lon float64, startYear, endYear int) (models.RawSeries, error) {
	began := time.Now()

	query := s.baseQuery(lat, lon)
	query.Set("start", fmt.Sprintf("%d", startYear))
	query.Set("end", fmt.Sprintf("%d", endYear))

	resp, err := s.fetch(ctx, monthlyEndpoint, query)
	s.log.LogService("nasa_power", "fetch_monthly", time.Since(began), logger.Fields{
		"latitude":   lat,
		"longitude":  lon,
		"start_year": startYear,
		"end_year":   endYear,
	}, err)
	if err != nil {
		return nil, err
	}

	series := seriesFromParameters(resp.Properties.Parameter, monthlyKeyLayout)
	if len(series) == 0 {
		return nil, models.NewInsufficientDataError("EMPTY_MONTHLY_SERIES",
			"NASA POWER returned no monthly records for the requested range")
	}
	return series, nil
}

func (s *PowerService) baseQuery(lat, lon float64) url.Values {
	query := url.Values{}
	query.Set("parameters", strings.Join(powerParameters, ","))
	query.Set("community", s.config.Community)
	query.Set("longitude", fmt.Sprintf("%g", lon))
	query.Set("latitude", fmt.Sprintf("%g", lat))
	query.Set("format", "JSON")
	return query
}

type powerResponse struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

func (s *PowerService) fetch(ctx context.Context, endpoint string, query url.Values) (*powerResponse, error) {
	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s%s?%s", s.config.BaseURL, endpoint, query.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := s.doRequestWithResilience(ctx, buildRequest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewTimeoutError("NASA_POWER_TIMEOUT",
				"NASA POWER request timed out").WithCause(err)
		}
		return nil, models.WrapExternalError("NASA_POWER", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.WrapExternalError("NASA_POWER", err)
	}

	var payload powerResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, models.WrapExternalError("NASA_POWER",
			fmt.Errorf("failed to decode response: %w", err))
	}

	if len(payload.Properties.Parameter) == 0 {
		return nil, models.WrapExternalError("NASA_POWER",
			errors.New("response carried no parameter data"))
	}

	return &payload, nil
}

// doRequestWithResilience runs the request through the circuit breaker,
// retrying rate limits, 5xx responses and transport errors with exponential
// backoff. Other non-2xx statuses and an open circuit fail immediately.
func (s *PowerService) doRequestWithResilience(ctx context.Context, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := s.circuit.Execute(func() (interface{}, error) {
			resp, doErr := s.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, errPowerRateLimited
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: status %d", errPowerServer, resp.StatusCode)
			case resp.StatusCode != http.StatusOK:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: status %d", errPowerUnexpected, resp.StatusCode)
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker open: %w", err)
		}
		if errors.Is(err, errPowerUnexpected) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == s.config.MaxRetries {
			break
		}

		delay := s.config.InitialBackoff * time.Duration(1<<uint(attempt))
		if delay > s.config.MaxBackoff {
			delay = s.config.MaxBackoff
		}

		s.log.Debug("Retrying NASA POWER request",
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// seriesFromParameters pivots POWER's parameter→timestamp→value layout into
// date-ordered records. Keys that do not parse under the layout (annual
// aggregates, malformed stamps) are skipped.
func seriesFromParameters(parameters map[string]map[string]float64, layout string) models.RawSeries {
	stamps := make(map[string]struct{})
	for _, byStamp := range parameters {
		for stamp := range byStamp {
			stamps[stamp] = struct{}{}
		}
	}

	ordered := make([]string, 0, len(stamps))
	for stamp := range stamps {
		ordered = append(ordered, stamp)
	}
	sort.Strings(ordered)

	series := make(models.RawSeries, 0, len(ordered))
	for _, stamp := range ordered {
		date, err := time.Parse(layout, stamp)
		if err != nil {
			continue
		}
		values := make(map[string]float64, len(parameters))
		for param, byStamp := range parameters {
			if v, ok := byStamp[stamp]; ok {
				values[param] = v
			}
		}
		series = append(series, models.RawRecord{Date: date, Values: values})
	}
	return series
}

// HealthCheck verifies the POWER endpoint answers at all.
func (s *PowerService) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.config.BaseURL, nil)
	if err != nil {
		return models.WrapExternalError("NASA_POWER", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.WrapExternalError("NASA_POWER", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return models.WrapExternalError("NASA_POWER",
			fmt.Errorf("health check returned status %d", resp.StatusCode))
	}
	return nil
}
