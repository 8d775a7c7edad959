package services

import (
	"strings"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// GeocodingService turns a place name from the classifier into coordinates
// for the environmental-data fetch. Resolution is best effort: any failure
// falls back to the configured default coordinates, never to a session error.
type GeocodingService struct {
	apiKey     string
	defaultLat float64
	defaultLon float64
	resolve    func(address geocoder.Address) (geocoder.Location, error)
	logger     *logger.Logger
}

func NewGeocodingService(cfg config.GeocoderConfig, forecastCfg config.ForecastConfig, log *logger.Logger) *GeocodingService {
	if cfg.APIKey != "" {
		geocoder.ApiKey = cfg.APIKey
	}

	return &GeocodingService{
		apiKey:     cfg.APIKey,
		defaultLat: forecastCfg.DefaultLatitude,
		defaultLon: forecastCfg.DefaultLongitude,
		resolve:    geocoder.Geocoding,
		logger:     log,
	}
}

// Resolve maps a location string to latitude and longitude. An empty
// location, a missing API key or a lookup failure all yield the defaults.
func (service *GeocodingService) Resolve(location string) (float64, float64) {
	location = strings.TrimSpace(location)
	if location == "" {
		return service.defaultLat, service.defaultLon
	}

	if service.apiKey == "" {
		service.logger.Debug("Geocoder API key not configured, using default coordinates",
			"location", location,
		)
		return service.defaultLat, service.defaultLon
	}

	start := time.Now()
	result, err := service.resolve(geocoder.Address{City: location})
	if err != nil {
		service.logger.LogService("geocoder", "resolve", time.Since(start), map[string]interface{}{
			"location": location,
		}, err)
		return service.defaultLat, service.defaultLon
	}

	service.logger.LogService("geocoder", "resolve", time.Since(start), map[string]interface{}{
		"location":  location,
		"latitude":  result.Latitude,
		"longitude": result.Longitude,
	}, nil)

	return result.Latitude, result.Longitude
}
