package services

import (
	"errors"
	"testing"

	"github.com/kelvins/geocoder"
)

func newTestGeocodingService(t *testing.T, resolve func(geocoder.Address) (geocoder.Location, error)) *GeocodingService {
	t.Helper()
	return &GeocodingService{
		apiKey:     "test-key",
		defaultLat: 6.585,
		defaultLon: 3.983,
		resolve:    resolve,
		logger:     newTestLogger(t),
	}
}

func TestResolveSuccess(t *testing.T) {
	service := newTestGeocodingService(t, func(address geocoder.Address) (geocoder.Location, error) {
		if address.City != "Ibadan" {
			t.Errorf("Expected city Ibadan, got %q", address.City)
		}
		return geocoder.Location{Latitude: 7.3775, Longitude: 3.947}, nil
	})

	lat, lon := service.Resolve("Ibadan")
	if lat != 7.3775 || lon != 3.947 {
		t.Errorf("Expected resolved coordinates, got (%f, %f)", lat, lon)
	}
}

func TestResolveEmptyLocationUsesDefaults(t *testing.T) {
	calls := 0
	service := newTestGeocodingService(t, func(geocoder.Address) (geocoder.Location, error) {
		calls++
		return geocoder.Location{}, nil
	})

	lat, lon := service.Resolve("   ")
	if lat != 6.585 || lon != 3.983 {
		t.Errorf("Expected default coordinates, got (%f, %f)", lat, lon)
	}
	if calls != 0 {
		t.Errorf("Empty location must not hit the geocoder, got %d calls", calls)
	}
}

func TestResolveFailureUsesDefaults(t *testing.T) {
	service := newTestGeocodingService(t, func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("quota exceeded")
	})

	lat, lon := service.Resolve("Lagos")
	if lat != 6.585 || lon != 3.983 {
		t.Errorf("Expected default coordinates on failure, got (%f, %f)", lat, lon)
	}
}

func TestResolveWithoutAPIKeyUsesDefaults(t *testing.T) {
	calls := 0
	service := newTestGeocodingService(t, func(geocoder.Address) (geocoder.Location, error) {
		calls++
		return geocoder.Location{Latitude: 1, Longitude: 1}, nil
	})
	service.apiKey = ""

	lat, lon := service.Resolve("Lagos")
	if lat != 6.585 || lon != 3.983 {
		t.Errorf("Expected default coordinates without API key, got (%f, %f)", lat, lon)
	}
	if calls != 0 {
		t.Errorf("Missing API key must not hit the geocoder, got %d calls", calls)
	}
}
