package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("PORT", "9090")
	os.Setenv("GEMINI_API_KEY", "test-key")

	defer func() {
		os.Unsetenv("ENVIRONMENT")
		os.Unsetenv("PORT")
		os.Unsetenv("GEMINI_API_KEY")
	}()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Environment != "test" {
		t.Errorf("Expected environment 'test', got %s", cfg.Environment)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.HTTP.Port)
	}

	if cfg.Gemini.APIKey != "test-key" {
		t.Errorf("Expected Gemini API key 'test-key', got %s", cfg.Gemini.APIKey)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	os.Unsetenv("ENVIRONMENT")
	os.Unsetenv("PORT")
	os.Setenv("GEMINI_API_KEY", "test-key")

	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", cfg.Environment)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.HTTP.Port)
	}

	if cfg.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read timeout 30s, got %v", cfg.HTTP.ReadTimeout)
	}

	if cfg.Power.Community != "RE" {
		t.Errorf("Expected default POWER community 'RE', got %s", cfg.Power.Community)
	}

	if cfg.Forecast.WeekAnchor != "next" {
		t.Errorf("Expected default week anchor 'next', got %s", cfg.Forecast.WeekAnchor)
	}

	if cfg.Forecast.DefaultLatitude != 6.585 {
		t.Errorf("Expected default latitude 6.585, got %f", cfg.Forecast.DefaultLatitude)
	}

	if cfg.Publisher.MaxAttempts != 3 {
		t.Errorf("Expected default publish attempts 3, got %d", cfg.Publisher.MaxAttempts)
	}

	if cfg.Scheduler.WeeklyCron != "0 11 * * 0" {
		t.Errorf("Expected default weekly cron '0 11 * * 0', got %s", cfg.Scheduler.WeeklyCron)
	}
}

func TestValidateConfigMissingAPIKey(t *testing.T) {
	os.Unsetenv("GEMINI_API_KEY")

	_, err := config.Load()
	if err == nil {
		t.Error("Expected error for missing Gemini API key")
	}
}

func TestValidateConfigBadWeekAnchor(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-key")
	os.Setenv("FORECAST_WEEK_ANCHOR", "someday")

	defer func() {
		os.Unsetenv("GEMINI_API_KEY")
		os.Unsetenv("FORECAST_WEEK_ANCHOR")
	}()

	_, err := config.Load()
	if err == nil {
		t.Error("Expected error for invalid week anchor")
	}
}

func TestRedisConfig(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-key")
	os.Setenv("REDIS_STREAMS_URL", "redis://localhost:6378")
	os.Setenv("REDIS_MEMORY_URL", "redis://localhost:6380")

	defer func() {
		os.Unsetenv("GEMINI_API_KEY")
		os.Unsetenv("REDIS_STREAMS_URL")
		os.Unsetenv("REDIS_MEMORY_URL")
	}()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Redis.StreamsURL != "redis://localhost:6378" {
		t.Errorf("Expected Redis streams URL 'redis://localhost:6378', got %s", cfg.Redis.StreamsURL)
	}

	if cfg.Redis.MemoryURL != "redis://localhost:6380" {
		t.Errorf("Expected Redis memory URL 'redis://localhost:6380', got %s", cfg.Redis.MemoryURL)
	}
}

func TestDurationOverrides(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-key")
	os.Setenv("PUBLISH_TIMEOUT", "2s")
	os.Setenv("POWER_INITIAL_BACKOFF", "250ms")

	defer func() {
		os.Unsetenv("GEMINI_API_KEY")
		os.Unsetenv("PUBLISH_TIMEOUT")
		os.Unsetenv("POWER_INITIAL_BACKOFF")
	}()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Publisher.Timeout != 2*time.Second {
		t.Errorf("Expected publish timeout 2s, got %v", cfg.Publisher.Timeout)
	}

	if cfg.Power.InitialBackoff != 250*time.Millisecond {
		t.Errorf("Expected POWER initial backoff 250ms, got %v", cfg.Power.InitialBackoff)
	}
}
