// Package config loads server settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all server settings, populated from environment variables.
type Config struct {
	Port     string
	BaseURL  string // Public URL of the /wms endpoint advertised in capabilities.
	WMSTitle string

	DataPath        string
	LayersConfig    string // Layer catalog file; replaces the directory scan when set.
	GroupDimensions bool
	ScanWorkers     int
	ScanRecursive   bool

	PlotCommand     string
	PlotTimeout     time.Duration
	PlotConcurrency int64
	PlotCacheSize   int

	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		BaseURL:            os.Getenv("BASE_URL"),
		WMSTitle:           getEnv("WMS_TITLE", "Meteorological WMS"),
		DataPath:           getEnv("DATA_PATH", "./data"),
		LayersConfig:       os.Getenv("LAYERS_CONFIG"),
		PlotCommand:        getEnv("PLOT_COMMAND", "magics-plot"),
		CORSAllowedOrigins: parseList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%s/wms", cfg.Port)
	}

	var err error
	if cfg.GroupDimensions, err = parseBool("GROUP_DIMENSIONS", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.ScanRecursive, err = parseBool("SCAN_RECURSIVE", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.ScanWorkers, err = parsePositive("SCAN_WORKERS", 4); err != nil {
		errs = append(errs, err)
	}
	concurrency, err := parsePositive("PLOT_CONCURRENCY", 2)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.PlotConcurrency = int64(concurrency)
	if cfg.PlotCacheSize, err = parseNonNegative("PLOT_CACHE_SIZE", 128); err != nil {
		errs = append(errs, err)
	}
	if cfg.PlotTimeout, err = parseDuration("PLOT_TIMEOUT", 30*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		errs = append(errs, err)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat))
	}
	if strings.TrimSpace(cfg.PlotCommand) == "" {
		errs = append(errs, errors.New("PLOT_COMMAND is required"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

func parsePositive(key string, def int) (int, error) {
	n, err := parseNonNegative(key, def)
	if err == nil && n == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, err
}

func parseNonNegative(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}
