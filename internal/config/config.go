// Package config reads the co2bed command settings from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all command settings, populated from environment variables.
type Config struct {
	DataDir      string
	CitiesFile   string
	AirportsFile string
	SeaportsFile string

	RoadDistanceFactor float64
	CacheSize          int
	Workers            int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	roadFactor, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("CO2BED_ROAD_FACTOR", "1.0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CO2BED_ROAD_FACTOR: %w", err)
	}
	cacheSize, err := strconv.Atoi(sharedcfg.EnvOrDefault("CO2BED_CACHE_SIZE", "4096"))
	if err != nil {
		return nil, fmt.Errorf("invalid CO2BED_CACHE_SIZE: %w", err)
	}
	workers, err := strconv.Atoi(sharedcfg.EnvOrDefault("CO2BED_WORKERS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid CO2BED_WORKERS: %w", err)
	}

	cfg := &Config{
		DataDir:            sharedcfg.EnvOrDefault("CO2BED_DATA_DIR", "./data"),
		CitiesFile:         sharedcfg.EnvOrDefault("CO2BED_CITIES_FILE", "geonames-all-cities-with-a-population-1000.csv"),
		AirportsFile:       sharedcfg.EnvOrDefault("CO2BED_AIRPORTS_FILE", "airports.csv"),
		SeaportsFile:       sharedcfg.EnvOrDefault("CO2BED_SEAPORTS_FILE", "seaports.csv"),
		RoadDistanceFactor: roadFactor,
		CacheSize:          cacheSize,
		Workers:            workers,
		LogLevel:           strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "text")),
	}

	if cfg.RoadDistanceFactor < 1 {
		return nil, fmt.Errorf("CO2BED_ROAD_FACTOR must be at least 1, got %v", cfg.RoadDistanceFactor)
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("CO2BED_CACHE_SIZE must not be negative, got %d", cfg.CacheSize)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("CO2BED_WORKERS must be positive, got %d", cfg.Workers)
	}
	if _, ok := levels[cfg.LogLevel]; !ok {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q (want json or text)", cfg.LogFormat)
	}
	return cfg, nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger builds the structured logger described by cfg, writing to w.
// Commands log to stderr so that stdout carries only their JSON output.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levels[cfg.LogLevel]}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
