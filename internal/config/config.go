// Package config reads server settings from the environment, loading a
// .env file first when one exists.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr              string
	LogMode           string
	FeedPath          string // empty keeps the versions document in memory
	UpstreamURL       string
	MirrorConcurrency int
	StartTime         time.Time
	MaxUploadBytes    int64
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:        getenv("GEMINDEX_ADDR", "127.0.0.1:4567"),
		LogMode:     getenv("GEMINDEX_LOG_MODE", "development"),
		FeedPath:    getenv("GEMINDEX_FEED_PATH", ""),
		UpstreamURL: getenv("GEMINDEX_UPSTREAM_URL", "https://rubygems.org"),
		StartTime:   time.Unix(0, 0).UTC(),
	}

	var err error
	if cfg.MirrorConcurrency, err = strconv.Atoi(getenv("GEMINDEX_MIRROR_CONCURRENCY", "4")); err != nil || cfg.MirrorConcurrency < 1 {
		return Config{}, fmt.Errorf("GEMINDEX_MIRROR_CONCURRENCY must be a positive integer")
	}
	if cfg.MaxUploadBytes, err = strconv.ParseInt(getenv("GEMINDEX_MAX_UPLOAD_BYTES", "67108864"), 10, 64); err != nil || cfg.MaxUploadBytes < 1 {
		return Config{}, fmt.Errorf("GEMINDEX_MAX_UPLOAD_BYTES must be a positive integer")
	}
	if v := os.Getenv("GEMINDEX_START_TIME"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Config{}, fmt.Errorf("GEMINDEX_START_TIME: %w", err)
		}
		cfg.StartTime = t.UTC()
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
