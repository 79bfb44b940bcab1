package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"GEMINDEX_ADDR", "GEMINDEX_LOG_MODE", "GEMINDEX_FEED_PATH", "GEMINDEX_UPSTREAM_URL",
		"GEMINDEX_MIRROR_CONCURRENCY", "GEMINDEX_START_TIME", "GEMINDEX_MAX_UPLOAD_BYTES",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != "127.0.0.1:4567" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.UpstreamURL != "https://rubygems.org" {
		t.Errorf("UpstreamURL = %q", cfg.UpstreamURL)
	}
	if cfg.MirrorConcurrency != 4 {
		t.Errorf("MirrorConcurrency = %d", cfg.MirrorConcurrency)
	}
	if cfg.MaxUploadBytes != 64<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if !cfg.StartTime.Equal(time.Unix(0, 0)) {
		t.Errorf("StartTime = %v", cfg.StartTime)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINDEX_ADDR", ":9292")
	t.Setenv("GEMINDEX_MIRROR_CONCURRENCY", "8")
	t.Setenv("GEMINDEX_START_TIME", "1990-01-01T00:00:00Z")
	t.Setenv("GEMINDEX_MAX_UPLOAD_BYTES", "1024")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":9292" || cfg.MirrorConcurrency != 8 || cfg.MaxUploadBytes != 1024 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !cfg.StartTime.Equal(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartTime = %v", cfg.StartTime)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"GEMINDEX_MIRROR_CONCURRENCY", "0"},
		{"GEMINDEX_MIRROR_CONCURRENCY", "many"},
		{"GEMINDEX_MAX_UPLOAD_BYTES", "-1"},
		{"GEMINDEX_START_TIME", "yesterday"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
