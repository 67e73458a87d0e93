package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.S3.MaxConcurrentRequests <= cfg.File.MaxConcurrentRequests {
		t.Errorf("object store pool (%d) should exceed file pool (%d)",
			cfg.S3.MaxConcurrentRequests, cfg.File.MaxConcurrentRequests)
	}
	if cfg.HeaderLength != DefaultHeaderLength {
		t.Errorf("HeaderLength: got %d, want %d", cfg.HeaderLength, DefaultHeaderLength)
	}
}

func TestFromBytesYAML(t *testing.T) {
	cfg := Default()
	data := []byte(`
header_length: 4096
http:
  max_concurrent_requests: 4
  request_timeout: 5s
s3:
  endpoint: http://localhost:9000
  use_path_style: true
  max_concurrent_requests: 16
`)
	if err := cfg.FromBytes(data); err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}

	if cfg.HeaderLength != 4096 {
		t.Errorf("HeaderLength: got %d, want 4096", cfg.HeaderLength)
	}
	if cfg.HTTP.MaxConcurrentRequests != 4 {
		t.Errorf("HTTP.MaxConcurrentRequests: got %d, want 4", cfg.HTTP.MaxConcurrentRequests)
	}
	if cfg.HTTP.RequestTimeout != 5*time.Second {
		t.Errorf("HTTP.RequestTimeout: got %v, want 5s", cfg.HTTP.RequestTimeout)
	}
	// untouched fields keep their defaults
	if cfg.HTTP.MaxIdleConnections != 100 {
		t.Errorf("HTTP.MaxIdleConnections: got %d, want 100", cfg.HTTP.MaxIdleConnections)
	}
	if !cfg.S3.UsePathStyle || cfg.S3.Endpoint != "http://localhost:9000" {
		t.Errorf("S3 settings not applied: %+v", cfg.S3)
	}
	if cfg.S3.MaxConcurrentRequests != 16 {
		t.Errorf("S3.MaxConcurrentRequests: got %d, want 16", cfg.S3.MaxConcurrentRequests)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"COGRANGE_S3_MAX_CONCURRENT_REQUESTS": "7",
		"COGRANGE_HTTP_REQUEST_TIMEOUT":       "12",
		"COGRANGE_GCS_KEEP_ALIVE":             "2m",
		"COGRANGE_CACHE_MAX_BYTES":            "1024",
		"AWS_REGION":                          "eu-west-1",
		"S3_ENDPOINT":                         "http://minio:9000",
		"COGRANGE_S3_ENDPOINT":                "http://other:9000",
		"AZURE_STORAGE_ACCOUNT":               "acct",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.S3.MaxConcurrentRequests != 7 {
		t.Errorf("S3.MaxConcurrentRequests: got %d, want 7", cfg.S3.MaxConcurrentRequests)
	}
	if cfg.HTTP.RequestTimeout != 12*time.Second {
		t.Errorf("HTTP.RequestTimeout: got %v, want 12s", cfg.HTTP.RequestTimeout)
	}
	if cfg.GCS.KeepAlive != 2*time.Minute {
		t.Errorf("GCS.KeepAlive: got %v, want 2m", cfg.GCS.KeepAlive)
	}
	if cfg.CacheMaxBytes != 1024 {
		t.Errorf("CacheMaxBytes: got %d, want 1024", cfg.CacheMaxBytes)
	}
	if cfg.S3.Region != "eu-west-1" {
		t.Errorf("S3.Region: got %q", cfg.S3.Region)
	}
	if cfg.S3.Endpoint != "http://other:9000" {
		t.Errorf("prefixed variable should win, got %q", cfg.S3.Endpoint)
	}
	if cfg.Azure.AccountName != "acct" {
		t.Errorf("Azure.AccountName: got %q", cfg.Azure.AccountName)
	}
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{"COGRANGE_FILE_MAX_CONCURRENT_REQUESTS": "many"}))
	if err == nil {
		t.Fatal("expected error for non-numeric pool size")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Azure.MaxConcurrentRequests = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty azure pool")
	}

	cfg = Default()
	cfg.HTTP.RequestTimeout = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cogrange.json")
	if err := os.WriteFile(path, []byte(`{"handle_cache_size": 8, "file": {"max_concurrent_requests": 2}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HandleCacheSize != 8 {
		t.Errorf("HandleCacheSize: got %d, want 8", cfg.HandleCacheSize)
	}
	if cfg.File.MaxConcurrentRequests != 2 {
		t.Errorf("File.MaxConcurrentRequests: got %d, want 2", cfg.File.MaxConcurrentRequests)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
