package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultHeaderLength is the number of leading bytes read as the object header
	DefaultHeaderLength = 16384

	// DefaultCacheMaxBytes bounds the chunk cache of each open reader
	DefaultCacheMaxBytes = 256 << 20

	// DefaultHandleCacheSize bounds the process-wide client and metadata caches
	DefaultHandleCacheSize = 64
)

// BackendConfig holds the connection and concurrency settings every backend shares
type BackendConfig struct {
	// MaxConcurrentRequests sizes the worker pool of the backend
	MaxConcurrentRequests int `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	// MaxRequestsPerHost caps simultaneous connections to one remote host
	MaxRequestsPerHost int `json:"max_requests_per_host" yaml:"max_requests_per_host"`
	// MaxIdleConnections is the size of the idle connection pool
	MaxIdleConnections int `json:"max_idle_connections" yaml:"max_idle_connections"`
	// KeepAlive is how long an idle pooled connection is kept
	KeepAlive time.Duration `json:"keep_alive" yaml:"keep_alive"`
	// RequestTimeout bounds a single range fetch, 0 disables the timeout
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// S3Config configures the S3 (and S3-compatible, e.g. MinIO) backend
type S3Config struct {
	BackendConfig   `json:",inline" yaml:",inline"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool   `json:"use_path_style" yaml:"use_path_style"`
}

// GCSConfig configures the Google Cloud Storage backend
type GCSConfig struct {
	BackendConfig   `json:",inline" yaml:",inline"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	Anonymous       bool   `json:"anonymous" yaml:"anonymous"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// AzureConfig configures the Azure Blob Storage backend
type AzureConfig struct {
	BackendConfig    `json:",inline" yaml:",inline"`
	AccountName      string `json:"account_name" yaml:"account_name"`
	AccountKey       string `json:"account_key" yaml:"account_key"`
	ConnectionString string `json:"connection_string" yaml:"connection_string"`
	ServiceURL       string `json:"service_url" yaml:"service_url"`
}

// Config represents the complete reader configuration
type Config struct {
	HeaderLength    uint64 `json:"header_length" yaml:"header_length"`
	CacheMaxBytes   uint64 `json:"cache_max_bytes" yaml:"cache_max_bytes"`
	HandleCacheSize int    `json:"handle_cache_size" yaml:"handle_cache_size"`

	HTTP  BackendConfig `json:"http" yaml:"http"`
	S3    S3Config      `json:"s3" yaml:"s3"`
	GCS   GCSConfig     `json:"gcs" yaml:"gcs"`
	Azure AzureConfig   `json:"azure" yaml:"azure"`
	File  BackendConfig `json:"file" yaml:"file"`
}

// Default returns the configuration used when nothing is overridden.
// Network-bound object stores reward concurrency and get larger pools.
func Default() *Config {
	return &Config{
		HeaderLength:    DefaultHeaderLength,
		CacheMaxBytes:   DefaultCacheMaxBytes,
		HandleCacheSize: DefaultHandleCacheSize,
		HTTP: BackendConfig{
			MaxConcurrentRequests: 32,
			MaxRequestsPerHost:    16,
			MaxIdleConnections:    100,
			KeepAlive:             90 * time.Second,
			RequestTimeout:        30 * time.Second,
		},
		S3: S3Config{
			BackendConfig: BackendConfig{
				MaxConcurrentRequests: 128,
				MaxRequestsPerHost:    128,
				MaxIdleConnections:    256,
				KeepAlive:             90 * time.Second,
				RequestTimeout:        30 * time.Second,
			},
			Region: "us-east-1",
		},
		GCS: GCSConfig{
			BackendConfig: BackendConfig{
				MaxConcurrentRequests: 64,
				MaxRequestsPerHost:    64,
				MaxIdleConnections:    128,
				KeepAlive:             90 * time.Second,
				RequestTimeout:        30 * time.Second,
			},
		},
		Azure: AzureConfig{
			BackendConfig: BackendConfig{
				MaxConcurrentRequests: 64,
				MaxRequestsPerHost:    64,
				MaxIdleConnections:    128,
				KeepAlive:             90 * time.Second,
				RequestTimeout:        30 * time.Second,
			},
		},
		File: BackendConfig{
			MaxConcurrentRequests: 8,
		},
	}
}

// Load builds a configuration from the defaults, an optional YAML or JSON file
// and the process environment, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.FromPath(path); err != nil {
			return nil, fmt.Errorf("failed to load config from path %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromPath overlays the settings found in a config file
func (c *Config) FromPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.FromBytes(data)
}

// FromBytes overlays settings parsed from YAML, falling back to JSON
func (c *Config) FromBytes(data []byte) error {
	// Decode into a copy so a failed YAML attempt leaves nothing half applied
	fromYAML := *c
	yamlErr := yaml.Unmarshal(data, &fromYAML)
	if yamlErr == nil {
		*c = fromYAML
		return nil
	}

	fromJSON := *c
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		return fmt.Errorf("failed to parse config as YAML or JSON: %w", yamlErr)
	}

	logrus.Debug("Config parsed as JSON")
	*c = fromJSON
	return nil
}

// Validate rejects settings the readers cannot work with
func (c *Config) Validate() error {
	backends := map[string]BackendConfig{
		"http":  c.HTTP,
		"s3":    c.S3.BackendConfig,
		"gcs":   c.GCS.BackendConfig,
		"azure": c.Azure.BackendConfig,
		"file":  c.File,
	}

	for name, b := range backends {
		if b.MaxConcurrentRequests <= 0 {
			return fmt.Errorf("%s.max_concurrent_requests must be positive, got %d", name, b.MaxConcurrentRequests)
		}
		if b.MaxRequestsPerHost < 0 || b.MaxIdleConnections < 0 {
			return fmt.Errorf("%s connection limits must not be negative", name)
		}
		if b.KeepAlive < 0 || b.RequestTimeout < 0 {
			return fmt.Errorf("%s durations must not be negative", name)
		}
	}

	if c.HandleCacheSize <= 0 {
		return fmt.Errorf("handle_cache_size must be positive, got %d", c.HandleCacheSize)
	}

	return nil
}
