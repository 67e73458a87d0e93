package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc has the signature of os.LookupEnv
type LookupFunc func(key string) (string, bool)

const envPrefix = "COGRANGE_"

// ApplyEnv overlays COGRANGE_<BACKEND>_<SETTING> variables, for example
// COGRANGE_S3_MAX_CONCURRENT_REQUESTS=64, and the credential variables the
// cloud SDKs conventionally read.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if err := setUint(lookup, envPrefix+"HEADER_LENGTH", &c.HeaderLength); err != nil {
		return err
	}
	if err := setUint(lookup, envPrefix+"CACHE_MAX_BYTES", &c.CacheMaxBytes); err != nil {
		return err
	}
	if err := setInt(lookup, envPrefix+"HANDLE_CACHE_SIZE", &c.HandleCacheSize); err != nil {
		return err
	}

	backends := []struct {
		name string
		cfg  *BackendConfig
	}{
		{"HTTP", &c.HTTP},
		{"S3", &c.S3.BackendConfig},
		{"GCS", &c.GCS.BackendConfig},
		{"AZURE", &c.Azure.BackendConfig},
		{"FILE", &c.File},
	}
	for _, b := range backends {
		if err := b.cfg.applyEnv(lookup, envPrefix+b.name+"_"); err != nil {
			return err
		}
	}

	// conventional variables first so the prefixed ones win
	setString(lookup, "AWS_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	setString(lookup, "AWS_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)
	setString(lookup, "AWS_REGION", &c.S3.Region)
	setString(lookup, "S3_ENDPOINT", &c.S3.Endpoint)
	setString(lookup, envPrefix+"S3_ENDPOINT", &c.S3.Endpoint)
	setString(lookup, envPrefix+"S3_REGION", &c.S3.Region)
	setString(lookup, envPrefix+"S3_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	setString(lookup, envPrefix+"S3_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)
	if err := setBool(lookup, envPrefix+"S3_USE_PATH_STYLE", &c.S3.UsePathStyle); err != nil {
		return err
	}

	setString(lookup, "STORAGE_EMULATOR_HOST", &c.GCS.Endpoint)
	setString(lookup, envPrefix+"GCS_ENDPOINT", &c.GCS.Endpoint)
	setString(lookup, "GOOGLE_APPLICATION_CREDENTIALS", &c.GCS.CredentialsFile)
	setString(lookup, envPrefix+"GCS_CREDENTIALS_FILE", &c.GCS.CredentialsFile)
	if err := setBool(lookup, envPrefix+"GCS_ANONYMOUS", &c.GCS.Anonymous); err != nil {
		return err
	}

	setString(lookup, "AZURE_STORAGE_ACCOUNT", &c.Azure.AccountName)
	setString(lookup, "AZURE_STORAGE_KEY", &c.Azure.AccountKey)
	setString(lookup, "AZURE_STORAGE_CONNECTION_STRING", &c.Azure.ConnectionString)
	setString(lookup, envPrefix+"AZURE_ACCOUNT_NAME", &c.Azure.AccountName)
	setString(lookup, envPrefix+"AZURE_ACCOUNT_KEY", &c.Azure.AccountKey)
	setString(lookup, envPrefix+"AZURE_CONNECTION_STRING", &c.Azure.ConnectionString)
	setString(lookup, envPrefix+"AZURE_SERVICE_URL", &c.Azure.ServiceURL)

	return nil
}

func (b *BackendConfig) applyEnv(lookup LookupFunc, prefix string) error {
	if err := setInt(lookup, prefix+"MAX_CONCURRENT_REQUESTS", &b.MaxConcurrentRequests); err != nil {
		return err
	}
	if err := setInt(lookup, prefix+"MAX_REQUESTS_PER_HOST", &b.MaxRequestsPerHost); err != nil {
		return err
	}
	if err := setInt(lookup, prefix+"MAX_IDLE_CONNECTIONS", &b.MaxIdleConnections); err != nil {
		return err
	}
	if err := setDuration(lookup, prefix+"KEEP_ALIVE", &b.KeepAlive); err != nil {
		return err
	}
	return setDuration(lookup, prefix+"REQUEST_TIMEOUT", &b.RequestTimeout)
}

func lookupTrimmed(lookup LookupFunc, key string) (string, bool) {
	value, ok := lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func setString(lookup LookupFunc, key string, dst *string) {
	if value, ok := lookupTrimmed(lookup, key); ok {
		*dst = value
	}
}

func setInt(lookup LookupFunc, key string, dst *int) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = n
	return nil
}

func setUint(lookup LookupFunc, key string, dst *uint64) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = n
	return nil
}

func setBool(lookup LookupFunc, key string, dst *bool) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = b
	return nil
}

// setDuration accepts Go durations ("30s") or a bare number of seconds
func setDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = d
	return nil
}
