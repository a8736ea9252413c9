// Package config provides unified configuration for the Beacon collector.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full configuration for a collector instance.
type Config struct {
	// APIKey authenticates batches with the remote collector.
	APIKey string `json:"api_key" yaml:"api_key"`

	// InstanceName distinguishes multiple collector instances sharing a
	// process. The empty name is the default instance.
	InstanceName string `json:"instance_name" yaml:"instance_name"`

	// DataDir is the base directory for the local durable store.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Upload configuration.
	Upload UploadConfig `json:"upload" yaml:"upload"`

	// Session configuration.
	Session SessionConfig `json:"session" yaml:"session"`

	// EventMaxCount caps the number of pending rows per kind. When an
	// append would exceed it, the oldest 10% of rows are evicted first.
	EventMaxCount int64 `json:"event_max_count" yaml:"event_max_count"`

	// MaxStringLength is the truncation limit applied recursively to
	// string values in event and user property payloads.
	MaxStringLength int `json:"max_string_length" yaml:"max_string_length"`

	// OptOut disables all event collection when true.
	OptOut bool `json:"opt_out" yaml:"opt_out"`

	// Offline suppresses uploads (events still queue locally) when true.
	Offline bool `json:"offline" yaml:"offline"`

	// Transport configuration.
	Transport TransportConfig `json:"transport" yaml:"transport"`

	// Device holds static device/app metadata reported with every event.
	Device DeviceConfig `json:"device" yaml:"device"`
}

// UploadConfig holds upload engine configuration.
type UploadConfig struct {
	// Threshold is the pending-row count that triggers an immediate upload.
	Threshold int `json:"threshold" yaml:"threshold"`

	// Period is the delay before a scheduled upload fires.
	Period time.Duration `json:"period" yaml:"period"`

	// MaxBatchSize is the maximum rows per upload batch.
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`

	// APIVersion is the collector wire protocol version.
	APIVersion int `json:"api_version" yaml:"api_version"`
}

// SessionConfig holds session manager configuration.
type SessionConfig struct {
	// Timeout is the inactivity gap that closes a session.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// TrackEvents enables internal start-session marker events.
	TrackEvents bool `json:"track_events" yaml:"track_events"`
}

// TransportConfig holds transport configuration.
type TransportConfig struct {
	// Type is the transport type: http, s3
	Type string `json:"type" yaml:"type"`

	// URL is the collector endpoint (for http type).
	URL string `json:"url" yaml:"url"`

	// S3 configuration (for s3 type).
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 bucket-drop transport configuration.
type S3Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region.
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage).
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is the object key prefix for uploaded batches.
	Prefix string `json:"prefix" yaml:"prefix"`

	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DeviceConfig holds static device/app metadata.
type DeviceConfig struct {
	Platform           string `json:"platform" yaml:"platform"`
	OSName             string `json:"os_name" yaml:"os_name"`
	OSVersion          string `json:"os_version" yaml:"os_version"`
	DeviceBrand        string `json:"device_brand" yaml:"device_brand"`
	DeviceManufacturer string `json:"device_manufacturer" yaml:"device_manufacturer"`
	DeviceModel        string `json:"device_model" yaml:"device_model"`
	Carrier            string `json:"carrier" yaml:"carrier"`
	Country            string `json:"country" yaml:"country"`
	Language           string `json:"language" yaml:"language"`
	VersionName        string `json:"version_name" yaml:"version_name"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/beacon",
		Upload: UploadConfig{
			Threshold:    30,
			Period:       30 * time.Second,
			MaxBatchSize: 100,
			APIVersion:   2,
		},
		Session: SessionConfig{
			Timeout:     30 * time.Minute,
			TrackEvents: false,
		},
		EventMaxCount:   1000,
		MaxStringLength: 1024,
		Transport: TransportConfig{
			Type: "http",
			URL:  "https://collector.beaconlabs.dev/v2/batch",
		},
	}
}

// Resolve fills in defaults derived from other fields.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/beacon"
	}
	if c.Upload.Threshold <= 0 {
		c.Upload.Threshold = 30
	}
	if c.Upload.Period <= 0 {
		c.Upload.Period = 30 * time.Second
	}
	if c.Upload.MaxBatchSize <= 0 {
		c.Upload.MaxBatchSize = 100
	}
	if c.Upload.APIVersion <= 0 {
		c.Upload.APIVersion = 2
	}
	if c.Session.Timeout <= 0 {
		c.Session.Timeout = 30 * time.Minute
	}
	if c.EventMaxCount <= 0 {
		c.EventMaxCount = 1000
	}
	if c.MaxStringLength <= 0 {
		c.MaxStringLength = 1024
	}
}

// DatabasePath returns the path to the durable store for this instance.
func (c *Config) DatabasePath() string {
	name := "beacon.db"
	if c.InstanceName != "" {
		name = fmt.Sprintf("beacon_%s.db", c.InstanceName)
	}
	return filepath.Join(c.DataDir, name)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Transport.Type {
	case "http":
		if c.Transport.URL == "" {
			return fmt.Errorf("transport.url is required when transport type is http")
		}
	case "s3":
		if c.Transport.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when transport type is s3")
		}
	default:
		return fmt.Errorf("invalid transport type: %s (must be http or s3)", c.Transport.Type)
	}

	if c.Upload.MaxBatchSize < c.Upload.Threshold {
		return fmt.Errorf("upload.max_batch_size (%d) must be >= upload.threshold (%d)",
			c.Upload.MaxBatchSize, c.Upload.Threshold)
	}

	if c.EventMaxCount < int64(c.Upload.Threshold) {
		return fmt.Errorf("event_max_count (%d) must be >= upload.threshold (%d)",
			c.EventMaxCount, c.Upload.Threshold)
	}

	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	if c.DataDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.DataDir, err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the BEACON_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("BEACON_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("BEACON_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BEACON_INSTANCE_NAME"); v != "" {
		cfg.InstanceName = v
	}

	// Upload configuration
	if v := os.Getenv("BEACON_UPLOAD_THRESHOLD"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Upload.Threshold)
	}
	if v := os.Getenv("BEACON_UPLOAD_MAX_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Upload.MaxBatchSize)
	}
	if v := os.Getenv("BEACON_UPLOAD_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upload.Period = d
		}
	}

	// Session configuration
	if v := os.Getenv("BEACON_SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.Timeout = d
		}
	}
	if v := os.Getenv("BEACON_SESSION_TRACK_EVENTS"); v != "" {
		cfg.Session.TrackEvents = v == "true" || v == "1"
	}

	// Limits
	if v := os.Getenv("BEACON_EVENT_MAX_COUNT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.EventMaxCount)
	}
	if v := os.Getenv("BEACON_MAX_STRING_LENGTH"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.MaxStringLength)
	}

	// Flags
	if v := os.Getenv("BEACON_OPT_OUT"); v != "" {
		cfg.OptOut = v == "true" || v == "1"
	}
	if v := os.Getenv("BEACON_OFFLINE"); v != "" {
		cfg.Offline = v == "true" || v == "1"
	}

	// Transport configuration
	if v := os.Getenv("BEACON_TRANSPORT_TYPE"); v != "" {
		cfg.Transport.Type = v
	}
	if v := os.Getenv("BEACON_TRANSPORT_URL"); v != "" {
		cfg.Transport.URL = v
	}
	if v := os.Getenv("BEACON_S3_BUCKET"); v != "" {
		cfg.Transport.S3.Bucket = v
	}
	if v := os.Getenv("BEACON_S3_REGION"); v != "" {
		cfg.Transport.S3.Region = v
	}
	if v := os.Getenv("BEACON_S3_ENDPOINT"); v != "" {
		cfg.Transport.S3.Endpoint = v
	}
	if v := os.Getenv("BEACON_S3_PREFIX"); v != "" {
		cfg.Transport.S3.Prefix = v
	}
}
