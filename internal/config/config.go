package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

const (
	DefaultPollIntervalMS       = 5_000
	DefaultErrorRetryIntervalMS = 10_000
	DefaultMaxFileSize          = 16 * 1024 * 1024
	DefaultPreviewSize          = 5
)

// DefaultAllowedExtensions lists the VAT list formats accepted for ingestion.
var DefaultAllowedExtensions = []string{".csv", ".xlsx", ".xls", ".txt"}

type StorageConfig struct {
	Type string `yaml:"type"`
	CSV  struct {
		OutputDir string `yaml:"output_dir"`
	} `yaml:"csv"`
}

type RetryConfig struct {
	Attempts int `yaml:"attempts" json:"attempts"`
	DelayMS  int `yaml:"delay_ms" json:"delay_ms"`
}

type IngestConfig struct {
	MaxFileSize       int64    `yaml:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	PreviewSize       int      `yaml:"preview_size"`
}

type Config struct {
	APIBaseURL string `yaml:"api_base_url"`
	// PollIntervalMS is the delay between a status response and the next request.
	PollIntervalMS int `yaml:"poll_interval_ms"`
	// ErrorRetryIntervalMS replaces the poll interval after a failed request.
	ErrorRetryIntervalMS int `yaml:"error_retry_interval_ms"`
	// RequestTimeoutMS bounds a single status request. Defaults to the poll interval.
	RequestTimeoutMS int `yaml:"request_timeout_ms"`

	LogLevel string        `yaml:"log_level"`
	Retry    RetryConfig   `yaml:"retry"`
	Ingest   IngestConfig  `yaml:"ingest"`
	Storage  StorageConfig `yaml:"storage"`
}

// Default returns a configuration pointing at a local backend with every
// option at its default value.
func Default() *Config {
	cfg := &Config{
		APIBaseURL: "http://localhost:8080/api",
		Storage:    StorageConfig{Type: "none"},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and unmarshals the configuration file located at the given path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Resolve a relative csv output directory against the config file location.
	if cfg.Storage.Type == "csv" && !filepath.IsAbs(cfg.Storage.CSV.OutputDir) {
		cfg.Storage.CSV.OutputDir = filepath.Join(filepath.Dir(absPath), cfg.Storage.CSV.OutputDir)
	}

	return &cfg, nil
}

// Validate checks the options that have no sensible default.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api_base_url %q is not an absolute URL", c.APIBaseURL)
	}

	if c.PollIntervalMS < 0 || c.ErrorRetryIntervalMS < 0 || c.RequestTimeoutMS < 0 {
		return fmt.Errorf("intervals must not be negative")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	switch c.Storage.Type {
	case "none":
	case "csv":
		if c.Storage.CSV.OutputDir == "" {
			return fmt.Errorf("storage.csv.output_dir is required when storage type is csv")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	for _, ext := range c.Ingest.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("ingest.allowed_extensions entry %q must start with a dot", ext)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")

	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = DefaultPollIntervalMS
	}
	if c.ErrorRetryIntervalMS == 0 {
		c.ErrorRetryIntervalMS = DefaultErrorRetryIntervalMS
	}
	if c.RequestTimeoutMS == 0 {
		c.RequestTimeoutMS = c.PollIntervalMS
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	// Default retry values if not set
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.DelayMS == 0 {
		c.Retry.DelayMS = 1500
	}

	if c.Ingest.MaxFileSize == 0 {
		c.Ingest.MaxFileSize = DefaultMaxFileSize
	}
	if len(c.Ingest.AllowedExtensions) == 0 {
		c.Ingest.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	}
	for i, ext := range c.Ingest.AllowedExtensions {
		c.Ingest.AllowedExtensions[i] = strings.ToLower(ext)
	}
	if c.Ingest.PreviewSize == 0 {
		c.Ingest.PreviewSize = DefaultPreviewSize
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.ErrorRetryIntervalMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// Delay is the wait between two attempts.
func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelayMS) * time.Millisecond
}
