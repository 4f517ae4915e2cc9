package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EdgeConfig holds configuration for the edge repair daemon.
type EdgeConfig struct {
	DataRoot      string `json:"data_root" yaml:"data_root"`
	ReadyDir      string `json:"ready_dir" yaml:"ready_dir"`
	ExportDir     string `json:"export_dir" yaml:"export_dir"`
	QuarantineDir string `json:"quarantine_dir" yaml:"quarantine_dir"`

	Port string `json:"port" yaml:"port"`

	ScanIntervalSeconds   int `json:"scan_interval_seconds" yaml:"scan_interval_seconds"`
	MinFileAgeSeconds     int `json:"min_file_age_seconds" yaml:"min_file_age_seconds"`
	SettleSeconds         int `json:"settle_seconds" yaml:"settle_seconds"`
	MaxConcurrentJobs     int `json:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`
	UntruncTimeoutSeconds int `json:"untrunc_timeout_seconds" yaml:"untrunc_timeout_seconds"`

	UntruncPath       string `json:"untrunc_path" yaml:"untrunc_path"`
	ReferenceStrategy string `json:"reference_strategy" yaml:"reference_strategy"`

	FallbackBaseURL string `json:"fallback_base_url" yaml:"fallback_base_url"`
	FallbackAPIKey  string `json:"fallback_api_key" yaml:"fallback_api_key"`
	FallbackRetries int    `json:"fallback_retries" yaml:"fallback_retries"`

	DatabaseURL string `json:"database_url" yaml:"database_url"`

	LogLevel    string `json:"log_level" yaml:"log_level"`
	ServiceName string `json:"service_name" yaml:"service_name"`
}

// GatewayConfig holds configuration for the batch submission API.
type GatewayConfig struct {
	Port string `json:"port" yaml:"port"`

	JobQueueARN      string `json:"job_queue_arn" yaml:"job_queue_arn"`
	JobDefinitionARN string `json:"job_definition_arn" yaml:"job_definition_arn"`

	DefaultInputBucket  string `json:"default_input_bucket" yaml:"default_input_bucket"`
	DefaultOutputBucket string `json:"default_output_bucket" yaml:"default_output_bucket"`

	// SHA-256 hex digest of the accepted API key. Empty disables auth.
	APIKeyHash string `json:"api_key_hash" yaml:"api_key_hash"`

	LogLevel    string `json:"log_level" yaml:"log_level"`
	ServiceName string `json:"service_name" yaml:"service_name"`
}

// DefaultEdgeConfig mirrors the service's documented defaults.
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		DataRoot:              "/data",
		ReadyDir:              "ready",
		ExportDir:             "export",
		QuarantineDir:         "quarantine",
		Port:                  "8090",
		ScanIntervalSeconds:   30,
		MinFileAgeSeconds:     60,
		SettleSeconds:         5,
		MaxConcurrentJobs:     2,
		UntruncTimeoutSeconds: 3600,
		ReferenceStrategy:     "smallest",
		FallbackRetries:       3,
		LogLevel:              "info",
		ServiceName:           "edge-untrunc",
	}
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Port:        "8091",
		LogLevel:    "info",
		ServiceName: "untrunc-batch-api",
	}
}

// Load loads the configuration from a file (YAML or JSON)
func Load(path string, cfg interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			return fmt.Errorf("failed to decode YAML config file %s: %w", path, err)
		}
	} else {
		// Default to JSON for compatibility or other extensions
		decoder := json.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			return fmt.Errorf("failed to decode JSON config file %s: %w", path, err)
		}
	}

	return nil
}

// ApplyEnv overrides populated fields with environment variables.
func (c *EdgeConfig) ApplyEnv() {
	envStr(&c.DataRoot, "CONTAINER_SMB_ROOT")
	envStr(&c.ReadyDir, "READY_DIR")
	envStr(&c.ExportDir, "EXPORT_DIR")
	envStr(&c.QuarantineDir, "QUARANTINE_DIR")
	envStr(&c.Port, "PORT")
	envInt(&c.ScanIntervalSeconds, "SCAN_INTERVAL_SECONDS")
	envInt(&c.MinFileAgeSeconds, "MIN_FILE_AGE_SECONDS")
	envInt(&c.SettleSeconds, "SETTLE_SECONDS")
	envInt(&c.MaxConcurrentJobs, "MAX_CONCURRENT_JOBS")
	envInt(&c.UntruncTimeoutSeconds, "UNTRUNC_TIMEOUT_SECONDS")
	envStr(&c.UntruncPath, "UNTRUNC_PATH")
	envStr(&c.ReferenceStrategy, "REFERENCE_STRATEGY")
	envStr(&c.FallbackBaseURL, "AWS_REPAIR_API_BASE_URL")
	envStr(&c.FallbackAPIKey, "AWS_API_KEY")
	envInt(&c.FallbackRetries, "AWS_FALLBACK_RETRIES")
	envStr(&c.DatabaseURL, "DATABASE_URL")
	envStr(&c.LogLevel, "LOG_LEVEL")
	envStr(&c.ServiceName, "SERVICE_NAME")
}

func (c *GatewayConfig) ApplyEnv() {
	envStr(&c.Port, "PORT")
	envStr(&c.JobQueueARN, "BATCH_JOB_QUEUE_ARN")
	envStr(&c.JobDefinitionARN, "BATCH_JOB_DEFINITION_ARN")
	envStr(&c.DefaultInputBucket, "DEFAULT_INPUT_BUCKET")
	envStr(&c.DefaultOutputBucket, "DEFAULT_OUTPUT_BUCKET")
	envStr(&c.APIKeyHash, "API_KEY_HASH")
	envStr(&c.LogLevel, "LOG_LEVEL")
	envStr(&c.ServiceName, "SERVICE_NAME")
}

// Validate rejects configurations the daemon cannot safely run with.
func (c *EdgeConfig) Validate() error {
	switch c.ReferenceStrategy {
	case "smallest", "newest":
	default:
		return fmt.Errorf("reference_strategy must be one of: smallest, newest (got %q)", c.ReferenceStrategy)
	}
	if c.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("scan_interval_seconds must be positive")
	}
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("max_concurrent_jobs must be positive")
	}
	if c.UntruncTimeoutSeconds <= 0 {
		return fmt.Errorf("untrunc_timeout_seconds must be positive")
	}
	return nil
}

func (c *GatewayConfig) Validate() error {
	if c.JobQueueARN == "" {
		return fmt.Errorf("job_queue_arn is required")
	}
	if c.JobDefinitionARN == "" {
		return fmt.Errorf("job_definition_arn is required")
	}
	if c.DefaultInputBucket == "" || c.DefaultOutputBucket == "" {
		return fmt.Errorf("default_input_bucket and default_output_bucket are required")
	}
	return nil
}

func (c *EdgeConfig) ReadyPath() string      { return filepath.Join(c.DataRoot, c.ReadyDir) }
func (c *EdgeConfig) ExportPath() string     { return filepath.Join(c.DataRoot, c.ExportDir) }
func (c *EdgeConfig) QuarantinePath() string { return filepath.Join(c.DataRoot, c.QuarantineDir) }

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
