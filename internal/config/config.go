// Package config provides configuration loading for codeloops.
//
// Configuration starts from Default, is overlaid with an optional YAML file
// and finally with CODELOOPS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the complete codeloops configuration.
type Config struct {
	DataDir       string              `koanf:"data_dir"`
	Storage       StorageConfig       `koanf:"storage"`
	Summarization SummarizationConfig `koanf:"summarization"`
	Resume        ResumeConfig        `koanf:"resume"`
	Server        ServerConfig        `koanf:"server"`
	LLM           LLMConfig           `koanf:"llm"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// StorageConfig controls the durable logs.
type StorageConfig struct {
	MaxRetries int      `koanf:"max_retries"`
	RetryStep  Duration `koanf:"retry_step"`
	BackupKeep int      `koanf:"backup_keep"` // <0 keeps every backup
}

// SummarizationConfig controls automatic segment summaries.
type SummarizationConfig struct {
	Enabled   bool `koanf:"enabled"`
	Threshold int  `koanf:"threshold"`
}

// ResumeConfig holds resume defaults.
type ResumeConfig struct {
	Limit        int    `koanf:"limit"`
	IncludeDiffs string `koanf:"include_diffs"` // none, latest or all
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RateLimit       float64  `koanf:"rate_limit"` // requests per second per client, 0 disables
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig selects the model behind the critic and summarizer.
type LLMConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
}

// LoggingConfig holds the logger settings exposed through config files.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	Endpoint        string `koanf:"endpoint"`
	ServiceName     string `koanf:"service_name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Storage: StorageConfig{
			MaxRetries: 3,
			RetryStep:  Duration(100 * time.Millisecond),
			BackupKeep: 20,
		},
		Summarization: SummarizationConfig{
			Enabled:   true,
			Threshold: 20,
		},
		Resume: ResumeConfig{
			Limit:        5,
			IncludeDiffs: "latest",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9393,
			ShutdownTimeout: Duration(10 * time.Second),
			RateLimit:       20,
		},
		LLM: LLMConfig{
			Provider: "none",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			Endpoint:        "localhost:4317",
			ServiceName:     "codeloops",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".codeloops", "data")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if c.Storage.MaxRetries < 0 {
		return fmt.Errorf("storage.max_retries must be >= 0, got %d", c.Storage.MaxRetries)
	}
	if c.Storage.RetryStep <= 0 {
		return errors.New("storage.retry_step must be positive")
	}
	if c.Summarization.Enabled && c.Summarization.Threshold < 2 {
		return fmt.Errorf("summarization.threshold must be >= 2, got %d", c.Summarization.Threshold)
	}
	if c.Resume.Limit < 0 {
		return fmt.Errorf("resume.limit must be >= 0, got %d", c.Resume.Limit)
	}
	switch c.Resume.IncludeDiffs {
	case "", "none", "latest", "all":
	default:
		return fmt.Errorf("resume.include_diffs must be none, latest or all, got %q", c.Resume.IncludeDiffs)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must be >= 0")
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "", "none", "openai":
	default:
		return fmt.Errorf("unsupported llm.provider %q", c.LLM.Provider)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	return nil
}
