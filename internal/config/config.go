package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Agent      AgentConfig      `yaml:"agent"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// AgentConfig configures the device-side agent.
type AgentConfig struct {
	QueuePath     string  `yaml:"queue_path"`
	ListenPort    int     `yaml:"listen_port"`
	ServerURL     string  `yaml:"server_url"`
	APIKey        string  `yaml:"api_key"`
	APIExtra      string  `yaml:"api_extra"`
	CompanyID     string  `yaml:"company_id"`
	WorkerID      string  `yaml:"worker_id"`
	HourlyRate    float64 `yaml:"hourly_rate"`
	ProbeInterval int     `yaml:"probe_interval_seconds"`
	RetryInterval int     `yaml:"retry_interval_seconds"`
	RetentionDays int     `yaml:"retention_days"`
}

// ServerConfig configures the company-side API server.
type ServerConfig struct {
	CompanyID string `yaml:"company_id"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ComplianceConfig struct {
	Jurisdiction     string `yaml:"jurisdiction"`
	JurisdictionFile string `yaml:"jurisdiction_file"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	Enabled               bool   `yaml:"enabled"`
	GoogleCredentialsFile string `yaml:"credentials_file"`
	HoursSpreadSheetID    string `yaml:"hours_spreadsheet_id"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} references before parsing.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Agent.QueuePath == "" && c.Database.Path == "" {
		return errors.New("either agent.queue_path or database.path is required")
	}

	if c.Agent.QueuePath != "" && c.Agent.ServerURL == "" {
		return errors.New("agent.server_url is required when the agent queue is configured")
	}

	if c.Google.Enabled && c.Google.GoogleCredentialsFile == "" {
		return errors.New("google.credentials_file is required when google export is enabled")
	}

	return nil
}

// ProbeIntervalDuration returns the connectivity probe cadence.
func (a AgentConfig) ProbeIntervalDuration() time.Duration {
	return time.Duration(a.ProbeInterval) * time.Second
}

// RetryIntervalDuration returns the periodic sync cadence.
func (a AgentConfig) RetryIntervalDuration() time.Duration {
	return time.Duration(a.RetryInterval) * time.Second
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.Auth.Enabled && c.API.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Agent.ListenPort == 0 {
		c.Agent.ListenPort = 7070
	}
	if c.Agent.ProbeInterval == 0 {
		c.Agent.ProbeInterval = 15
	}
	if c.Agent.RetryInterval == 0 {
		c.Agent.RetryInterval = 30
	}
	if c.Agent.RetentionDays == 0 {
		c.Agent.RetentionDays = 7
	}

	if c.Compliance.Jurisdiction == "" {
		c.Compliance.Jurisdiction = "california"
	}
}
