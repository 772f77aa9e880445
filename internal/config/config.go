// Package config provides YAML-based configuration loading for the batch
// control plane.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, loaded from batch.yaml. It is built
// once at process start and handed to every component constructor.
type Config struct {
	Stack    string         `yaml:"stack"`
	Database DatabaseConfig `yaml:"database"`
	GitHub   GitHubConfig   `yaml:"github"`
	AWS      AWSConfig      `yaml:"aws"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Coverage CoverageConfig `yaml:"coverage"`
	Scan     ScanConfig     `yaml:"scan"`
	Notify   NotifyConfig   `yaml:"notify"`
	Cache    CacheConfig    `yaml:"cache"`
	Server   ServerConfig   `yaml:"server"`
	Exports  ExportsConfig  `yaml:"exports"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"` // sqlite file, ":memory:" allowed
}

// GitHubConfig holds credentials for the checks API.
type GitHubConfig struct {
	Token     string `yaml:"token"`
	CheckName string `yaml:"check_name"`
	BaseURL   string `yaml:"base_url"`
	// DetailsURL is the frontend base used to link a check to its run.
	DetailsURL string `yaml:"details_url"`
}

// AWSConfig addresses the compute, log and object store backends.
type AWSConfig struct {
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	JobQueue      string `yaml:"job_queue"`
	CIJobQueue    string `yaml:"ci_job_queue"`
	JobDefinition string `yaml:"job_definition"`
	LogGroup      string `yaml:"log_group"`
}

// DispatchConfig controls how jobs are handed to the compute backend.
type DispatchConfig struct {
	Local   bool          `yaml:"local"`
	Timeout time.Duration `yaml:"timeout"`
}

// JobsConfig controls job status handling.
type JobsConfig struct {
	// StrictTransitions rejects status patches that are not in the
	// transition table. Off by default so operators can override statuses.
	StrictTransitions bool `yaml:"strict_transitions"`
}

// CoverageConfig controls coverage matching.
type CoverageConfig struct {
	ReportUnresolved bool `yaml:"report_unresolved"`
}

// ScanConfig schedules full source scans.
type ScanConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// NotifyConfig configures operator alert channels. Empty tokens disable a channel.
type NotifyConfig struct {
	Slack   ChannelConfig `yaml:"slack"`
	Discord ChannelConfig `yaml:"discord"`
}

// ChannelConfig is a token plus the channel to post into.
type ChannelConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// CacheConfig sizes the read-through cache guarding list endpoints.
type CacheConfig struct {
	TTL  time.Duration `yaml:"ttl"`
	Size int           `yaml:"size"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ExportsConfig holds export quota settings.
type ExportsConfig struct {
	MonthlyLimit int `yaml:"monthly_limit"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, unmarshals YAML bytes and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Stack == "" {
		c.Stack = "batch"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = strings.ReplaceAll(c.Stack, "-", "_")
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = c.Stack + ".db"
	}
	if c.GitHub.CheckName == "" {
		c.GitHub.CheckName = "openaddresses/data"
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.AWS.CIJobQueue == "" {
		c.AWS.CIJobQueue = c.AWS.JobQueue
	}
	if c.AWS.LogGroup == "" {
		c.AWS.LogGroup = "/aws/batch/job"
	}
	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = 6 * time.Hour
	}
	if c.Scan.Schedule == "" {
		c.Scan.Schedule = "0 0 * * 0"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Minute
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 256
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5001
	}
	if c.Exports.MonthlyLimit == 0 {
		c.Exports.MonthlyLimit = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be mysql or sqlite", c.Database.Driver))
	}
	if !c.Dispatch.Local {
		if c.AWS.JobQueue == "" {
			errs = append(errs, "aws.job_queue is required unless dispatch.local is set")
		}
		if c.AWS.JobDefinition == "" {
			errs = append(errs, "aws.job_definition is required unless dispatch.local is set")
		}
	}
	if c.Dispatch.Timeout < 0 {
		errs = append(errs, "dispatch.timeout must not be negative")
	}
	if c.Notify.Slack.Token != "" && c.Notify.Slack.Channel == "" {
		errs = append(errs, "notify.slack.channel is required when a slack token is set")
	}
	if c.Notify.Discord.Token != "" && c.Notify.Discord.Channel == "" {
		errs = append(errs, "notify.discord.channel is required when a discord token is set")
	}
	if c.Exports.MonthlyLimit < 0 {
		errs = append(errs, "exports.monthly_limit must not be negative")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
