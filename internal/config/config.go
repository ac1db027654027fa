// Package config provides YAML-based configuration loading for Stagehand.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler using time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level Stagehand configuration, loaded from config.yaml.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Prober    ProberConfig    `yaml:"prober"`
	Relay     RelayConfig     `yaml:"relay"`
	Artifacts ArtifactConfig  `yaml:"artifacts"`
	Planner   PlannerConfig   `yaml:"planner"`
}

// DBConfig holds connection settings for the MySQL server.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// SchedulerConfig controls the dispatch loop.
type SchedulerConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	Interval      Duration      `yaml:"interval"`
	Cron          string        `yaml:"cron"`
	StaggerDelay  Duration      `yaml:"stagger_delay"`
	ProxyWindow   int           `yaml:"proxy_window"`
	EngineURL     string        `yaml:"engine_url"`
}

// EngineConfig controls the execution engine service.
type EngineConfig struct {
	Port        int  `yaml:"port"`
	MaxSessions int  `yaml:"max_sessions"`
	QueueDepth  int  `yaml:"queue_depth"`
	Headless    bool `yaml:"headless"`
	Trace       bool `yaml:"trace"`
}

// ProberConfig controls the proxy health prober.
type ProberConfig struct {
	Interval      Duration      `yaml:"interval"`
	Timeout       Duration      `yaml:"timeout"`
	TargetURL     string        `yaml:"target_url"`
	BatchSize     int           `yaml:"batch_size"`
	FailThreshold int           `yaml:"fail_threshold"`
}

// RelayConfig controls the session synchronizer.
type RelayConfig struct {
	Port int `yaml:"port"`
}

// ArtifactConfig controls where run traces are written.
type ArtifactConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// S3Config holds optional S3-compatible upload settings. An empty endpoint
// disables the upload path entirely.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// PlannerConfig selects the plan source for items that carry no plan.
// Mode is "heuristic" (default) or "openai".
type PlannerConfig struct {
	Mode    string `yaml:"mode"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with all defaults applied and no file read.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Database == "" {
		c.DB.Database = "stagehand"
	}
	if c.Scheduler.BatchSize == 0 {
		c.Scheduler.BatchSize = 10
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = Duration(15 * time.Second)
	}
	if c.Scheduler.StaggerDelay == 0 {
		c.Scheduler.StaggerDelay = Duration(500 * time.Millisecond)
	}
	if c.Scheduler.ProxyWindow == 0 {
		c.Scheduler.ProxyWindow = 20
	}
	if c.Scheduler.EngineURL == "" {
		c.Scheduler.EngineURL = "http://127.0.0.1:8700"
	}
	if c.Engine.Port == 0 {
		c.Engine.Port = 8700
	}
	if c.Engine.MaxSessions == 0 {
		c.Engine.MaxSessions = 4
	}
	if c.Engine.QueueDepth == 0 {
		c.Engine.QueueDepth = 16
	}
	if c.Prober.Interval == 0 {
		c.Prober.Interval = Duration(time.Minute)
	}
	if c.Prober.Timeout == 0 {
		c.Prober.Timeout = Duration(10 * time.Second)
	}
	if c.Prober.TargetURL == "" {
		c.Prober.TargetURL = "https://www.gstatic.com/generate_204"
	}
	if c.Prober.BatchSize == 0 {
		c.Prober.BatchSize = 50
	}
	if c.Prober.FailThreshold == 0 {
		c.Prober.FailThreshold = 3
	}
	if c.Relay.Port == 0 {
		c.Relay.Port = 8701
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "artifacts"
	}
	if c.Planner.Mode == "" {
		c.Planner.Mode = "heuristic"
	}
	if c.Planner.Model == "" {
		c.Planner.Model = "gpt-4o-mini"
	}
}

// validate checks that all provided values are consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Scheduler.BatchSize < 0 {
		errs = append(errs, "scheduler.batch_size must not be negative")
	}
	if c.Prober.Timeout > c.Prober.Interval {
		errs = append(errs, "prober.timeout must not exceed prober.interval")
	}
	switch c.Planner.Mode {
	case "heuristic", "openai":
	default:
		errs = append(errs, fmt.Sprintf("planner.mode %q is not recognized", c.Planner.Mode))
	}
	if c.Artifacts.S3.Endpoint != "" {
		if strings.Contains(c.Artifacts.S3.Endpoint, "://") {
			errs = append(errs, "artifacts.s3.endpoint must not include scheme")
		}
		if c.Artifacts.S3.Bucket == "" {
			errs = append(errs, "artifacts.s3.bucket is required when endpoint is set")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
