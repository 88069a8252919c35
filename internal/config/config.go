// Package config provides YAML-based configuration loading for Switchyard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" or "5m" parse
// with time.ParseDuration semantics.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level Switchyard configuration, loaded from switchyard.yaml.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	DB         DBConfig         `yaml:"db"`
	Agent      AgentConfig      `yaml:"agent"`
	Stream     StreamConfig     `yaml:"stream"`
	Automation AutomationConfig `yaml:"automation"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DBConfig selects and configures the GORM backend. Driver is "sqlite"
// (default, Path) or "mysql" (DSN).
type DBConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite database file
	DSN    string `yaml:"dsn"`  // mysql DSN
}

// AgentConfig describes the interactive CLI agent subprocess.
type AgentConfig struct {
	Binary      string        `yaml:"binary"`
	Args        []string      `yaml:"args"`
	Rows        uint16        `yaml:"rows"`
	Cols        uint16        `yaml:"cols"`
	GracePeriod Duration      `yaml:"grace_period"` // SIGTERM-to-SIGKILL window on stop
	SettleDelay Duration      `yaml:"settle_delay"` // wait after spawn before injecting automation input
}

// StreamConfig tunes the multiplexer buffers.
type StreamConfig struct {
	HistorySize      int `yaml:"history_size"`      // replay ring capacity per session
	SubscriberBuffer int `yaml:"subscriber_buffer"` // per-subscriber delivery queue depth
}

// AutomationConfig controls the trigger pipeline.
type AutomationConfig struct {
	ProtectedBranches []string      `yaml:"protected_branches"`
	SkipMarker        string        `yaml:"skip_marker"`
	Command           string        `yaml:"command"` // slash command dispatched on a qualifying event
	DispatchURL       string        `yaml:"dispatch_url"`
	DispatchTimeout   Duration      `yaml:"dispatch_timeout"`
	LockTTL           Duration      `yaml:"lock_ttl"` // crash-recovery sweep reclaims locks older than this
	SweepSchedule     string        `yaml:"sweep_schedule"`
	FallbackFile      string        `yaml:"fallback_file"`
	GitHub            GitHubConfig  `yaml:"github"`
}

// GitHubConfig enables polling a remote repository for push events as an
// additional trigger source. The local git-hook path needs none of this.
type GitHubConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Owner        string `yaml:"owner"`
	Repo         string `yaml:"repo"`
	Token        string `yaml:"token"`
	PollSchedule string `yaml:"poll_schedule"`
	ProjectDir   string `yaml:"project_dir"` // local checkout the dispatched command targets
}

// NotifyConfig holds optional chat notification targets for automation
// run outcomes. Both are best-effort.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig configures the Discord notifier.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
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
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8484
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "switchyard.db"
	}
	if c.Agent.Binary == "" {
		c.Agent.Binary = "claude"
	}
	if c.Agent.Rows == 0 {
		c.Agent.Rows = 50
	}
	if c.Agent.Cols == 0 {
		c.Agent.Cols = 200
	}
	if c.Agent.GracePeriod == 0 {
		c.Agent.GracePeriod = Duration(10 * time.Second)
	}
	if c.Agent.SettleDelay == 0 {
		c.Agent.SettleDelay = Duration(2 * time.Second)
	}
	if c.Stream.HistorySize == 0 {
		c.Stream.HistorySize = 256
	}
	if c.Stream.SubscriberBuffer == 0 {
		c.Stream.SubscriberBuffer = 64
	}
	if len(c.Automation.ProtectedBranches) == 0 {
		c.Automation.ProtectedBranches = []string{"main", "master"}
	}
	if c.Automation.SkipMarker == "" {
		c.Automation.SkipMarker = "[skip-agent]"
	}
	if c.Automation.Command == "" {
		c.Automation.Command = "/review-push"
	}
	if c.Automation.DispatchURL == "" {
		c.Automation.DispatchURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	if c.Automation.DispatchTimeout == 0 {
		c.Automation.DispatchTimeout = Duration(30 * time.Second)
	}
	if c.Automation.LockTTL == 0 {
		c.Automation.LockTTL = Duration(10 * time.Minute)
	}
	if c.Automation.SweepSchedule == "" {
		c.Automation.SweepSchedule = "*/5 * * * *"
	}
	if c.Automation.FallbackFile == "" {
		c.Automation.FallbackFile = "pending-commands.txt"
	}
	if c.Automation.GitHub.PollSchedule == "" {
		c.Automation.GitHub.PollSchedule = "* * * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.DB.Driver != "sqlite" && c.DB.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("db.driver %q is not sqlite or mysql", c.DB.Driver))
	}
	if c.DB.Driver == "mysql" && c.DB.DSN == "" {
		errs = append(errs, "db.dsn is required for the mysql driver")
	}
	if !strings.HasPrefix(c.Automation.Command, "/") {
		errs = append(errs, fmt.Sprintf("automation.command %q must start with /", c.Automation.Command))
	}
	if c.Automation.GitHub.Enabled {
		if c.Automation.GitHub.Owner == "" || c.Automation.GitHub.Repo == "" {
			errs = append(errs, "automation.github.owner and repo are required when polling is enabled")
		}
		if c.Automation.GitHub.ProjectDir == "" {
			errs = append(errs, "automation.github.project_dir is required when polling is enabled")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
