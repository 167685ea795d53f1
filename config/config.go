// Package config provides configuration loading and management for Semflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Semflow configuration
type Config struct {
	Agents    AgentsConfig    `yaml:"agents"`
	Macros    MacrosConfig    `yaml:"macros"`
	Guideline GuidelineConfig `yaml:"guideline"`
	Fabric    FabricConfig    `yaml:"fabric"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Journal   JournalConfig   `yaml:"journal"`
}

// AgentsConfig configures the built-in agent roles
type AgentsConfig struct {
	// Concurrency is the per-agent concurrent message cap
	Concurrency int `yaml:"concurrency"`
	// Timeout is the per-message execution deadline
	Timeout time.Duration `yaml:"timeout"`
	// Roles optionally overrides settings for individual roles
	Roles map[string]RoleConfig `yaml:"roles"`
}

// RoleConfig overrides agent settings for one role
type RoleConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MacrosConfig configures macro definition loading
type MacrosConfig struct {
	// Path is the macro definitions YAML file (empty = built-ins only)
	Path string `yaml:"path"`
	// RetryDelay is the pause between stage retry attempts
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// GuidelineConfig configures guideline discovery
type GuidelineConfig struct {
	// Root is the top directory of the guideline hierarchy
	// (auto-detected from git if empty)
	Root string `yaml:"root"`
	// Watch enables filesystem invalidation of the guideline cache
	Watch bool `yaml:"watch"`
	// DebounceInterval batches rapid file events before invalidating
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// FabricConfig configures context retrieval
type FabricConfig struct {
	// RetrieveLimit caps how many packets a retrieval returns
	RetrieveLimit int `yaml:"retrieve_limit"`
}

// TelemetryConfig configures monitoring sinks
type TelemetryConfig struct {
	// NATSURL enables event publishing when set (empty = disabled)
	NATSURL string `yaml:"nats_url"`
	// SubjectPrefix prefixes published event subjects
	SubjectPrefix string `yaml:"subject_prefix"`
	// PromNamespace namespaces the Prometheus metrics
	PromNamespace string `yaml:"prom_namespace"`
	// PromListen enables the metrics endpoint when set (e.g. ":9102")
	PromListen string `yaml:"prom_listen"`
}

// JournalConfig configures task history persistence
type JournalConfig struct {
	// Path is the sqlite database file (empty = persistence disabled)
	Path string `yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Agents: AgentsConfig{
			Concurrency: 2,
			Timeout:     60 * time.Second,
		},
		Macros: MacrosConfig{
			Path:       "",
			RetryDelay: 0,
		},
		Guideline: GuidelineConfig{
			Root:             "", // Auto-detect
			Watch:            false,
			DebounceInterval: 2 * time.Second,
		},
		Fabric: FabricConfig{
			RetrieveLimit: 5,
		},
		Telemetry: TelemetryConfig{
			SubjectPrefix: "semflow.event",
			PromNamespace: "semflow",
		},
		Journal: JournalConfig{
			Path: "",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Agents.Concurrency < 1 {
		return fmt.Errorf("agents.concurrency must be at least 1")
	}
	if c.Agents.Timeout < time.Second {
		return fmt.Errorf("agents.timeout must be at least 1s")
	}
	for role, rc := range c.Agents.Roles {
		if rc.Concurrency < 0 {
			return fmt.Errorf("agents.roles.%s.concurrency must not be negative", role)
		}
		if rc.Timeout < 0 {
			return fmt.Errorf("agents.roles.%s.timeout must not be negative", role)
		}
	}
	if c.Fabric.RetrieveLimit < 1 {
		return fmt.Errorf("fabric.retrieve_limit must be at least 1")
	}
	if c.Guideline.DebounceInterval < 0 {
		return fmt.Errorf("guideline.debounce_interval must not be negative")
	}
	if c.Macros.RetryDelay < 0 {
		return fmt.Errorf("macros.retry_delay must not be negative")
	}
	return nil
}

// RoleConcurrency returns the effective concurrency for a role
func (c *Config) RoleConcurrency(role string) int {
	if rc, ok := c.Agents.Roles[role]; ok && rc.Concurrency > 0 {
		return rc.Concurrency
	}
	return c.Agents.Concurrency
}

// RoleTimeout returns the effective timeout for a role
func (c *Config) RoleTimeout(role string) time.Duration {
	if rc, ok := c.Agents.Roles[role]; ok && rc.Timeout > 0 {
		return rc.Timeout
	}
	return c.Agents.Timeout
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Agents
	if other.Agents.Concurrency != 0 {
		c.Agents.Concurrency = other.Agents.Concurrency
	}
	if other.Agents.Timeout != 0 {
		c.Agents.Timeout = other.Agents.Timeout
	}
	if len(other.Agents.Roles) > 0 {
		if c.Agents.Roles == nil {
			c.Agents.Roles = make(map[string]RoleConfig)
		}
		for role, rc := range other.Agents.Roles {
			c.Agents.Roles[role] = rc
		}
	}

	// Macros
	if other.Macros.Path != "" {
		c.Macros.Path = other.Macros.Path
	}
	if other.Macros.RetryDelay != 0 {
		c.Macros.RetryDelay = other.Macros.RetryDelay
	}

	// Guideline
	if other.Guideline.Root != "" {
		c.Guideline.Root = other.Guideline.Root
	}
	if other.Guideline.Watch {
		c.Guideline.Watch = true
	}
	if other.Guideline.DebounceInterval != 0 {
		c.Guideline.DebounceInterval = other.Guideline.DebounceInterval
	}

	// Fabric
	if other.Fabric.RetrieveLimit != 0 {
		c.Fabric.RetrieveLimit = other.Fabric.RetrieveLimit
	}

	// Telemetry
	if other.Telemetry.NATSURL != "" {
		c.Telemetry.NATSURL = other.Telemetry.NATSURL
	}
	if other.Telemetry.SubjectPrefix != "" {
		c.Telemetry.SubjectPrefix = other.Telemetry.SubjectPrefix
	}
	if other.Telemetry.PromNamespace != "" {
		c.Telemetry.PromNamespace = other.Telemetry.PromNamespace
	}
	if other.Telemetry.PromListen != "" {
		c.Telemetry.PromListen = other.Telemetry.PromListen
	}

	// Journal
	if other.Journal.Path != "" {
		c.Journal.Path = other.Journal.Path
	}
}
