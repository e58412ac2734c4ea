// Package config provides configuration loading and management for the
// dockerhood service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// defaultUpdateInterval is the periodic status refresh cadence
	defaultUpdateInterval = 5 * time.Second

	// defaultResponsiveness bounds how long control loops wait between
	// checks for new work or a stop request
	defaultResponsiveness = 500 * time.Millisecond

	// defaultSweepInterval is how often the request reaper runs
	defaultSweepInterval = time.Hour

	// defaultDiscardAfter is how long requests are retained
	defaultDiscardAfter = 24 * time.Hour
)

// projectNameMask matches valid project names; the project name is used as a
// prefix for every container and image this deployment owns
var projectNameMask = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Project is the deployment name; every container and image name is
	// prefixed with it
	Project string `yaml:"project"`

	// LinkerHost is the name of the host expected to run the linker
	LinkerHost string `yaml:"linkerHost"`

	// LinkerPort is the static-network port bound on the linker container
	LinkerPort int `yaml:"linkerPort,omitempty"`

	// Hosts lists the remote Docker hosts of the deployment
	Hosts []HostConfig `yaml:"hosts"`

	// Queues lists the worker queues
	Queues []QueueConfig `yaml:"queues"`

	// Requests holds request retention settings
	Requests *RequestsConfig `yaml:"requests,omitempty"`

	// Status holds status cache settings
	Status *StatusConfig `yaml:"status,omitempty"`

	// Responsiveness bounds the control-loop polling granularity (e.g. "500ms")
	Responsiveness string `yaml:"responsiveness,omitempty"`
}

// HostConfig describes one remote Docker host
type HostConfig struct {
	// Name is the identifier used in requests and in the status snapshot
	Name string `yaml:"name"`

	// Endpoint is the Docker engine endpoint (e.g. "tcp://node01:2375")
	Endpoint string `yaml:"endpoint"`
}

// QueueConfig describes one worker queue
type QueueConfig struct {
	// Name is the queue identifier
	Name string `yaml:"name"`

	// Port is the port bound for this queue on the linker container
	Port int `yaml:"port,omitempty"`
}

// RequestsConfig defines request retention settings
type RequestsConfig struct {
	// SweepInterval is how often the reaper runs (e.g. "1h")
	SweepInterval string `yaml:"sweepInterval,omitempty"`

	// DiscardAfter is how long a request is retained (e.g. "24h")
	DiscardAfter string `yaml:"discardAfter,omitempty"`
}

// StatusConfig defines status cache settings
type StatusConfig struct {
	// UpdateInterval is the periodic refresh cadence (e.g. "5s")
	UpdateInterval string `yaml:"updateInterval,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// NormalizeQueueName canonicalizes a queue name the way queue names are
// stored: lower-case with spaces and underscores folded to hyphens
func NormalizeQueueName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	return strings.ReplaceAll(name, "_", "-")
}

// Host returns the host with the given name, or false if it is not configured
func (c *Config) Host(name string) (HostConfig, bool) {
	name = strings.ToLower(name)
	for _, h := range c.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return HostConfig{}, false
}

// Queue returns the queue with the given name, or false if it is not
// configured. The name is normalized before lookup.
func (c *Config) Queue(name string) (QueueConfig, bool) {
	name = NormalizeQueueName(name)
	for _, q := range c.Queues {
		if q.Name == name {
			return q, true
		}
	}
	return QueueConfig{}, false
}

// UpdateInterval returns the periodic status refresh cadence
func (c *Config) UpdateInterval() time.Duration {
	if c.Status != nil {
		if d, ok := parseDuration(c.Status.UpdateInterval); ok {
			return d
		}
	}
	return defaultUpdateInterval
}

// ResponsivenessInterval returns the control-loop polling granularity
func (c *Config) ResponsivenessInterval() time.Duration {
	if d, ok := parseDuration(c.Responsiveness); ok {
		return d
	}
	return defaultResponsiveness
}

// SweepInterval returns how often the request reaper runs
func (c *Config) SweepInterval() time.Duration {
	if c.Requests != nil {
		if d, ok := parseDuration(c.Requests.SweepInterval); ok {
			return d
		}
	}
	return defaultSweepInterval
}

// DiscardAfter returns how long requests are retained before being reaped
func (c *Config) DiscardAfter() time.Duration {
	if c.Requests != nil {
		if d, ok := parseDuration(c.Requests.DiscardAfter); ok {
			return d
		}
	}
	return defaultDiscardAfter
}

// parseDuration parses an optional duration field; invalid values fall back
// to the caller's default
func parseDuration(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Project == "" {
		return fmt.Errorf("project name must be configured")
	}
	if !projectNameMask.MatchString(c.Project) {
		return fmt.Errorf("invalid project name %q: must be lower-case alphanumeric with hyphens", c.Project)
	}

	if len(c.Hosts) == 0 {
		return fmt.Errorf("at least one host must be configured")
	}
	seenHosts := make(map[string]bool, len(c.Hosts))
	for i, h := range c.Hosts {
		if h.Name == "" {
			return fmt.Errorf("host %d: name must be set", i)
		}
		if h.Name != strings.ToLower(h.Name) {
			return fmt.Errorf("host %q: name must be lower-case", h.Name)
		}
		if h.Endpoint == "" {
			return fmt.Errorf("host %q: endpoint must be set", h.Name)
		}
		if seenHosts[h.Name] {
			return fmt.Errorf("host %q: duplicate host name", h.Name)
		}
		seenHosts[h.Name] = true
	}

	if c.LinkerHost == "" {
		return fmt.Errorf("linkerHost must be configured")
	}
	if !seenHosts[c.LinkerHost] {
		return fmt.Errorf("linkerHost %q is not a configured host", c.LinkerHost)
	}

	seenQueues := make(map[string]bool, len(c.Queues))
	for i, q := range c.Queues {
		if q.Name == "" {
			return fmt.Errorf("queue %d: name must be set", i)
		}
		if q.Name != NormalizeQueueName(q.Name) {
			return fmt.Errorf("queue %q: name must be lower-case with hyphens", q.Name)
		}
		if seenQueues[q.Name] {
			return fmt.Errorf("queue %q: duplicate queue name", q.Name)
		}
		seenQueues[q.Name] = true
	}

	return nil
}
