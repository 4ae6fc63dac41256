// Package config loads and validates the toolkit configuration file.
package config

import (
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
	"github.com/ObjectivityLtd/PSCI/internal/mailns"
	"github.com/ObjectivityLtd/PSCI/internal/tokens"
)

// Config represents the application configuration.
type Config struct {
	Environments   map[string]EnvironmentConfig `yaml:"environments"`
	Reporting      ReportingConfig              `yaml:"reporting"`
	MailNamespaces []NamespaceConfig            `yaml:"mail_namespaces,omitempty"`
	Source         *SourceConfig                `yaml:"source,omitempty"`
	Retry          RetryConfig                  `yaml:"retry,omitempty"`
	History        HistoryConfig                `yaml:"history,omitempty"`
	Daemon         DaemonConfig                 `yaml:"daemon,omitempty"`
	Logging        LoggingConfig                `yaml:"logging,omitempty"`
}

// EnvironmentConfig declares one deployment environment: its parent and its
// token values grouped by category.
type EnvironmentConfig struct {
	Inherits string                       `yaml:"inherits,omitempty"`
	Tokens   map[string]map[string]string `yaml:"tokens,omitempty"`
}

// ReportingConfig points at the reporting server's management API.
type ReportingConfig struct {
	URL              string `yaml:"url"`
	Token            string `yaml:"token,omitempty"`
	AuthHeaderPrefix string `yaml:"auth_header_prefix,omitempty"`
	ProjectFile      string `yaml:"project"`
	Overwrite        bool   `yaml:"overwrite,omitempty"`
	TimeoutSeconds   int    `yaml:"timeout_seconds,omitempty"`
}

// NamespaceConfig declares one mail namespace.
type NamespaceConfig struct {
	Name         string                    `yaml:"name"`
	InternalHost string                    `yaml:"internal_host"`
	ExternalHost string                    `yaml:"external_host,omitempty"`
	SSL          *bool                     `yaml:"ssl,omitempty"` // default true
	Exclude      []string                  `yaml:"exclude,omitempty"`
	Overrides    map[string]HostPairConfig `yaml:"overrides,omitempty"`
}

// HostPairConfig overrides hosts for one protocol.
type HostPairConfig struct {
	Internal string `yaml:"internal,omitempty"`
	External string `yaml:"external,omitempty"`
}

// SourceConfig points at a git repository holding the project and definitions.
type SourceConfig struct {
	URL    string      `yaml:"url"`
	Branch string      `yaml:"branch,omitempty"`
	Dir    string      `yaml:"dir,omitempty"` // local checkout directory
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig represents git authentication configuration.
type AuthConfig struct {
	Type     string `yaml:"type"` // "ssh", "token", "basic"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
}

// RetryConfig tunes step retry behavior.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts,omitempty"`
	BackoffSeconds int `yaml:"backoff_seconds,omitempty"`
}

// HistoryConfig locates the deployment event store.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// DaemonConfig configures scheduled and watched deployments.
type DaemonConfig struct {
	Listen          string           `yaml:"listen,omitempty"`
	Watch           bool             `yaml:"watch,omitempty"`
	DebounceSeconds int              `yaml:"debounce_seconds,omitempty"`
	Schedules       []ScheduleConfig `yaml:"schedules,omitempty"`
	NATS            NATSConfig       `yaml:"nats,omitempty"`
}

// ScheduleConfig is one cron-driven deployment.
type ScheduleConfig struct {
	Name        string `yaml:"name"`
	Cron        string `yaml:"cron"`
	Environment string `yaml:"environment"`
	DryRun      bool   `yaml:"dry_run,omitempty"`
}

// NATSConfig enables deployment event publishing to NATS.
type NATSConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load loads configuration from the specified file. Environment variables in
// the file body are expanded, so tokens and secrets can come from the process
// environment or a .env file.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.ConfigError("failed to read config file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}

	expanded := expandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.ConfigError("failed to parse config file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv substitutes ${NAME} references for variables that are actually
// set in the process environment. Anything else stays literal, so token
// expressions like ${database.Server} survive until resolution.
func expandEnv(body string) string {
	return os.Expand(body, func(name string) string {
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return "${" + name + "}"
	})
}

func (c *Config) applyDefaults() {
	if c.Reporting.AuthHeaderPrefix == "" {
		c.Reporting.AuthHeaderPrefix = "Bearer "
	}
	if c.Reporting.TimeoutSeconds == 0 {
		c.Reporting.TimeoutSeconds = 30
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BackoffSeconds == 0 {
		c.Retry.BackoffSeconds = 1
	}
	if c.History.Path == "" {
		c.History.Path = "psci-history.db"
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = ":9180"
	}
	if c.Daemon.DebounceSeconds == 0 {
		c.Daemon.DebounceSeconds = 2
	}
	if c.Source != nil && c.Source.Branch == "" {
		c.Source.Branch = "main"
	}
	c.Logging.Level = string(NormalizeLogLevel(c.Logging.Level))
	c.Logging.Format = string(NormalizeLogFormat(c.Logging.Format))
}

// EnvironmentNames returns configured environment names sorted.
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TokenTable builds the token table from the configured environments.
// Scripted values are registered by callers on top of the returned table.
func (c *Config) TokenTable() *tokens.Table {
	table := tokens.NewTable()
	for _, envName := range c.EnvironmentNames() {
		env := c.Environments[envName]
		table.AddEnvironment(envName, env.Inherits)
		for category, values := range env.Tokens {
			for name, value := range values {
				table.Set(envName, category, name, tokens.Lit(value))
			}
		}
	}
	return table
}

// Namespaces converts namespace configuration into mailns declarations.
func (c *Config) Namespaces() []mailns.Namespace {
	out := make([]mailns.Namespace, 0, len(c.MailNamespaces))
	for _, nc := range c.MailNamespaces {
		ns := mailns.Namespace{
			Name:         nc.Name,
			InternalHost: nc.InternalHost,
			ExternalHost: nc.ExternalHost,
			SSL:          nc.SSL == nil || *nc.SSL,
		}
		for _, p := range nc.Exclude {
			ns.Exclude = append(ns.Exclude, mailns.Protocol(p))
		}
		if len(nc.Overrides) > 0 {
			ns.Overrides = make(map[mailns.Protocol]mailns.HostPair, len(nc.Overrides))
			for proto, pair := range nc.Overrides {
				ns.Overrides[mailns.Protocol(proto)] = mailns.HostPair{
					Internal: pair.Internal,
					External: pair.External,
				}
			}
		}
		out = append(out, ns)
	}
	return out
}
