// Package config loads pgslice settings from flags, PGSLICE_* environment
// variables and an optional YAML/TOML/JSON file, in that order of
// precedence.
//
// Typical usage from a cobra command:
//
//	v := config.NewViper()
//	cfg, err := config.Load(v, cmd.Flags())
//
// Tests pass a private FlagSet and use t.Setenv to keep runs hermetic.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable, e.g. PGSLICE_URL.
const EnvPrefix = "PGSLICE"

// Metrics selects and configures the metrics backend.
type Metrics struct {
	// Backend is "none", "prometheus" or "datadog".
	Backend        string `mapstructure:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	DatadogAddr    string `mapstructure:"datadog_addr"`
	// Job is the Pushgateway grouping key.
	Job string `mapstructure:"job"`
}

// Config is the full set of knobs for one invocation.
type Config struct {
	URL string `mapstructure:"url"`
	// Schema qualifies table arguments given without one.
	Schema      string        `mapstructure:"schema"`
	DryRun      bool          `mapstructure:"dry_run"`
	Verbose     bool          `mapstructure:"verbose"`
	LockTimeout string        `mapstructure:"lock_timeout"`
	BatchSize   int64         `mapstructure:"batch_size"`
	Sleep       time.Duration `mapstructure:"sleep"`
	Metrics     Metrics       `mapstructure:"metrics"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"config":          "config",
	"url":             "url",
	"schema":          "schema",
	"dry-run":         "dry_run",
	"verbose":         "verbose",
	"lock-timeout":    "lock_timeout",
	"batch-size":      "batch_size",
	"sleep":           "sleep",
	"metrics-backend": "metrics.backend",
	"pushgateway-url": "metrics.pushgateway_url",
	"datadog-addr":    "metrics.datadog_addr",
	"metrics-job":     "metrics.job",
}

// NewViper returns a viper instance with defaults and environment lookup
// configured.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("config", "")
	v.SetDefault("url", "")
	v.SetDefault("schema", "public")
	v.SetDefault("dry_run", false)
	v.SetDefault("verbose", false)
	v.SetDefault("lock_timeout", "5s")
	v.SetDefault("batch_size", 10000)
	v.SetDefault("sleep", "0s")
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.datadog_addr", "")
	v.SetDefault("metrics.job", "pgslice")
	return v
}

// RegisterFlags defines the global flags on fs. Command-specific flags
// (lock-timeout, batch-size, sleep) are defined by their commands under
// the names in flagKeys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file (yaml, toml or json)")
	fs.String("url", "", "Database URL (env PGSLICE_URL)")
	fs.String("schema", "public", "Schema for table names given without one")
	fs.Bool("dry-run", false, "Print statements without executing them")
	fs.Bool("verbose", false, "Debug logging")
	fs.String("metrics-backend", "none", "Metrics backend: none, prometheus or datadog")
	fs.String("pushgateway-url", "", "Prometheus Pushgateway URL")
	fs.String("datadog-addr", "", "DogStatsD address, e.g. 127.0.0.1:8125")
	fs.String("metrics-job", "pgslice", "Pushgateway job name")
}

// Load binds every known flag present in fs, reads the config file when one
// is named, and decodes the result.
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
