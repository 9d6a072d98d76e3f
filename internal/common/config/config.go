// Package config provides configuration management for the kaiak host.
// It supports loading configuration from programmatic defaults, a config
// file, and environment variables, in that order of increasing
// precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
)

// Transport selects how the host accepts JSON-RPC connections.
type Transport string

const (
	TransportStdio  Transport = "stdio"
	TransportSocket Transport = "socket"
)

// Config holds all configuration sections for the kaiak host.
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Session   SessionConfig   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// TransportConfig controls how the JSON-RPC channel is exposed.
type TransportConfig struct {
	Kind       Transport `mapstructure:"kind"`       // stdio or socket
	SocketPath string    `mapstructure:"socketPath"` // required when kind=socket
}

// SessionConfig controls session/lock lifetime defaults.
type SessionConfig struct {
	// MaxSessions bounds the number of concurrently registered sessions;
	// 0 means unbounded.
	MaxSessions int `mapstructure:"maxSessions"`
	// LockMaxAge is how long a lock may be held before the janitor
	// reclaims it. Default 1 hour.
	LockMaxAge time.Duration `mapstructure:"lockMaxAge"`
	// InteractionTimeout bounds how long a rendezvous slot waits for a
	// client response before it is cancelled. Default 60 seconds.
	InteractionTimeout time.Duration `mapstructure:"interactionTimeout"`
	// JanitorInterval is how often the lock table janitor sweeps.
	JanitorInterval time.Duration `mapstructure:"janitorInterval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// DockerConfig configures the container-backed agent factory provider.
type DockerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Image   string `mapstructure:"image"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint"` // empty disables export
	ServiceName  string `mapstructure:"serviceName"`
}

// AdminConfig configures the auxiliary health/status HTTP surface.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// NotifyConfig configures the notification sink backend.
type NotifyConfig struct {
	Backend   string `mapstructure:"backend"`   // "channel" or "nats"
	URL       string `mapstructure:"url"`       // nats server URL, used only when backend=nats
	Namespace string `mapstructure:"namespace"` // subject namespace for the nats backend
}

// Load reads configuration from (in increasing precedence order) built-in
// defaults, an optional config file, and KAIAK_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("KAIAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = os.Getenv("KAIAK_CONFIG_PATH")
	}
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".kaiak", "config.yaml")
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		}
	}

	bindLegacyEnvAliases(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.kind", string(TransportStdio))
	v.SetDefault("transport.socketPath", "")

	v.SetDefault("session.maxSessions", 0)
	v.SetDefault("session.lockMaxAge", time.Hour)
	v.SetDefault("session.interactionTimeout", 60*time.Second)
	v.SetDefault("session.janitorInterval", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stderr")

	v.SetDefault("docker.enabled", false)
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.image", "")

	v.SetDefault("tracing.otlpEndpoint", "")
	v.SetDefault("tracing.serviceName", "kaiak")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.addr", "127.0.0.1:9700")

	v.SetDefault("notify.backend", "channel")
	v.SetDefault("notify.url", nats.DefaultURL)
	v.SetDefault("notify.namespace", "")
}

// bindLegacyEnvAliases wires the documented flat environment variable
// names, which don't follow the KAIAK_<SECTION>_<FIELD> shape viper's
// automatic binding would derive.
func bindLegacyEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"KAIAK_LOG_LEVEL":   "logging.level",
		"KAIAK_TRANSPORT":   "transport.kind",
		"KAIAK_SOCKET_PATH": "transport.socketPath",
	}
	for env, key := range aliases {
		if val, ok := os.LookupEnv(env); ok {
			v.Set(key, val)
		}
	}
	if val, ok := os.LookupEnv("KAIAK_MAX_SESSIONS"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			v.Set("session.maxSessions", n)
		}
	}
}
