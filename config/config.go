// Package config loads and validates the server configuration. A single
// Config is constructed at startup and passed by reference into every
// component; there is no ambient global state.
package config

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Transport modes.
const (
	TransportStdio   = "stdio"
	TransportNetwork = "network"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

const (
	// DefaultAPITimeoutSeconds bounds a single upstream HTTP request.
	DefaultAPITimeoutSeconds = 30
	// DefaultCacheTTLSeconds is the result cache entry lifetime.
	DefaultCacheTTLSeconds = 300
	// DefaultRequestTimeoutSeconds bounds one tool dispatch end to end.
	DefaultRequestTimeoutSeconds = 60
)

// Config is the root server configuration.
type Config struct {
	APIServer APIServer `json:"api_server" yaml:"api_server"`
	Auth      Auth      `json:"auth" yaml:"auth"`
	Transport string    `json:"transport,omitempty" yaml:"transport,omitempty" validate:"omitempty,oneof=stdio network"`
	Network   Network   `json:"network,omitempty" yaml:"network,omitempty"`
	Cache     Cache     `json:"cache,omitempty" yaml:"cache,omitempty"`
	Analysis  Analysis  `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	// RequestTimeoutSeconds bounds a single tool call; expired calls
	// return a TimeoutError result.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty" validate:"omitempty,gte=1"`
	// MetricsAddr, when set, exposes Prometheus metrics on this address.
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

// APIServer locates the upstream Stemformatics data API.
type APIServer struct {
	BaseURL        string `json:"base_url" yaml:"base_url" validate:"required,url"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" validate:"omitempty,gte=1"`
}

// Auth holds the read-only upstream credentials.
type Auth struct {
	UseAuth bool   `json:"use_auth,omitempty" yaml:"use_auth,omitempty"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// Network configures the framed TCP transport.
type Network struct {
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,gte=1,lte=65535"`
}

// Cache configures the result cache.
type Cache struct {
	Backend    string `json:"backend,omitempty" yaml:"backend,omitempty" validate:"omitempty,oneof=memory redis"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty" validate:"omitempty,gte=1"`
	RedisAddr  string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	// RedisPrefix namespaces cache keys when several servers share one Redis.
	RedisPrefix string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty"`
}

// Analysis configures the statistics engine.
type Analysis struct {
	// MultipleTestingCorrection opts in to Benjamini-Hochberg adjustment of
	// differential expression and enrichment p-values. Never applied
	// automatically.
	MultipleTestingCorrection bool `json:"multiple_testing_correction,omitempty" yaml:"multiple_testing_correction,omitempty"`
}

// Load reads the configuration from a YAML or JSON file, expanding
// environment variables, applies defaults and validates.
func Load(file string) (*Config, error) {
	if file == "" {
		return nil, errors.New("configuration file is required")
	}
	cfg := new(Config)
	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to load configuration from %q", file)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportStdio
	}
	if c.APIServer.TimeoutSeconds == 0 {
		c.APIServer.TimeoutSeconds = DefaultAPITimeoutSeconds
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = DefaultCacheTTLSeconds
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
}

// Validate checks structural constraints plus the cross-field rules that
// cannot be expressed as tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if c.Auth.UseAuth && c.Auth.APIKey == "" {
		return errors.New("auth.api_key is required when auth.use_auth is set")
	}
	if c.Transport == TransportNetwork {
		if c.Network.Host == "" || c.Network.Port == 0 {
			return errors.New("network.host and network.port are required when transport is network")
		}
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr is required when cache.backend is redis")
	}
	return nil
}
