// Package config provides configuration loading and management for the
// fantastic-router process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fantastic-router/fantastic-router/llm"
)

// Config represents the complete process configuration. The site
// configuration (routes, entities, schema) lives in its own file referenced
// by Site.Path and is managed by the site package.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Datastore DatastoreConfig `yaml:"datastore"`
	Cache     CacheConfig     `yaml:"cache"`
	NATS      NATSConfig      `yaml:"nats"`
	Site      SiteConfig      `yaml:"site"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `yaml:"addr"`
}

// LLMConfig configures the language model endpoint chain
type LLMConfig struct {
	// Endpoints are tried in order until one succeeds
	Endpoints []llm.EndpointConfig `yaml:"endpoints"`
	// Timeout is the maximum time to wait for one understanding call
	Timeout time.Duration `yaml:"timeout"`
}

// DatastoreConfig configures the entity lookup backend
type DatastoreConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver string `yaml:"driver"`
	// DSN is the driver-specific connection string
	DSN string `yaml:"dsn"`
}

// CacheConfig configures the request cache
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend string `yaml:"backend"`
	// RedisURL is required when Backend is "redis"
	RedisURL string `yaml:"redis_url"`
	// TTL is how long finished plans stay cached
	TTL time.Duration `yaml:"ttl"`
	// MaxEntries caps the memory backend
	MaxEntries int `yaml:"max_entries"`
}

// NATSConfig configures planned-action event publishing
type NATSConfig struct {
	// URL is the NATS server URL (empty = events disabled)
	URL string `yaml:"url"`
	// Subject overrides the default event subject
	Subject string `yaml:"subject"`
}

// SiteConfig points at the site configuration file
type SiteConfig struct {
	// Path is the site configuration YAML file
	Path string `yaml:"path"`
	// Watch reloads the site configuration when the file changes
	Watch bool `yaml:"watch"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		LLM: LLMConfig{
			Endpoints: []llm.EndpointConfig{
				{
					Provider: "ollama",
					Model:    "qwen2.5-coder:32b",
				},
			},
			Timeout: 30 * time.Second,
		},
		Datastore: DatastoreConfig{
			Driver: "sqlite",
			DSN:    "fantastic-router.db",
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 1024,
		},
		Site: SiteConfig{
			Path:  "site.yaml",
			Watch: true,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if len(c.LLM.Endpoints) == 0 {
		return fmt.Errorf("llm.endpoints must not be empty")
	}
	for i, ep := range c.LLM.Endpoints {
		if ep.Provider == "" {
			return fmt.Errorf("llm.endpoints[%d].provider is required", i)
		}
		if ep.Model == "" {
			return fmt.Errorf("llm.endpoints[%d].model is required", i)
		}
	}
	switch c.Datastore.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("datastore.driver must be postgres or sqlite, got %q", c.Datastore.Driver)
	}
	if c.Datastore.DSN == "" {
		return fmt.Errorf("datastore.dsn is required")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Site.Path == "" {
		return fmt.Errorf("site.path is required")
	}
	return nil
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

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}

	if len(other.LLM.Endpoints) > 0 {
		c.LLM.Endpoints = other.LLM.Endpoints
	}
	if other.LLM.Timeout != 0 {
		c.LLM.Timeout = other.LLM.Timeout
	}

	if other.Datastore.Driver != "" {
		c.Datastore.Driver = other.Datastore.Driver
	}
	if other.Datastore.DSN != "" {
		c.Datastore.DSN = other.Datastore.DSN
	}

	if other.Cache.Backend != "" {
		c.Cache.Backend = other.Cache.Backend
	}
	if other.Cache.RedisURL != "" {
		c.Cache.RedisURL = other.Cache.RedisURL
	}
	if other.Cache.TTL != 0 {
		c.Cache.TTL = other.Cache.TTL
	}
	if other.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}

	if other.Site.Path != "" {
		c.Site.Path = other.Site.Path
	}
	if other.Site.Watch {
		c.Site.Watch = true
	}
}
