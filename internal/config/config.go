package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	Environment string `yaml:"app_env"`
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`

	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`

	RedisAddr     string   `yaml:"redis_addr"`
	RedisChannels []string `yaml:"redis_channels"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaGroupID string   `yaml:"kafka_group_id"`
	KafkaTopics  []string `yaml:"kafka_topics"`

	NotifyChannels []string `yaml:"notify_channels"`

	ViewCacheTTLSeconds   int      `yaml:"view_cache_ttl_seconds"`
	RateLimitCapacity     int      `yaml:"rate_limit_capacity"`
	RateLimitRefillPerSec float64  `yaml:"rate_limit_refill_per_sec"`
	MaxBodyBytes          int64    `yaml:"max_body_bytes"`
	IPAllowlist           []string `yaml:"ip_allowlist"`

	AuditKey string `yaml:"audit_key"`

	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
	TLSCA   string `yaml:"tls_ca"`
}

// ViewCacheTTL is the lifetime of a cached dashboard view.
func (c *Config) ViewCacheTTL() time.Duration {
	return time.Duration(c.ViewCacheTTLSeconds) * time.Second
}

func defaults() *Config {
	return &Config{
		HTTPAddr:              ":8080",
		LogLevel:              "info",
		DatabaseDriver:        DriverPostgres,
		KafkaGroupID:          "chargeback-dashboard",
		ViewCacheTTLSeconds:   30,
		RateLimitCapacity:     120,
		RateLimitRefillPerSec: 20,
		MaxBodyBytes:          64 << 10,
		AuditKey:              "audit:dashboard",
	}
}

// Load resolves configuration as defaults, then the YAML file named by
// CHARGEBACK_CONFIG (config.yaml when unset; a missing file is fine), then
// environment variables, then Validate.
func Load() (*Config, error) {
	path := os.Getenv("CHARGEBACK_CONFIG")
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}

	cfg := defaults()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"APP_ENV":         &c.Environment,
		"HTTP_ADDR":       &c.HTTPAddr,
		"LOG_LEVEL":       &c.LogLevel,
		"DATABASE_DRIVER": &c.DatabaseDriver,
		"DATABASE_URL":    &c.DatabaseURL,
		"REDIS_ADDR":      &c.RedisAddr,
		"KAFKA_GROUP_ID":  &c.KafkaGroupID,
		"AUDIT_KEY":       &c.AuditKey,
		"TLS_CERT":        &c.TLSCert,
		"TLS_KEY":         &c.TLSKey,
		"TLS_CA":          &c.TLSCA,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	lists := map[string]*[]string{
		"REDIS_CHANNELS":  &c.RedisChannels,
		"KAFKA_BROKERS":   &c.KafkaBrokers,
		"KAFKA_TOPICS":    &c.KafkaTopics,
		"NOTIFY_CHANNELS": &c.NotifyChannels,
		"IP_ALLOWLIST":    &c.IPAllowlist,
	}
	for name, dst := range lists {
		if v, ok := lookup(name); ok {
			*dst = splitList(v)
		}
	}

	var invalid []string
	if v, ok := lookup("VIEW_CACHE_TTL_SECONDS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			invalid = append(invalid, "VIEW_CACHE_TTL_SECONDS")
		}
		c.ViewCacheTTLSeconds = n
	}
	if v, ok := lookup("RATE_LIMIT_CAPACITY"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			invalid = append(invalid, "RATE_LIMIT_CAPACITY")
		}
		c.RateLimitCapacity = n
	}
	if v, ok := lookup("RATE_LIMIT_REFILL_PER_SEC"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			invalid = append(invalid, "RATE_LIMIT_REFILL_PER_SEC")
		}
		c.RateLimitRefillPerSec = f
	}
	if v, ok := lookup("MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			invalid = append(invalid, "MAX_BODY_BYTES")
		}
		c.MaxBodyBytes = n
	}

	if len(invalid) > 0 {
		return errors.New("invalid environment variables: " + strings.Join(invalid, ", "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaGroupID == "" {
		missing = append(missing, "KAFKA_GROUP_ID")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}
	if c.MaxBodyBytes < 0 || c.ViewCacheTTLSeconds < 0 {
		return errors.New("MAX_BODY_BYTES and VIEW_CACHE_TTL_SECONDS must not be negative")
	}

	// Shared deployments serve over TLS and rate limit through Redis.
	if c.Environment == "production" || c.Environment == "staging" {
		if c.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
		if c.TLSCert == "" {
			missing = append(missing, "TLS_CERT")
		}
		if c.TLSKey == "" {
			missing = append(missing, "TLS_KEY")
		}

		if len(missing) > 0 {
			return errors.New("missing required environment variables for " + c.Environment + ": " + strings.Join(missing, ", "))
		}

		if c.DatabaseDriver == DriverSQLite {
			return errors.New("DATABASE_DRIVER sqlite is only allowed outside production and staging")
		}
	}

	return nil
}
