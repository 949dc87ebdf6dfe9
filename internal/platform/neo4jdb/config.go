package neo4jdb

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultURI         = "bolt://localhost:7687"
	DefaultUser        = "neo4j"
	DefaultDatabase    = "neo4j"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxPoolSize = 50
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingPassword ConfigErrorCode = "missing_password"
	ConfigErrorInvalidURI      ConfigErrorCode = "invalid_uri"
	ConfigErrorInvalidTimeout  ConfigErrorCode = "invalid_timeout"
	ConfigErrorInvalidPoolSize ConfigErrorCode = "invalid_pool_size"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid neo4j config"
	}
	switch e.Code {
	case ConfigErrorMissingPassword:
		return "NEO4J_PASSWORD is required"
	case ConfigErrorInvalidURI:
		return fmt.Sprintf("invalid NEO4J_URI=%q; expected bolt://, neo4j:// or neo4j+s:// URI", e.Value)
	case ConfigErrorInvalidTimeout:
		return fmt.Sprintf("invalid NEO4J_TIMEOUT_SECONDS=%q; expected positive integer", e.Value)
	case ConfigErrorInvalidPoolSize:
		return fmt.Sprintf("invalid NEO4J_MAX_POOL_SIZE=%q; expected positive integer", e.Value)
	default:
		return "invalid neo4j config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveConfigFromEnv reads NEO4J_* variables on top of the package defaults.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URI:         strings.TrimSpace(os.Getenv("NEO4J_URI")),
		User:        strings.TrimSpace(os.Getenv("NEO4J_USER")),
		Password:    strings.TrimSpace(os.Getenv("NEO4J_PASSWORD")),
		Database:    strings.TrimSpace(os.Getenv("NEO4J_DATABASE")),
		Timeout:     DefaultTimeout,
		MaxPoolSize: DefaultMaxPoolSize,
	}
	if raw := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidTimeout, Value: raw, Cause: err}
		}
		cfg.Timeout = time.Duration(n) * time.Second
	}
	if raw := strings.TrimSpace(os.Getenv("NEO4J_MAX_POOL_SIZE")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidPoolSize, Value: raw, Cause: err}
		}
		cfg.MaxPoolSize = n
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.URI) == "" {
		c.URI = DefaultURI
	}
	if strings.TrimSpace(c.User) == "" {
		c.User = DefaultUser
	}
	if strings.TrimSpace(c.Database) == "" {
		c.Database = DefaultDatabase
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = DefaultMaxPoolSize
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Password) == "" {
		return &ConfigError{Code: ConfigErrorMissingPassword}
	}
	parsed, err := url.Parse(c.URI)
	if err != nil || parsed.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURI, Value: c.URI, Cause: err}
	}
	switch strings.ToLower(parsed.Scheme) {
	case "bolt", "bolt+s", "bolt+ssc", "neo4j", "neo4j+s", "neo4j+ssc":
	default:
		return &ConfigError{Code: ConfigErrorInvalidURI, Value: c.URI}
	}
	return nil
}
