package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/graphstore/internal/platform/envutil"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

const configPathEnv = "GRAPHSTORE_CONFIG"

const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderHash   = "hash"
)

type Config struct {
	LogMode     string `yaml:"log_mode"`
	ServiceName string `yaml:"service_name"`

	HTTP      HTTPConfig      `yaml:"http"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Import    ImportConfig    `yaml:"import"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	JWTSecret      string   `yaml:"jwt_secret"`
	JWTIssuer      string   `yaml:"jwt_issuer"`
	AllowOrigins   []string `yaml:"allow_origins"`
	MaxImportBytes int64    `yaml:"max_import_bytes"`
	ShutdownSecs   int      `yaml:"shutdown_timeout_seconds"`
}

type Neo4jConfig struct {
	URI            string `yaml:"uri"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxPoolSize    int    `yaml:"max_pool_size"`
}

type EmbeddingConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	Dimension       int    `yaml:"dimension"`
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	RedisAddr       string `yaml:"redis_addr"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type LedgerConfig struct {
	DSN string `yaml:"dsn"`
}

// ImportConfig holds the defaults applied when a request omits a flag.
type ImportConfig struct {
	ClearExisting   bool `yaml:"clear_existing"`
	MergeDuplicates bool `yaml:"merge_duplicates"`
	Embed           bool `yaml:"embed"`
}

// ConfigError reports a setting that failed validation.
type ConfigError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config %s=%q: %s", e.Key, e.Value, e.Reason)
}

func DefaultConfig() Config {
	return Config{
		LogMode:     "development",
		ServiceName: "graphstore",
		HTTP: HTTPConfig{
			Addr:           ":8080",
			MaxImportBytes: 32 << 20,
			ShutdownSecs:   15,
		},
		Neo4j: Neo4jConfig{
			URI:            neo4jdb.DefaultURI,
			User:           neo4jdb.DefaultUser,
			Database:       neo4jdb.DefaultDatabase,
			TimeoutSeconds: int(neo4jdb.DefaultTimeout / time.Second),
			MaxPoolSize:    neo4jdb.DefaultMaxPoolSize,
		},
		Embedding: EmbeddingConfig{
			CacheTTLSeconds: 7 * 24 * 3600,
		},
		Import: ImportConfig{
			MergeDuplicates: true,
			Embed:           true,
		},
	}
}

// LoadConfig layers defaults, the optional YAML file named by GRAPHSTORE_CONFIG,
// and environment overrides, then validates the result.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := envutil.String(configPathEnv, ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.ServiceName)

	cfg.HTTP.Addr = envutil.String("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.JWTSecret = envutil.String("API_JWT_SECRET", cfg.HTTP.JWTSecret)
	cfg.HTTP.JWTIssuer = envutil.String("API_JWT_ISSUER", cfg.HTTP.JWTIssuer)
	if origins := envutil.List("CORS_ALLOW_ORIGINS"); len(origins) > 0 {
		cfg.HTTP.AllowOrigins = origins
	}
	cfg.HTTP.MaxImportBytes = int64(envutil.Int("HTTP_MAX_IMPORT_BYTES", int(cfg.HTTP.MaxImportBytes)))
	cfg.HTTP.ShutdownSecs = envutil.Int("HTTP_SHUTDOWN_TIMEOUT_SECONDS", cfg.HTTP.ShutdownSecs)

	cfg.Neo4j.URI = envutil.String("NEO4J_URI", cfg.Neo4j.URI)
	cfg.Neo4j.User = envutil.String("NEO4J_USER", cfg.Neo4j.User)
	cfg.Neo4j.Password = envutil.String("NEO4J_PASSWORD", cfg.Neo4j.Password)
	cfg.Neo4j.Database = envutil.String("NEO4J_DATABASE", cfg.Neo4j.Database)
	cfg.Neo4j.TimeoutSeconds = envutil.Int("NEO4J_TIMEOUT_SECONDS", cfg.Neo4j.TimeoutSeconds)
	cfg.Neo4j.MaxPoolSize = envutil.Int("NEO4J_MAX_POOL_SIZE", cfg.Neo4j.MaxPoolSize)

	cfg.Embedding.Provider = envutil.String("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Model = envutil.String("OPENAI_EMBED_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = envutil.Int("EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.BaseURL = envutil.String("OPENAI_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = envutil.String("OPENAI_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.RedisAddr = envutil.String("REDIS_ADDR", cfg.Embedding.RedisAddr)
	cfg.Embedding.CacheTTLSeconds = envutil.Int("EMBEDDING_CACHE_TTL_SECONDS", cfg.Embedding.CacheTTLSeconds)

	cfg.Ledger.DSN = envutil.String("LEDGER_DSN", cfg.Ledger.DSN)

	cfg.Import.ClearExisting = envutil.Bool("IMPORT_CLEAR_EXISTING", cfg.Import.ClearExisting)
	cfg.Import.MergeDuplicates = envutil.Bool("IMPORT_MERGE_DUPLICATES", cfg.Import.MergeDuplicates)
	cfg.Import.Embed = envutil.Bool("IMPORT_EMBED", cfg.Import.Embed)
}

// Validate normalizes derived fields and rejects settings the app cannot start with.
func (c *Config) Validate() error {
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	if c.Embedding.Provider == "" {
		if c.Embedding.APIKey != "" {
			c.Embedding.Provider = EmbeddingProviderOpenAI
		} else {
			c.Embedding.Provider = EmbeddingProviderHash
		}
	}
	switch c.Embedding.Provider {
	case EmbeddingProviderOpenAI:
		if strings.TrimSpace(c.Embedding.APIKey) == "" {
			return &ConfigError{Key: "embedding.api_key", Reason: "required for the openai provider"}
		}
	case EmbeddingProviderHash:
	default:
		return &ConfigError{Key: "embedding.provider", Value: c.Embedding.Provider, Reason: "must be openai or hash"}
	}
	if c.Embedding.Dimension < 0 {
		return &ConfigError{Key: "embedding.dimension", Value: fmt.Sprint(c.Embedding.Dimension), Reason: "must not be negative"}
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return &ConfigError{Key: "http.addr", Reason: "required"}
	}
	if c.HTTP.MaxImportBytes <= 0 {
		return &ConfigError{Key: "http.max_import_bytes", Value: fmt.Sprint(c.HTTP.MaxImportBytes), Reason: "must be positive"}
	}
	if c.HTTP.ShutdownSecs <= 0 {
		c.HTTP.ShutdownSecs = 15
	}
	if c.Neo4j.TimeoutSeconds <= 0 {
		return &ConfigError{Key: "neo4j.timeout_seconds", Value: fmt.Sprint(c.Neo4j.TimeoutSeconds), Reason: "must be positive"}
	}
	if c.Neo4j.MaxPoolSize <= 0 {
		return &ConfigError{Key: "neo4j.max_pool_size", Value: fmt.Sprint(c.Neo4j.MaxPoolSize), Reason: "must be positive"}
	}
	return c.Neo4jConfig().Validate()
}

// Neo4jConfig converts to the driver client's config with defaults applied.
func (c Config) Neo4jConfig() neo4jdb.Config {
	return neo4jdb.Config{
		URI:         c.Neo4j.URI,
		User:        c.Neo4j.User,
		Password:    c.Neo4j.Password,
		Database:    c.Neo4j.Database,
		Timeout:     time.Duration(c.Neo4j.TimeoutSeconds) * time.Second,
		MaxPoolSize: c.Neo4j.MaxPoolSize,
	}.WithDefaults()
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Embedding.CacheTTLSeconds) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownSecs) * time.Second
}
