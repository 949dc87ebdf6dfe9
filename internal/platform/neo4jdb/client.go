package neo4jdb

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/graphstore/internal/platform/logger"
)

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

func NewFromEnv(ctx context.Context, log *logger.Logger) (*Client, error) {
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, log)
}

// New opens a driver and verifies connectivity before returning.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.Timeout
		c.ConnectionAcquisitionTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, &ConfigError{Code: ConfigErrorInvalidURI, Value: cfg.URI, Cause: err}
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, &ConnectivityError{Op: "verify", Cause: err}
	}

	log.Info("neo4j connected", "uri", cfg.URI, "database", cfg.Database, "user", cfg.User)
	return &Client{
		Driver:   driver,
		Database: cfg.Database,
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

func (c *Client) OpenSession(ctx context.Context, mode AccessMode) Session {
	access := neo4j.AccessModeRead
	if mode == WriteAccess {
		access = neo4j.AccessModeWrite
	}
	return &driverSession{inner: c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   access,
		DatabaseName: c.Database,
	})}
}

// Ping re-verifies connectivity. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return &ConnectivityError{Op: "ping", Cause: fmt.Errorf("client closed")}
	}
	if err := c.Driver.VerifyConnectivity(ctx); err != nil {
		return &ConnectivityError{Op: "ping", Cause: err}
	}
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
