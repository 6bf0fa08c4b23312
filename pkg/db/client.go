package db

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// Client owns a GORM connection pool: postgres for the cart API, sqlite for
// the storefront's local cart and for lightweight server runs.
type Client struct {
	conn *gorm.DB
}

type poolLimits struct {
	maxOpen, maxIdle int
	lifetime         time.Duration
	idleTime         time.Duration
}

func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	dialector := postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	if cfg.IsSQLite() {
		dialector = sqlite.Open(cfg.DSN)
	}

	client, err := open(dialector, poolLimits{
		maxOpen:  cfg.MaxOpenConns,
		maxIdle:  cfg.MaxIdleConns,
		lifetime: cfg.ConnMaxLifetime,
		idleTime: cfg.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}
	logg.Info(logg.WithField(ctx, "driver", dialector.Name()), "database connection established")
	return client, nil
}

// NewSQLite opens the file-backed database that holds a storefront's local
// cart. sqlite serialises writers, so the pool is pinned to one connection.
func NewSQLite(ctx context.Context, path string, logg *logger.Logger) (*Client, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	client, err := open(sqlite.Open(path), poolLimits{maxOpen: 1})
	if err != nil {
		return nil, fmt.Errorf("sqlite %s: %w", path, err)
	}
	logg.Info(logg.WithField(ctx, "path", path), "sqlite database opened")
	return client, nil
}

// FromGorm wraps an already open connection.
func FromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func open(dialector gorm.Dialector, limits poolLimits) (*Client, error) {
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if limits.maxOpen > 0 {
		pool.SetMaxOpenConns(limits.maxOpen)
	}
	if limits.maxIdle > 0 {
		pool.SetMaxIdleConns(limits.maxIdle)
	}
	if limits.lifetime > 0 {
		pool.SetConnMaxLifetime(limits.lifetime)
	}
	if limits.idleTime > 0 {
		pool.SetConnMaxIdleTime(limits.idleTime)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping satisfies the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction. A returned error or a panic rolls it back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := c.conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	committed = true
	return nil
}
