// Package db is the optional Postgres run archive: an append-only log of
// routing transitions and terminal results for offline analysis. The
// engine works fully without it; archive writes are asynchronous and
// never block or fail a run.
package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Client manages the archive connection and the async write queue.
type Client struct {
	db     *sqlx.DB
	logger *zap.Logger

	queue    chan func(ctx context.Context) error
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewClient connects to Postgres and starts the write worker.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	c := newClient(db, logger)
	logger.Info("Run archive connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)
	return c, nil
}

// NewClientFromDB wraps an existing connection (used by tests).
func NewClientFromDB(db *sqlx.DB, logger *zap.Logger) *Client {
	return newClient(db, logger)
}

func newClient(db *sqlx.DB, logger *zap.Logger) *Client {
	c := &Client{
		db:     db,
		logger: logger,
		queue:  make(chan func(ctx context.Context) error, 256),
		stopCh: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.worker()
	return c
}

func (c *Client) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case op := <-c.queue:
					c.runOp(op)
				default:
					return
				}
			}
		case op := <-c.queue:
			c.runOp(op)
		}
	}
}

func (c *Client) runOp(op func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := op(ctx); err != nil {
		c.logger.Warn("Archive write failed", zap.Error(err))
	}
}

// enqueue submits an async write; drops with a warning when the queue is
// full so the engine never blocks on the archive.
func (c *Client) enqueue(op func(ctx context.Context) error) {
	select {
	case c.queue <- op:
	default:
		c.logger.Warn("Archive write queue full, dropping write")
	}
}

// Ping verifies the archive connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close stops the write worker after draining the queue.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return c.db.Close()
}
