package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/logger"
)

// Client wraps a pooled redis.Client. One Client is shared by the whole
// process; connection acquisition is handled by the pool.
type Client struct {
	rdb *redis.Client
}

// NewClient creates and initializes a Redis client with connection pooling.
// An empty host or port defaults to localhost:6379; password is optional.
func NewClient(host, port, password string) (*Client, error) {
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.ErrorWithFields("Failed to connect to Redis", err)
		return nil, err
	}

	logger.Log.Info("✅ Redis broker connected",
		zap.String("address", addr),
	)

	return &Client{rdb: rdb}, nil
}

// NewClientWithRetry dials Redis, retrying a fixed number of times before
// giving up. Worker processes use this so they survive a broker that comes
// up after they do.
func NewClientWithRetry(host, port, password string, retries int, wait time.Duration) (*Client, error) {
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		client, err := NewClient(host, port, password)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Log.Warn("Redis connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("retries_left", retries-attempt),
			zap.Error(err),
		)
		if attempt < retries {
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("could not connect to redis after %d attempts: %w", retries, lastErr)
}

// Ping tests the broker connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection pool gracefully
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
