// Package kv is the Redis-backed report store: connection setup, the
// retrying publisher, and the read side used for fencing verification.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	dialTimeout  = 2 * time.Second
	opTimeout    = 5 * time.Second
	poolSize     = 20
	minIdleConns = 2
)

// NewClient connects to Redis from a URL (redis://host:port/db) and
// verifies the connection with a ping before returning.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = opTimeout
	opts.WriteTimeout = opTimeout
	opts.PoolSize = poolSize
	opts.MinIdleConns = minIdleConns

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to Redis")
	return client, nil
}

// ReportKey is the KV key a symbol's report is published under.
func ReportKey(symbol string) string { return "report:" + symbol }
