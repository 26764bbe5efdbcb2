package kv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const (
	publishMaxAttempts = 3
	publishRetryDelay  = 100 * time.Millisecond
)

// Publisher writes serialized reports to the KV store. Transient Redis
// errors are retried with exponential backoff behind a circuit breaker;
// serialization errors are final.
type Publisher struct {
	rdb     redis.Cmdable
	breaker *gobreaker.CircuitBreaker
}

// NewPublisher wraps a Redis client with retry and breaker policy.
func NewPublisher(rdb redis.Cmdable) *Publisher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "kv-publish",
		Timeout: 5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Publish circuit breaker state change")
		},
	})
	return &Publisher{rdb: rdb, breaker: breaker}
}

// Publish serializes the report and SETs it under report:{symbol} with
// KEEPTTL, preserving any TTL an operator put on the key. Returns whether
// the write landed.
func (p *Publisher) Publish(ctx context.Context, symbol string, report any) bool {
	payload, err := json.Marshal(report)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Report serialization failed")
		return false
	}

	key := ReportKey(symbol)
	for attempt := 0; attempt < publishMaxAttempts; attempt++ {
		_, err = p.breaker.Execute(func() (any, error) {
			return nil, p.rdb.Set(ctx, key, payload, redis.KeepTTL).Err()
		})
		if err == nil {
			return true
		}

		log.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt+1).
			Msg("Report publish failed")

		if attempt == publishMaxAttempts-1 {
			break
		}
		delay := publishRetryDelay * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}

	log.Error().Err(err).Str("symbol", symbol).Int("attempts", publishMaxAttempts).
		Msg("Report publish gave up")
	return false
}
