package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/context8/marketd/internal/report"
)

// GetReport fetches and decodes the published report for a symbol.
// Returns nil with no error when the key does not exist.
func GetReport(ctx context.Context, rdb redis.Cmdable, symbol string) (*report.Report, error) {
	raw, err := rdb.Get(ctx, ReportKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", symbol, err)
	}

	var r report.Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", symbol, err)
	}
	return &r, nil
}

// CurrentWriter returns the writer identity recorded in the published
// report. ok is false when no report exists yet.
func CurrentWriter(ctx context.Context, rdb redis.Cmdable, symbol string) (nodeID string, token int64, ok bool, err error) {
	r, err := GetReport(ctx, rdb, symbol)
	if err != nil || r == nil {
		return "", 0, false, err
	}
	return r.Writer.NodeID, r.Writer.WriterToken, true, nil
}
