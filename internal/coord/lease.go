package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease keys per symbol. The token counter key survives release so
// fencing tokens stay strictly monotonic across acquisitions.
func leaseKey(symbol string) string { return "report:writer:" + symbol }
func tokenKey(symbol string) string { return "report:writer:token:" + symbol }

// acquireScript takes the writer lease when it is free or already ours.
// A fresh acquisition increments the fencing token; re-acquisition by the
// holder only refreshes the TTL. Returns the token, or nil when another
// node holds the lease.
var acquireScript = redis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if owner and owner ~= ARGV[1] then
  return false
end
if owner == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return tonumber(redis.call('GET', KEYS[2]) or '0')
end
local token = redis.call('INCR', KEYS[2])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return token
`)

// renewScript extends the TTL only while we still hold the lease.
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// releaseScript drops the lease if held by us. The token counter key is
// deliberately left in place.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// LeaseInfo is the externally visible lease state for a symbol.
type LeaseInfo struct {
	Owner string
	Token int64
}

// LeaseManager mediates fenced writer leases through Redis Lua scripts,
// so check-and-set is atomic on the Redis side.
type LeaseManager struct {
	rdb    redis.Cmdable
	nodeID string
}

// NewLeaseManager builds a lease manager for this node.
func NewLeaseManager(rdb redis.Cmdable, nodeID string) *LeaseManager {
	return &LeaseManager{rdb: rdb, nodeID: nodeID}
}

// Acquire attempts to take the writer lease for a symbol. On success it
// returns the fencing token; ok is false when another node holds it.
func (l *LeaseManager) Acquire(ctx context.Context, symbol string, ttl time.Duration) (int64, bool, error) {
	res, err := acquireScript.Run(ctx, l.rdb,
		[]string{leaseKey(symbol), tokenKey(symbol)},
		l.nodeID, ttl.Milliseconds()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("acquire lease %s: %w", symbol, err)
	}
	return res, true, nil
}

// Renew extends the lease TTL. Returns false when ownership was lost.
func (l *LeaseManager) Renew(ctx context.Context, symbol string, ttl time.Duration) (bool, error) {
	res, err := renewScript.Run(ctx, l.rdb,
		[]string{leaseKey(symbol)},
		l.nodeID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("renew lease %s: %w", symbol, err)
	}
	return res == 1, nil
}

// Release gives up the lease. Returns false when we were not the holder.
func (l *LeaseManager) Release(ctx context.Context, symbol string) (bool, error) {
	res, err := releaseScript.Run(ctx, l.rdb,
		[]string{leaseKey(symbol)},
		l.nodeID).Int64()
	if err != nil {
		return false, fmt.Errorf("release lease %s: %w", symbol, err)
	}
	return res == 1, nil
}

// Owner returns the current lease holder, or "" when the lease is free.
func (l *LeaseManager) Owner(ctx context.Context, symbol string) (string, error) {
	owner, err := l.rdb.Get(ctx, leaseKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lease owner %s: %w", symbol, err)
	}
	return owner, nil
}

// Token returns the current fencing token. ok is false when no token was
// ever issued for the symbol.
func (l *LeaseManager) Token(ctx context.Context, symbol string) (int64, bool, error) {
	token, err := l.rdb.Get(ctx, tokenKey(symbol)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lease token %s: %w", symbol, err)
	}
	return token, true, nil
}

// Info combines owner and token lookups.
func (l *LeaseManager) Info(ctx context.Context, symbol string) (LeaseInfo, error) {
	owner, err := l.Owner(ctx, symbol)
	if err != nil {
		return LeaseInfo{}, err
	}
	token, _, err := l.Token(ctx, symbol)
	if err != nil {
		return LeaseInfo{}, err
	}
	return LeaseInfo{Owner: owner, Token: token}, nil
}
