package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultKeyPrefix = "nt:"

	// Entries older than this are purged from the backup ZSET.
	nodesSeenStaleAfter = 10 * time.Second

	discoverScanCount = 100
)

// Record is the node metadata published with each heartbeat.
type Record struct {
	NodeID        string    `json:"node_id"`
	Hostname      string    `json:"hostname"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	MetricsURL    string    `json:"metrics_url"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Membership maintains this node's presence in the cluster and discovers
// peers. Liveness is a TTL'd key per node plus a ZSET kept as a backup
// trail of recently seen nodes.
type Membership struct {
	rdb        redis.Cmdable
	nodeID     string
	hostname   string
	pid        int
	metricsURL string
	ttl        time.Duration
	prefix     string
	startedAt  time.Time
	now        func() time.Time
}

// NewMembership builds a membership manager. ttl should be several times
// the heartbeat interval so one missed beat doesn't evict the node.
func NewMembership(rdb redis.Cmdable, nodeID, metricsURL string, ttl time.Duration) *Membership {
	hostname, _ := os.Hostname()
	return &Membership{
		rdb:        rdb,
		nodeID:     nodeID,
		hostname:   hostname,
		pid:        os.Getpid(),
		metricsURL: metricsURL,
		ttl:        ttl,
		prefix:     defaultKeyPrefix,
		startedAt:  time.Now().UTC(),
		now:        time.Now,
	}
}

// WithKeyPrefix overrides the key namespace prefix (default "nt:").
func (m *Membership) WithKeyPrefix(prefix string) *Membership {
	if prefix != "" {
		m.prefix = prefix
	}
	return m
}

func (m *Membership) nodeKey(id string) string { return m.prefix + "node:" + id }
func (m *Membership) seenKey() string          { return m.prefix + "nodes_seen" }

// NodeID returns this node's identifier.
func (m *Membership) NodeID() string { return m.nodeID }

// Heartbeat refreshes this node's TTL'd presence key and its entry in the
// backup ZSET, then janitors stale ZSET entries.
func (m *Membership) Heartbeat(ctx context.Context) error {
	now := m.now().UTC()
	record := Record{
		NodeID:        m.nodeID,
		Hostname:      m.hostname,
		PID:           m.pid,
		StartedAt:     m.startedAt,
		MetricsURL:    m.metricsURL,
		LastHeartbeat: now,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal membership record: %w", err)
	}

	if err := m.rdb.Set(ctx, m.nodeKey(m.nodeID), payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("heartbeat set: %w", err)
	}

	score := float64(now.UnixNano()) / float64(time.Second)
	if err := m.rdb.ZAdd(ctx, m.seenKey(), redis.Z{Score: score, Member: m.nodeID}).Err(); err != nil {
		return fmt.Errorf("heartbeat zadd: %w", err)
	}

	cutoff := score - nodesSeenStaleAfter.Seconds()
	if err := m.rdb.ZRemRangeByScore(ctx, m.seenKey(), "-inf", fmt.Sprintf("%f", cutoff)).Err(); err != nil {
		return fmt.Errorf("heartbeat janitor: %w", err)
	}
	return nil
}

// Discover scans for live nodes and returns their records. Nodes whose
// last heartbeat is older than the TTL are treated as dead even if their
// key has not expired yet.
func (m *Membership) Discover(ctx context.Context) ([]Record, error) {
	var records []Record
	var cursor uint64
	now := m.now().UTC()

	for {
		keys, next, err := m.rdb.Scan(ctx, cursor, m.nodeKey("")+"*", discoverScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("membership scan: %w", err)
		}

		for _, key := range keys {
			raw, err := m.rdb.Get(ctx, key).Result()
			if err == redis.Nil {
				continue // expired between SCAN and GET
			}
			if err != nil {
				return nil, fmt.Errorf("membership get %s: %w", key, err)
			}

			var record Record
			if err := json.Unmarshal([]byte(raw), &record); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Skipping unparseable membership record")
				continue
			}

			age := now.Sub(record.LastHeartbeat)
			if age > m.ttl {
				log.Warn().Str("node", record.NodeID).Dur("age", age).
					Msg("Discovered stale membership record")
				continue
			}
			records = append(records, record)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return records, nil
}

// ActiveNodeIDs returns the IDs of currently live nodes.
func (m *Membership) ActiveNodeIDs(ctx context.Context) ([]string, error) {
	records, err := m.Discover(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.NodeID)
	}
	return ids, nil
}

// SoloMembership is a fixed single-node member list, used when running
// without coordination so the assignment controller sees only this node.
type SoloMembership struct {
	ID string
}

// NodeID returns the fixed node identity.
func (s SoloMembership) NodeID() string { return s.ID }

// ActiveNodeIDs always reports this node as the sole member.
func (s SoloMembership) ActiveNodeIDs(context.Context) ([]string, error) {
	return []string{s.ID}, nil
}

// Cleanup removes this node from membership on shutdown.
func (m *Membership) Cleanup(ctx context.Context) error {
	if err := m.rdb.Del(ctx, m.nodeKey(m.nodeID)).Err(); err != nil {
		return fmt.Errorf("membership del: %w", err)
	}
	if err := m.rdb.ZRem(ctx, m.seenKey(), m.nodeID).Err(); err != nil {
		return fmt.Errorf("membership zrem: %w", err)
	}
	return nil
}
