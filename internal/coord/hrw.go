// Package coord implements cluster coordination: highest-random-weight
// sharding with hysteresis, Redis-backed node membership, and fenced
// writer leases driven by Lua scripts.
package coord

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// hrwHash scores a (node, symbol) pair with a 64-bit blake2b digest.
func hrwHash(nodeID, symbol string) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(nodeID))
	h.Write([]byte{':'})
	h.Write([]byte(symbol))
	return binary.BigEndian.Uint64(h.Sum(nil))
}

// SelectNode picks the owner for a symbol: the node with the highest hash
// weight. The current owner's weight gets a sticky bonus so marginal hash
// differences don't flap ownership on membership churn. Returns "" when
// no nodes are available.
func SelectNode(symbol string, nodes []string, currentOwner string, stickyPct float64) string {
	if len(nodes) == 0 {
		return ""
	}
	if len(nodes) == 1 {
		return nodes[0]
	}

	best := ""
	bestWeight := -1.0
	for _, node := range nodes {
		weight := float64(hrwHash(node, symbol))
		if currentOwner != "" && node == currentOwner {
			weight *= 1 + stickyPct
		}
		if weight > bestWeight {
			best = node
			bestWeight = weight
		}
	}
	return best
}

// Assign computes a full symbol-to-node map without hysteresis, for
// inspection and tests.
func Assign(symbols, nodes []string, stickyPct float64) map[string]string {
	assignments := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		if node := SelectNode(symbol, nodes, "", stickyPct); node != "" {
			assignments[symbol] = node
		}
	}
	return assignments
}
