package coord

import (
	"fmt"
	"testing"
)

func symbolUniverse(n int) []string {
	symbols := make([]string, n)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%03dUSDT", i)
	}
	return symbols
}

func TestSelectNode_Deterministic(t *testing.T) {
	nodes := []string{"node-a", "node-b", "node-c"}
	for _, symbol := range symbolUniverse(50) {
		first := SelectNode(symbol, nodes, "", 0.02)
		for i := 0; i < 5; i++ {
			if got := SelectNode(symbol, nodes, "", 0.02); got != first {
				t.Fatalf("%s: selection flapped %s -> %s", symbol, first, got)
			}
		}
	}
}

func TestSelectNode_Edges(t *testing.T) {
	if got := SelectNode("BTCUSDT", nil, "", 0.02); got != "" {
		t.Errorf("no nodes should select nothing, got %q", got)
	}
	if got := SelectNode("BTCUSDT", []string{"only"}, "", 0.02); got != "only" {
		t.Errorf("single node must win, got %q", got)
	}
}

func TestSelectNode_StickyBonusHoldsOwner(t *testing.T) {
	nodes := []string{"node-a", "node-b"}

	for _, symbol := range symbolUniverse(20) {
		natural := SelectNode(symbol, nodes, "", 0)

		// The natural winner stays the winner when it is also the owner.
		if got := SelectNode(symbol, nodes, natural, 0.02); got != natural {
			t.Errorf("%s: sticky bonus displaced the natural winner", symbol)
		}

		// A large enough bonus pins any current owner.
		other := "node-a"
		if natural == "node-a" {
			other = "node-b"
		}
		if got := SelectNode(symbol, nodes, other, 10.0); got != other {
			t.Errorf("%s: overwhelming sticky bonus did not pin owner", symbol)
		}
	}
}

func TestAssign_OnlyNewNodeStealsOnJoin(t *testing.T) {
	symbols := symbolUniverse(200)
	before := Assign(symbols, []string{"node-a", "node-b"}, 0.02)
	after := Assign(symbols, []string{"node-a", "node-b", "node-c"}, 0.02)

	moved := 0
	for _, symbol := range symbols {
		if after[symbol] == before[symbol] {
			continue
		}
		moved++
		if after[symbol] != "node-c" {
			t.Errorf("%s moved %s -> %s, only the joining node may steal",
				symbol, before[symbol], after[symbol])
		}
	}
	if moved == 0 {
		t.Error("expected the joining node to win some symbols")
	}
	if moved > len(symbols)/2 {
		t.Errorf("%d of %d symbols moved, want roughly a third", moved, len(symbols))
	}
}

func TestAssign_CoversAllSymbols(t *testing.T) {
	symbols := symbolUniverse(50)
	assignments := Assign(symbols, []string{"node-a", "node-b", "node-c"}, 0.02)
	if len(assignments) != len(symbols) {
		t.Fatalf("assigned %d of %d symbols", len(assignments), len(symbols))
	}

	perNode := map[string]int{}
	for _, node := range assignments {
		perNode[node]++
	}
	for node, count := range perNode {
		if count == 0 {
			t.Errorf("%s got no symbols", node)
		}
	}
	if len(perNode) != 3 {
		t.Errorf("distribution = %v, want all three nodes used", perNode)
	}
}
