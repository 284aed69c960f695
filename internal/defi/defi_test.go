package defi

import (
	"math/big"
	"testing"
)

func addr(b byte) []byte { return []byte{b} }

func TestExtractSimpleSwapIsEulerian(t *testing.T) {
	// user -> router (asset A), router -> user (asset B): balanced in/out.
	user, router := addr(1), addr(2)
	transfers := []TokenTransfer{
		{From: user, To: router, Asset: "A", Value: big.NewInt(100), LogIndex: 0},
		{From: router, To: user, Asset: "B", Value: big.NewInt(200), LogIndex: 1},
	}
	logs := []DecodedLog{{Name: "Swap", Address: router, Tags: []string{"swap"}, LogIndex: 1}}

	swaps, bridges := Extract("0xabc", user, logs, nil, transfers, nil)
	if len(bridges) != 0 {
		t.Fatalf("expected no bridges, got %v", bridges)
	}
	if len(swaps) != 1 {
		t.Fatalf("expected exactly one swap, got %d", len(swaps))
	}
	s := swaps[0]
	if s.Version != "swap" {
		t.Fatalf("expected plain eulerian swap version, got %s", s.Version)
	}
	if s.FromAsset != "A" || s.ToAsset != "B" {
		t.Fatalf("expected A->B, got %s->%s", s.FromAsset, s.ToAsset)
	}
}

func TestExtractCowProtocolSettlementIsIgnored(t *testing.T) {
	logs := []DecodedLog{{Name: "Settlement", Tags: []string{"cow-protocol settlement"}}}
	swaps, bridges := Extract("0xabc", addr(1), logs, nil, nil, nil)
	if len(swaps) != 0 || len(bridges) != 0 {
		t.Fatalf("expected settlement to be ignored, got swaps=%v bridges=%v", swaps, bridges)
	}
}

func TestExtractOrderRecordUsesDirectParameters(t *testing.T) {
	logs := []DecodedLog{{
		Name: "OrderRecord",
		Tags: []string{"OrderRecord"},
		Parameters: map[string]any{
			"from_asset":  "A",
			"to_asset":    "B",
			"from_amount": big.NewInt(10),
			"to_amount":   big.NewInt(20),
			"swapper":     addr(9),
		},
		LogIndex: 0,
	}}
	swaps, _ := Extract("0xdef", nil, logs, nil, nil, nil)
	if len(swaps) != 1 {
		t.Fatalf("expected one swap from OrderRecord, got %d", len(swaps))
	}
	if swaps[0].Version != "OrderRecord" {
		t.Fatalf("expected version OrderRecord, got %s", swaps[0].Version)
	}
}

func TestPruneDanglingOutRecoversEulerian(t *testing.T) {
	// user -> router -> pool -> user forms a cycle (eulerian), plus a
	// dangling leftover transfer router -> dust (dust has in-degree 1,
	// out-degree 0) that breaks balance until pruned.
	user, router, pool, dust := addr(1), addr(2), addr(3), addr(4)
	transfers := []TokenTransfer{
		{From: user, To: router, Asset: "A", Value: big.NewInt(100)},
		{From: router, To: pool, Asset: "A", Value: big.NewInt(100)},
		{From: pool, To: user, Asset: "B", Value: big.NewInt(50)},
		{From: router, To: dust, Asset: "C", Value: big.NewInt(1)},
	}
	logs := []DecodedLog{{Tags: []string{"swap"}, LogIndex: 3}}
	swaps, _ := Extract("0xfff", user, logs, nil, transfers, nil)
	if len(swaps) != 1 {
		t.Fatalf("expected a swap to be recovered after pruning, got %d", len(swaps))
	}
	if swaps[0].Version != "swap-prune-dangling-out" {
		t.Fatalf("expected dangling-out prune version, got %s", swaps[0].Version)
	}
}

func TestExtractBridgesRecognizesTaggedProtocol(t *testing.T) {
	logs := []DecodedLog{{Address: addr(5), Tags: []string{"wormhole-transfer"}, LogIndex: 0}}
	bridges := extractBridges(logs)
	if len(bridges) != 1 || bridges[0].Protocol != "wormhole" {
		t.Fatalf("expected one wormhole bridge, got %v", bridges)
	}
}

func TestIsWeaklyConnectedDetectsDisjointGraph(t *testing.T) {
	g := &flowGraph{}
	g.addEdge(addr(1), addr(2), "A", big.NewInt(1))
	g.addEdge(addr(3), addr(4), "A", big.NewInt(1))
	if g.isWeaklyConnected() {
		t.Fatal("expected disjoint subgraphs to be reported as not connected")
	}
}
