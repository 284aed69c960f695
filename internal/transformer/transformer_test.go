package transformer

import (
	"math/big"
	"testing"

	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
	"github.com/graphsense/graphsense-lib-sub000/internal/idalloc"
	"github.com/graphsense/graphsense-lib-sub000/internal/rawadapter"
	"github.com/graphsense/graphsense-lib-sub000/internal/tokendecoder"
)

func TestGetPricesUSDEquivalent(t *testing.T) {
	rates := Rates{EuroPerCoin: 1800, DollarPerCoin: 2000, Present: true}
	got := GetPrices(1_000_000, 6, rates, true, false) // 1.0 USDT
	if got[1] != 1.0 {
		t.Fatalf("expected dollar_value=1.0, got %v", got[1])
	}
	wantEuro := 1.0 / (2000.0 / 1800.0)
	if got[0] != wantEuro {
		t.Fatalf("expected euro_value=%v, got %v", wantEuro, got[0])
	}
}

func TestGetPricesCoinEquivalent(t *testing.T) {
	rates := Rates{EuroPerCoin: 1800, DollarPerCoin: 2000, Present: true}
	got := GetPrices(1_000_000_000_000_000_000, 18, rates, false, true) // 1.0 WETH
	if got[1] != 2000 || got[0] != 1800 {
		t.Fatalf("expected [1800 2000], got %v", got)
	}
}

func TestGetPricesMissingRatesYieldsZeroVector(t *testing.T) {
	got := GetPrices(100, 18, Rates{Present: false}, false, true)
	if got != [2]float64{0, 0} {
		t.Fatalf("expected zero vector, got %v", got)
	}
}

func TestOrderAddressAppearancesSortsAndDedupes(t *testing.T) {
	a, b, c := []byte("a"), []byte("b"), []byte("c")
	appearances := []AddressAppearance{
		{Address: b, BlockID: 1, IsLog: true, Index: 5},
		{Address: a, BlockID: 1, IsLog: false, Index: 0, IsFromAddress: true},
		{Address: c, BlockID: 1, IsLog: false, Index: 0, IsFromAddress: false},
		{Address: a, BlockID: 1, IsLog: false, Index: 0, IsFromAddress: true}, // dup, same position
	}
	order := OrderAddressAppearances(appearances)
	if len(order) != 3 {
		t.Fatalf("expected 3 unique addresses, got %d", len(order))
	}
	if string(order[0]) != "a" {
		t.Fatalf("expected tx-originated from-address first, got %s", order[0])
	}
	if string(order[len(order)-1]) != "b" {
		t.Fatalf("expected log entry last, got %s", order[len(order)-1])
	}
}

func TestAssignTransactionIDTronIsStateless(t *testing.T) {
	id1 := AssignTransactionID(true, nil, 5, 3)
	id2 := AssignTransactionID(true, nil, 5, 3)
	if id1 != id2 {
		t.Fatalf("expected deterministic tron tx id, got %d vs %d", id1, id2)
	}
}

func TestAssignTransactionIDEVMConsultsAllocator(t *testing.T) {
	a := idalloc.New(-1)
	id1 := AssignTransactionID(false, a, 5, 3)
	id2 := AssignTransactionID(false, a, 5, 3)
	if id1 == id2 {
		t.Fatal("expected EVM tx ids to be freshly drawn, not stable per (block,index)")
	}
}

func TestTraceDeltaProducesSpentAndReceived(t *testing.T) {
	tr := rawadapter.RawTrace{BlockID: 1, TraceIndex: 0, FromAddress: []byte("x"), ToAddress: []byte("y"), Value: 100, CallType: "call"}
	res := TraceDelta(tr, 42, [2]float64{1, 2})
	if len(res.Entities) != 2 || len(res.EntityTxs) != 2 {
		t.Fatalf("expected 2 entities and 2 entity-txs, got %d/%d", len(res.Entities), len(res.EntityTxs))
	}
	if res.Relation.Type != deltamodel.RelationTx && res.Relation.Type != "call" {
		t.Fatalf("unexpected relation type %s", res.Relation.Type)
	}
}

func TestTokenTransferDeltaUsesLogIndexReference(t *testing.T) {
	tt := tokendecoder.TokenTransfer{From: []byte("x"), To: []byte("y"), Value: big.NewInt(500), Asset: "USDT", LogIndex: 7}
	res := TokenTransferDelta(tt, 42, [2]float64{1, 2})
	if res.EntityTxs[0].TxReference.LogIndex == nil || *res.EntityTxs[0].TxReference.LogIndex != 7 {
		t.Fatal("expected log_index tx_reference for token transfers")
	}
	if res.EntityTxs[0].TxReference.TraceIndex != nil {
		t.Fatal("expected nil trace_index for token transfers")
	}
	if res.Relation.Type != deltamodel.RelationToken {
		t.Fatalf("expected token relation type, got %s", res.Relation.Type)
	}
}

func TestBalanceLedgerRelationAndFees(t *testing.T) {
	l := NewBalanceLedger()
	ApplyRelationBalance(l, 1, 2, deltamodel.RelationDelta{Value: deltamodel.Value{Value: 100}, Type: deltamodel.RelationCall})
	ApplyEVMFees(l, 1, 3, 21000, 10, 5)

	byID := make(map[int64]deltamodel.BalanceDelta)
	for _, d := range l.Deltas() {
		byID[d.Identifier] = d
	}
	if byID[1].AssetBalances[nativeAsset].Value != -100-210000 {
		t.Fatalf("unexpected sender balance: %+v", byID[1])
	}
	if byID[2].AssetBalances[nativeAsset].Value != 100 {
		t.Fatalf("unexpected recipient balance: %+v", byID[2])
	}
	minerBalance := byID[3].AssetBalances[nativeAsset].Value
	if minerBalance != 210000-105000 {
		t.Fatalf("expected miner balance fee-minus-burn, got %d", minerBalance)
	}
}

func TestRelationExcludedFromBalanceUpdatesIsSkipped(t *testing.T) {
	l := NewBalanceLedger()
	ApplyRelationBalance(l, 1, 2, deltamodel.RelationDelta{Value: deltamodel.Value{Value: 100}, Type: deltamodel.RelationDelegateCall})
	if len(l.Deltas()) != 0 {
		t.Fatalf("expected no balance entries for delegatecall relation, got %v", l.Deltas())
	}
}

func TestTransformUTXOTxBasicSplit(t *testing.T) {
	inputs := []UTXOInput{{Address: []byte("in1"), Value: 1000}}
	outputs := []UTXOOutput{{Address: []byte("out1"), Value: 600}, {Address: []byte("out2"), Value: 400}}
	got := TransformUTXOTx(7, inputs, outputs, 1000)

	if len(got.Entities) != 3 {
		t.Fatalf("expected 3 entity deltas (1 input + 2 outputs), got %d", len(got.Entities))
	}
	var totalRelationValue int64
	for _, r := range got.Relations {
		totalRelationValue += r.Value.Value
	}
	if totalRelationValue == 0 {
		t.Fatal("expected nonzero estimated relation values")
	}
}

func TestTransformUTXOTxSameAddressInputAndOutput(t *testing.T) {
	inputs := []UTXOInput{{Address: []byte("a"), Value: 1000}}
	outputs := []UTXOOutput{{Address: []byte("a"), Value: 400}, {Address: []byte("b"), Value: 600}}
	got := TransformUTXOTx(9, inputs, outputs, 1000)
	for _, r := range got.Relations {
		if string(r.Src) == string(r.Dst) {
			t.Fatalf("expected no self-relation for same input/output address, got %+v", r)
		}
	}
}
