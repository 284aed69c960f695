package rawadapter

import (
	"testing"

	"github.com/graphsense/graphsense-lib-sub000/internal/codec"
)

func TestBlockIDGroupUsesDefaultWhenZero(t *testing.T) {
	if got := BlockIDGroup(2500, 0); got != 2 {
		t.Fatalf("expected 2 with default bucket size 1000, got %d", got)
	}
}

func TestPartitionUsesDefaultWhenZero(t *testing.T) {
	if got := Partition(250_000, 0); got != 2 {
		t.Fatalf("expected 2 with default partition size 100000, got %d", got)
	}
}

func TestTraceKindOfExternalVsInternal(t *testing.T) {
	if TraceKindOf(true, 0) != TraceExternal {
		t.Fatal("expected external for empty address, index 0")
	}
	if TraceKindOf(false, 0) != TraceInternal {
		t.Fatal("expected internal for non-empty address")
	}
	if TraceKindOf(true, 3) != TraceInternal {
		t.Fatal("expected internal for nonzero index even with empty address")
	}
}

func TestTronTraceRenamesFields(t *testing.T) {
	tr := TronTrace(1, []byte("h"), 0, []byte("caller"), []byte("target"), 100, "call", 1)
	if string(tr.FromAddress) != "caller" || string(tr.ToAddress) != "target" {
		t.Fatalf("expected renamed from/to, got %+v", tr)
	}
	if tr.Value != 100 {
		t.Fatalf("expected call_value renamed to Value, got %d", tr.Value)
	}
}

func TestTronBlockTimestampConvertsMillisToSeconds(t *testing.T) {
	if got := TronBlockTimestamp(1_650_000_000_123); got != 1_650_000_000 {
		t.Fatalf("expected truncation to seconds, got %d", got)
	}
}

func TestFilterSuccessfulDropsFailedAndNonCallOnTron(t *testing.T) {
	traces := []RawTrace{
		{Status: 1, CallType: "call"},
		{Status: 0, CallType: "call"},
		{Status: 1, CallType: "delegatecall"},
	}
	evm := FilterSuccessful(traces, codec.ETH)
	if len(evm) != 2 {
		t.Fatalf("EVM should keep all status==1 traces regardless of call type, got %d", len(evm))
	}
	tron := FilterSuccessful(traces, codec.TRX)
	if len(tron) != 1 {
		t.Fatalf("Tron should additionally require call_type==call, got %d", len(tron))
	}
}

func TestSplitRewardTraces(t *testing.T) {
	withTx, rewards := SplitRewardTraces([]RawTrace{
		{TxHash: []byte("a")},
		{TxHash: nil},
	})
	if len(withTx) != 1 || len(rewards) != 1 {
		t.Fatalf("expected 1 withTx and 1 reward, got %d/%d", len(withTx), len(rewards))
	}
}
