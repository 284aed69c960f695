package utxoresolver

import (
	"context"
	"errors"
	"testing"
)

type stubSource struct {
	outputs map[string][]Output
	calls   int
}

func (s *stubSource) GetTransactionOutputs(ctx context.Context, txHash []byte) ([]Output, bool, error) {
	s.calls++
	o, ok := s.outputs[keyFor(txHash)]
	if !ok {
		return nil, false, nil
	}
	return o, true, nil
}

func TestResolveHitsCacheOnSecondLookup(t *testing.T) {
	src := &stubSource{outputs: map[string][]Output{
		keyFor([]byte("tx1")): {{Address: []byte("addrA"), Value: 10}},
	}}
	r, err := New(src, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	out, ok, err := r.Resolve(context.Background(), []byte("tx1"), 0)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if string(out.Address) != "addrA" {
		t.Fatalf("expected addrA, got %s", out.Address)
	}
	if src.calls != 1 {
		t.Fatalf("expected one source call, got %d", src.calls)
	}

	if _, _, err := r.Resolve(context.Background(), []byte("tx1"), 0); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected cache hit to avoid a second source call, got %d calls", src.calls)
	}
}

func TestResolveMissingTransactionReturnsNotFound(t *testing.T) {
	src := &stubSource{outputs: map[string][]Output{}}
	r, err := New(src, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, ok, err := r.Resolve(context.Background(), []byte("ghost"), 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok {
		t.Fatal("expected not-found for a transaction the source never recorded")
	}
}

func TestResolveOutOfRangeIndexReturnsZeroValue(t *testing.T) {
	src := &stubSource{outputs: map[string][]Output{
		keyFor([]byte("tx1")): {{Address: []byte("addrA"), Value: 10}},
	}}
	r, err := New(src, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, ok, err := r.Resolve(context.Background(), []byte("tx1"), 5)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if out.Address != nil || out.Value != 0 {
		t.Fatalf("expected zero-value output for out-of-range index, got %+v", out)
	}
}

func TestUpdateCacheAvoidsSourceRoundTrip(t *testing.T) {
	src := &stubSource{outputs: map[string][]Output{}}
	r, err := New(src, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r.UpdateCache([]byte("tx2"), []Output{{Address: []byte("addrB"), Value: 7}})

	out, ok, err := r.Resolve(context.Background(), []byte("tx2"), 0)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if string(out.Address) != "addrB" {
		t.Fatalf("expected addrB, got %s", out.Address)
	}
	if src.calls != 0 {
		t.Fatalf("expected no source call after UpdateCache, got %d", src.calls)
	}
}

func TestResolveDecodesNonstandardP2PKHScriptOnSinkMiss(t *testing.T) {
	script := append([]byte{opDup, opHash160, pushData20}, make([]byte, 20)...)
	script = append(script, opEqualVerify, opCheckSig)
	script[3] = 0xAB // first byte of the 20-byte hash, to distinguish from zero-value

	src := &stubSource{outputs: map[string][]Output{
		keyFor([]byte("tx3")): {{Address: nil, Value: 5, Script: script}},
	}}
	r, err := New(src, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, ok, err := r.Resolve(context.Background(), []byte("tx3"), 0)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if len(out.Address) != 20 || out.Address[0] != 0xAB {
		t.Fatalf("expected recovered p2pkh address, got %x", out.Address)
	}
}

func TestResolveLeavesMultisigScriptUnresolved(t *testing.T) {
	script := []byte{0x52, 0x21, 0x01, 0x53, opCheckMultisig}
	src := &stubSource{outputs: map[string][]Output{
		keyFor([]byte("tx4")): {{Address: nil, Value: 5, Script: script}},
	}}
	r, err := New(src, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, ok, err := r.Resolve(context.Background(), []byte("tx4"), 0)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if out.Address != nil {
		t.Fatalf("expected multisig output to remain unresolved, got %x", out.Address)
	}
}

func TestNewWithZeroSizeUsesDefault(t *testing.T) {
	r, err := New(&stubSource{outputs: map[string][]Output{}}, 0)
	if err != nil {
		t.Fatalf("new with default size: %v", err)
	}
	if r.cache == nil {
		t.Fatal("expected a usable cache")
	}
}

var errSourceFailed = errors.New("source unavailable")

type failingSource struct{}

func (failingSource) GetTransactionOutputs(ctx context.Context, txHash []byte) ([]Output, bool, error) {
	return nil, false, errSourceFailed
}

func TestResolvePropagatesSourceError(t *testing.T) {
	r, err := New(failingSource{}, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, _, err = r.Resolve(context.Background(), []byte("tx5"), 0)
	if err == nil {
		t.Fatal("expected source error to propagate")
	}
}
