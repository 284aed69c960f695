package transformer

import (
	"context"
	"testing"

	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
	"github.com/graphsense/graphsense-lib-sub000/internal/idalloc"
	"github.com/graphsense/graphsense-lib-sub000/internal/sink"
)

// fakeTransformedSink is a minimal in-memory sink.TransformedSink for
// exercising address/cluster id resolution without a real store.
type fakeTransformedSink struct {
	idByAddress map[string]int64
	rowsByID    map[int64]sink.AddressRow
}

func newFakeTransformedSink() *fakeTransformedSink {
	return &fakeTransformedSink{idByAddress: map[string]int64{}, rowsByID: map[int64]sink.AddressRow{}}
}

func (f *fakeTransformedSink) GetAddressID(ctx context.Context, address []byte) (int64, bool, error) {
	id, ok := f.idByAddress[string(address)]
	return id, ok, nil
}

func (f *fakeTransformedSink) GetAddress(ctx context.Context, id int64) (sink.AddressRow, bool, error) {
	row, ok := f.rowsByID[id]
	return row, ok, nil
}

func (f *fakeTransformedSink) GetAddressIncomingRelations(ctx context.Context, dst, src int64) (sink.RelationRow, bool, error) {
	return sink.RelationRow{}, false, nil
}

func (f *fakeTransformedSink) GetAddressOutgoingRelations(ctx context.Context, src, dst int64) (sink.RelationRow, bool, error) {
	return sink.RelationRow{}, false, nil
}

func (f *fakeTransformedSink) GetBalanceBatchAccount(ctx context.Context, ids []int64) (map[int64]deltamodel.BalanceDelta, error) {
	return nil, nil
}

func (f *fakeTransformedSink) GetMaxSecondaryIDs(ctx context.Context, groups []int64, table, groupCol string) (map[int64]int64, error) {
	return nil, nil
}

func (f *fakeTransformedSink) GetExchangeRatesByBlock(ctx context.Context, blockID int64) (sink.ExchangeRates, bool, error) {
	return sink.ExchangeRates{}, false, nil
}

func (f *fakeTransformedSink) GetSummaryStatistics(ctx context.Context) (map[string]any, error) {
	return nil, nil
}

func (f *fakeTransformedSink) GetDeltaUpdaterStatus(ctx context.Context) (sink.UpdaterStatus, bool, error) {
	return sink.UpdaterStatus{}, false, nil
}

func (f *fakeTransformedSink) ApplyChanges(ctx context.Context, changes []deltamodel.DbChange, atomic bool) error {
	return nil
}

func (f *fakeTransformedSink) EnsureTableExists(ctx context.Context, name string, columns, primaryKeys []string, truncate bool) error {
	return nil
}

var _ sink.TransformedSink = (*fakeTransformedSink)(nil)

func TestResolveAddressIDsKeepsExistingAndAllocatesNew(t *testing.T) {
	tdb := newFakeTransformedSink()
	tdb.idByAddress["known"] = 5

	alloc := idalloc.New(5) // highest assigned is 5, next draw is 6
	ordered := [][]byte{[]byte("known"), []byte("fresh1"), []byte("fresh2"), []byte("known")}

	resolved, err := ResolveAddressIDs(context.Background(), tdb, alloc, ordered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved["known"].ID != 5 || resolved["known"].IsNew {
		t.Fatalf("expected known address to keep its existing id, got %+v", resolved["known"])
	}
	if resolved["fresh1"].ID != 6 || !resolved["fresh1"].IsNew {
		t.Fatalf("expected fresh1 to be allocated id 6, got %+v", resolved["fresh1"])
	}
	if resolved["fresh2"].ID != 7 || !resolved["fresh2"].IsNew {
		t.Fatalf("expected fresh2 to be allocated id 7, got %+v", resolved["fresh2"])
	}
}

func TestResolveAddressIDsIsDeduplicatedAndOrderStable(t *testing.T) {
	tdb := newFakeTransformedSink()
	alloc := idalloc.New(-1)
	ordered := [][]byte{[]byte("b"), []byte("a"), []byte("b"), []byte("a")}

	resolved, err := ResolveAddressIDs(context.Background(), tdb, alloc, ordered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// appearance order is b, a -> b gets 0, a gets 1.
	if resolved["b"].ID != 0 || resolved["a"].ID != 1 {
		t.Fatalf("expected ids assigned in first-appearance order, got b=%d a=%d", resolved["b"].ID, resolved["a"].ID)
	}
}

func TestResolveClusterIDsReusesExistingClusterForKnownAddress(t *testing.T) {
	tdb := newFakeTransformedSink()
	tdb.idByAddress["known"] = 5
	tdb.rowsByID[5] = sink.AddressRow{AddressID: 5, ClusterID: 42, HasClusterID: true}

	addrAlloc := idalloc.New(5)
	clusterAlloc := idalloc.New(100)
	ordered := [][]byte{[]byte("known"), []byte("fresh")}

	addrIDs, err := ResolveAddressIDs(context.Background(), tdb, addrAlloc, ordered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clusters, newClusters, err := ResolveClusterIDs(context.Background(), tdb, addrIDs, clusterAlloc, ordered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clusters["known"] != 42 {
		t.Fatalf("expected known address to keep its stored cluster id 42, got %d", clusters["known"])
	}
	if clusters["fresh"] != 101 {
		t.Fatalf("expected fresh address to be assigned a new singleton cluster id 101, got %d", clusters["fresh"])
	}
	if newClusters[42] {
		t.Fatal("expected the reused cluster 42 to not be marked new")
	}
	if !newClusters[101] {
		t.Fatal("expected the freshly allocated cluster 101 to be marked new")
	}
}
