package changebuilder

import (
	"testing"

	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
)

func TestEmitBlockTransactionsSkipsFailed(t *testing.T) {
	b := New(false, nil)
	b.EmitBlockTransactions([]deltamodel.Tx{
		{TxID: 1, Failed: false},
		{TxID: 2, Failed: true},
	})
	if len(b.Changes()) != 1 {
		t.Fatalf("expected 1 row (failed tx skipped), got %d", len(b.Changes()))
	}
}

func TestSeqIsAssignedInEmissionOrder(t *testing.T) {
	b := New(false, nil)
	b.EmitTransactionRows([]deltamodel.Tx{{TxID: 1, TxHash: []byte("h")}})
	b.EmitBookkeeping(map[string]any{"a": 1}, map[string]any{"b": 2})
	changes := b.Changes()
	for i, c := range changes {
		if c.Seq != i {
			t.Fatalf("expected Seq to track emission order, got %d at position %d", c.Seq, i)
		}
	}
}

func TestSecondaryGroupStateOnlyEmitsOnNewMax(t *testing.T) {
	s := NewSecondaryGroupState(nil)
	b := New(false, nil)
	b.EmitSecondaryGroupMaxima(s, "address_outgoing_relations", 1, 5)
	b.EmitSecondaryGroupMaxima(s, "address_outgoing_relations", 1, 3) // not a new max
	b.EmitSecondaryGroupMaxima(s, "address_outgoing_relations", 1, 9) // new max

	if len(b.Changes()) != 2 {
		t.Fatalf("expected 2 secondary-id updates (5 then 9), got %d", len(b.Changes()))
	}
}

func TestEmitRelationUpdatesAssertsTransactionParity(t *testing.T) {
	b := New(false, nil)
	relations := []deltamodel.RelationDelta{{Src: []byte("s"), Dst: []byte("d"), NoTransactions: 3}}
	existingOut := map[string]ExistingRelation{"s\x00d": {Exists: true, NoTransactions: 3}}
	existingIn := map[string]ExistingRelation{"s\x00d": {Exists: true, NoTransactions: 2}}
	resolve := map[string]int64{"s": 1, "d": 2}

	err := b.EmitRelationUpdates(relations, existingOut, existingIn, EntityAddress, resolve)
	if err == nil {
		t.Fatal("expected assertion failure on no_transactions parity mismatch")
	}
}

func TestEmitRelationUpdatesNewVsUpdate(t *testing.T) {
	b := New(false, nil)
	relations := []deltamodel.RelationDelta{{Src: []byte("s"), Dst: []byte("d"), NoTransactions: 1}}
	resolve := map[string]int64{"s": 1, "d": 2}
	err := b.EmitRelationUpdates(relations, map[string]ExistingRelation{}, map[string]ExistingRelation{}, EntityAddress, resolve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	changes := b.Changes()
	if len(changes) != 2 || changes[0].Action != deltamodel.ActionNew {
		t.Fatalf("expected 2 NEW relation rows for a fresh pair, got %+v", changes)
	}
	if changes[0].Data["src_address_id"] != int64(1) || changes[0].Data["dst_address_id"] != int64(2) {
		t.Fatalf("expected resolved int64 ids in relation row, got %+v", changes[0].Data)
	}
}

func TestEmitRelationUpdatesRequiresResolvedIDs(t *testing.T) {
	b := New(false, nil)
	relations := []deltamodel.RelationDelta{{Src: []byte("s"), Dst: []byte("d"), NoTransactions: 1}}
	err := b.EmitRelationUpdates(relations, map[string]ExistingRelation{}, map[string]ExistingRelation{}, EntityAddress, map[string]int64{})
	if err == nil {
		t.Fatal("expected an error when an address has no resolved id")
	}
}

func TestEmitAddressRowsRequiresContext(t *testing.T) {
	b := New(false, nil)
	entities := []deltamodel.EntityDelta{{Identifier: []byte("a")}}
	err := b.EmitAddressRows(entities, map[string]AddressContext{}, EntityAddress, map[string]int64{"a": 1}, EntityRowExtras{})
	if err == nil {
		t.Fatal("expected an error when address context is missing")
	}
}

func TestEmitAddressRowsRequiresResolvedID(t *testing.T) {
	b := New(false, nil)
	entities := []deltamodel.EntityDelta{{Identifier: []byte("a")}}
	ctx := map[string]AddressContext{"a": {ID: 1, IsNew: true}}
	err := b.EmitAddressRows(entities, ctx, EntityAddress, map[string]int64{}, EntityRowExtras{})
	if err == nil {
		t.Fatal("expected an error when the address has no resolved id")
	}
}

func TestEmitAddressRowsNewAddressAlsoEmitsPrefixIndex(t *testing.T) {
	b := New(false, nil)
	entities := []deltamodel.EntityDelta{{Identifier: []byte("a")}}
	ctx := map[string]AddressContext{"a": {ID: 1, IsNew: true}}
	resolve := map[string]int64{"a": 1}
	if err := b.EmitAddressRows(entities, ctx, EntityAddress, resolve, EntityRowExtras{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	changes := b.Changes()
	if len(changes) != 2 {
		t.Fatalf("expected prefix-index row + address row for new address, got %d", len(changes))
	}
	if changes[0].Table != "address_ids_by_address_prefix" {
		t.Fatalf("expected prefix index row first, got %s", changes[0].Table)
	}
	if changes[0].Data["address_id"] != int64(1) {
		t.Fatalf("expected resolved int64 address id in prefix row, got %+v", changes[0].Data)
	}
	if changes[1].Data["address_id"] != int64(1) {
		t.Fatalf("expected resolved int64 address id in address row, got %+v", changes[1].Data)
	}
}

func TestEmitAddressRowsClusterModeEmitsClusterAddresses(t *testing.T) {
	b := New(false, nil)
	clusterKey := string(deltamodel.EncodeClusterID(7))
	entities := []deltamodel.EntityDelta{{Identifier: deltamodel.EncodeClusterID(7)}}
	ctx := map[string]AddressContext{clusterKey: {ID: 7, IsNew: true}}
	resolve := map[string]int64{clusterKey: 7}
	extras := EntityRowExtras{ClusterAnchorAddressID: func(clusterID int64) int64 { return 42 }}
	if err := b.EmitAddressRows(entities, ctx, EntityCluster, resolve, extras); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	changes := b.Changes()
	if len(changes) != 2 || changes[0].Table != "cluster_addresses" {
		t.Fatalf("expected cluster_addresses row + cluster row, got %+v", changes)
	}
	if changes[0].Data["address_id"] != int64(42) || changes[0].Data["cluster_id"] != int64(7) {
		t.Fatalf("unexpected cluster_addresses row: %+v", changes[0].Data)
	}
	if changes[1].Table != "cluster" || changes[1].Data["cluster_id"] != int64(7) {
		t.Fatalf("unexpected cluster row: %+v", changes[1].Data)
	}
}

// TestFullBatchDrivesAllEightStepsInOrder builds a small but complete
// compressed DbDelta (two transactions, two addresses, one relation, two
// balance updates) and drives every Emit* step in the exact order spec.md
// 4.8 requires, then asserts the resulting DbChange sequence has the
// right tables in the right order with correctly resolved ids.
func TestFullBatchDrivesAllEightStepsInOrder(t *testing.T) {
	txs := []deltamodel.Tx{
		{TxID: 100, TxHash: []byte("h100"), BlockID: 1, TxIndex: 0, Failed: false},
		{TxID: 101, TxHash: []byte("h101"), BlockID: 1, TxIndex: 1, Failed: false},
	}

	delta := deltamodel.DbDelta{
		EntityUpdates: []deltamodel.EntityDelta{
			{Identifier: []byte("addrA"), FirstTxID: 100, LastTxID: 100, NoOutgoingTxs: 1, TotalSpent: deltamodel.Value{Value: 10}},
			{Identifier: []byte("addrB"), FirstTxID: 100, LastTxID: 101, NoIncomingTxs: 1, TotalReceived: deltamodel.Value{Value: 10}},
		},
		NewEntityTxs: []deltamodel.RawEntityTx{
			{Identifier: []byte("addrA"), IsOutgoing: true, TxID: 100, Value: 10},
			{Identifier: []byte("addrB"), IsOutgoing: false, TxID: 100, Value: 10},
		},
		RelationUpdates: []deltamodel.RelationDelta{
			{Src: []byte("addrA"), Dst: []byte("addrB"), NoTransactions: 1, Value: deltamodel.Value{Value: 10}},
		},
		BalanceUpdates: []deltamodel.BalanceDelta{
			deltamodel.NewBalanceDelta(1),
			deltamodel.NewBalanceDelta(2),
		},
	}
	delta.BalanceUpdates[0].Debit("native", 10)
	delta.BalanceUpdates[1].Credit("native", 10)

	resolve := map[string]int64{"addrA": 1, "addrB": 2}
	ctxByKey := map[string]AddressContext{
		"addrA": {ID: 1, IsNew: true, NewOutgoingRels: 1},
		"addrB": {ID: 2, IsNew: true, NewIncomingRels: 1},
	}

	b := New(false, nil)

	b.EmitTransactionRows(txs)
	b.EmitBlockTransactions(txs)

	groupState := NewSecondaryGroupState(nil)
	b.EmitSecondaryGroupMaxima(groupState, "block_transactions", 1, int64(txs[1].TxIndex))

	if err := b.EmitEntityTxRows(delta.NewEntityTxs, EntityAddress, resolve); err != nil {
		t.Fatalf("EmitEntityTxRows: %v", err)
	}
	b.EmitBalanceUpdates(delta.BalanceUpdates, nil)
	if err := b.EmitRelationUpdates(delta.RelationUpdates, map[string]ExistingRelation{}, map[string]ExistingRelation{}, EntityAddress, resolve); err != nil {
		t.Fatalf("EmitRelationUpdates: %v", err)
	}
	if err := b.EmitAddressRows(delta.EntityUpdates, ctxByKey, EntityAddress, resolve, EntityRowExtras{}); err != nil {
		t.Fatalf("EmitAddressRows: %v", err)
	}
	b.EmitBookkeeping(map[string]any{"no_blocks": 1}, map[string]any{"block_id": int64(1)})

	changes := b.Changes()

	wantTables := []string{
		"transaction_ids_by_transaction_id_group", "transaction_ids_by_transaction_prefix",
		"transaction_ids_by_transaction_id_group", "transaction_ids_by_transaction_prefix",
		"block_transactions", "block_transactions",
		"block_transactions_secondary_ids",
		"address_transactions", "address_transactions",
		"balance", "balance",
		"address_outgoing_relations", "address_incoming_relations",
		"address_ids_by_address_prefix", "address",
		"address_ids_by_address_prefix", "address",
		"summary_statistics", "delta_updater_history",
	}
	if len(changes) != len(wantTables) {
		t.Fatalf("expected %d rows, got %d: %+v", len(wantTables), len(changes), changes)
	}
	for i, want := range wantTables {
		if changes[i].Table != want {
			t.Fatalf("row %d: expected table %q, got %q", i, want, changes[i].Table)
		}
		if changes[i].Seq != i {
			t.Fatalf("row %d: expected Seq %d, got %d", i, i, changes[i].Seq)
		}
	}

	// The relation and address rows must carry resolved int64 ids, never
	// the raw address bytes the DbDelta was built with.
	relOut := changes[11]
	if relOut.Data["src_address_id"] != int64(1) || relOut.Data["dst_address_id"] != int64(2) {
		t.Fatalf("expected resolved relation ids, got %+v", relOut.Data)
	}
	addrRowA := changes[14]
	if addrRowA.Data["address_id"] != int64(1) {
		t.Fatalf("expected resolved address id 1, got %+v", addrRowA.Data)
	}
}

func TestAddrHashSecondaryGroupIsDeterministic(t *testing.T) {
	g1 := AddrHashSecondaryGroup([]byte("s"), []byte("d"), 100)
	g2 := AddrHashSecondaryGroup([]byte("s"), []byte("d"), 100)
	if g1 != g2 {
		t.Fatalf("expected deterministic hash, got %d vs %d", g1, g2)
	}
	if g1 < 0 || g1 >= 100 {
		t.Fatalf("expected group within [0,100), got %d", g1)
	}
}
