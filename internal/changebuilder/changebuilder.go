// Package changebuilder translates a compressed deltamodel.DbDelta into an
// ordered list of deltamodel.DbChange (spec.md 4.8), so that two runs over
// the same inputs produce byte-equal output. Ordering is the single
// invariant this package exists to enforce; it never reorders, merges, or
// drops a row the Transformer produced.
package changebuilder

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
	"github.com/graphsense/graphsense-lib-sub000/internal/engineerr"
)

// sortedAssetKeys returns an asset-keyed map's keys in a fixed order, so
// that emission order no longer depends on Go's randomized map iteration.
func sortedAssetKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for asset := range m {
		keys = append(keys, asset)
	}
	sort.Strings(keys)
	return keys
}

// EntityType selects which identifier layer a batch of Emit* calls targets
// (spec.md 4.6 UTXO dialect's cluster-layer projection: "the same DbDelta
// is then re-expressed with clusters as identifiers"). It threads through
// every mode-parameterized table name and column name the way Python's
// generic.py parameterizes prepare_*_for_ingest by `mode: EntityType`.
type EntityType string

const (
	EntityAddress EntityType = "address"
	EntityCluster EntityType = "cluster"
)

// ExistingRelation is the current-DB state for one (src,dst) relation pair,
// read in Transformer step 10 and consumed here to decide NEW vs UPDATE
// and to enforce the no_transactions parity assertion (spec.md 4.8 step 6).
type ExistingRelation struct {
	Exists         bool
	NoTransactions int64
}

// AddressContext is what ChangeBuilder needs to know per touched
// address/cluster: its resolved id, whether it already existed, and how
// many new incoming/outgoing relations this batch created for it.
type AddressContext struct {
	ID              int64
	IsNew           bool
	NewIncomingRels int64
	NewOutgoingRels int64
}

// SecondaryGroupState tracks, per (table, group) pair, the maximum
// secondary id observed so far (spec.md 4.8 "Bucket/partition math").
type SecondaryGroupState struct {
	maxima map[string]int64
}

func NewSecondaryGroupState(loaded map[string]int64) *SecondaryGroupState {
	if loaded == nil {
		loaded = make(map[string]int64)
	}
	return &SecondaryGroupState{maxima: loaded}
}

func secondaryGroupKey(table string, group int64) string {
	return fmt.Sprintf("%s:%d", table, group)
}

// Preload seeds the recorded maximum for (table, group) from a value read
// back from the sink at startup, without emitting a DbChange. Callers
// outside this package cannot otherwise populate NewSecondaryGroupState's
// loaded map, since secondaryGroupKey's format is private to this package.
func (s *SecondaryGroupState) Preload(table string, group, secondaryID int64) {
	key := secondaryGroupKey(table, group)
	if cur, ok := s.maxima[key]; ok && cur >= secondaryID {
		return
	}
	s.maxima[key] = secondaryID
}

// AddrHashSecondaryGroup implements addr_hash(src, dst) mod bucket_size
// (spec.md 4.8), using FNV-1a as the hash since the spec leaves the hash
// function itself unconstrained beyond determinism.
func AddrHashSecondaryGroup(src, dst []byte, bucketSize int) int64 {
	if bucketSize <= 0 {
		bucketSize = 1
	}
	h := fnv.New64a()
	h.Write(src)
	h.Write([]byte{0})
	h.Write(dst)
	return int64(h.Sum64() % uint64(bucketSize))
}

// Observe records a new secondary id for (table, group) and returns a
// DbChange for the *_secondary_ids UPDATE row if and only if the new value
// strictly exceeds the previously stored maximum.
func (s *SecondaryGroupState) Observe(table string, group, secondaryID int64, seq int) *deltamodel.DbChange {
	key := secondaryGroupKey(table, group)
	if cur, ok := s.maxima[key]; ok && secondaryID <= cur {
		return nil
	}
	s.maxima[key] = secondaryID
	return &deltamodel.DbChange{
		Action: deltamodel.ActionUpdate,
		Table:  table + "_secondary_ids",
		Data: map[string]any{
			"group_id":     group,
			"secondary_id": secondaryID,
		},
		Seq: seq,
	}
}

// Builder accumulates DbChange rows in order and assigns Seq.
type Builder struct {
	out        []deltamodel.DbChange
	seq        int
	pedantic   bool
	knownAddrs map[string]bool // addresses that exist in the DB or were allocated earlier in this batch
}

func New(pedantic bool, knownAddresses map[string]bool) *Builder {
	if knownAddresses == nil {
		knownAddresses = make(map[string]bool)
	}
	return &Builder{pedantic: pedantic, knownAddrs: knownAddresses}
}

func (b *Builder) emit(action deltamodel.Action, table string, data map[string]any) {
	b.out = append(b.out, deltamodel.DbChange{Action: action, Table: table, Data: data, Seq: b.seq})
	b.seq++
}

// Changes returns the accumulated, already-ordered change list.
func (b *Builder) Changes() []deltamodel.DbChange {
	return b.out
}

// EmitTransactionRows implements spec.md 4.8 step 1: transaction
// id-lookup rows for every Tx.
func (b *Builder) EmitTransactionRows(txs []deltamodel.Tx) {
	for _, tx := range txs {
		b.emit(deltamodel.ActionNew, "transaction_ids_by_transaction_id_group", map[string]any{
			"transaction_id": tx.TxID, "transaction_id_group": tx.TxID,
		})
		b.emit(deltamodel.ActionNew, "transaction_ids_by_transaction_prefix", map[string]any{
			"transaction_id": tx.TxID, "tx_hash": tx.TxHash,
		})
	}
}

// EmitBlockTransactions implements spec.md 4.8 step 2: block_transactions
// NEW rows for every non-failed tx.
func (b *Builder) EmitBlockTransactions(txs []deltamodel.Tx) {
	for _, tx := range txs {
		if tx.Failed {
			continue
		}
		b.emit(deltamodel.ActionNew, "block_transactions", map[string]any{
			"block_id": tx.BlockID, "tx_hash": tx.TxHash, "tx_index": tx.TxIndex,
		})
	}
}

// EmitSecondaryGroupMaxima implements spec.md 4.8 step 3.
func (b *Builder) EmitSecondaryGroupMaxima(state *SecondaryGroupState, table string, group, secondaryID int64) {
	if change := state.Observe(table, group, secondaryID, b.seq); change != nil {
		change.Seq = b.seq
		b.out = append(b.out, *change)
		b.seq++
	}
}

// EmitEntityTxRows implements spec.md 4.8 step 4: one row per token
// present, plus one for the native asset if the entry isn't a pure-token
// transfer. resolve maps string(r.Identifier) to the allocated
// address/cluster id (spec.md 4.6 step 5); mode picks the table/column
// name, mirroring generic.py's prepare_txs_for_ingest(mode).
func (b *Builder) EmitEntityTxRows(rows []deltamodel.RawEntityTx, mode EntityType, resolve map[string]int64) error {
	idCol := string(mode) + "_id"
	table := string(mode) + "_transactions"
	for _, r := range rows {
		id, ok := resolve[string(r.Identifier)]
		if !ok {
			return engineerr.AssertionFailure(fmt.Sprintf("changebuilder: no %s id for %x", mode, r.Identifier))
		}
		if r.Value != 0 || len(r.TokenValues) == 0 {
			b.emit(deltamodel.ActionNew, table, map[string]any{
				idCol: id, "currency": "native",
				"transaction_id": r.TxID, "is_outgoing": r.IsOutgoing,
				"tx_reference": r.TxReference,
			})
		}
		for _, asset := range sortedAssetKeys(r.TokenValues) {
			b.emit(deltamodel.ActionNew, table, map[string]any{
				idCol: id, "currency": asset,
				"transaction_id": r.TxID, "is_outgoing": r.IsOutgoing,
				"tx_reference": r.TxReference,
			})
		}
	}
	return nil
}

// EmitBalanceUpdates implements spec.md 4.8 step 5: one UPDATE per
// (address_id, asset), left-joined over the current DB value.
func (b *Builder) EmitBalanceUpdates(deltas []deltamodel.BalanceDelta, dbLoaded map[int64]deltamodel.BalanceDelta) {
	for _, d := range deltas {
		joined := d.LeftJoin(dbLoaded[d.Identifier])
		for _, asset := range sortedAssetKeys(joined.AssetBalances) {
			b.emit(deltamodel.ActionUpdate, "balance", map[string]any{
				"address_id": d.Identifier, "currency": asset, "balance": joined.AssetBalances[asset].Value,
			})
		}
	}
}

// RelationKey identifies a (src,dst) pair for relation-row emission.
type RelationKey struct {
	Src, Dst []byte
}

// EmitRelationUpdates implements spec.md 4.8 step 6: for each (src,dst),
// emit one incoming and one outgoing relation row, NEW if neither side
// existed, UPDATE otherwise, asserting no_transactions parity first.
// resolve maps string(r.Src)/string(r.Dst) to the allocated address/cluster
// id; mode picks the table and src_/dst_ column names, mirroring
// generic.py's prepare_relations_for_ingest(mode).
func (b *Builder) EmitRelationUpdates(relations []deltamodel.RelationDelta, existingOut, existingIn map[string]ExistingRelation, mode EntityType, resolve map[string]int64) error {
	srcCol := "src_" + string(mode) + "_id"
	dstCol := "dst_" + string(mode) + "_id"
	outTable := string(mode) + "_outgoing_relations"
	inTable := string(mode) + "_incoming_relations"

	for _, r := range relations {
		key := string(r.Src) + "\x00" + string(r.Dst)
		out := existingOut[key]
		in := existingIn[key]
		if out.Exists && in.Exists && out.NoTransactions != in.NoTransactions {
			return engineerr.AssertionFailure(fmt.Sprintf(
				"changebuilder: outgoing/incoming no_transactions mismatch for %x->%x: %d != %d",
				r.Src, r.Dst, out.NoTransactions, in.NoTransactions))
		}

		srcID, ok := resolve[string(r.Src)]
		if !ok {
			return engineerr.AssertionFailure(fmt.Sprintf("changebuilder: no %s id for src %x", mode, r.Src))
		}
		dstID, ok := resolve[string(r.Dst)]
		if !ok {
			return engineerr.AssertionFailure(fmt.Sprintf("changebuilder: no %s id for dst %x", mode, r.Dst))
		}

		action := deltamodel.ActionUpdate
		if !out.Exists && !in.Exists {
			action = deltamodel.ActionNew
		}

		b.emit(action, outTable, map[string]any{
			srcCol: srcID, dstCol: dstID,
			"no_transactions": r.NoTransactions, "value": r.Value, "token_values": r.TokenValues,
		})
		b.emit(action, inTable, map[string]any{
			srcCol: srcID, dstCol: dstID,
			"no_transactions": r.NoTransactions, "value": r.Value, "token_values": r.TokenValues,
		})
	}
	return nil
}

// EntityRowExtras carries the two mode-specific side effects
// EmitAddressRows needs for a NEW row, mirroring generic.py's
// address_to_cluster_id / cluster_id_to_address_id closures:
//   - address mode: the new address's cluster id (for the address row's
//     cluster_id column) and its prefix (for address_ids_by_address_prefix).
//   - cluster mode: the anchor address id that the cluster_addresses row
//     attaches the newly allocated cluster to.
type EntityRowExtras struct {
	AddressToClusterID    func(address []byte) int64
	AddressPrefix         func(address []byte) []byte
	ClusterAnchorAddressID func(clusterID int64) int64
}

// EmitAddressRows implements spec.md 4.8 step 7, parameterized by mode the
// way generic.py's prepare_entities_for_ingest takes mode: EntityType.
// resolve maps string(e.Identifier) to the allocated address/cluster id
// (spec.md 4.6 step 5 / the UTXO cluster projection).
func (b *Builder) EmitAddressRows(entities []deltamodel.EntityDelta, ctxByKey map[string]AddressContext, mode EntityType, resolve map[string]int64, extras EntityRowExtras) error {
	idCol := string(mode) + "_id"
	table := string(mode)

	for _, e := range entities {
		key := string(e.Identifier)
		ctx, ok := ctxByKey[key]
		if !ok {
			return engineerr.AssertionFailure(fmt.Sprintf("changebuilder: no %s context for %x", mode, e.Identifier))
		}
		id, ok := resolve[key]
		if !ok {
			return engineerr.AssertionFailure(fmt.Sprintf("changebuilder: no %s id for %x", mode, e.Identifier))
		}
		if b.pedantic && ctx.IsNew && b.knownAddrs[key] {
			return engineerr.AssertionFailure(fmt.Sprintf("changebuilder: NEW %s %x already exists", mode, e.Identifier))
		}

		data := map[string]any{
			idCol:             id,
			"no_incoming_txs": e.NoIncomingTxs, "no_outgoing_txs": e.NoOutgoingTxs,
			"no_incoming_txs_zero_value": e.NoIncomingTxsZeroValue,
			"no_outgoing_txs_zero_value": e.NoOutgoingTxsZeroValue,
			"first_tx_id": e.FirstTxID, "last_tx_id": e.LastTxID,
			"total_received": e.TotalReceived, "total_spent": e.TotalSpent,
			"total_tokens_received": e.TotalTokensReceived, "total_tokens_spent": e.TotalTokensSpent,
			"in_degree_delta": ctx.NewIncomingRels, "out_degree_delta": ctx.NewOutgoingRels,
		}

		action := deltamodel.ActionUpdate
		if ctx.IsNew {
			action = deltamodel.ActionNew
			b.knownAddrs[key] = true

			switch mode {
			case EntityCluster:
				data["no_addresses"] = 1
				var anchor int64
				if extras.ClusterAnchorAddressID != nil {
					anchor = extras.ClusterAnchorAddressID(id)
				}
				b.emit(deltamodel.ActionNew, "cluster_addresses", map[string]any{
					"address_id": anchor, "cluster_id": id,
				})
			default: // EntityAddress
				data["address"] = e.Identifier
				data["is_contract"] = false
				var clusterID int64
				if extras.AddressToClusterID != nil {
					clusterID = extras.AddressToClusterID(e.Identifier)
					data["cluster_id"] = clusterID
				}
				prefix := e.Identifier
				if extras.AddressPrefix != nil {
					prefix = extras.AddressPrefix(e.Identifier)
				}
				b.emit(deltamodel.ActionNew, "address_ids_by_address_prefix", map[string]any{
					"address": e.Identifier, "address_id": id, "address_prefix": prefix,
				})
			}
		}

		b.emit(action, table, data)
	}
	return nil
}

// EmitBookkeeping implements spec.md 4.8 step 8: tail NEW rows for
// summary_statistics and delta_updater_history.
func (b *Builder) EmitBookkeeping(summary, history map[string]any) {
	b.emit(deltamodel.ActionNew, "summary_statistics", summary)
	b.emit(deltamodel.ActionNew, "delta_updater_history", history)
}
