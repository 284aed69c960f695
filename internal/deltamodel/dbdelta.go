package deltamodel

import (
	"encoding/binary"
	"sort"
)

// EncodeClusterID represents a cluster id as an 8-byte big-endian
// identifier so it can travel through the same []byte-typed Identifier/
// Src/Dst fields that address identifiers use ahead of resolution
// (spec.md 4.6 UTXO dialect's cluster-layer projection; grounded on
// generic.py's DbDelta.to_cluster_delta, which just reassigns
// update.identifier to the looked-up cluster id in place).
func EncodeClusterID(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// DecodeClusterID reverses EncodeClusterID.
func DecodeClusterID(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// DbDelta is the composite per-batch delta from spec.md section 3.
type DbDelta struct {
	EntityUpdates   []EntityDelta
	NewEntityTxs    []RawEntityTx
	RelationUpdates []RelationDelta
	BalanceUpdates  []BalanceDelta // account dialect only
}

// Concat appends other's contents to a copy of d without compressing.
func (d DbDelta) Concat(other DbDelta) DbDelta {
	out := DbDelta{
		EntityUpdates:   make([]EntityDelta, 0, len(d.EntityUpdates)+len(other.EntityUpdates)),
		NewEntityTxs:    make([]RawEntityTx, 0, len(d.NewEntityTxs)+len(other.NewEntityTxs)),
		RelationUpdates: make([]RelationDelta, 0, len(d.RelationUpdates)+len(other.RelationUpdates)),
		BalanceUpdates:  make([]BalanceDelta, 0, len(d.BalanceUpdates)+len(other.BalanceUpdates)),
	}
	out.EntityUpdates = append(out.EntityUpdates, d.EntityUpdates...)
	out.EntityUpdates = append(out.EntityUpdates, other.EntityUpdates...)
	out.NewEntityTxs = append(out.NewEntityTxs, d.NewEntityTxs...)
	out.NewEntityTxs = append(out.NewEntityTxs, other.NewEntityTxs...)
	out.RelationUpdates = append(out.RelationUpdates, d.RelationUpdates...)
	out.RelationUpdates = append(out.RelationUpdates, other.RelationUpdates...)
	out.BalanceUpdates = append(out.BalanceUpdates, d.BalanceUpdates...)
	out.BalanceUpdates = append(out.BalanceUpdates, other.BalanceUpdates...)
	return out
}

// MergeAll reduces a list of DbDeltas by Concat, then Compress.
func MergeAll(deltas []DbDelta) DbDelta {
	var acc DbDelta
	for _, d := range deltas {
		acc = acc.Concat(d)
	}
	return acc.Compress()
}

// Compress groups EntityUpdates by identifier (order-preserving: the
// output is ordered by the minimum first_tx_id of each group, ties broken
// by first appearance) and merges each group; groups RelationUpdates by
// (src, dst) and merges each group. NewEntityTxs is left as is (spec.md
// section 4.2).
func (d DbDelta) Compress() DbDelta {
	return DbDelta{
		EntityUpdates:   compressEntities(d.EntityUpdates),
		NewEntityTxs:    d.NewEntityTxs,
		RelationUpdates: compressRelations(d.RelationUpdates),
		BalanceUpdates:  d.BalanceUpdates,
	}
}

// ToClusterDelta re-expresses d with every address identifier replaced by
// its cluster id (encoded via EncodeClusterID) and re-compresses the
// result. This is the UTXO dialect's cluster-layer projection (spec.md
// 4.6: "address->cluster id is looked up; the same DbDelta is then
// re-expressed with clusters as identifiers and further compressed"),
// grounded on generic.py's DbDelta.to_cluster_delta.
func (d DbDelta) ToClusterDelta(addressToClusterID func(address []byte) int64) DbDelta {
	entities := make([]EntityDelta, len(d.EntityUpdates))
	for i, e := range d.EntityUpdates {
		e.Identifier = EncodeClusterID(addressToClusterID(e.Identifier))
		entities[i] = e
	}

	txs := make([]RawEntityTx, len(d.NewEntityTxs))
	for i, t := range d.NewEntityTxs {
		t.Identifier = EncodeClusterID(addressToClusterID(t.Identifier))
		txs[i] = t
	}

	relations := make([]RelationDelta, len(d.RelationUpdates))
	for i, r := range d.RelationUpdates {
		r.Src = EncodeClusterID(addressToClusterID(r.Src))
		r.Dst = EncodeClusterID(addressToClusterID(r.Dst))
		relations[i] = r
	}

	return DbDelta{
		EntityUpdates:   entities,
		NewEntityTxs:    txs,
		RelationUpdates: relations,
	}.Compress()
}

type entityGroup struct {
	merged       EntityDelta
	firstSeenIdx int
}

func compressEntities(entities []EntityDelta) []EntityDelta {
	groups := make(map[string]*entityGroup, len(entities))
	order := make([]string, 0, len(entities))

	for i, e := range entities {
		key := string(e.Identifier)
		if g, ok := groups[key]; ok {
			g.merged = g.merged.Merge(e)
			continue
		}
		groups[key] = &entityGroup{merged: e, firstSeenIdx: i}
		order = append(order, key)
	}

	// Stable sort by (min first_tx_id of the group, first-seen index) so
	// ties preserve first-seen order, and -1 (absent) sorts after any
	// real tx id — reward-only entities settle at the tail.
	sort.SliceStable(order, func(i, j int) bool {
		gi, gj := groups[order[i]], groups[order[j]]
		ki, kj := sortKeyForFirstTxID(gi.merged.FirstTxID), sortKeyForFirstTxID(gj.merged.FirstTxID)
		if ki != kj {
			return ki < kj
		}
		return gi.firstSeenIdx < gj.firstSeenIdx
	})

	out := make([]EntityDelta, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k].merged)
	}
	return out
}

// sortKeyForFirstTxID maps the -1 sentinel to the largest possible value so
// reward-only entities (no associated tx) sort after every real tx id.
func sortKeyForFirstTxID(firstTxID int64) int64 {
	if firstTxID == NoTxSentinel {
		return int64(^uint64(0) >> 1)
	}
	return firstTxID
}

func compressRelations(relations []RelationDelta) []RelationDelta {
	type group struct {
		merged       RelationDelta
		firstSeenIdx int
	}
	groups := make(map[string]*group, len(relations))
	order := make([]string, 0, len(relations))

	for i, r := range relations {
		key := r.key()
		if g, ok := groups[key]; ok {
			g.merged = g.merged.Merge(r)
			continue
		}
		groups[key] = &group{merged: r, firstSeenIdx: i}
		order = append(order, key)
	}

	out := make([]RelationDelta, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k].merged)
	}
	return out
}
