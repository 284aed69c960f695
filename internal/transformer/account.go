package transformer

import (
	"sort"

	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
	"github.com/graphsense/graphsense-lib-sub000/internal/idalloc"
	"github.com/graphsense/graphsense-lib-sub000/internal/rawadapter"
	"github.com/graphsense/graphsense-lib-sub000/internal/tokendecoder"
)

// AddressAppearance is one entry in the ordered address-appearance stream
// from spec.md 4.6 step 4: union of addresses touched by successful
// traces, reward traces, token transfers, and transactions, sorted by
// (block_id, is_log, index, is_from_address).
type AddressAppearance struct {
	Address       []byte
	BlockID       int64
	IsLog         bool
	Index         int // log_index for logs; trace_index for traces; transaction_index-1_000_000 for txs
	IsFromAddress bool
}

// txIndexOffset forces tx-originated entries before log entries within the
// same block (spec.md 4.6 step 4).
const txIndexOffset = -1_000_000

func appearanceKey(a AddressAppearance) (int64, bool, int, bool) {
	return a.BlockID, a.IsLog, a.Index, a.IsFromAddress
}

// OrderAddressAppearances sorts appearances by the fixed key and
// deduplicates preserving first occurrence, returning the addresses in
// that order (spec.md 4.6 step 4).
func OrderAddressAppearances(appearances []AddressAppearance) [][]byte {
	sorted := append([]AddressAppearance{}, appearances...)
	sort.SliceStable(sorted, func(i, j int) bool {
		bi, li, ii, fi := appearanceKey(sorted[i])
		bj, lj, ij, fj := appearanceKey(sorted[j])
		if bi != bj {
			return bi < bj
		}
		if li != lj {
			return !li && lj // non-log before log
		}
		if ii != ij {
			return ii < ij
		}
		return fi && !fj // from-address before to-address
	})

	seen := make(map[string]bool, len(sorted))
	out := make([][]byte, 0, len(sorted))
	for _, a := range sorted {
		key := string(a.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a.Address)
	}
	return out
}

// AssignTransactionID implements spec.md 4.6 step 3: EVM draws a fresh
// dense id from the allocator; Tron derives one with no state.
func AssignTransactionID(dialectIsTron bool, allocator *idalloc.Allocator, blockID int64, transactionIndex int) int64 {
	if dialectIsTron {
		return idalloc.TronTransactionID(blockID, transactionIndex)
	}
	return allocator.Next()
}

// TraceDeltaResult bundles the per-trace output from spec.md 4.6 step 6.
type TraceDeltaResult struct {
	EntityTxs []deltamodel.RawEntityTx
	Entities  []deltamodel.EntityDelta
	Relation  deltamodel.RelationDelta
}

// TraceDelta builds the two RawEntityTx rows, two EntityDelta rows, and one
// RelationDelta for a single successful trace (spec.md 4.6 step 6, first
// bullet).
func TraceDelta(tr rawadapter.RawTrace, txID int64, fiat [2]float64) TraceDeltaResult {
	traceIdx := tr.TraceIndex
	ref := deltamodel.TxReference{TraceIndex: &traceIdx}

	value := deltamodel.Value{Value: tr.Value, FiatValues: fiat[:]}

	outgoing := deltamodel.RawEntityTx{
		Identifier: tr.FromAddress, IsOutgoing: true, TxID: txID,
		TxReference: ref, Value: tr.Value, BlockID: tr.BlockID,
	}
	incoming := deltamodel.RawEntityTx{
		Identifier: tr.ToAddress, IsOutgoing: false, TxID: txID,
		TxReference: ref, Value: tr.Value, BlockID: tr.BlockID,
	}

	spent := deltamodel.EntityDelta{
		Identifier: tr.FromAddress, TotalSpent: value,
		FirstTxID: txID, LastTxID: txID, NoOutgoingTxs: 1,
	}
	received := deltamodel.EntityDelta{
		Identifier: tr.ToAddress, TotalReceived: value,
		FirstTxID: txID, LastTxID: txID, NoIncomingTxs: 1,
	}
	if tr.Value == 0 {
		spent.NoOutgoingTxsZeroValue = 1
		received.NoIncomingTxsZeroValue = 1
	}

	relation := deltamodel.RelationDelta{
		Src: tr.FromAddress, Dst: tr.ToAddress,
		NoTransactions: 1, Value: value,
		Type: deltamodel.RelationType(tr.CallType),
	}

	return TraceDeltaResult{
		EntityTxs: []deltamodel.RawEntityTx{outgoing, incoming},
		Entities:  []deltamodel.EntityDelta{spent, received},
		Relation:  relation,
	}
}

// TokenTransferDelta builds the analogous pair for a decoded token
// transfer (spec.md 4.6 step 6, second bullet): tx_reference carries
// log_index instead of trace_index, amounts live under the token's asset
// key, and the relation type is "token" with zero native value.
func TokenTransferDelta(tt tokendecoder.TokenTransfer, txID int64, fiat [2]float64) TraceDeltaResult {
	logIdx := tt.LogIndex
	ref := deltamodel.TxReference{LogIndex: &logIdx}

	amount := tt.Value.Int64()
	tokenValue := deltamodel.Value{Value: amount, FiatValues: fiat[:]}
	assets := deltamodel.AssetMap{tt.Asset: tokenValue}

	outgoing := deltamodel.RawEntityTx{
		Identifier: tt.From, IsOutgoing: true, TxID: txID,
		TxReference: ref, TokenValues: assets, BlockID: tt.BlockID,
	}
	incoming := deltamodel.RawEntityTx{
		Identifier: tt.To, IsOutgoing: false, TxID: txID,
		TxReference: ref, TokenValues: assets, BlockID: tt.BlockID,
	}

	spent := deltamodel.EntityDelta{
		Identifier: tt.From, TotalTokensSpent: assets,
		FirstTxID: txID, LastTxID: txID, NoOutgoingTxs: 1,
	}
	received := deltamodel.EntityDelta{
		Identifier: tt.To, TotalTokensReceived: assets,
		FirstTxID: txID, LastTxID: txID, NoIncomingTxs: 1,
	}

	relation := deltamodel.RelationDelta{
		Src: tt.From, Dst: tt.To,
		NoTransactions: 1, TokenValues: assets,
		Type: deltamodel.RelationToken,
	}

	return TraceDeltaResult{
		EntityTxs: []deltamodel.RawEntityTx{outgoing, incoming},
		Entities:  []deltamodel.EntityDelta{spent, received},
		Relation:  relation,
	}
}
