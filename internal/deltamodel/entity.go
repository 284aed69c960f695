package deltamodel

import "fmt"

// NoTxSentinel is the -1 sentinel for first_tx_id/last_tx_id used by
// reward traces that have no owning transaction (spec.md section 3).
const NoTxSentinel int64 = -1

// EntityDelta is the address-centric delta from spec.md section 3.
type EntityDelta struct {
	Identifier []byte

	TotalReceived Value
	TotalSpent    Value

	TotalTokensReceived AssetMap
	TotalTokensSpent    AssetMap

	FirstTxID int64
	LastTxID  int64

	NoIncomingTxs           int64
	NoOutgoingTxs           int64
	NoIncomingTxsZeroValue  int64
	NoOutgoingTxsZeroValue  int64
}

// minTxID implements the -1-as-absent associative min from spec.md section 3.
func minTxID(a, b int64) int64 {
	if a == NoTxSentinel {
		return b
	}
	if b == NoTxSentinel {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// maxTxID implements the -1-as-absent associative max from spec.md section 3.
func maxTxID(a, b int64) int64 {
	if a == NoTxSentinel {
		return b
	}
	if b == NoTxSentinel {
		return a
	}
	if a > b {
		return a
	}
	return b
}

// Merge combines two EntityDeltas for the same identifier. Panics if the
// identifiers differ — callers group by identifier before merging
// (spec.md: "identifier equality asserted").
func (e EntityDelta) Merge(other EntityDelta) EntityDelta {
	if string(e.Identifier) != string(other.Identifier) {
		panic(fmt.Sprintf("deltamodel: EntityDelta.Merge identifier mismatch: %x != %x", e.Identifier, other.Identifier))
	}
	return EntityDelta{
		Identifier:             e.Identifier,
		TotalReceived:          e.TotalReceived.Merge(other.TotalReceived),
		TotalSpent:             e.TotalSpent.Merge(other.TotalSpent),
		TotalTokensReceived:    e.TotalTokensReceived.Merge(other.TotalTokensReceived),
		TotalTokensSpent:       e.TotalTokensSpent.Merge(other.TotalTokensSpent),
		FirstTxID:              minTxID(e.FirstTxID, other.FirstTxID),
		LastTxID:               maxTxID(e.LastTxID, other.LastTxID),
		NoIncomingTxs:          e.NoIncomingTxs + other.NoIncomingTxs,
		NoOutgoingTxs:          e.NoOutgoingTxs + other.NoOutgoingTxs,
		NoIncomingTxsZeroValue: e.NoIncomingTxsZeroValue + other.NoIncomingTxsZeroValue,
		NoOutgoingTxsZeroValue: e.NoOutgoingTxsZeroValue + other.NoOutgoingTxsZeroValue,
	}
}

// CheckInvariant validates "first_tx_id <= last_tx_id" ignoring the -1
// sentinel (spec.md section 3 batch-boundary invariants).
func (e EntityDelta) CheckInvariant() error {
	if e.FirstTxID == NoTxSentinel || e.LastTxID == NoTxSentinel {
		return nil
	}
	if e.FirstTxID > e.LastTxID {
		return fmt.Errorf("deltamodel: entity %x: first_tx_id %d > last_tx_id %d", e.Identifier, e.FirstTxID, e.LastTxID)
	}
	return nil
}
