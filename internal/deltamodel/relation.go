package deltamodel

import "fmt"

// RelationType enumerates the account-dialect relation kinds from
// spec.md section 3.
type RelationType string

const (
	RelationTx           RelationType = "tx"
	RelationCall         RelationType = "call"
	RelationDelegateCall RelationType = "delegatecall"
	RelationStaticCall   RelationType = "staticcall"
	RelationCallCode     RelationType = "callcode"
	RelationToken        RelationType = "token"
)

// ExcludedFromBalanceUpdates reports whether relations of this type are
// skipped when computing balance updates (spec.md section 4.6 step 8 and
// the Open Question in section 9: these relation rows are still written,
// just excluded from balance debits/credits).
func (t RelationType) ExcludedFromBalanceUpdates() bool {
	switch t {
	case RelationDelegateCall, RelationStaticCall, RelationCallCode:
		return true
	default:
		return false
	}
}

// RelationDelta is a directed address-to-address edge delta
// (RelationDeltaAccount in spec.md section 3). UTXO relations reuse the
// same shape; Type is unused there (always "").
type RelationDelta struct {
	Src, Dst []byte

	NoTransactions int64
	Value          Value
	TokenValues    AssetMap

	// Type records the relation kind of the first contribution to this
	// group. It is not part of the merge identity (spec.md: "type is
	// ignored for compression") and is not persisted to the final schema
	// (section 6 has no type column on the relation tables); it is kept
	// for diagnostics and for the balance-update exclusion rule.
	Type RelationType
}

func (r RelationDelta) key() string {
	return string(r.Src) + "\x00" + string(r.Dst)
}

// Merge combines two RelationDeltas for the same (src, dst) pair,
// regardless of Type.
func (r RelationDelta) Merge(other RelationDelta) RelationDelta {
	if r.key() != other.key() {
		panic(fmt.Sprintf("deltamodel: RelationDelta.Merge key mismatch: %x->%x != %x->%x", r.Src, r.Dst, other.Src, other.Dst))
	}
	typ := r.Type
	if typ == "" {
		typ = other.Type
	}
	return RelationDelta{
		Src:            r.Src,
		Dst:            r.Dst,
		NoTransactions: r.NoTransactions + other.NoTransactions,
		Value:          r.Value.Merge(other.Value),
		TokenValues:    r.TokenValues.Merge(other.TokenValues),
		Type:           typ,
	}
}
