package transformer

import (
	"sort"

	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
)

// BalanceLedger accumulates BalanceDelta rows for a batch, keyed by
// address id (spec.md 4.6 step 8). It is a thin bookkeeping wrapper; the
// actual merge-with-database-state happens later via BalanceDelta.LeftJoin.
type BalanceLedger struct {
	byID map[int64]deltamodel.BalanceDelta
}

func NewBalanceLedger() *BalanceLedger {
	return &BalanceLedger{byID: make(map[int64]deltamodel.BalanceDelta)}
}

func (l *BalanceLedger) entry(id int64) deltamodel.BalanceDelta {
	b, ok := l.byID[id]
	if !ok {
		b = deltamodel.NewBalanceDelta(id)
		l.byID[id] = b
	}
	return b
}

func (l *BalanceLedger) Credit(id int64, asset string, amount int64) {
	l.entry(id).Credit(asset, amount)
}

func (l *BalanceLedger) Debit(id int64, asset string, amount int64) {
	l.entry(id).Debit(asset, amount)
}

// Deltas returns the accumulated balances sorted by address id, so that
// two runs over the same inputs produce byte-equal output regardless of
// Go's randomized map iteration order.
func (l *BalanceLedger) Deltas() []deltamodel.BalanceDelta {
	ids := make([]int64, 0, len(l.byID))
	for id := range l.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]deltamodel.BalanceDelta, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.byID[id])
	}
	return out
}

const nativeAsset = "native"

// ApplyRelationBalance implements spec.md 4.6 step 8's per-relation rule:
// debit src, credit dst, for every relation except the excluded call
// types; token relations are credited/debited under each token asset
// instead of the native asset.
func ApplyRelationBalance(l *BalanceLedger, srcID, dstID int64, rel deltamodel.RelationDelta) {
	if rel.Type.ExcludedFromBalanceUpdates() {
		return
	}
	if rel.Type == deltamodel.RelationToken {
		for asset, v := range rel.TokenValues {
			l.Debit(srcID, asset, v.Value)
			l.Credit(dstID, asset, v.Value)
		}
		return
	}
	l.Debit(srcID, nativeAsset, rel.Value.Value)
	l.Credit(dstID, nativeAsset, rel.Value.Value)
}

// ApplyReward credits a reward trace's value to the miner (spec.md 4.6
// step 8: "Rewards: credit miner").
func ApplyReward(l *BalanceLedger, minerID int64, value int64) {
	l.Credit(minerID, nativeAsset, value)
}

// ApplyEVMFees implements spec.md 4.6 step 8's EVM fee rule: debit
// gas_used*gas_price from the sender, credit the same to the miner, and
// additionally debit base_fee_per_gas*gas_used from the miner (the burnt
// portion), producing a net-negative miner balance for the burn.
func ApplyEVMFees(l *BalanceLedger, senderID, minerID int64, gasUsed, gasPrice, baseFeePerGas int64) {
	fee := gasUsed * gasPrice
	l.Debit(senderID, nativeAsset, fee)
	l.Credit(minerID, nativeAsset, fee)

	burnt := baseFeePerGas * gasUsed
	l.Debit(minerID, nativeAsset, burnt)
}

// ApplyTronFee implements spec.md 4.6 step 8's Tron fee rule: debit the
// tx's fee from the sender only.
func ApplyTronFee(l *BalanceLedger, senderID int64, fee int64) {
	l.Debit(senderID, nativeAsset, fee)
}
