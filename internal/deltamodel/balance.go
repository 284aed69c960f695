package deltamodel

// BalanceDelta is an account-dialect per-address, per-asset balance change
// (spec.md section 3). Identifier is the allocated address id, not raw
// address bytes, since balances are keyed post address-id-assignment.
type BalanceDelta struct {
	Identifier     int64
	AssetBalances  map[string]Scalar
}

func NewBalanceDelta(id int64) BalanceDelta {
	return BalanceDelta{Identifier: id, AssetBalances: make(map[string]Scalar)}
}

// Credit adds amount to asset's balance (creating the key if absent).
func (b BalanceDelta) Credit(asset string, amount int64) {
	cur := b.AssetBalances[asset]
	b.AssetBalances[asset] = cur.Merge(Scalar{Value: amount})
}

// Debit subtracts amount from asset's balance.
func (b BalanceDelta) Debit(asset string, amount int64) {
	b.Credit(asset, -amount)
}

// LeftJoin merges b with a database-loaded balance other, keeping all keys
// from b and adding other's value for any shared key (spec.md section 3:
// "keeping all keys from self, adding values for shared keys"). Keys that
// exist only in other are dropped — there is nothing new to write for an
// asset this batch never touched.
func (b BalanceDelta) LeftJoin(other BalanceDelta) BalanceDelta {
	out := NewBalanceDelta(b.Identifier)
	for asset, v := range b.AssetBalances {
		if ov, ok := other.AssetBalances[asset]; ok {
			out.AssetBalances[asset] = v.Merge(ov)
		} else {
			out.AssetBalances[asset] = v
		}
	}
	return out
}
