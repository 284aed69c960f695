package deltamodel

// TxReference identifies where in a transaction a RawEntityTx originated:
// a trace index (account value transfer) xor a log index (token
// transfer) — exactly one is set (spec.md section 3).
type TxReference struct {
	TraceIndex *int
	LogIndex   *int
}

// RawEntityTx is one row per (address, tx, is_outgoing, kind) — the
// address_transactions table's source record (spec.md section 3 and 6).
type RawEntityTx struct {
	Identifier  []byte
	IsOutgoing  bool
	TxID        int64
	TxReference TxReference
	Value       int64
	TokenValues AssetMap
	BlockID     int64
}
