// Package sink defines the network-agnostic storage contract from spec.md
// section 6: the core depends only on these interfaces, never on a
// specific storage engine. internal/sink/boltsink is the one concrete
// implementation carried in this repository.
package sink

import (
	"context"

	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
)

// AddressRow is the persisted `address` table row (spec.md section 6).
// ClusterID is UTXO-only: the cluster this address currently belongs to,
// set the batch the address was first allocated a cluster (spec.md 4.6
// UTXO dialect's cluster-layer projection).
type AddressRow struct {
	AddressIDGroup          int64
	AddressID               int64
	Address                 []byte
	NoIncomingTxs           int64
	NoOutgoingTxs           int64
	NoIncomingTxsZeroValue  int64
	NoOutgoingTxsZeroValue  int64
	FirstTxID               int64
	LastTxID                int64
	TotalReceived           deltamodel.Value
	TotalSpent              deltamodel.Value
	TotalTokensReceived     deltamodel.AssetMap
	TotalTokensSpent        deltamodel.AssetMap
	InDegree                int64
	OutDegree               int64
	InDegreeZeroValue       int64
	OutDegreeZeroValue      int64
	IsContract              bool
	ClusterID               int64
	HasClusterID            bool
}

// RelationRow is one address_incoming_relations / address_outgoing_relations row.
type RelationRow struct {
	SrcAddressID   int64
	DstAddressID   int64
	NoTransactions int64
	Value          deltamodel.Value
	TokenValues    deltamodel.AssetMap
}

// ExchangeRates is a block's stored fiat vector.
type ExchangeRates struct {
	BlockID    int64
	FiatValues []float64
}

// UpdaterStatus is the `delta_updater_status` row.
type UpdaterStatus struct {
	LastSyncedBlock int64
}

// RawBlock, LogRow and TraceRow are the raw-sink read shapes; they
// intentionally mirror rawadapter's normalized types but are kept distinct
// because the raw sink returns pre-adapter rows in general.
type RawBlock struct {
	BlockID   int64
	Timestamp int64
	Miner     []byte // credited for rewards and EVM/Tron fees (spec.md 4.6 step 8)
}

// TxDetailRow carries the per-transaction fields the persisted
// deltamodel.Tx row drops but spec.md 4.6 step 8's fee rules need: sender,
// receiver, and the gas/fee figures. Joined to a block's []deltamodel.Tx
// by TxHash.
type TxDetailRow struct {
	TxHash        []byte
	FromAddress   []byte
	ToAddress     []byte
	GasUsed       int64
	GasPrice      int64
	BaseFeePerGas int64 // EVM only (EIP-1559); zero where not applicable
	Fee           int64 // Tron only; zero where not applicable
}

// UTXOInputRow and UTXOOutputRow are a UTXO transaction's already-resolved
// sides (spec.md 4.7: multi-sig/null/unresolved outputs filtered out
// upstream, before the raw sink hands rows to the core).
type UTXOInputRow struct {
	Address []byte
	Value   int64
}

type UTXOOutputRow struct {
	Address []byte
	Value   int64
}

// UTXOTxRow is one UTXO transaction's raw shape: its resolved inputs and
// outputs plus the true total input value (including any filtered-out
// inputs), needed for TransformUTXOTx's reduced_input_sum (spec.md 4.6
// UTXO dialect).
type UTXOTxRow struct {
	TxHash          []byte
	TxIndex         int
	Inputs          []UTXOInputRow
	Outputs         []UTXOOutputRow
	TotalInputValue int64
}

// RawSink is read-only to the core (spec.md section 5: "The raw sink is
// read-only to the core").
type RawSink interface {
	GetBlock(ctx context.Context, blockID int64) (RawBlock, error)
	GetBlockTimestamp(ctx context.Context, blockID int64) (int64, error)
	GetTransactionsInBlock(ctx context.Context, blockID int64) ([]deltamodel.Tx, error)
	GetTransactionDetailsInBlock(ctx context.Context, blockID int64) ([]TxDetailRow, error)
	GetLogsInBlock(ctx context.Context, blockID int64, topic0 []byte, contract []byte) ([]LogRow, error)
	GetTracesInBlock(ctx context.Context, blockID int64) ([]TraceRow, error)
	GetUTXOTransactionsInBlock(ctx context.Context, blockID int64) ([]UTXOTxRow, error)
	GetExchangeRatesForBlockBatch(ctx context.Context, blockIDs []int64) ([]ExchangeRates, error)
}

// LogRow and TraceRow are the raw-sink's pre-adapter views of a log/trace.
type LogRow struct {
	BlockID  int64
	TxHash   []byte
	LogIndex int
	Address  []byte
	Topics   [][]byte
	Data     []byte
}

type TraceRow struct {
	BlockID     int64
	TxHash      []byte
	TraceIndex  int
	FromAddress []byte
	ToAddress   []byte
	Value       int64
	CallType    string
	Status      int
}

// TransformedSink is written by this process exclusively and read back for
// merge context (spec.md section 6).
type TransformedSink interface {
	GetAddressID(ctx context.Context, address []byte) (id int64, found bool, err error)
	GetAddress(ctx context.Context, id int64) (AddressRow, bool, error)
	GetAddressIncomingRelations(ctx context.Context, dst, src int64) (RelationRow, bool, error)
	GetAddressOutgoingRelations(ctx context.Context, src, dst int64) (RelationRow, bool, error)
	GetBalanceBatchAccount(ctx context.Context, ids []int64) (map[int64]deltamodel.BalanceDelta, error)
	GetMaxSecondaryIDs(ctx context.Context, groups []int64, table, groupCol string) (map[int64]int64, error)
	GetExchangeRatesByBlock(ctx context.Context, blockID int64) (ExchangeRates, bool, error)
	GetSummaryStatistics(ctx context.Context) (map[string]any, error)
	GetDeltaUpdaterStatus(ctx context.Context) (UpdaterStatus, bool, error)

	// ApplyChanges writes changes in order. If atomic, either all rows
	// become visible together or none do (spec.md section 4.9).
	ApplyChanges(ctx context.Context, changes []deltamodel.DbChange, atomic bool) error
	EnsureTableExists(ctx context.Context, name string, columns []string, primaryKeys []string, truncate bool) error
}
