// Package rawadapter normalizes chain-specific raw rows (blocks, traces,
// logs, transactions) into the internal shapes Transformer consumes
// (spec.md section 4.3). It performs field renaming, field synthesis, and
// bucket/partition derivation; it does not touch deltamodel algebra.
package rawadapter

import "github.com/graphsense/graphsense-lib-sub000/internal/codec"

const (
	defaultBlockBucketSize = 1_000
	defaultPartitionSize   = 100_000
)

// TraceKind distinguishes external (top-level) from internal (child) call
// traces, derived from an empty trace address and a zero trace index.
type TraceKind string

const (
	TraceExternal TraceKind = "external"
	TraceInternal TraceKind = "internal"
)

// RawTrace is a normalized EVM/Tron call trace.
type RawTrace struct {
	BlockID          int64
	TxHash           []byte // nil for reward traces (spec.md 4.6 step 1)
	TraceIndex       int
	FromAddress      []byte
	ToAddress        []byte
	Value            int64
	CallType         string // "call", "delegatecall", "staticcall", "callcode", "create"
	Status           int    // 1 == success
	ContractCreation bool
	Kind             TraceKind
}

// RawLog is a normalized EVM/Tron log row, pre token-decoding.
type RawLog struct {
	BlockID  int64
	TxHash   []byte
	LogIndex int
	Address  []byte
	Topics   [][]byte
	Data     []byte
}

// RawTx is a normalized transaction row.
type RawTx struct {
	BlockID          int64
	TxHash           []byte
	TransactionIndex int
	FromAddress      []byte
	ToAddress        []byte
	Value            int64
	GasUsed          int64
	GasPrice         int64
	BaseFeePerGas    int64
	Fee              int64 // Tron only
	Failed           bool
}

// RawBlock is a normalized block header plus its miner/timestamp.
type RawBlock struct {
	BlockID   int64
	Timestamp int64 // seconds
	Miner     []byte
}

// Bucketing mirrors block_id_group = block_id / block_bucket_size and
// partition = block_id / partition_size (spec.md 4.3).
func BlockIDGroup(blockID int64, bucketSize int64) int64 {
	if bucketSize <= 0 {
		bucketSize = defaultBlockBucketSize
	}
	return blockID / bucketSize
}

func Partition(blockID int64, partitionSize int64) int64 {
	if partitionSize <= 0 {
		partitionSize = defaultPartitionSize
	}
	return blockID / partitionSize
}

// TraceKindOf classifies a trace as external or internal: external traces
// have an empty trace address and trace index 0.
func TraceKindOf(traceAddressEmpty bool, traceIndex int) TraceKind {
	if traceAddressEmpty && traceIndex == 0 {
		return TraceExternal
	}
	return TraceInternal
}

// TronTrace renames Tron's trace field names onto the account-dialect
// shape (spec.md 4.3: caller_address->from_address,
// transferto_address->to_address, call_value->value). EVM traces need no
// rename and should be constructed directly as RawTrace.
func TronTrace(blockID int64, txHash []byte, traceIndex int, callerAddress, transferToAddress []byte, callValue int64, callType string, status int) RawTrace {
	return RawTrace{
		BlockID:     blockID,
		TxHash:      txHash,
		TraceIndex:  traceIndex,
		FromAddress: callerAddress,
		ToAddress:   transferToAddress,
		Value:       callValue,
		CallType:    callType,
		Status:      status,
	}
}

// TronBlockTimestamp converts a Tron block timestamp (milliseconds) to
// seconds, per spec.md 4.3.
func TronBlockTimestamp(millis int64) int64 {
	return millis / 1_000
}

// FilterSuccessful returns successful traces per spec.md 4.6 step 1:
// status==1, and for Tron additionally call_type=="call". Reward traces
// (TxHash == nil) are returned separately via SplitRewardTraces.
func FilterSuccessful(traces []RawTrace, network codec.Network) []RawTrace {
	out := make([]RawTrace, 0, len(traces))
	for _, tr := range traces {
		if tr.Status != 1 {
			continue
		}
		if network.Kind == codec.KindTron && tr.CallType != "call" {
			continue
		}
		out = append(out, tr)
	}
	return out
}

// SplitRewardTraces partitions traces into non-reward (has a tx hash) and
// reward (no owning transaction) groups.
func SplitRewardTraces(traces []RawTrace) (withTx, rewards []RawTrace) {
	for _, tr := range traces {
		if tr.TxHash == nil {
			rewards = append(rewards, tr)
			continue
		}
		withTx = append(withTx, tr)
	}
	return withTx, rewards
}
