// Package defi extracts swap and bridge records from a single transaction's
// decoded logs and value traces, using the asset-flow multigraph and
// eulerian-path heuristic from spec.md section 4.5. Graph bookkeeping
// follows the plain-map, explicit-error style of the teacher's chain-work
// traversal (consensus/fork_choice.go) rather than a graph library — the
// retrieval pack carries no graph library and the multigraph here is small
// (bounded by one transaction's logs/traces).
package defi

import (
	"math/big"
	"strconv"
)

// NativeSentinel is the 20-byte placeholder asset id for the chain's native
// coin in the flow graph (spec.md 4.5 "Version sentinel").
var NativeSentinel = [20]byte{
	0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE,
	0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE,
}

// DecodedLog is one transaction log with its recognized event name,
// contract address, parsed parameters, and tag set (spec.md 4.5).
type DecodedLog struct {
	Name       string
	Address    []byte
	Parameters map[string]any
	Tags       []string
	LogIndex   int
}

// ValueTrace is a non-zero-value call trace contributing a native-coin flow
// edge (spec.md 4.5).
type ValueTrace struct {
	From  []byte
	To    []byte
	Value *big.Int
}

// TokenTransfer mirrors tokendecoder.TokenTransfer's fields this package
// needs, taken narrowly to avoid an import cycle.
type TokenTransfer struct {
	From     []byte
	To       []byte
	Value    *big.Int
	Asset    string
	LogIndex int
}

// ExternalSwap is a recognized single-asset-in/single-asset-out swap
// (spec.md 4.5).
type ExternalSwap struct {
	Swapper    []byte
	FromAmount *big.Int
	ToAmount   *big.Int
	FromAsset  string
	ToAsset    string
	Version    string
	SwapLog    string // "txhash_Sindex"
}

// Bridge is a recognized cross-chain bridge leg (spec.md 4.5).
type Bridge struct {
	Protocol string
	Address  []byte
	Tags     []string
	LogIndex int
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Extract runs the strategy selection from spec.md 4.5 over a single
// transaction's decoded logs, raw value traces, and token transfers.
func Extract(txHash string, topLevelFrom []byte, logs []DecodedLog, traces []ValueTrace, transfers []TokenTransfer, weth []byte) ([]ExternalSwap, []Bridge) {
	if len(logs) == 0 {
		return nil, nil
	}

	allTags := make(map[string]bool)
	for _, l := range logs {
		for _, t := range l.Tags {
			allTags[t] = true
		}
	}
	last := logs[len(logs)-1]

	switch {
	case hasTag(last.Tags, "OrderRecord"):
		swap := extractOrderRecord(txHash, last)
		if swap == nil {
			return nil, nil
		}
		return []ExternalSwap{*swap}, nil

	case allTags["cow-protocol settlement"] || allTags["cross-chain"]:
		return nil, extractBridges(logs)

	case allTags["swap"]:
		swap := extractEulerianSwap(txHash, topLevelFrom, logs, traces, transfers, weth)
		if swap == nil {
			return nil, extractBridges(logs)
		}
		return []ExternalSwap{*swap}, extractBridges(logs)

	default:
		return nil, extractBridges(logs)
	}
}

// extractOrderRecord pulls a single swap directly from an OrderRecord-style
// log's parameters (spec.md 4.5 strategy 1, e.g. OKX router).
func extractOrderRecord(txHash string, log DecodedLog) *ExternalSwap {
	fromAsset, _ := log.Parameters["from_asset"].(string)
	toAsset, _ := log.Parameters["to_asset"].(string)
	fromAmount, ok1 := log.Parameters["from_amount"].(*big.Int)
	toAmount, ok2 := log.Parameters["to_amount"].(*big.Int)
	swapper, _ := log.Parameters["swapper"].([]byte)
	if fromAsset == "" || toAsset == "" || !ok1 || !ok2 {
		return nil
	}
	return &ExternalSwap{
		Swapper:    swapper,
		FromAmount: fromAmount,
		ToAmount:   toAmount,
		FromAsset:  fromAsset,
		ToAsset:    toAsset,
		Version:    "OrderRecord",
		SwapLog:    swapLogRef(txHash, log.LogIndex),
	}
}

func swapLogRef(txHash string, logIndex int) string {
	return txHash + "_S" + strconv.Itoa(logIndex)
}
