// Package tokendecoder recognizes ERC-20/TRC-20 Transfer events in raw logs
// and decodes them against a small allow-listed token registry (spec.md
// section 4.4). Selector hashing uses Ethereum's non-standard Keccak-256
// (distinct from NIST SHA3-256, which the teacher's consensus hashing uses
// for block/tx ids — see hash.go); golang.org/x/crypto/sha3's legacy Keccak
// constructor is the only ecosystem implementation of that variant in the
// retrieval pack.
package tokendecoder

import (
	"math/big"

	"golang.org/x/crypto/sha3"
)

// transferEventSignature is the literal event signature hashed to obtain
// the selector compared against topics[0] (spec.md 4.4).
const transferEventSignature = "Transfer(address,address,uint256)"

// TransferSelector is the first 4 bytes of keccak("Transfer(address,address,uint256)").
var TransferSelector = keccakSelector(transferEventSignature)

func keccakSelector(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	sum := h.Sum(nil)
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

// TokenInfo is one allow-listed token's fixed metadata (spec.md 4.4).
type TokenInfo struct {
	Symbol        string
	Address       []byte
	Decimals      int
	USDEquivalent bool
	CoinEquivalent bool
}

// Registry is an address-keyed allow-list of recognized tokens.
type Registry struct {
	byAddress map[string]TokenInfo
}

// NewRegistry builds a Registry from a list of tokens, keyed by the raw
// contract address bytes.
func NewRegistry(tokens []TokenInfo) *Registry {
	r := &Registry{byAddress: make(map[string]TokenInfo, len(tokens))}
	for _, t := range tokens {
		r.byAddress[string(t.Address)] = t
	}
	return r
}

// Lookup returns the TokenInfo for a contract address, or false if it is
// not on the allow-list.
func (r *Registry) Lookup(address []byte) (TokenInfo, bool) {
	t, ok := r.byAddress[string(address)]
	return t, ok
}

// DefaultEVMRegistry returns the USDT/USDC/WETH allow-list (spec.md 4.4).
// The contract addresses are supplied by the caller.
func DefaultEVMRegistry(usdt, usdc, weth []byte) *Registry {
	return NewRegistry([]TokenInfo{
		{Symbol: "USDT", Address: usdt, Decimals: 6, USDEquivalent: true},
		{Symbol: "USDC", Address: usdc, Decimals: 6, USDEquivalent: true},
		{Symbol: "WETH", Address: weth, Decimals: 18, CoinEquivalent: true},
	})
}

// DefaultTronRegistry returns the USDT/USDC/WTRX allow-list (spec.md 4.4).
func DefaultTronRegistry(usdt, usdc, wtrx []byte) *Registry {
	return NewRegistry([]TokenInfo{
		{Symbol: "USDT", Address: usdt, Decimals: 6, USDEquivalent: true},
		{Symbol: "USDC", Address: usdc, Decimals: 6, USDEquivalent: true},
		{Symbol: "WTRX", Address: wtrx, Decimals: 6, CoinEquivalent: true},
	})
}

// TokenTransfer is a decoded Transfer event (spec.md 4.4).
type TokenTransfer struct {
	From          []byte
	To            []byte
	Value         *big.Int
	Asset         string
	Decimals      int
	USDEquivalent bool
	CoinEquivalent bool
	BlockID       int64
	TxHash        []byte
	LogIndex      int
}

// RawLog is the minimal log shape this package decodes; rawadapter.RawLog
// satisfies it structurally but tokendecoder takes its own narrow view to
// avoid an import cycle.
type RawLog struct {
	BlockID  int64
	TxHash   []byte
	LogIndex int
	Address  []byte
	Topics   [][]byte
	Data     []byte
}

// Decode recognizes and decodes a Transfer event against registry. It
// returns nil for logs that are not Transfer events or whose contract
// address is not on the allow-list — both are expected, not errors
// (spec.md 4.4: "Unknown tokens -> None (not an error)"). A malformed
// payload on a matching selector+address also yields nil.
func Decode(log RawLog, registry *Registry) *TokenTransfer {
	if len(log.Topics) != 3 {
		return nil
	}
	if !matchesTransferSelector(log.Topics[0]) {
		return nil
	}
	info, ok := registry.Lookup(log.Address)
	if !ok {
		return nil
	}
	from, err := topicToAddress(log.Topics[1])
	if err != nil {
		return nil
	}
	to, err := topicToAddress(log.Topics[2])
	if err != nil {
		return nil
	}
	if len(log.Data) == 0 {
		return nil
	}
	value := new(big.Int).SetBytes(log.Data)

	return &TokenTransfer{
		From:           from,
		To:             to,
		Value:          value,
		Asset:          info.Symbol,
		Decimals:       info.Decimals,
		USDEquivalent:  info.USDEquivalent,
		CoinEquivalent: info.CoinEquivalent,
		BlockID:        log.BlockID,
		TxHash:         log.TxHash,
		LogIndex:       log.LogIndex,
	}
}

func matchesTransferSelector(topic0 []byte) bool {
	if len(topic0) < 4 {
		return false
	}
	return topic0[0] == TransferSelector[0] &&
		topic0[1] == TransferSelector[1] &&
		topic0[2] == TransferSelector[2] &&
		topic0[3] == TransferSelector[3]
}

// topicToAddress extracts the low 20 bytes of a 32-byte indexed address
// topic, rejecting anything of unexpected length as malformed.
func topicToAddress(topic []byte) ([]byte, error) {
	if len(topic) != 32 {
		return nil, errMalformed
	}
	return topic[12:], nil
}

var errMalformed = malformedPayloadError{}

type malformedPayloadError struct{}

func (malformedPayloadError) Error() string { return "tokendecoder: malformed log payload" }
