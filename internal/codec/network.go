// Package codec implements spec.md section 4.1: per-network address
// byte<->string conversion, plus the decimal/unit helpers the Transformer
// needs for fiat conversion (spec.md section 4.6 step 7).
//
// Grounded on the address-handling shape of daglabs-btcd/util/address.go
// (an example repo, not the teacher) for the overall to_bytes/to_str split
// between network families; the bit-packed 6-bit alphabet coders
// themselves are bespoke per spec.md and have no ecosystem library
// equivalent in the retrieval pack (see DESIGN.md).
package codec

import "fmt"

type Kind int

const (
	KindEVM Kind = iota
	KindTron
	KindUTXO
)

// Network describes one configured chain's address format.
type Network struct {
	Name string
	Kind Kind

	// Bech32Prefixes lists the literal human-readable prefixes (including
	// the "1" separator, e.g. "bc1", "ltc1") this UTXO network accepts.
	// Empty for non-UTXO networks.
	Bech32Prefixes []string
}

// InvalidAddress reports a malformed address; see engineerr.KindInvalidAddress.
type InvalidAddress struct {
	Network string
	Input   string
	Reason  string
}

func (e *InvalidAddress) Error() string {
	return fmt.Sprintf("codec: invalid address for network %s: %q: %s", e.Network, e.Input, e.Reason)
}

func invalid(network Network, input, reason string) error {
	return &InvalidAddress{Network: network.Name, Input: input, Reason: reason}
}

var (
	ETH = Network{Name: "eth", Kind: KindEVM}
	TRX = Network{Name: "trx", Kind: KindTron}
	BTC = Network{Name: "btc", Kind: KindUTXO, Bech32Prefixes: []string{"bc1"}}
	LTC = Network{Name: "ltc", Kind: KindUTXO, Bech32Prefixes: []string{"ltc1"}}
)

func init() {
	for _, n := range []Network{BTC, LTC} {
		for _, prefix := range n.Bech32Prefixes {
			if err := assertNoAlphabetCollision(prefix); err != nil {
				panic(fmt.Sprintf("codec: network %s: %v", n.Name, err))
			}
		}
	}
}

// ToBytes converts a user-facing address string to its internal byte
// representation for the given network.
func ToBytes(network Network, address string) ([]byte, error) {
	switch network.Kind {
	case KindEVM:
		return evmToBytes(network, address)
	case KindTron:
		return tronToBytes(network, address)
	case KindUTXO:
		return utxoToBytes(network, address)
	default:
		return nil, invalid(network, address, "unknown network kind")
	}
}

// ToStr converts internal bytes back to the canonical address-string
// representation for the given network. By construction this always
// returns the canonical form (see ToCanonical), which is what callers
// persist and compare.
func ToStr(network Network, addr []byte) (string, error) {
	switch network.Kind {
	case KindEVM:
		return evmToStr(network, addr)
	case KindTron:
		return tronToStr(network, addr)
	case KindUTXO:
		return utxoToStr(network, addr)
	default:
		return "", invalid(network, fmt.Sprintf("%x", addr), "unknown network kind")
	}
}

// ToCanonical normalizes a user-facing address string by round-tripping
// it through ToBytes/ToStr.
func ToCanonical(network Network, address string) (string, error) {
	b, err := ToBytes(network, address)
	if err != nil {
		return "", err
	}
	return ToStr(network, b)
}
