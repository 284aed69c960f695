package codec

import "strings"

const nonstandardSentinel = "nonstandard"

func utxoToBytes(network Network, address string) ([]byte, error) {
	if strings.HasPrefix(address, nonstandardSentinel) {
		b, err := packAlphabet(alphaBase62, address)
		if err != nil {
			return nil, invalid(network, address, err.Error())
		}
		return b, nil
	}
	for _, prefix := range network.Bech32Prefixes {
		if strings.HasPrefix(address, prefix) {
			b, err := packAlphabet(alphaBech32, address)
			if err != nil {
				return nil, invalid(network, address, err.Error())
			}
			return b, nil
		}
	}
	b, err := packAlphabet(alphaBase58, address)
	if err != nil {
		return nil, invalid(network, address, err.Error())
	}
	return b, nil
}

// utxoToStr recovers which of the three 6-bit alphabets produced addr by
// trying bech32 first (checking the result against the network's
// configured prefixes), then the nonstandard sentinel, falling back to
// base58 — the same disambiguation spec.md 4.1 describes for the reverse
// path, made safe by the collision invariant asserted in bitpack.go.
func utxoToStr(network Network, addr []byte) (string, error) {
	if candidate := unpackAlphabet(alphaBech32, addr); candidate != "" {
		for _, prefix := range network.Bech32Prefixes {
			if strings.HasPrefix(candidate, prefix) {
				return candidate, nil
			}
		}
	}
	if candidate := unpackAlphabet(alphaBase62, addr); strings.HasPrefix(candidate, nonstandardSentinel) {
		return candidate, nil
	}
	return unpackAlphabet(alphaBase58, addr), nil
}
