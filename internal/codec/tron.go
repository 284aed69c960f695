package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// tronAddressPrefix is the version byte Tron prepends before the 20-byte
// EVM-compatible payload (spec.md 4.1: "0x41 ‖ 20-byte").
const tronAddressPrefix = 0x41

// base58checkAlphabet is the standard (non-bit-packed) Base58 alphabet used
// for Tron's checksummed address encoding. It happens to share its
// character set with the UTXO 6-bit base58 alphabet, but the encoding here
// is the classic arbitrary-precision Base58Check scheme, not the 6-bit
// packer in bitpack.go.
const base58checkAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func tronToBytes(network Network, address string) ([]byte, error) {
	s := strings.TrimSpace(address)
	if s == "" {
		return nil, invalid(network, address, "empty address")
	}
	// Raw exporters sometimes hand us the EVM-shaped hex form directly
	// (same byte layout as EVM); accept that too.
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return evmToBytes(network, s)
	}

	raw, err := base58CheckDecode(s)
	if err != nil {
		return nil, invalid(network, address, err.Error())
	}
	if len(raw) != 1+evmAddressLen {
		return nil, invalid(network, address, "expected 21-byte payload (version + 20 bytes)")
	}
	if raw[0] != tronAddressPrefix {
		return nil, invalid(network, address, "unexpected version byte")
	}
	out := make([]byte, evmAddressLen)
	copy(out, raw[1:])
	return out, nil
}

func tronToStr(network Network, addr []byte) (string, error) {
	if len(addr) != evmAddressLen {
		return "", invalid(network, "", "expected 20 address bytes")
	}
	return strings.ToLower(hex.EncodeToString(addr)), nil
}

// TronUserFormat renders the Base58Check user-facing string for a raw
// 20-byte Tron address. ToStr deliberately returns the canonical hex form
// (see network.go); this helper is for producers that need the on-chain
// display format, e.g. log output or fixtures.
func TronUserFormat(addr []byte) (string, error) {
	if len(addr) != evmAddressLen {
		return "", &InvalidAddress{Network: TRX.Name, Reason: "expected 20 address bytes"}
	}
	payload := append([]byte{tronAddressPrefix}, addr...)
	return base58CheckEncode(payload), nil
}

func base58CheckEncode(payload []byte) string {
	checksum := doubleSHA256(payload)[:4]
	full := append(append([]byte{}, payload...), checksum...)
	return base58Encode(full)
}

func base58CheckDecode(s string) ([]byte, error) {
	full, err := base58Decode(s)
	if err != nil {
		return nil, err
	}
	if len(full) < 4 {
		return nil, errTooShort
	}
	payload := full[:len(full)-4]
	checksum := full[len(full)-4:]
	want := doubleSHA256(payload)[:4]
	for i := range checksum {
		if checksum[i] != want[i] {
			return nil, errChecksumMismatch
		}
	}
	return payload, nil
}

var (
	errTooShort         = decodeErr("base58check payload too short")
	errChecksumMismatch = decodeErr("base58check checksum mismatch")
)

type decodeErr string

func (e decodeErr) Error() string { return string(e) }

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

var base58checkBig = big.NewInt(58)

func base58Encode(b []byte) string {
	zero := base58checkAlphabet[0]
	n := new(big.Int).SetBytes(b)
	var out []byte
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base58checkBig, mod)
		out = append(out, base58checkAlphabet[mod.Int64()])
	}
	// leading zero bytes become leading '1's
	for _, by := range b {
		if by != 0 {
			break
		}
		out = append(out, zero)
	}
	reverse(out)
	return string(out)
}

func base58Decode(s string) ([]byte, error) {
	n := new(big.Int)
	for _, r := range s {
		idx := strings.IndexRune(base58checkAlphabet, r)
		if idx < 0 {
			return nil, decodeErr("invalid base58 character: " + string(r))
		}
		n.Mul(n, base58checkBig)
		n.Add(n, big.NewInt(int64(idx)))
	}
	decoded := n.Bytes()

	leadingZeros := 0
	for _, r := range s {
		if r != rune(base58checkAlphabet[0]) {
			break
		}
		leadingZeros++
	}
	out := make([]byte, leadingZeros+len(decoded))
	copy(out[leadingZeros:], decoded)
	return out, nil
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
