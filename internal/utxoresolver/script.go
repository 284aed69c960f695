package utxoresolver

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // legacy Bitcoin hash160, no stdlib substitute
)

// scriptKind mirrors spec.md 4.7's output-script taxonomy.
type scriptKind int

const (
	scriptUnknown scriptKind = iota
	scriptP2PK
	scriptP2PKH
	scriptMultisig
	scriptP2SH
	scriptP2WPKHv0
	scriptP2WSHv0
	scriptNullData
)

const (
	opDup           = 0x76
	opHash160       = 0xa9
	opEqualVerify   = 0x88
	opEqual         = 0x87
	opCheckSig      = 0xac
	opCheckMultisig = 0xae
	opReturn        = 0x6a
	op0             = 0x00
	pushData20      = 0x14
	pushData32      = 0x20
	pushDataCompact = 0x21
	pushDataFull    = 0x41
)

// hash160 is RIPEMD160(SHA256(data)), the standard Bitcoin pubkey/script
// digest used by p2pkh and p2sh addresses.
func hash160(data []byte) []byte {
	sh := sha256.Sum256(data)
	h := ripemd160.New()
	_, _ = h.Write(sh[:])
	return h.Sum(nil)
}

// classifyScript parses a raw scriptPubKey per spec.md 4.7's non-standard
// list. It returns the recovered address digest and the kind; ok is false
// for scripts that carry no single recoverable address (multisig,
// null-data) or that don't match a known template.
func classifyScript(script []byte) (address []byte, kind scriptKind, ok bool) {
	switch {
	case isP2PKH(script):
		return append([]byte{}, script[3:23]...), scriptP2PKH, true
	case isP2SH(script):
		return append([]byte{}, script[2:22]...), scriptP2SH, true
	case isP2WPKHv0(script):
		return append([]byte{}, script[2:22]...), scriptP2WPKHv0, true
	case isP2WSHv0(script):
		return append([]byte{}, script[2:34]...), scriptP2WSHv0, true
	case isP2PK(script):
		pub := script[1 : len(script)-1]
		return hash160(pub), scriptP2PK, true
	case isMultisig(script):
		return nil, scriptMultisig, false
	case isNullData(script):
		return nil, scriptNullData, false
	default:
		return nil, scriptUnknown, false
	}
}

func isP2PKH(s []byte) bool {
	return len(s) == 25 && s[0] == opDup && s[1] == opHash160 && s[2] == pushData20 &&
		s[23] == opEqualVerify && s[24] == opCheckSig
}

func isP2SH(s []byte) bool {
	return len(s) == 23 && s[0] == opHash160 && s[1] == pushData20 && s[22] == opEqual
}

func isP2WPKHv0(s []byte) bool {
	return len(s) == 22 && s[0] == op0 && s[1] == pushData20
}

func isP2WSHv0(s []byte) bool {
	return len(s) == 34 && s[0] == op0 && s[1] == pushData32
}

func isP2PK(s []byte) bool {
	if len(s) < 2 || s[len(s)-1] != opCheckSig {
		return false
	}
	lead := s[0]
	if lead == pushDataCompact && len(s) == 35 {
		return true
	}
	if lead == pushDataFull && len(s) == 67 {
		return true
	}
	return false
}

func isMultisig(s []byte) bool {
	return len(s) > 0 && s[len(s)-1] == opCheckMultisig
}

func isNullData(s []byte) bool {
	return len(s) > 0 && s[0] == opReturn
}
