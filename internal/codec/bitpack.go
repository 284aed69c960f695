package codec

// A 6-bits-per-character alphabet coder, shared by the bech32, base58, and
// nonstandard (base62) UTXO address encodings (spec.md section 4.1). Each
// character maps to a codeword in [0, 63]; codewords are packed MSB-first
// into a byte stream and unpacked greedily, dropping trailing zero-value
// codewords that exist only as padding to the next byte boundary.

const (
	bech32Alphabet     = "qpzry9x8gf2tvdw0s3jn54khce6mua7lb1"
	base58Alphabet     = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	base62NonstandAlph = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

type alphabet struct {
	chars []rune
	index map[rune]uint8
}

func newAlphabet(chars string) *alphabet {
	runes := []rune(chars)
	idx := make(map[rune]uint8, len(runes))
	for i, r := range runes {
		idx[r] = uint8(i)
	}
	return &alphabet{chars: runes, index: idx}
}

var (
	alphaBech32 = newAlphabet(bech32Alphabet)
	alphaBase58 = newAlphabet(base58Alphabet)
	alphaBase62 = newAlphabet(base62NonstandAlph)
)

// packAlphabet encodes s into a packed 6-bit-per-char byte stream.
// Returns an error (unknown char) if s contains a rune outside a.
func packAlphabet(a *alphabet, s string) ([]byte, error) {
	var bitBuf uint32
	var bitLen int
	out := make([]byte, 0, (len(s)*6+7)/8)

	for _, r := range s {
		code, ok := a.index[r]
		if !ok {
			return nil, &badAlphabetChar{Rune: r}
		}
		bitBuf = (bitBuf << 6) | uint32(code)
		bitLen += 6
		for bitLen >= 8 {
			bitLen -= 8
			out = append(out, byte(bitBuf>>uint(bitLen)))
		}
	}
	if bitLen > 0 {
		out = append(out, byte((bitBuf<<(8-uint(bitLen)))&0xff))
	}
	return out, nil
}

// unpackAlphabet decodes a packed 6-bit-per-char byte stream back into a
// string, dropping trailing zero-value codewords produced by byte-boundary
// padding. It returns "" when a codeword falls outside the alphabet.
func unpackAlphabet(a *alphabet, b []byte) string {
	var bitBuf uint32
	var bitLen int
	codewords := make([]uint8, 0, len(b)*8/6+1)

	for _, by := range b {
		bitBuf = (bitBuf << 8) | uint32(by)
		bitLen += 8
		for bitLen >= 6 {
			bitLen -= 6
			codewords = append(codewords, uint8((bitBuf>>uint(bitLen))&0x3f))
		}
	}

	end := len(codewords)
	for end > 0 && codewords[end-1] == 0 {
		end--
	}

	out := make([]rune, end)
	for i := 0; i < end; i++ {
		if int(codewords[i]) >= len(a.chars) {
			return ""
		}
		out[i] = a.chars[codewords[i]]
	}
	return string(out)
}

type badAlphabetChar struct {
	Rune rune
}

func (e *badAlphabetChar) Error() string {
	return "codec: character not in alphabet: " + string(e.Rune)
}

// assertNoAlphabetCollision implements the "bech32 prefix, decoded as
// Base58, must not be a valid on-network address" construction-time
// invariant from spec.md 4.1: packing the prefix with the bech32 alphabet
// and then reading the result back with the base58 alphabet must not
// reproduce the same prefix, which would make ToStr's bech32-vs-base58
// disambiguation on the reverse path ambiguous.
func assertNoAlphabetCollision(bech32Prefix string) error {
	packed, err := packAlphabet(alphaBech32, bech32Prefix)
	if err != nil {
		return err
	}
	roundTripped := unpackAlphabet(alphaBase58, packed)
	if len(roundTripped) >= len(bech32Prefix) && roundTripped[:len(bech32Prefix)] == bech32Prefix {
		return &alphabetCollision{Prefix: bech32Prefix}
	}
	return nil
}

type alphabetCollision struct {
	Prefix string
}

func (e *alphabetCollision) Error() string {
	return "codec: bech32 prefix " + e.Prefix + " collides with base58 decoding"
}
