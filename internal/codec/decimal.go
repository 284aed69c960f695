package codec

import "math/big"

// pow10 caches 10^n for the small decimals table used by fiat conversion
// (native coin decimals: ETH=18, TRX=6) and the allow-listed token decimals
// (spec.md 4.4: USDT/USDC=6, WETH=18, WTRX=6).
func pow10(n int) *big.Float {
	if n < 0 {
		n = 0
	}
	f := new(big.Float).SetPrec(200).SetInt64(1)
	ten := big.NewFloat(10)
	for i := 0; i < n; i++ {
		f.Mul(f, ten)
	}
	return f
}

// ToDecimal divides an integer raw amount by 10^decimals, returning a
// big.Float suitable for fiat-value arithmetic.
func ToDecimal(raw *big.Int, decimals int) *big.Float {
	if raw == nil {
		return new(big.Float)
	}
	f := new(big.Float).SetPrec(200).SetInt(raw)
	return f.Quo(f, pow10(decimals))
}

// ToDecimalInt64 is the common case where raw fits in an int64.
func ToDecimalInt64(raw int64, decimals int) *big.Float {
	return ToDecimal(big.NewInt(raw), decimals)
}
