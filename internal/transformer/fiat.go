// Package transformer implements the account and UTXO dialects of spec.md
// 4.6: turning a batch's normalized traces/logs/txs into a DbDelta. Pure
// steps are plain functions over deltamodel/rawadapter/tokendecoder types;
// the id resolvers (resolve.go) and the batch processors read from the
// sinks they are given.
package transformer

// Rates is a block's fiat-vector, [euro_per_coin, dollar_per_coin] per
// spec.md 4.6 step 7's fixed [EUR, USD] order.
type Rates struct {
	EuroPerCoin   float64
	DollarPerCoin float64
	Present       bool
}

// nativeDecimals is the fixed native-coin decimals table from spec.md 4.6
// step 7.
var nativeDecimals = map[string]int{
	"ETH": 18,
	"TRX": 6,
}

// GetPrices implements spec.md 4.6 step 7's get_prices: converts a raw
// integer value into a [euro_value, dollar_value] fiat vector.
//
//   - usdEquivalent: value is already USD-pegged (e.g. USDT/USDC); dollar
//     value is a straight decimal shift, euro is derived via the coin's
//     EUR/USD cross rate.
//   - coinEquivalent: value is native-coin-pegged (e.g. WETH); dollar value
//     is scaled by dollarPerCoin.
//   - neither: zero vector (caller should have filtered to recognized
//     assets before calling).
func GetPrices(value int64, decimals int, rates Rates, usdEquivalent, coinEquivalent bool) [2]float64 {
	if !rates.Present {
		return [2]float64{0, 0}
	}
	amount := scaleByDecimals(value, decimals)

	switch {
	case usdEquivalent:
		dollar := amount
		euro := crossToEuro(dollar, rates)
		return [2]float64{euro, dollar}
	case coinEquivalent:
		dollar := amount * rates.DollarPerCoin
		euro := amount * rates.EuroPerCoin
		return [2]float64{euro, dollar}
	default:
		return [2]float64{0, 0}
	}
}

// crossToEuro converts a USD-pegged amount to EUR via the coin's own
// EUR/USD cross rate (spec.md 4.6 step 7: "euro is dollar_value /
// (dollar_per_eth / euro_per_eth)").
func crossToEuro(dollarAmount float64, rates Rates) float64 {
	if rates.DollarPerCoin == 0 {
		return 0
	}
	cross := rates.DollarPerCoin / rates.EuroPerCoin
	if cross == 0 {
		return 0
	}
	return dollarAmount / cross
}

func scaleByDecimals(value int64, decimals int) float64 {
	v := float64(value)
	d := 1.0
	for i := 0; i < decimals; i++ {
		d *= 10
	}
	return v / d
}

// NativeCoinPricesForBlock prices a raw native-coin amount (ETH wei, TRX
// sun) for a block, looking up the chain's fixed decimals.
func NativeCoinPricesForBlock(symbol string, value int64, rates Rates) [2]float64 {
	decimals, ok := nativeDecimals[symbol]
	if !ok {
		decimals = 18
	}
	return GetPrices(value, decimals, rates, false, true)
}
