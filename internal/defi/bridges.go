package defi

// bridgeProtocolTags maps each tag in the closed set of tagged bridge event
// signatures recognized by spec.md 4.5 ("wormhole, stargate, thorchain,
// symbiosis, squid, Starkex deposit/withdraw families, Meson,
// Allbridge") to its protocol name. The exact indexed/non-indexed parameter layouts live with
// each protocol's decoder upstream of this package; here the registry only
// needs the tag string used to recognize a leg.
var bridgeProtocolTags = map[string]string{
	"wormhole-transfer":    "wormhole",
	"stargate-swap":        "stargate",
	"thorchain-deposit":    "thorchain",
	"symbiosis-swap":       "symbiosis",
	"squid-call":           "squid",
	"starkex-deposit":      "starkex",
	"starkex-withdraw":     "starkex",
	"meson-swap":           "meson",
	"allbridge-swap":       "allbridge",
}

func extractBridges(logs []DecodedLog) []Bridge {
	var out []Bridge
	for _, l := range logs {
		for _, tag := range l.Tags {
			protocol, ok := bridgeProtocolTags[tag]
			if !ok {
				continue
			}
			out = append(out, Bridge{
				Protocol: protocol,
				Address:  l.Address,
				Tags:     l.Tags,
				LogIndex: l.LogIndex,
			})
			break
		}
	}
	return out
}
