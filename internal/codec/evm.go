package codec

import (
	"encoding/hex"
	"strings"
)

const evmAddressLen = 20

func evmToBytes(network Network, address string) ([]byte, error) {
	s := strings.TrimSpace(address)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s) != evmAddressLen*2 {
		return nil, invalid(network, address, "expected 40 hex characters")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, invalid(network, address, "not valid hex: "+err.Error())
	}
	return b, nil
}

func evmToStr(network Network, addr []byte) (string, error) {
	if len(addr) != evmAddressLen {
		return "", invalid(network, "", "expected 20 address bytes")
	}
	return strings.ToLower(hex.EncodeToString(addr)), nil
}
