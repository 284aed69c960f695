package tokendecoder

import (
	"bytes"
	"testing"
)

func topic32(low20 []byte) []byte {
	out := make([]byte, 32)
	copy(out[12:], low20)
	return out
}

func TestTransferSelectorMatchesKnownKeccak(t *testing.T) {
	// keccak256("Transfer(address,address,uint256)")[:4] == ddf252ad
	want := []byte{0xdd, 0xf2, 0x52, 0xad}
	if !bytes.Equal(TransferSelector[:], want) {
		t.Fatalf("expected selector %x, got %x", want, TransferSelector[:])
	}
}

func TestDecodeRecognizedTransfer(t *testing.T) {
	usdt := []byte{0x01}
	reg := DefaultEVMRegistry(usdt, []byte{0x02}, []byte{0x03})

	from := bytes.Repeat([]byte{0xAA}, 20)
	to := bytes.Repeat([]byte{0xBB}, 20)
	log := RawLog{
		BlockID:  10,
		TxHash:   []byte("h"),
		LogIndex: 1,
		Address:  usdt,
		Topics:   [][]byte{append(TransferSelector[:], bytes.Repeat([]byte{0}, 28)...), topic32(from), topic32(to)},
		Data:     []byte{0x03, 0xe8}, // 1000
	}

	tt := Decode(log, reg)
	if tt == nil {
		t.Fatal("expected a decoded transfer")
	}
	if !bytes.Equal(tt.From, from) || !bytes.Equal(tt.To, to) {
		t.Fatalf("from/to mismatch: %x / %x", tt.From, tt.To)
	}
	if tt.Value.Int64() != 1000 {
		t.Fatalf("expected value 1000, got %s", tt.Value.String())
	}
	if tt.Asset != "USDT" || !tt.USDEquivalent {
		t.Fatalf("expected USDT usd-equivalent token, got %+v", tt)
	}
}

func TestDecodeUnknownTokenIsNotAnError(t *testing.T) {
	reg := DefaultEVMRegistry([]byte{0x01}, []byte{0x02}, []byte{0x03})
	log := RawLog{
		Address: []byte{0x99}, // not on the allow-list
		Topics:  [][]byte{append(TransferSelector[:], bytes.Repeat([]byte{0}, 28)...), topic32([]byte{1}), topic32([]byte{2})},
		Data:    []byte{0x01},
	}
	if got := Decode(log, reg); got != nil {
		t.Fatalf("expected nil for unrecognized token, got %+v", got)
	}
}

func TestDecodeWrongSelectorIsNotATransfer(t *testing.T) {
	reg := DefaultEVMRegistry([]byte{0x01}, []byte{0x02}, []byte{0x03})
	log := RawLog{
		Address: []byte{0x01},
		Topics:  [][]byte{bytes.Repeat([]byte{0xFF}, 32), topic32([]byte{1}), topic32([]byte{2})},
		Data:    []byte{0x01},
	}
	if got := Decode(log, reg); got != nil {
		t.Fatalf("expected nil for non-Transfer selector, got %+v", got)
	}
}

func TestDecodeMalformedPayloadYieldsNil(t *testing.T) {
	reg := DefaultEVMRegistry([]byte{0x01}, []byte{0x02}, []byte{0x03})
	log := RawLog{
		Address: []byte{0x01},
		Topics:  [][]byte{append(TransferSelector[:], bytes.Repeat([]byte{0}, 28)...), topic32([]byte{1}), topic32([]byte{2})},
		Data:    nil,
	}
	if got := Decode(log, reg); got != nil {
		t.Fatalf("expected nil for empty data payload, got %+v", got)
	}
}
