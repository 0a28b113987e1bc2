package model

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeErrorCarriesLogIdentity(t *testing.T) {
	cause := errors.New("offset 4096 past payload end 64")
	log := RawLog{
		ChainID:     1,
		Address:     "0x1111111111111111111111111111111111111111",
		BlockNumber: 200,
		TxHash:      "0xabc",
		LogIndex:    7,
		Topics:      []string{"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"},
	}

	err := NewDecodeError(log, "Transfer", cause)
	if err.TxHash != "0xabc" || err.LogIndex != 7 {
		t.Fatalf("identity mismatch: %+v", err)
	}
	if err.Topic0 != log.Topics[0] {
		t.Fatalf("topic0 mismatch: %s", err.Topic0)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause")
	}
	if !strings.Contains(err.Error(), "0xabc:7") {
		t.Fatalf("error text missing identity: %s", err.Error())
	}
}

func TestRawLogOrdering(t *testing.T) {
	a := RawLog{BlockNumber: 10, LogIndex: 5}
	b := RawLog{BlockNumber: 10, LogIndex: 6}
	c := RawLog{BlockNumber: 11, LogIndex: 0}

	if !a.Less(b) || !b.Less(c) || c.Less(a) {
		t.Fatalf("unexpected ordering")
	}
}

func TestContractKeyNormalizesAddress(t *testing.T) {
	key := NewContractKey(56, " 0xAbCdEf0000000000000000000000000000000001 ")
	if key.Address != "0xabcdef0000000000000000000000000000000001" {
		t.Fatalf("address not normalized: %s", key.Address)
	}
	if key.String() != "56:0xabcdef0000000000000000000000000000000001" {
		t.Fatalf("unexpected key string: %s", key.String())
	}
}
