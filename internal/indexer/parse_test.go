package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" 0x55d398326f99059ff775485246999027b3197955", "", "0x55D398326F99059FF775485246999027B3197955"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != common.HexToAddress("0x55d398326f99059ff775485246999027b3197955") {
		t.Fatalf("unexpected addresses: %v", got)
	}
	if _, err := ParseAddresses([]string{"0x1234"}); err == nil {
		t.Fatalf("expected error for short address")
	}
}

func TestParseTopic0(t *testing.T) {
	transfer := "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	got, err := ParseTopic0([]string{transfer, transfer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Hex() != transfer {
		t.Fatalf("unexpected topics: %v", got)
	}
	if _, err := ParseTopic0([]string{"0xddf2"}); err == nil {
		t.Fatalf("expected error for short topic")
	}
	if _, err := ParseTopic0([]string{"ddf252"}); err == nil {
		t.Fatalf("expected error for missing prefix")
	}
}
