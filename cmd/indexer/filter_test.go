package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"eventScope/internal/model"
)

func TestLogFilter(t *testing.T) {
	transfer := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	token := common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")

	all := newLogFilter(nil, nil)
	if !all.match(model.RawLog{Address: "0xabc"}) {
		t.Fatalf("empty filter should match everything")
	}

	f := newLogFilter([]common.Address{token}, []common.Hash{transfer})
	match := model.RawLog{
		Address: "0x55D398326F99059FF775485246999027B3197955",
		Topics:  []string{"0xDDF252AD1BE2C89B69C2B068FC378DAA952BA7F163C4A11628F55A4DF523B3EF"},
	}
	if !f.match(match) {
		t.Fatalf("expected match")
	}

	other := match
	other.Address = "0x0000000000000000000000000000000000000001"
	if f.match(other) {
		t.Fatalf("address filter not applied")
	}

	anonymous := match
	anonymous.Topics = nil
	if f.match(anonymous) {
		t.Fatalf("topic filter not applied")
	}
}
