package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"eventScope/internal/model"
	"eventScope/internal/provider"
)

var (
	tokenAddress  = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
)

type fakeEth struct {
	logs        []types.Log
	tooLarge    bool
	headerCalls atomic.Int32
}

func (f *fakeEth) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(56))
}

func (f *fakeEth) BlockNumber() hexutil.Uint64 {
	return 1000
}

func (f *fakeEth) GetLogs(ctx context.Context, crit map[string]interface{}) ([]types.Log, error) {
	if f.tooLarge {
		return nil, errors.New("query returned more than 10000 results")
	}
	return f.logs, nil
}

func (f *fakeEth) GetBlockByNumber(number string, full bool) (*types.Header, error) {
	f.headerCalls.Add(1)
	n, err := hexutil.DecodeUint64(number)
	if err != nil {
		return nil, err
	}
	return &types.Header{
		Number:     new(big.Int).SetUint64(n),
		Difficulty: big.NewInt(0),
		Time:       1_700_000_000 + n,
	}, nil
}

func newFakeClient(t *testing.T, eth *fakeEth) *Client {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", eth); err != nil {
		t.Fatalf("register service: %v", err)
	}
	client := NewClientFromRPC(rpc.DialInProc(server))
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func testLog(block uint64, index uint) types.Log {
	return types.Log{
		Address:     tokenAddress,
		Topics:      []common.Hash{transferTopic, common.HexToHash("0x01")},
		Data:        []byte{0x0a},
		BlockNumber: block,
		TxHash:      common.HexToHash("0xabc"),
		TxIndex:     3,
		BlockHash:   common.HexToHash("0xbb"),
		Index:       index,
	}
}

func TestFetchPageBuildsRawLogs(t *testing.T) {
	eth := &fakeEth{logs: []types.Log{testLog(101, 0), testLog(101, 1), testLog(105, 0)}}
	client := newFakeClient(t, eth)

	page, err := client.FetchPage(context.Background(), provider.PageRequest{
		ChainID: 56, Address: tokenAddress.Hex(), FromBlock: 100, ToBlock: 238, Page: 1, PageSize: 1000,
	})
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if page.HasMore {
		t.Fatalf("rpc pages never continue")
	}
	if len(page.Logs) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(page.Logs))
	}

	got := page.Logs[0]
	if got.ChainID != 56 || got.BlockNumber != 101 || got.LogIndex != 0 || got.TxIndex != 3 {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.Address != "0x55d398326f99059ff775485246999027b3197955" {
		t.Fatalf("address not normalized: %s", got.Address)
	}
	if got.Topic0() != transferTopic.Hex() || len(got.Topics) != 2 {
		t.Fatalf("unexpected topics: %v", got.Topics)
	}
	if got.Data != "0x0a" {
		t.Fatalf("unexpected data: %s", got.Data)
	}
	if got.BlockTimestamp != 1_700_000_101 {
		t.Fatalf("unexpected timestamp: %d", got.BlockTimestamp)
	}
	if calls := eth.headerCalls.Load(); calls != 2 {
		t.Fatalf("expected 2 header lookups, got %d", calls)
	}

	next, err := client.FetchPage(context.Background(), provider.PageRequest{ChainID: 56, Address: tokenAddress.Hex(), Page: 2})
	if err != nil || len(next.Logs) != 0 {
		t.Fatalf("expected empty second page, got %d logs err=%v", len(next.Logs), err)
	}
}

func TestFetchPageMapsRangeTooLarge(t *testing.T) {
	client := newFakeClient(t, &fakeEth{tooLarge: true})

	_, err := client.FetchPage(context.Background(), provider.PageRequest{
		ChainID: 56, Address: tokenAddress.Hex(), FromBlock: 1, ToBlock: 500000, Page: 1,
	})
	if !errors.Is(err, provider.ErrRangeTooLarge) {
		t.Fatalf("expected ErrRangeTooLarge, got %v", err)
	}
}

func TestChainMismatchIsConfigError(t *testing.T) {
	client := newFakeClient(t, &fakeEth{})

	_, err := client.ChainHead(context.Background(), 1)
	var cfgErr *model.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected config error, got %v", err)
	}

	head, err := client.ChainHead(context.Background(), 56)
	if err != nil {
		t.Fatalf("chain head: %v", err)
	}
	if head != 1000 {
		t.Fatalf("unexpected head: %d", head)
	}
}

func TestClientServesProviderFetch(t *testing.T) {
	eth := &fakeEth{logs: []types.Log{testLog(120, 4), testLog(110, 2)}}
	client := newFakeClient(t, eth)
	fetcher := provider.NewClient(client, nil, provider.Options{Retry: provider.RetryPolicy{MaxAttempts: 1}}, nil)

	result, err := fetcher.Fetch(context.Background(), model.ContractConfig{ChainID: 56, Address: tokenAddress.Hex()}, model.BlockRange{From: 100, To: 200})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(result.Logs) != 2 || result.Logs[0].BlockNumber != 110 || result.Logs[1].BlockNumber != 120 {
		t.Fatalf("logs not sorted: %+v", result.Logs)
	}
	if result.Pages != 1 || result.Requests != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}
}
