package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"eventScope/internal/model"
	"eventScope/internal/provider"
)

// Client is a JSON-RPC log source bound to a single chain. eth_getLogs has
// no pagination, so every range is served as one page.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	chainMu sync.Mutex
	chainID uint64

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient dials the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return NewClientFromRPC(rpcClient), nil
}

// NewClientFromRPC wraps an existing RPC client.
func NewClientFromRPC(rpcClient *rpc.Client) *Client {
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) Name() string {
	return "rpc"
}

// ChainID returns the chain ID reported by the node. The first successful
// answer is cached.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != 0 {
		return c.chainID, nil
	}
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id does not fit in uint64: %s", id)
	}
	c.chainID = id.Uint64()
	return c.chainID, nil
}

func (c *Client) checkChain(ctx context.Context, chainID uint64) error {
	got, err := c.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if got != chainID {
		return model.NewConfigError("rpc endpoint", fmt.Errorf("serves chain %d, contract is on chain %d", got, chainID))
	}
	return nil
}

// ChainHead returns the latest block number.
func (c *Client) ChainHead(ctx context.Context, chainID uint64) (uint64, error) {
	if err := c.checkChain(ctx, chainID); err != nil {
		return 0, err
	}
	return c.ethClient.BlockNumber(ctx)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// FetchPage returns the logs of the requested range. Pages after the first
// are always empty.
func (c *Client) FetchPage(ctx context.Context, req provider.PageRequest) (provider.Page, error) {
	if req.Page > 1 {
		return provider.Page{}, nil
	}
	if err := c.checkChain(ctx, req.ChainID); err != nil {
		return provider.Page{}, err
	}
	if !common.IsHexAddress(req.Address) {
		return provider.Page{}, model.NewConfigError("contract address", fmt.Errorf("invalid address: %s", req.Address))
	}

	logs, err := c.ethClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(req.FromBlock),
		ToBlock:   new(big.Int).SetUint64(req.ToBlock),
		Addresses: []common.Address{common.HexToAddress(req.Address)},
	})
	if err != nil {
		if provider.IsRangeTooLarge(err.Error()) {
			return provider.Page{}, fmt.Errorf("%w: %v", provider.ErrRangeTooLarge, err)
		}
		return provider.Page{}, err
	}

	records := make([]model.RawLog, 0, len(logs))
	for _, log := range logs {
		ts, err := c.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return provider.Page{}, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		records = append(records, buildRawLog(req.ChainID, log, ts))
	}
	return provider.Page{Logs: records}, nil
}

var _ provider.Source = (*Client)(nil)

func buildRawLog(chainID uint64, log types.Log, timestamp uint64) model.RawLog {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.RawLog{
		ChainID:        chainID,
		Address:        model.NormalizeAddress(log.Address.Hex()),
		BlockNumber:    log.BlockNumber,
		BlockHash:      log.BlockHash.Hex(),
		BlockTimestamp: timestamp,
		TxHash:         log.TxHash.Hex(),
		TxIndex:        uint64(log.TxIndex),
		LogIndex:       uint64(log.Index),
		Topics:         topics,
		Data:           hexutil.Encode(log.Data),
		Removed:        log.Removed,
	}
}
