package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"eventScope/internal/model"
)

const (
	DefaultEtherscanURL = "https://api.etherscan.io/v2/api"
	// MaxEtherscanPageSize is the most records getLogs returns per call.
	MaxEtherscanPageSize = 1000
	maxErrorBody         = 256
)

// EtherscanConfig configures an Etherscan style explorer API.
type EtherscanConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
}

// EtherscanSource fetches logs through the explorer getLogs endpoint, which
// paginates with page/offset parameters.
type EtherscanSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewEtherscanSource(cfg EtherscanConfig) *EtherscanSource {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultEtherscanURL
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &EtherscanSource{baseURL: baseURL, apiKey: cfg.APIKey, client: client}
}

func (s *EtherscanSource) Name() string {
	return "etherscan"
}

type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanLog struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      string   `json:"blockNumber"`
	BlockHash        string   `json:"blockHash"`
	TimeStamp        string   `json:"timeStamp"`
	LogIndex         string   `json:"logIndex"`
	TransactionHash  string   `json:"transactionHash"`
	TransactionIndex string   `json:"transactionIndex"`
}

// FetchPage requests one page of logs. Page sizes above
// MaxEtherscanPageSize are clamped so a capped page still reports more.
func (s *EtherscanSource) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > MaxEtherscanPageSize {
		pageSize = MaxEtherscanPageSize
	}
	params := url.Values{}
	params.Set("chainid", strconv.FormatUint(req.ChainID, 10))
	params.Set("module", "logs")
	params.Set("action", "getLogs")
	params.Set("address", req.Address)
	params.Set("fromBlock", strconv.FormatUint(req.FromBlock, 10))
	params.Set("toBlock", strconv.FormatUint(req.ToBlock, 10))
	params.Set("page", strconv.Itoa(req.Page))
	params.Set("offset", strconv.Itoa(pageSize))

	env, err := s.get(ctx, params)
	if err != nil {
		return Page{}, err
	}

	if env.Status != "1" {
		if isNoRecords(env) {
			return Page{}, nil
		}
		return Page{}, envelopeError(env)
	}

	var raw []etherscanLog
	if err := json.Unmarshal(env.Result, &raw); err != nil {
		return Page{}, &SchemaError{Err: fmt.Errorf("decode logs: %w", err)}
	}
	logs := make([]model.RawLog, 0, len(raw))
	for _, r := range raw {
		l, err := r.toRawLog(req.ChainID)
		if err != nil {
			return Page{}, &SchemaError{Err: err}
		}
		logs = append(logs, l)
	}
	return Page{Logs: logs, HasMore: len(raw) >= pageSize}, nil
}

// ChainHead returns the latest block number through the proxy module.
func (s *EtherscanSource) ChainHead(ctx context.Context, chainID uint64) (uint64, error) {
	params := url.Values{}
	params.Set("chainid", strconv.FormatUint(chainID, 10))
	params.Set("module", "proxy")
	params.Set("action", "eth_blockNumber")

	env, err := s.get(ctx, params)
	if err != nil {
		return 0, err
	}
	var result string
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return 0, &SchemaError{Err: fmt.Errorf("decode block number: %w", err)}
	}
	if !strings.HasPrefix(result, "0x") {
		return 0, envelopeError(env)
	}
	head, err := parseQuantity(result)
	if err != nil {
		return 0, &SchemaError{Err: fmt.Errorf("parse block number: %w", err)}
	}
	return head, nil
}

func (s *EtherscanSource) get(ctx context.Context, params url.Values) (etherscanEnvelope, error) {
	if s.apiKey != "" {
		params.Set("apikey", s.apiKey)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return etherscanEnvelope{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return etherscanEnvelope{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return etherscanEnvelope{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return etherscanEnvelope{}, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var env etherscanEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return etherscanEnvelope{}, &SchemaError{Err: fmt.Errorf("decode envelope: %w", err)}
	}
	return env, nil
}

func isNoRecords(env etherscanEnvelope) bool {
	if strings.Contains(strings.ToLower(env.Message), "no records found") {
		return true
	}
	return strings.TrimSpace(string(env.Result)) == "[]"
}

func envelopeError(env etherscanEnvelope) error {
	var result string
	if err := json.Unmarshal(env.Result, &result); err != nil {
		result = truncate(string(env.Result), maxErrorBody)
	}
	if IsRangeTooLarge(env.Message) || IsRangeTooLarge(result) {
		return fmt.Errorf("%w: %s", ErrRangeTooLarge, result)
	}
	return &ProviderError{Message: env.Message, Result: result}
}

func (r etherscanLog) toRawLog(chainID uint64) (model.RawLog, error) {
	block, err := parseQuantity(r.BlockNumber)
	if err != nil {
		return model.RawLog{}, fmt.Errorf("blockNumber %q: %w", r.BlockNumber, err)
	}
	ts, err := parseQuantity(r.TimeStamp)
	if err != nil {
		return model.RawLog{}, fmt.Errorf("timeStamp %q: %w", r.TimeStamp, err)
	}
	logIndex, err := parseQuantity(r.LogIndex)
	if err != nil {
		return model.RawLog{}, fmt.Errorf("logIndex %q: %w", r.LogIndex, err)
	}
	txIndex, err := parseQuantity(r.TransactionIndex)
	if err != nil {
		return model.RawLog{}, fmt.Errorf("transactionIndex %q: %w", r.TransactionIndex, err)
	}
	if r.TransactionHash == "" {
		return model.RawLog{}, fmt.Errorf("log at block %d has no transaction hash", block)
	}
	topics := make([]string, len(r.Topics))
	for i, t := range r.Topics {
		topics[i] = strings.ToLower(t)
	}
	return model.RawLog{
		ChainID:        chainID,
		Address:        model.NormalizeAddress(r.Address),
		BlockNumber:    block,
		BlockHash:      strings.ToLower(r.BlockHash),
		BlockTimestamp: ts,
		TxHash:         strings.ToLower(r.TransactionHash),
		TxIndex:        txIndex,
		LogIndex:       logIndex,
		Topics:         topics,
		Data:           r.Data,
	}, nil
}

// parseQuantity parses hex quantities ("0x1a", "0x" for zero) and decimal
// strings.
func parseQuantity(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if digits == "" {
			return 0, nil
		}
		return strconv.ParseUint(digits, 16, 64)
	}
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
