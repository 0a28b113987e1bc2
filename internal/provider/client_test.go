package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventScope/internal/model"
)

const testAddress = "0x55d398326f99059ff775485246999027b3197955"

var testContract = model.ContractConfig{ChainID: 56, Address: testAddress, ABI: "builtin:erc20", StartBlock: 100}

type fakeExplorer struct {
	mu       sync.Mutex
	requests int
	handle   func(w http.ResponseWriter, r *http.Request, n int)
}

func (f *fakeExplorer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests++
	n := f.requests
	f.mu.Unlock()
	f.handle(w, r, n)
}

func (f *fakeExplorer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func logJSON(block, logIndex uint64) string {
	return fmt.Sprintf(`{"address":"%s","topics":["0xDDF252AD1BE2C89B69C2B068FC378DAA952BA7F163C4A11628F55A4DF523B3EF"],"data":"0x01","blockNumber":"0x%x","blockHash":"0xbb","timeStamp":"0x6553f100","logIndex":"0x%x","transactionHash":"0xT%d_%d","transactionIndex":"0x"}`,
		testAddress, block, logIndex, block, logIndex)
}

func okPage(w http.ResponseWriter, logs ...string) {
	body := `{"status":"1","message":"OK","result":[`
	for i, l := range logs {
		if i > 0 {
			body += ","
		}
		body += l
	}
	body += `]}`
	w.Write([]byte(body))
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(t *testing.T, fake *fakeExplorer, policy RetryPolicy, pageSize int) (*Client, *recordedSleeps) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	sleeps := &recordedSleeps{}
	client := NewClient(
		NewEtherscanSource(EtherscanConfig{BaseURL: srv.URL, APIKey: "key"}),
		NewLimiter(0, 1, "test"),
		Options{PageSize: pageSize, Retry: policy, Sleep: sleeps.sleep, Rand: func() float64 { return 0 }},
		nil,
	)
	return client, sleeps
}

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
}

func TestFetchPaginatesAndSorts(t *testing.T) {
	pages := map[string][]string{
		"1": {logJSON(105, 2), logJSON(101, 7)},
		"2": {logJSON(101, 3), logJSON(110, 0)},
		"3": {logJSON(105, 1)},
	}
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		q := r.URL.Query()
		assert.Equal(t, "logs", q.Get("module"))
		assert.Equal(t, "getLogs", q.Get("action"))
		assert.Equal(t, "56", q.Get("chainid"))
		assert.Equal(t, "100", q.Get("fromBlock"))
		assert.Equal(t, "238", q.Get("toBlock"))
		assert.Equal(t, "2", q.Get("offset"))
		assert.Equal(t, "key", q.Get("apikey"))
		okPage(w, pages[q.Get("page")]...)
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 2)

	result, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 238})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 3, result.Requests)
	assert.Equal(t, 0, result.Retries)
	require.Len(t, result.Logs, 5)

	var order [][2]uint64
	for _, l := range result.Logs {
		order = append(order, [2]uint64{l.BlockNumber, l.LogIndex})
		assert.Equal(t, uint64(56), l.ChainID)
		assert.Equal(t, testAddress, l.Address)
		assert.Equal(t, uint64(0x6553f100), l.BlockTimestamp)
	}
	assert.Equal(t, [][2]uint64{{101, 3}, {101, 7}, {105, 1}, {105, 2}, {110, 0}}, order)
	assert.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", result.Logs[0].Topics[0])
}

func TestFetchClampsPageSizeToExplorerLimit(t *testing.T) {
	const total = 1500
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		q := r.URL.Query()
		offset, _ := strconv.Atoi(q.Get("offset"))
		page, _ := strconv.Atoi(q.Get("page"))
		if offset > MaxEtherscanPageSize {
			offset = MaxEtherscanPageSize
		}
		var logs []string
		for i := (page - 1) * offset; i < page*offset && i < total; i++ {
			logs = append(logs, logJSON(100+uint64(i/10), uint64(i%10)))
		}
		okPage(w, logs...)
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 5000)

	result, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 238})
	require.NoError(t, err)
	assert.Len(t, result.Logs, total)
	assert.Equal(t, 2, result.Pages)
}

func TestFetchRetriesRateLimitedThenSucceeds(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, n int) {
		if n <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("slow down"))
			return
		}
		okPage(w, logJSON(120, 0))
	}}
	client, sleeps := newTestClient(t, fake, testPolicy(), 1000)

	result, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 238})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Retries)
	assert.Equal(t, 4, result.Requests)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, sleeps.delays)
}

func TestFetchHonorsRetryAfter(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, n int) {
		if n == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		okPage(w)
	}}
	client, sleeps := newTestClient(t, fake, testPolicy(), 1000)

	_, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 1, To: 2})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, sleeps.delays)
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}}
	client, sleeps := newTestClient(t, fake, testPolicy(), 1000)

	_, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 238})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, fetchErr.Retryable)
	assert.Equal(t, 1, fetchErr.Attempts)
	assert.Equal(t, 1, fake.count())
	assert.Empty(t, sleeps.delays)
}

func TestFetchProviderRateLimitMessageIsRetried(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, n int) {
		if n == 1 {
			w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
			return
		}
		okPage(w, logJSON(150, 1))
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 1000)

	result, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 238})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retries)
	assert.Len(t, result.Logs, 1)
}

func TestFetchInvalidKeyIsNotRetried(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`))
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 1000)

	_, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 238})
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.False(t, IsRetryable(err))
}

func TestFetchExhaustedRetriesAreRetryable(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}}
	policy := testPolicy()
	policy.MaxAttempts = 3
	client, sleeps := newTestClient(t, fake, policy, 1000)

	result, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 238})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.Retryable)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, 3, fake.count())
	assert.Equal(t, 2, result.Retries)
	assert.Len(t, sleeps.delays, 2)
}

func TestFetchMalformedResponseIsNotRetried(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		w.Write([]byte(`{"status":"1","message":"OK","result":{"unexpected":true}}`))
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 1000)

	_, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 238})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 1, fake.count())
}

func TestFetchNoRecords(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		w.Write([]byte(`{"status":"0","message":"No records found","result":[]}`))
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 1000)

	result, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 238})
	require.NoError(t, err)
	assert.Empty(t, result.Logs)
	assert.Equal(t, 1, result.Pages)
}

func TestFetchSplitsOversizedRange(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		q := r.URL.Query()
		from, _ := strconv.ParseUint(q.Get("fromBlock"), 10, 64)
		to, _ := strconv.ParseUint(q.Get("toBlock"), 10, 64)
		if to-from >= 50 {
			w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Result window is too large, PageNo x Offset size must be less than or equal to 10000"}`))
			return
		}
		okPage(w, logJSON(from, 0))
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 1000)

	result, err := client.Fetch(context.Background(), testContract, model.BlockRange{From: 100, To: 199})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Splits)
	require.Len(t, result.Logs, 2)
	assert.Equal(t, uint64(100), result.Logs[0].BlockNumber)
	assert.Equal(t, uint64(150), result.Logs[1].BlockNumber)
}

func TestFetchCanceledContext(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		okPage(w)
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Fetch(ctx, testContract, model.BlockRange{From: 100, To: 238})
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, fake.count())
}

func TestChainHead(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		q := r.URL.Query()
		assert.Equal(t, "proxy", q.Get("module"))
		assert.Equal(t, "eth_blockNumber", q.Get("action"))
		w.Write([]byte(`{"jsonrpc":"2.0","id":83,"result":"0x2a0"}`))
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 1000)

	head, err := client.ChainHead(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(672), head)
}

func TestChainHeadProviderError(t *testing.T) {
	fake := &fakeExplorer{handle: func(w http.ResponseWriter, r *http.Request, _ int) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Missing Or invalid Module name"}`))
	}}
	client, _ := newTestClient(t, fake, testPolicy(), 1000)

	_, err := client.ChainHead(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, IsRetryable(err))
}
