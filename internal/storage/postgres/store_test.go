package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventScope/internal/checkpoint"
	"eventScope/internal/model"
	"eventScope/internal/storage"
)

const testAddress = "0x55d398326f99059ff775485246999027b3197955"

// openTestStore connects to the database named by INDEXER_TEST_PG_DSN and
// returns a store plus a chain id no other test run uses.
func openTestStore(t *testing.T) (*Store, uint64) {
	t.Helper()
	dsn := os.Getenv("INDEXER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("INDEXER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	chainID := uint64(time.Now().UnixNano()%1_000_000_000) + 1_000_000
	t.Cleanup(func() {
		for _, table := range []string{"checkpoints", "raw_logs", "decoded_events", "decode_errors"} {
			store.pool.Exec(context.Background(), "DELETE FROM "+table+" WHERE chain_id=$1", int64(chainID))
		}
		store.Close()
	})
	return store, chainID
}

func TestCheckpointAdvanceAndReset(t *testing.T) {
	store, chainID := openTestStore(t)
	ctx := context.Background()
	key := model.NewContractKey(chainID, testAddress)

	cp, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := store.Advance(ctx, cp, 238)
	require.NoError(t, err)
	assert.Equal(t, uint64(238), first.LastProcessedBlock)
	assert.Equal(t, uint64(1), first.Version)

	same, err := store.Advance(ctx, first, 238)
	require.NoError(t, err)
	assert.Equal(t, first.Version, same.Version)

	_, err = store.Advance(ctx, first, 200)
	assert.True(t, errors.Is(err, checkpoint.ErrRegression), "got %v", err)

	reset, err := store.Reset(ctx, key, 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reset.Version)

	_, err = store.Advance(ctx, first, 400)
	assert.True(t, errors.Is(err, checkpoint.ErrConcurrency), "got %v", err)

	stored, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(150), stored.LastProcessedBlock)

	require.NoError(t, store.Delete(ctx, key))
	_, ok, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentAdvanceHasOneWinner(t *testing.T) {
	store, chainID := openTestStore(t)
	ctx := context.Background()
	key := model.NewContractKey(chainID, testAddress)

	for _, start := range []bool{false, true} {
		prev, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, start, prev.Exists())

		var mu sync.Mutex
		var wins, conflicts int
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(to uint64) {
				defer wg.Done()
				_, err := store.Advance(ctx, prev, to)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, checkpoint.ErrConcurrency):
					conflicts++
				default:
					t.Errorf("unexpected advance error: %v", err)
				}
			}(prev.LastProcessedBlock + 100 + uint64(i))
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, 7, conflicts)

		stored, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, prev.Version+1, stored.Version)
	}
}

func TestWriteDecodedDeduplicatesEvents(t *testing.T) {
	store, chainID := openTestStore(t)
	ctx := context.Background()
	p := storage.Partition{ChainID: chainID, Address: testAddress, Range: model.BlockRange{From: 100, To: 238}, RunID: "run-1"}

	events := []model.DecodedEvent{{
		ChainID:     chainID,
		Address:     testAddress,
		EventName:   "Transfer",
		Signature:   "Transfer(address,address,uint256)",
		TxHash:      "0x01",
		LogIndex:    3,
		BlockNumber: 120,
		Payload:     map[string]interface{}{"value": "1"},
	}}
	failures := []model.DecodeError{{ChainID: chainID, Address: testAddress, TxHash: "0x02", Reason: "bad"}}
	require.NoError(t, store.WriteDecoded(ctx, p, events, failures))
	require.NoError(t, store.WriteDecoded(ctx, p, events, nil))

	var count int
	require.NoError(t, store.pool.QueryRow(ctx,
		`SELECT count(*) FROM decoded_events WHERE chain_id=$1`, int64(chainID)).Scan(&count))
	assert.Equal(t, 1, count)

	var value string
	require.NoError(t, store.pool.QueryRow(ctx,
		`SELECT payload->>'value' FROM decoded_events WHERE chain_id=$1`, int64(chainID)).Scan(&value))
	assert.Equal(t, "1", value)

	require.NoError(t, store.pool.QueryRow(ctx,
		`SELECT count(*) FROM decode_errors WHERE chain_id=$1`, int64(chainID)).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWriteRawLogsCopiesRows(t *testing.T) {
	store, chainID := openTestStore(t)
	ctx := context.Background()
	p := storage.Partition{ChainID: chainID, Address: testAddress, Range: model.BlockRange{From: 100, To: 238}, RunID: "run-1"}

	logs := []model.RawLog{
		{ChainID: chainID, Address: testAddress, BlockNumber: 120, TxHash: "0x01", Topics: []string{"0xaa"}, Data: "0x"},
		{ChainID: chainID, Address: testAddress, BlockNumber: 121, BlockHash: "0xbb", TxHash: "0x02", LogIndex: 1, Topics: []string{"0xaa", "0xcc"}, Data: "0x01"},
	}
	require.NoError(t, store.WriteRawLogs(ctx, p, logs))

	var count, topics int
	require.NoError(t, store.pool.QueryRow(ctx,
		`SELECT count(*), sum(cardinality(topics)) FROM raw_logs WHERE chain_id=$1 AND run_id='run-1'`, int64(chainID)).Scan(&count, &topics))
	assert.Equal(t, 2, count)
	assert.Equal(t, 3, topics)
}
