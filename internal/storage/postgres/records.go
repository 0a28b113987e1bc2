package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"eventScope/internal/model"
	"eventScope/internal/storage"
)

var _ storage.Sink = (*Store)(nil)

var rawLogColumns = []string{
	"chain_id", "contract_address", "block_number", "block_hash", "block_timestamp",
	"transaction_hash", "transaction_index", "log_index", "topics", "data", "removed", "run_id",
}

// WriteRawLogs appends raw logs with COPY. The table is append-only, so
// re-fetched ranges produce duplicate rows.
func (s *Store) WriteRawLogs(ctx context.Context, p storage.Partition, logs []model.RawLog) error {
	if len(logs) == 0 {
		return nil
	}
	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"raw_logs"}, rawLogColumns,
		pgx.CopyFromSlice(len(logs), func(i int) ([]any, error) {
			l := logs[i]
			var blockHash *string
			if l.BlockHash != "" {
				blockHash = &l.BlockHash
			}
			return []any{
				int64(l.ChainID), l.Address, int64(l.BlockNumber), blockHash, int64(l.BlockTimestamp),
				l.TxHash, int64(l.TxIndex), int64(l.LogIndex), l.Topics, l.Data, l.Removed, p.RunID,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy raw logs %s %s: %w", p.Address, p.Range, err)
	}
	return nil
}

// WriteDecoded writes decoded events and decode errors in one transaction.
// Decoded events are deduplicated by (chain_id, transaction_hash, log_index).
func (s *Store) WriteDecoded(ctx context.Context, p storage.Partition, events []model.DecodedEvent, failures []model.DecodeError) error {
	if len(events) == 0 && len(failures) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload %s: %w", e.ID(), err)
		}
		batch.Queue(`
			INSERT INTO decoded_events (
				chain_id, contract_address, event_name, signature, transaction_hash,
				log_index, block_number, block_timestamp, payload
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
			ON CONFLICT (chain_id, transaction_hash, log_index) DO NOTHING
		`,
			int64(e.ChainID),
			e.Address,
			e.EventName,
			e.Signature,
			e.TxHash,
			int64(e.LogIndex),
			int64(e.BlockNumber),
			int64(e.BlockTimestamp),
			string(payload),
		)
	}
	for _, f := range failures {
		batch.Queue(`
			INSERT INTO decode_errors (
				chain_id, contract_address, block_number, transaction_hash, log_index,
				topic0, event_name, error, run_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			int64(f.ChainID),
			f.Address,
			int64(f.BlockNumber),
			f.TxHash,
			int64(f.LogIndex),
			f.Topic0,
			f.EventName,
			f.Reason,
			p.RunID,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin decoded tx: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("write decoded %s %s: %w", p.Address, p.Range, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close decoded batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit decoded %s %s: %w", p.Address, p.Range, err)
	}
	return nil
}
