package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/ipc"
	"github.com/apache/arrow/go/v15/arrow/memory"

	"eventScope/internal/model"
)

const arrowContentType = "application/vnd.apache.arrow.file"

// RawLogSchema is the column layout of the raw log stream.
var RawLogSchema = arrow.NewSchema([]arrow.Field{
	{Name: "chain_id", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "contract_address", Type: arrow.BinaryTypes.String},
	{Name: "block_number", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "block_hash", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "block_timestamp", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "transaction_hash", Type: arrow.BinaryTypes.String},
	{Name: "transaction_index", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "log_index", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "topics", Type: arrow.ListOf(arrow.BinaryTypes.String)},
	{Name: "data", Type: arrow.BinaryTypes.String},
	{Name: "removed", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// DecodedEventSchema is the column layout of the decoded event stream. The
// payload column holds the parameter map as JSON.
var DecodedEventSchema = arrow.NewSchema([]arrow.Field{
	{Name: "chain_id", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "contract_address", Type: arrow.BinaryTypes.String},
	{Name: "event_name", Type: arrow.BinaryTypes.String},
	{Name: "signature", Type: arrow.BinaryTypes.String},
	{Name: "transaction_hash", Type: arrow.BinaryTypes.String},
	{Name: "log_index", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "block_number", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "block_timestamp", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "payload", Type: arrow.BinaryTypes.String},
}, nil)

// DecodeErrorSchema is the column layout of the decode error stream.
var DecodeErrorSchema = arrow.NewSchema([]arrow.Field{
	{Name: "chain_id", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "contract_address", Type: arrow.BinaryTypes.String},
	{Name: "block_number", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "transaction_hash", Type: arrow.BinaryTypes.String},
	{Name: "log_index", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "topic0", Type: arrow.BinaryTypes.String},
	{Name: "event_name", Type: arrow.BinaryTypes.String},
	{Name: "error", Type: arrow.BinaryTypes.String},
}, nil)

// ArrowStorage writes each stream as Arrow IPC files, one file per range.
type ArrowStorage struct {
	blobs BlobWriter
	mem   memory.Allocator
}

func NewArrowStorage(blobs BlobWriter) *ArrowStorage {
	return &ArrowStorage{blobs: blobs, mem: memory.NewGoAllocator()}
}

func (s *ArrowStorage) WriteRawLogs(ctx context.Context, p Partition, logs []model.RawLog) error {
	if len(logs) == 0 {
		return nil
	}
	rec := buildRawLogRecord(s.mem, logs)
	defer rec.Release()
	return s.put(ctx, p.Object(StreamRawLogs, "arrow"), rec)
}

func (s *ArrowStorage) WriteDecoded(ctx context.Context, p Partition, events []model.DecodedEvent, failures []model.DecodeError) error {
	if len(events) > 0 {
		rec, err := buildDecodedRecord(s.mem, events)
		if err != nil {
			return err
		}
		err = s.put(ctx, p.Object(StreamDecodedEvents, "arrow"), rec)
		rec.Release()
		if err != nil {
			return err
		}
	}
	if len(failures) > 0 {
		rec := buildDecodeErrorRecord(s.mem, failures)
		defer rec.Release()
		return s.put(ctx, p.Object(StreamDecodeErrors, "arrow"), rec)
	}
	return nil
}

// put stages the IPC file on disk since the file format writer needs a
// seekable destination.
func (s *ArrowStorage) put(ctx context.Context, name string, rec arrow.Record) error {
	tmp, err := os.CreateTemp("", "eventscope_*.arrow")
	if err != nil {
		return fmt.Errorf("create arrow temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	writer, err := ipc.NewFileWriter(tmp, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(s.mem))
	if err != nil {
		return fmt.Errorf("create arrow writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		return fmt.Errorf("write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close arrow writer: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind arrow temp file: %w", err)
	}
	body, err := io.ReadAll(tmp)
	if err != nil {
		return fmt.Errorf("read arrow temp file: %w", err)
	}
	return s.blobs.Put(ctx, name, body, arrowContentType)
}

func buildRawLogRecord(mem memory.Allocator, logs []model.RawLog) arrow.Record {
	b := array.NewRecordBuilder(mem, RawLogSchema)
	defer b.Release()

	topics := b.Field(8).(*array.ListBuilder)
	topicValues := topics.ValueBuilder().(*array.StringBuilder)
	for _, l := range logs {
		b.Field(0).(*array.Uint64Builder).Append(l.ChainID)
		b.Field(1).(*array.StringBuilder).Append(l.Address)
		b.Field(2).(*array.Uint64Builder).Append(l.BlockNumber)
		if l.BlockHash == "" {
			b.Field(3).AppendNull()
		} else {
			b.Field(3).(*array.StringBuilder).Append(l.BlockHash)
		}
		b.Field(4).(*array.Uint64Builder).Append(l.BlockTimestamp)
		b.Field(5).(*array.StringBuilder).Append(l.TxHash)
		b.Field(6).(*array.Uint64Builder).Append(l.TxIndex)
		b.Field(7).(*array.Uint64Builder).Append(l.LogIndex)
		topics.Append(true)
		for _, topic := range l.Topics {
			topicValues.Append(topic)
		}
		b.Field(9).(*array.StringBuilder).Append(l.Data)
		b.Field(10).(*array.BooleanBuilder).Append(l.Removed)
	}
	return b.NewRecord()
}

func buildDecodedRecord(mem memory.Allocator, events []model.DecodedEvent) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, DecodedEventSchema)
	defer b.Release()

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload %s: %w", e.ID(), err)
		}
		b.Field(0).(*array.Uint64Builder).Append(e.ChainID)
		b.Field(1).(*array.StringBuilder).Append(e.Address)
		b.Field(2).(*array.StringBuilder).Append(e.EventName)
		b.Field(3).(*array.StringBuilder).Append(e.Signature)
		b.Field(4).(*array.StringBuilder).Append(e.TxHash)
		b.Field(5).(*array.Uint64Builder).Append(e.LogIndex)
		b.Field(6).(*array.Uint64Builder).Append(e.BlockNumber)
		b.Field(7).(*array.Uint64Builder).Append(e.BlockTimestamp)
		b.Field(8).(*array.StringBuilder).Append(string(payload))
	}
	return b.NewRecord(), nil
}

func buildDecodeErrorRecord(mem memory.Allocator, failures []model.DecodeError) arrow.Record {
	b := array.NewRecordBuilder(mem, DecodeErrorSchema)
	defer b.Release()

	for _, f := range failures {
		b.Field(0).(*array.Uint64Builder).Append(f.ChainID)
		b.Field(1).(*array.StringBuilder).Append(f.Address)
		b.Field(2).(*array.Uint64Builder).Append(f.BlockNumber)
		b.Field(3).(*array.StringBuilder).Append(f.TxHash)
		b.Field(4).(*array.Uint64Builder).Append(f.LogIndex)
		b.Field(5).(*array.StringBuilder).Append(f.Topic0)
		b.Field(6).(*array.StringBuilder).Append(f.EventName)
		b.Field(7).(*array.StringBuilder).Append(f.Reason)
	}
	return b.NewRecord()
}
