package storage

import (
	"context"
	"fmt"
	"path"

	"eventScope/internal/model"
)

// Record streams.
const (
	StreamRawLogs       = "raw_logs"
	StreamDecodedEvents = "decoded_events"
	StreamDecodeErrors  = "decode_errors"
)

// Partition identifies where one range of one contract is written.
type Partition struct {
	ChainID uint64
	Address string
	Range   model.BlockRange
	RunID   string
}

// Dir returns the Hive-style directory of a stream for the partition.
func (p Partition) Dir(stream string) string {
	return path.Join(stream, fmt.Sprintf("chain_id=%d", p.ChainID), "contract="+model.NormalizeAddress(p.Address))
}

// Object returns the partition object path for stream with extension ext.
func (p Partition) Object(stream, ext string) string {
	name := fmt.Sprintf("%d-%d", p.Range.From, p.Range.To)
	if p.RunID != "" {
		name += "." + p.RunID
	}
	return path.Join(p.Dir(stream), name+"."+ext)
}

// Sink persists the raw and decoded record streams. Raw logs are written
// before decoded output for each range.
type Sink interface {
	WriteRawLogs(ctx context.Context, p Partition, logs []model.RawLog) error
	WriteDecoded(ctx context.Context, p Partition, events []model.DecodedEvent, failures []model.DecodeError) error
}

// BlobWriter stores whole objects by path.
type BlobWriter interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
}

// Tee writes to every sink in order and stops at the first failure.
func Tee(sinks ...Sink) Sink {
	return teeSink(sinks)
}

type teeSink []Sink

func (t teeSink) WriteRawLogs(ctx context.Context, p Partition, logs []model.RawLog) error {
	for _, s := range t {
		if err := s.WriteRawLogs(ctx, p, logs); err != nil {
			return err
		}
	}
	return nil
}

func (t teeSink) WriteDecoded(ctx context.Context, p Partition, events []model.DecodedEvent, failures []model.DecodeError) error {
	for _, s := range t {
		if err := s.WriteDecoded(ctx, p, events, failures); err != nil {
			return err
		}
	}
	return nil
}
