package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"eventScope/internal/model"
)

const jsonlContentType = "application/x-ndjson"

// JsonlStorage writes each stream as JSON lines, one object per range.
type JsonlStorage struct {
	blobs BlobWriter
}

func NewJsonlStorage(blobs BlobWriter) *JsonlStorage {
	return &JsonlStorage{blobs: blobs}
}

// WriteRawLogs writes the raw logs of a range verbatim.
func (s *JsonlStorage) WriteRawLogs(ctx context.Context, p Partition, logs []model.RawLog) error {
	if len(logs) == 0 {
		return nil
	}
	data, err := encodeLines(logs)
	if err != nil {
		return fmt.Errorf("encode raw logs: %w", err)
	}
	return s.blobs.Put(ctx, p.Object(StreamRawLogs, "jsonl"), data, jsonlContentType)
}

// WriteDecoded writes decoded events and decode errors of a range.
func (s *JsonlStorage) WriteDecoded(ctx context.Context, p Partition, events []model.DecodedEvent, failures []model.DecodeError) error {
	if len(events) > 0 {
		data, err := encodeLines(events)
		if err != nil {
			return fmt.Errorf("encode decoded events: %w", err)
		}
		if err := s.blobs.Put(ctx, p.Object(StreamDecodedEvents, "jsonl"), data, jsonlContentType); err != nil {
			return err
		}
	}
	if len(failures) > 0 {
		data, err := encodeLines(failures)
		if err != nil {
			return fmt.Errorf("encode decode errors: %w", err)
		}
		if err := s.blobs.Put(ctx, p.Object(StreamDecodeErrors, "jsonl"), data, jsonlContentType); err != nil {
			return err
		}
	}
	return nil
}

func encodeLines[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
