package decoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"eventScope/internal/eventabi"
	"eventScope/internal/model"
)

// Decode converts a raw log into a decoded event using spec. Failures are
// returned as *model.DecodeError tagged with the log identity.
func Decode(log model.RawLog, spec *eventabi.EventSpec) (model.DecodedEvent, error) {
	if spec == nil {
		return model.DecodedEvent{}, model.NewDecodeError(log, "", errors.New("event spec is nil"))
	}
	payload, err := decodePayload(log, spec)
	if err != nil {
		return model.DecodedEvent{}, model.NewDecodeError(log, spec.Name, err)
	}

	return model.DecodedEvent{
		ChainID:        log.ChainID,
		Address:        model.NormalizeAddress(log.Address),
		EventName:      spec.Name,
		Signature:      spec.Signature,
		TxHash:         strings.ToLower(log.TxHash),
		LogIndex:       log.LogIndex,
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: log.BlockTimestamp,
		Payload:        payload,
	}, nil
}

func decodePayload(log model.RawLog, spec *eventabi.EventSpec) (map[string]interface{}, error) {
	if len(log.Topics) == 0 {
		return nil, errors.New("missing topics")
	}
	topics, err := parseTopics(log.Topics)
	if err != nil {
		return nil, err
	}
	if topics[0] != spec.Topic0 {
		return nil, fmt.Errorf("topic0 mismatch: log %s, event %s", topics[0].Hex(), spec.Topic0.Hex())
	}

	indexed, err := spec.DecodeTopics(topics[1:])
	if err != nil {
		return nil, err
	}
	data, err := parseData(log.Data)
	if err != nil {
		return nil, err
	}
	nonIndexed, err := spec.DecodeData(data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}

	payload := make(map[string]interface{}, len(spec.Params))
	var i, j int
	for _, param := range spec.Params {
		if param.Indexed {
			payload[param.Name] = indexed[i]
			i++
			continue
		}
		payload[param.Name] = nonIndexed[j]
		j++
	}
	return payload, nil
}

// ParseTopic parses a 32-byte topic hex string.
func ParseTopic(topic string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(topic))
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid topic %q: %w", topic, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid topic %q: %d bytes", topic, len(b))
	}
	return common.BytesToHash(b), nil
}

func parseTopics(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, len(topics))
	for i, topic := range topics {
		h, err := ParseTopic(topic)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func parseData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" || data == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(data, "0x") && !strings.HasPrefix(data, "0X") {
		data = "0x" + data
	}
	b, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("invalid data hex: %w", err)
	}
	return b, nil
}
