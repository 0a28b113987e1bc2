package eventabi

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Param describes one event parameter.
type Param struct {
	Name    string
	Type    string
	Indexed bool

	codec *codec
}

// EventSpec is an event definition compiled into fixed decode steps.
type EventSpec struct {
	Name      string
	Signature string
	Topic0    common.Hash
	Params    []Param

	indexed    []int
	nonIndexed []int
}

// Compile converts a parsed ABI event into an EventSpec. Anonymous events
// carry no topic0 and are rejected.
func Compile(event abi.Event) (*EventSpec, error) {
	if event.Anonymous {
		return nil, fmt.Errorf("event %s is anonymous", event.RawName)
	}
	name := event.RawName
	if name == "" {
		name = event.Name
	}

	spec := &EventSpec{
		Name:      name,
		Signature: event.Sig,
		Topic0:    crypto.Keccak256Hash([]byte(event.Sig)),
		Params:    make([]Param, 0, len(event.Inputs)),
	}
	for i, input := range event.Inputs {
		c, err := compileType(input.Type)
		if err != nil {
			return nil, fmt.Errorf("event %s param %d: %w", name, i, err)
		}
		paramName := input.Name
		if paramName == "" {
			paramName = fmt.Sprintf("arg%d", i)
		}
		spec.Params = append(spec.Params, Param{
			Name:    paramName,
			Type:    input.Type.String(),
			Indexed: input.Indexed,
			codec:   c,
		})
		if input.Indexed {
			spec.indexed = append(spec.indexed, i)
		} else {
			spec.nonIndexed = append(spec.nonIndexed, i)
		}
	}
	return spec, nil
}

// IndexedCount returns the number of topics expected after topic0.
func (s *EventSpec) IndexedCount() int {
	return len(s.indexed)
}

// IndexedParams returns the indexed parameters in declaration order.
func (s *EventSpec) IndexedParams() []Param {
	out := make([]Param, len(s.indexed))
	for i, idx := range s.indexed {
		out[i] = s.Params[idx]
	}
	return out
}

// NonIndexedParams returns the data parameters in declaration order.
func (s *EventSpec) NonIndexedParams() []Param {
	out := make([]Param, len(s.nonIndexed))
	for i, idx := range s.nonIndexed {
		out[i] = s.Params[idx]
	}
	return out
}

// DecodeTopics decodes the indexed parameter topics (topic0 excluded).
// Dynamic, array and tuple parameters are returned as the topic hash hex.
func (s *EventSpec) DecodeTopics(topics []common.Hash) ([]interface{}, error) {
	if len(topics) != len(s.indexed) {
		return nil, fmt.Errorf("topic count mismatch: want %d indexed topics, got %d", len(s.indexed), len(topics))
	}
	out := make([]interface{}, len(topics))
	for i, idx := range s.indexed {
		param := s.Params[idx]
		value, err := param.codec.decodeTopic(topics[i])
		if err != nil {
			return nil, fmt.Errorf("indexed param %s: %w", param.Name, err)
		}
		out[i] = value
	}
	return out, nil
}

// DecodeData decodes the non-indexed parameters from the log data payload.
func (s *EventSpec) DecodeData(data []byte) ([]interface{}, error) {
	fields := make([]field, len(s.nonIndexed))
	for i, idx := range s.nonIndexed {
		fields[i] = field{name: s.Params[idx].Name, codec: s.Params[idx].codec}
	}
	return decodeSequence(fields, data, 0)
}
