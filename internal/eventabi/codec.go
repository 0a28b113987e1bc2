package eventabi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const wordSize = 32

var (
	// ErrOffsetOutOfRange is returned when a dynamic offset points past the payload.
	ErrOffsetOutOfRange = errors.New("offset points past payload end")
	// ErrTruncated is returned when the payload ends before a value does.
	ErrTruncated = errors.New("truncated data")
	// ErrInvalidValue is returned when a word is not a valid encoding of its type.
	ErrInvalidValue = errors.New("invalid value")
)

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

type kind int

const (
	kindUint kind = iota
	kindInt
	kindBool
	kindAddress
	kindFixedBytes
	kindFunction
	kindString
	kindBytes
	kindSlice
	kindArray
	kindTuple
)

// codec is one compiled decode step. Static codecs occupy headSize bytes in
// place; dynamic codecs occupy a single offset word in the head.
type codec struct {
	kind     kind
	size     int
	length   int
	dynamic  bool
	headSize int
	elem     *codec
	fields   []field
}

type field struct {
	name  string
	codec *codec
}

func compileType(t abi.Type) (*codec, error) {
	switch t.T {
	case abi.UintTy:
		return &codec{kind: kindUint, size: t.Size, headSize: wordSize}, nil
	case abi.IntTy:
		return &codec{kind: kindInt, size: t.Size, headSize: wordSize}, nil
	case abi.BoolTy:
		return &codec{kind: kindBool, headSize: wordSize}, nil
	case abi.AddressTy:
		return &codec{kind: kindAddress, headSize: wordSize}, nil
	case abi.FixedBytesTy:
		if t.Size < 1 || t.Size > wordSize {
			return nil, fmt.Errorf("invalid fixed bytes size %d", t.Size)
		}
		return &codec{kind: kindFixedBytes, size: t.Size, headSize: wordSize}, nil
	case abi.HashTy:
		return &codec{kind: kindFixedBytes, size: wordSize, headSize: wordSize}, nil
	case abi.FunctionTy:
		return &codec{kind: kindFunction, size: 24, headSize: wordSize}, nil
	case abi.StringTy:
		return &codec{kind: kindString, dynamic: true, headSize: wordSize}, nil
	case abi.BytesTy:
		return &codec{kind: kindBytes, dynamic: true, headSize: wordSize}, nil
	case abi.SliceTy:
		elem, err := compileType(*t.Elem)
		if err != nil {
			return nil, err
		}
		return &codec{kind: kindSlice, dynamic: true, headSize: wordSize, elem: elem}, nil
	case abi.ArrayTy:
		elem, err := compileType(*t.Elem)
		if err != nil {
			return nil, err
		}
		c := &codec{kind: kindArray, length: t.Size, elem: elem}
		if elem.dynamic {
			c.dynamic = true
			c.headSize = wordSize
		} else {
			c.headSize = t.Size * elem.headSize
		}
		return c, nil
	case abi.TupleTy:
		c := &codec{kind: kindTuple}
		for i, elemType := range t.TupleElems {
			elem, err := compileType(*elemType)
			if err != nil {
				return nil, err
			}
			name := ""
			if i < len(t.TupleRawNames) {
				name = t.TupleRawNames[i]
			}
			if name == "" {
				name = fmt.Sprintf("arg%d", i)
			}
			c.fields = append(c.fields, field{name: name, codec: elem})
			if elem.dynamic {
				c.dynamic = true
			}
			c.headSize += elem.headSize
		}
		if c.dynamic {
			c.headSize = wordSize
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported abi type %s", t.String())
	}
}

func (c *codec) scalar() bool {
	switch c.kind {
	case kindUint, kindInt, kindBool, kindAddress, kindFixedBytes, kindFunction:
		return true
	}
	return false
}

// decodeTopic decodes an indexed parameter. Only value types are recoverable
// from a topic; everything else is stored as its keccak hash.
func (c *codec) decodeTopic(topic common.Hash) (interface{}, error) {
	if !c.scalar() {
		return topic.Hex(), nil
	}
	return c.decodeWord(topic[:])
}

// decode reads the value whose encoding starts at pos. For dynamic codecs pos
// is the resolved tail position, not the head slot.
func (c *codec) decode(data []byte, pos int) (interface{}, error) {
	switch c.kind {
	case kindString, kindBytes:
		n, err := readLength(data, pos)
		if err != nil {
			return nil, err
		}
		start := pos + wordSize
		raw := data[start : start+n]
		if c.kind == kindString {
			return strings.ToValidUTF8(string(raw), "\uFFFD"), nil
		}
		return hexutil.Encode(raw), nil
	case kindSlice:
		n, err := readLength(data, pos)
		if err != nil {
			return nil, err
		}
		return decodeRepeated(c.elem, n, data, pos+wordSize)
	case kindArray:
		return decodeRepeated(c.elem, c.length, data, pos)
	case kindTuple:
		values, err := decodeSequence(c.fields, data, pos)
		if err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, len(values))
		for i, f := range c.fields {
			out[f.name] = values[i]
		}
		return out, nil
	default:
		word, err := readWord(data, pos)
		if err != nil {
			return nil, err
		}
		return c.decodeWord(word)
	}
}

func (c *codec) decodeWord(word []byte) (interface{}, error) {
	switch c.kind {
	case kindUint:
		v := new(big.Int).SetBytes(word)
		if v.BitLen() > c.size {
			return nil, fmt.Errorf("%w: %s overflows uint%d", ErrInvalidValue, v.String(), c.size)
		}
		return v.String(), nil
	case kindInt:
		v := new(big.Int).SetBytes(word)
		if word[0]&0x80 != 0 {
			v.Sub(v, twoTo256)
		}
		magnitude := v
		if v.Sign() < 0 {
			magnitude = new(big.Int).Not(v)
		}
		if magnitude.BitLen() > c.size-1 {
			return nil, fmt.Errorf("%w: %s overflows int%d", ErrInvalidValue, v.String(), c.size)
		}
		return v.String(), nil
	case kindBool:
		for _, b := range word[:wordSize-1] {
			if b != 0 {
				return nil, fmt.Errorf("%w: non-canonical bool", ErrInvalidValue)
			}
		}
		switch word[wordSize-1] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, fmt.Errorf("%w: bool word %d", ErrInvalidValue, word[wordSize-1])
		}
	case kindAddress:
		return hexutil.Encode(word[12:]), nil
	case kindFixedBytes, kindFunction:
		return hexutil.Encode(word[:c.size]), nil
	default:
		return nil, fmt.Errorf("%w: kind %d is not a word type", ErrInvalidValue, c.kind)
	}
}

func decodeSequence(fields []field, data []byte, base int) ([]interface{}, error) {
	out := make([]interface{}, len(fields))
	pos := base
	for i, f := range fields {
		value, err := decodeSlot(f.codec, data, base, pos)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		out[i] = value
		pos += f.codec.headSize
	}
	return out, nil
}

func decodeRepeated(elem *codec, n int, data []byte, base int) ([]interface{}, error) {
	if elem.headSize > 0 && n > (len(data)-base)/elem.headSize {
		return nil, fmt.Errorf("%w: %d elements need more than the %d bytes remaining", ErrTruncated, n, len(data)-base)
	}
	out := make([]interface{}, n)
	pos := base
	for i := 0; i < n; i++ {
		value, err := decodeSlot(elem, data, base, pos)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = value
		pos += elem.headSize
	}
	return out, nil
}

// decodeSlot decodes the head slot at pos of the frame starting at base.
func decodeSlot(c *codec, data []byte, base, pos int) (interface{}, error) {
	if !c.dynamic {
		return c.decode(data, pos)
	}
	word, err := readWord(data, pos)
	if err != nil {
		return nil, err
	}
	offset, ok := wordToUint64(word)
	if !ok || offset > uint64(len(data)-base) {
		return nil, fmt.Errorf("%w: offset %s from %d, payload length %d", ErrOffsetOutOfRange, new(big.Int).SetBytes(word).String(), base, len(data))
	}
	return c.decode(data, base+int(offset))
}

func readWord(data []byte, pos int) ([]byte, error) {
	if pos < 0 || pos > len(data)-wordSize {
		return nil, fmt.Errorf("%w: need %d bytes at %d, payload length %d", ErrTruncated, wordSize, pos, len(data))
	}
	return data[pos : pos+wordSize], nil
}

// readLength reads a length prefix and checks the value fits in what remains.
func readLength(data []byte, pos int) (int, error) {
	word, err := readWord(data, pos)
	if err != nil {
		return 0, err
	}
	remaining := len(data) - pos - wordSize
	n, ok := wordToUint64(word)
	if !ok || n > uint64(remaining) {
		return 0, fmt.Errorf("%w: length %s exceeds remaining %d bytes", ErrTruncated, new(big.Int).SetBytes(word).String(), remaining)
	}
	return int(n), nil
}

func wordToUint64(word []byte) (uint64, bool) {
	for _, b := range word[:wordSize-8] {
		if b != 0 {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(word[wordSize-8:]), true
}
