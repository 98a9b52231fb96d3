package evmrpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"defi-revenue-lab/internal/domain"
)

// The codec below covers the static ABI types the engine consumes: address,
// bool, bytesN, uintN and intN. Dynamic types (strings, arrays) never appear
// in the event and call signatures we read, so they are rejected at parse
// time rather than half-supported.

// Param is one parameter of an event or function signature.
type Param struct {
	Name    string
	Type    string
	Indexed bool
}

// EventSpec is a parsed event signature, e.g.
//
//	event Swap(address indexed sender, uint256 amount0In, ...)
//
// Topic0 is the keccak-256 hash of the canonical signature and identifies
// the event in log filters.
type EventSpec struct {
	Name   string
	Inputs []Param

	topic0 string
}

// FuncSpec is a parsed function signature, e.g.
//
//	function gaugeForPool(address pool) view returns (address)
type FuncSpec struct {
	Name    string
	Inputs  []Param
	Outputs []Param

	selector []byte
}

// keccak256 returns the keccak-256 digest of data.
func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// canonicalSignature builds "Name(type1,type2,...)" from parsed params.
func canonicalSignature(name string, params []Param) string {
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	return name + "(" + strings.Join(types, ",") + ")"
}

// validStaticType reports whether the codec supports an ABI type.
func validStaticType(t string) bool {
	switch {
	case t == "address", t == "bool":
		return true
	case strings.HasPrefix(t, "uint"), strings.HasPrefix(t, "int"):
		return true
	case strings.HasPrefix(t, "bytes") && len(t) > len("bytes"):
		// bytesN only; dynamic bytes is unsupported.
		return true
	default:
		return false
	}
}

// parseParams splits a comma-separated parameter list into Params.
// Each entry is "type [indexed] [name]".
func parseParams(list string) ([]Param, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	params := make([]Param, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			return nil, fmt.Errorf("empty parameter in %q", list)
		}
		p := Param{Type: fields[0]}
		rest := fields[1:]
		if len(rest) > 0 && rest[0] == "indexed" {
			p.Indexed = true
			rest = rest[1:]
		}
		if len(rest) > 0 {
			p.Name = rest[len(rest)-1]
		}
		if !validStaticType(p.Type) {
			return nil, fmt.Errorf("unsupported ABI type %q", p.Type)
		}
		params = append(params, p)
	}
	return params, nil
}

// ParseEventSpec parses a human-readable event signature.
// The leading "event" keyword is optional.
func ParseEventSpec(abi string) (*EventSpec, error) {
	s := strings.TrimSpace(abi)
	s = strings.TrimPrefix(s, "event")
	s = strings.TrimSpace(s)

	open := strings.Index(s, "(")
	close := strings.LastIndex(s, ")")
	if open <= 0 || close < open {
		return nil, fmt.Errorf("malformed event signature %q", abi)
	}

	name := strings.TrimSpace(s[:open])
	inputs, err := parseParams(s[open+1 : close])
	if err != nil {
		return nil, err
	}

	spec := &EventSpec{Name: name, Inputs: inputs}
	digest := keccak256([]byte(canonicalSignature(name, inputs)))
	spec.topic0 = "0x" + hex.EncodeToString(digest)
	return spec, nil
}

// MustEventSpec parses an event signature and panics on error.
// Intended for package-level signature tables.
func MustEventSpec(abi string) *EventSpec {
	spec, err := ParseEventSpec(abi)
	if err != nil {
		panic(err)
	}
	return spec
}

// Topic0 returns the 0x-hex keccak hash identifying the event.
func (s *EventSpec) Topic0() string {
	return s.topic0
}

// Signature returns the canonical signature string.
func (s *EventSpec) Signature() string {
	return canonicalSignature(s.Name, s.Inputs)
}

// ParseFuncSpec parses a human-readable function signature.
// The "function" keyword, mutability keywords and a trailing
// "returns (...)" clause are all optional.
func ParseFuncSpec(abi string) (*FuncSpec, error) {
	s := strings.TrimSpace(abi)
	s = strings.TrimPrefix(s, "function")
	s = strings.TrimSpace(s)

	var outputs []Param
	if idx := strings.Index(s, "returns"); idx >= 0 {
		retPart := s[idx+len("returns"):]
		retPart = strings.TrimSpace(retPart)
		retPart = strings.TrimPrefix(retPart, "(")
		retPart = strings.TrimSuffix(retPart, ")")
		var err error
		outputs, err = parseParams(retPart)
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s[:idx])
		// Drop trailing mutability keywords left before "returns".
		for _, kw := range []string{"view", "pure", "external", "public"} {
			s = strings.TrimSuffix(strings.TrimSpace(s), kw)
		}
		s = strings.TrimSpace(s)
	}

	open := strings.Index(s, "(")
	close := strings.LastIndex(s, ")")
	if open <= 0 || close < open {
		return nil, fmt.Errorf("malformed function signature %q", abi)
	}

	name := strings.TrimSpace(s[:open])
	inputs, err := parseParams(s[open+1 : close])
	if err != nil {
		return nil, err
	}

	spec := &FuncSpec{Name: name, Inputs: inputs, Outputs: outputs}
	digest := keccak256([]byte(canonicalSignature(name, inputs)))
	spec.selector = digest[:4]
	return spec, nil
}

// MustFuncSpec parses a function signature and panics on error.
func MustFuncSpec(abi string) *FuncSpec {
	spec, err := ParseFuncSpec(abi)
	if err != nil {
		panic(err)
	}
	return spec
}

// Selector returns the 4-byte function selector.
func (s *FuncSpec) Selector() []byte {
	out := make([]byte, 4)
	copy(out, s.selector)
	return out
}

// two256 is 2^256, used for int256 two's-complement decoding.
var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// encodeWord encodes one static value into a 32-byte ABI word.
func encodeWord(typ string, value any) ([]byte, error) {
	word := make([]byte, 32)
	switch {
	case typ == "address":
		var addr domain.Address
		switch v := value.(type) {
		case domain.Address:
			addr = v
		case string:
			addr = domain.NormalizeAddress(v)
		default:
			return nil, fmt.Errorf("cannot encode %T as address", value)
		}
		raw, err := hex.DecodeString(strings.TrimPrefix(string(addr), "0x"))
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("invalid address %q", addr)
		}
		copy(word[12:], raw)
	case typ == "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("cannot encode %T as bool", value)
		}
		if b {
			word[31] = 1
		}
	case strings.HasPrefix(typ, "uint"), strings.HasPrefix(typ, "int"):
		var n *big.Int
		switch v := value.(type) {
		case *big.Int:
			n = new(big.Int).Set(v)
		case int:
			n = big.NewInt(int64(v))
		case int64:
			n = big.NewInt(v)
		case uint64:
			n = new(big.Int).SetUint64(v)
		default:
			return nil, fmt.Errorf("cannot encode %T as %s", value, typ)
		}
		if n.Sign() < 0 {
			n.Add(n, two256)
		}
		raw := n.Bytes()
		if len(raw) > 32 {
			return nil, fmt.Errorf("integer overflows 256 bits")
		}
		copy(word[32-len(raw):], raw)
	default:
		return nil, fmt.Errorf("unsupported ABI type %q", typ)
	}
	return word, nil
}

// decodeWord decodes one 32-byte ABI word into a Go value:
// domain.Address, bool, *big.Int or a 0x-hex string for bytesN.
func decodeWord(typ string, word []byte) (any, error) {
	if len(word) != 32 {
		return nil, fmt.Errorf("short ABI word: %d bytes", len(word))
	}
	switch {
	case typ == "address":
		return domain.NormalizeAddress("0x" + hex.EncodeToString(word[12:])), nil
	case typ == "bool":
		return word[31] != 0, nil
	case strings.HasPrefix(typ, "uint"):
		return new(big.Int).SetBytes(word), nil
	case strings.HasPrefix(typ, "int"):
		n := new(big.Int).SetBytes(word)
		if word[0]&0x80 != 0 {
			n.Sub(n, two256)
		}
		return n, nil
	case strings.HasPrefix(typ, "bytes"):
		return "0x" + hex.EncodeToString(word), nil
	default:
		return nil, fmt.Errorf("unsupported ABI type %q", typ)
	}
}

// EncodeCall builds selector-prefixed calldata for the function.
func (s *FuncSpec) EncodeCall(params ...any) ([]byte, error) {
	if len(params) != len(s.Inputs) {
		return nil, fmt.Errorf("%s: want %d params, got %d", s.Name, len(s.Inputs), len(params))
	}
	data := make([]byte, 0, 4+32*len(params))
	data = append(data, s.selector...)
	for i, p := range s.Inputs {
		word, err := encodeWord(p.Type, params[i])
		if err != nil {
			return nil, fmt.Errorf("%s param %d: %w", s.Name, i, err)
		}
		data = append(data, word...)
	}
	return data, nil
}

// DecodeOutput decodes a return payload into a CallResult.
// Empty payloads (reverts surfaced as empty data) decode to nil.
func (s *FuncSpec) DecodeOutput(data []byte) (*CallResult, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 32*len(s.Outputs) {
		return nil, fmt.Errorf("%s: short output: %d bytes for %d values", s.Name, len(data), len(s.Outputs))
	}
	vals := make([]any, len(s.Outputs))
	for i, p := range s.Outputs {
		v, err := decodeWord(p.Type, data[i*32:(i+1)*32])
		if err != nil {
			return nil, fmt.Errorf("%s output %d: %w", s.Name, i, err)
		}
		vals[i] = v
	}
	return &CallResult{values: vals}, nil
}

// DecodeLog decodes a raw log against the event signature.
// Indexed inputs read from topics[1:], the rest from the data payload.
func (s *EventSpec) DecodeLog(l Log) (Event, error) {
	ev := Event{
		Emitter: domain.NormalizeAddress(l.Address),
		args:    make(map[string]any, len(s.Inputs)),
	}

	block, err := parseHexUint(l.BlockNumber)
	if err != nil {
		return Event{}, fmt.Errorf("log block number: %w", err)
	}
	ev.Block = block

	data, err := hex.DecodeString(strings.TrimPrefix(l.Data, "0x"))
	if err != nil {
		return Event{}, fmt.Errorf("log data: %w", err)
	}

	topicIdx := 1 // topics[0] is the event hash
	dataIdx := 0
	for _, p := range s.Inputs {
		var word []byte
		if p.Indexed {
			if topicIdx >= len(l.Topics) {
				return Event{}, fmt.Errorf("%s: missing topic for %s", s.Name, p.Name)
			}
			word, err = hex.DecodeString(strings.TrimPrefix(l.Topics[topicIdx], "0x"))
			if err != nil {
				return Event{}, fmt.Errorf("%s topic %d: %w", s.Name, topicIdx, err)
			}
			topicIdx++
		} else {
			if dataIdx+32 > len(data) {
				return Event{}, fmt.Errorf("%s: data too short for %s", s.Name, p.Name)
			}
			word = data[dataIdx : dataIdx+32]
			dataIdx += 32
		}
		v, err := decodeWord(p.Type, word)
		if err != nil {
			return Event{}, fmt.Errorf("%s field %s: %w", s.Name, p.Name, err)
		}
		ev.args[p.Name] = v
	}
	return ev, nil
}
