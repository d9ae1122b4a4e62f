// Package tnetstring implements the typed netstring encoding spoken by
// the push-delivery broker. Every value is framed as
//
//	<len> ':' <payload> <tag>
//
// where len is the ASCII decimal byte length of payload alone and tag
// is a single trailing type character. Composite payloads are the
// concatenation of complete child frames; dict payloads alternate key
// and value frames, with keys required to be byte-strings.
//
// The framing is an interoperability contract with the broker and must
// be reproduced byte for byte: tag characters, the ':' separator and
// the length computation are all fixed.
package tnetstring

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Type tags, one per value kind.
const (
	tagBytes = ','
	tagInt   = '#'
	tagFloat = '^'
	tagBool  = '!'
	tagNull  = '~'
	tagList  = ']'
	tagDict  = '}'
)

// maxLenDigits bounds the length prefix. Nine digits covers any frame
// the broker accepts while keeping the prefix parse trivially safe.
const maxLenDigits = 9

// Decode failure modes. Decode errors wrap one of these; no partial
// value is ever returned alongside them.
var (
	ErrBadLength  = errors.New("tnetstring: bad length prefix")
	ErrUnknownTag = errors.New("tnetstring: unknown type tag")
	ErrBadPayload = errors.New("tnetstring: bad payload")
	ErrTrailing   = errors.New("tnetstring: trailing data after value")
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBytes
	KindInt
	KindFloat
	KindBool
	KindNull
	KindList
	KindDict
)

// Value is one node of a tnetstring document: a byte-string, integer,
// float, boolean, null, list or dict. The zero Value is invalid and
// cannot be marshaled.
type Value struct {
	kind  Kind
	data  []byte
	num   int64
	fnum  float64
	flag  bool
	elems []Value
	pairs []Pair
}

// Pair is one dict entry. Dicts keep their entries as an ordered
// slice: order is irrelevant to the broker but kept stable so a given
// value always encodes to the same bytes.
type Pair struct {
	Key []byte
	Val Value
}

// P builds a dict entry from a text key.
func P(key string, val Value) Pair {
	return Pair{Key: []byte(key), Val: val}
}

// Bytes returns a byte-string Value. The slice is not copied.
func Bytes(b []byte) Value { return Value{kind: KindBytes, data: b} }

// String returns a byte-string Value holding the UTF-8 bytes of s.
func String(s string) Value { return Value{kind: KindBytes, data: []byte(s)} }

// Int returns an integer Value.
func Int(n int64) Value { return Value{kind: KindInt, num: n} }

// Float returns a float Value.
func Float(f float64) Value { return Value{kind: KindFloat, fnum: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// List returns a list Value over the given elements.
func List(elems ...Value) Value { return Value{kind: KindList, elems: elems} }

// Dict returns a dict Value over the given entries, kept in order.
func Dict(pairs ...Pair) Value { return Value{kind: KindDict, pairs: pairs} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Bytes returns the byte-string payload. Valid only for KindBytes.
func (v Value) Bytes() []byte { return v.data }

// Int returns the integer payload. Valid only for KindInt.
func (v Value) Int() int64 { return v.num }

// Float returns the float payload. Valid only for KindFloat.
func (v Value) Float() float64 { return v.fnum }

// Bool returns the boolean payload. Valid only for KindBool.
func (v Value) Bool() bool { return v.flag }

// List returns the list elements. Valid only for KindList.
func (v Value) List() []Value { return v.elems }

// Pairs returns the dict entries in order. Valid only for KindDict.
func (v Value) Pairs() []Pair { return v.pairs }

// Get looks up the first dict entry with the given key.
func (v Value) Get(key string) (Value, bool) {
	for _, p := range v.pairs {
		if string(p.Key) == key {
			return p.Val, true
		}
	}
	return Value{}, false
}

// Equal reports structural equality. Byte-strings compare by content
// (nil and empty are equal); dicts compare entry by entry, so entry
// order matters, matching the encoder's determinism guarantee.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBytes:
		return bytes.Equal(v.data, o.data)
	case KindInt:
		return v.num == o.num
	case KindFloat:
		return v.fnum == o.fnum
	case KindBool:
		return v.flag == o.flag
	case KindNull:
		return true
	case KindList:
		if len(v.elems) != len(o.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Equal(o.elems[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.pairs) != len(o.pairs) {
			return false
		}
		for i := range v.pairs {
			if !bytes.Equal(v.pairs[i].Key, o.pairs[i].Key) || !v.pairs[i].Val.Equal(o.pairs[i].Val) {
				return false
			}
		}
		return true
	}
	return false
}

// Marshal encodes v as a single self-delimiting tnetstring. It fails
// only when v (or a nested element) is the zero Value.
func Marshal(v Value) ([]byte, error) {
	return appendValue(nil, v)
}

func appendValue(dst []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindBytes:
		return appendFrame(dst, v.data, tagBytes), nil
	case KindInt:
		return appendFrame(dst, strconv.AppendInt(nil, v.num, 10), tagInt), nil
	case KindFloat:
		return appendFrame(dst, strconv.AppendFloat(nil, v.fnum, 'g', -1, 64), tagFloat), nil
	case KindBool:
		if v.flag {
			return appendFrame(dst, []byte("true"), tagBool), nil
		}
		return appendFrame(dst, []byte("false"), tagBool), nil
	case KindNull:
		return appendFrame(dst, nil, tagNull), nil
	case KindList:
		var payload []byte
		var err error
		for _, e := range v.elems {
			if payload, err = appendValue(payload, e); err != nil {
				return nil, err
			}
		}
		return appendFrame(dst, payload, tagList), nil
	case KindDict:
		var payload []byte
		var err error
		for _, p := range v.pairs {
			payload = appendFrame(payload, p.Key, tagBytes)
			if payload, err = appendValue(payload, p.Val); err != nil {
				return nil, err
			}
		}
		return appendFrame(dst, payload, tagDict), nil
	}
	return nil, errors.New("tnetstring: marshal of invalid Value")
}

// appendFrame writes one <len>:<payload><tag> unit.
func appendFrame(dst, payload []byte, tag byte) []byte {
	dst = strconv.AppendInt(dst, int64(len(payload)), 10)
	dst = append(dst, ':')
	dst = append(dst, payload...)
	return append(dst, tag)
}

// Unmarshal decodes exactly one tnetstring value from data. Anything
// left over after the value is an error; malformed input never yields
// a partial result.
func Unmarshal(data []byte) (Value, error) {
	v, rest, err := decodeValue(data)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, fmt.Errorf("%w: %d bytes", ErrTrailing, len(rest))
	}
	return v, nil
}

func decodeValue(data []byte) (Value, []byte, error) {
	payload, tag, rest, err := readFrame(data)
	if err != nil {
		return Value{}, nil, err
	}
	switch tag {
	case tagBytes:
		out := make([]byte, len(payload))
		copy(out, payload)
		return Value{kind: KindBytes, data: out}, rest, nil
	case tagInt:
		v, err := decodeInt(payload)
		return v, rest, err
	case tagFloat:
		v, err := decodeFloat(payload)
		return v, rest, err
	case tagBool:
		v, err := decodeBool(payload)
		return v, rest, err
	case tagNull:
		if len(payload) != 0 {
			return Value{}, nil, fmt.Errorf("%w: null with non-empty payload", ErrBadPayload)
		}
		return Value{kind: KindNull}, rest, nil
	case tagList:
		v, err := decodeList(payload)
		return v, rest, err
	case tagDict:
		v, err := decodeDict(payload)
		return v, rest, err
	}
	return Value{}, nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
}

// readFrame splits data into the first frame's payload and tag plus
// whatever follows the frame.
func readFrame(data []byte) (payload []byte, tag byte, rest []byte, err error) {
	sep := bytes.IndexByte(data, ':')
	if sep < 1 {
		return nil, 0, nil, fmt.Errorf("%w: missing length", ErrBadLength)
	}
	if sep > maxLenDigits {
		return nil, 0, nil, fmt.Errorf("%w: prefix too long", ErrBadLength)
	}
	for _, c := range data[:sep] {
		if c < '0' || c > '9' {
			return nil, 0, nil, fmt.Errorf("%w: %q", ErrBadLength, data[:sep])
		}
	}
	n, _ := strconv.Atoi(string(data[:sep]))
	if len(data) < sep+1+n+1 {
		return nil, 0, nil, fmt.Errorf("%w: need %d payload bytes, have %d", ErrBadLength, n, len(data)-sep-2)
	}
	payload = data[sep+1 : sep+1+n]
	tag = data[sep+1+n]
	rest = data[sep+2+n:]
	return payload, tag, rest, nil
}

func decodeInt(payload []byte) (Value, error) {
	if len(payload) == 0 || payload[0] == '+' {
		return Value{}, fmt.Errorf("%w: integer %q", ErrBadPayload, payload)
	}
	n, err := strconv.ParseInt(string(payload), 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: integer %q", ErrBadPayload, payload)
	}
	return Value{kind: KindInt, num: n}, nil
}

func decodeFloat(payload []byte) (Value, error) {
	if len(payload) == 0 {
		return Value{}, fmt.Errorf("%w: empty float", ErrBadPayload)
	}
	f, err := strconv.ParseFloat(string(payload), 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: float %q", ErrBadPayload, payload)
	}
	return Value{kind: KindFloat, fnum: f}, nil
}

func decodeBool(payload []byte) (Value, error) {
	switch string(payload) {
	case "true":
		return Value{kind: KindBool, flag: true}, nil
	case "false":
		return Value{kind: KindBool, flag: false}, nil
	}
	return Value{}, fmt.Errorf("%w: boolean %q", ErrBadPayload, payload)
}

func decodeList(payload []byte) (Value, error) {
	var elems []Value
	rest := payload
	for len(rest) > 0 {
		var v Value
		var err error
		if v, rest, err = decodeValue(rest); err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
	}
	return Value{kind: KindList, elems: elems}, nil
}

func decodeDict(payload []byte) (Value, error) {
	var pairs []Pair
	rest := payload
	for len(rest) > 0 {
		key, keyRest, err := decodeValue(rest)
		if err != nil {
			return Value{}, err
		}
		if key.kind != KindBytes {
			return Value{}, fmt.Errorf("%w: dict key must be a byte-string", ErrBadPayload)
		}
		val, valRest, err := decodeValue(keyRest)
		if err != nil {
			return Value{}, err
		}
		pairs = append(pairs, Pair{Key: key.data, Val: val})
		rest = valRest
	}
	return Value{kind: KindDict, pairs: pairs}, nil
}
