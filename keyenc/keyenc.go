// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package keyenc implements the order-preserving byte encoding of
// primitive values used to build physical KV keys (dynamic set
// segments, index records). Encoding of a value never depends on the
// encoding of any other value, so two encoded keys compare in the same
// order as the values they came from.
package keyenc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type enumerates the primitive value kinds that can be encoded.
type Type int

const (
	Int64 Type = iota
	Double
	String
	Bytes
)

func (t Type) String() string {
	switch t {
	case Int64:
		return "int64"
	case Double:
		return "double"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

const (
	tagBytes  byte = 0x01
	tagString byte = 0x02
	tagInt64  byte = 0x03
	tagDouble byte = 0x04
)

const topBit = uint64(1) << 63

// Value is a decoded primitive value. Exactly one field is
// meaningful, as indicated by Type.
type Value struct {
	Type   Type
	Int64  int64
	Double float64
	String string
	Bytes  []byte
}

func Int(v int64) Value                { return Value{Type: Int64, Int64: v} }
func Dbl(v float64) Value              { return Value{Type: Double, Double: v} }
func Str(v string) Value               { return Value{Type: String, String: v} }
func Byt(v []byte) Value               { return Value{Type: Bytes, Bytes: v} }
func (v Value) IsType(t Type) bool     { return v.Type == t }

// Encode serializes v as an order-preserving byte string suitable for
// use as (part of) a physical KV key.
func Encode(v Value) []byte {
	switch v.Type {
	case Bytes:
		return encodeBytes(v.Bytes)
	case String:
		return encodeString(v.String)
	case Int64:
		return encodeInt64(v.Int64)
	case Double:
		return encodeDouble(v.Double)
	default:
		panic(fmt.Sprintf("keyenc: unknown type %v", v.Type))
	}
}

func encodeBytes(body []byte) []byte {
	out := make([]byte, 0, len(body)+3)
	out = append(out, tagBytes)
	for _, b := range body {
		if b == 0x00 {
			out = append(out, 0x00, 0xff)
		} else {
			out = append(out, b)
		}
	}
	out = append(out, 0x00, 0x00)
	return out
}

// encodeString reuses the bytes escaping scheme so that embedded NUL
// bytes in a string do not truncate the encoding or break ordering.
func encodeString(s string) []byte {
	out := make([]byte, 0, len(s)+3)
	out = append(out, tagString)
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == 0x00 {
			out = append(out, 0x00, 0xff)
		} else {
			out = append(out, b)
		}
	}
	out = append(out, 0x00, 0x00)
	return out
}

func encodeInt64(x int64) []byte {
	out := make([]byte, 9)
	out[0] = tagInt64
	binary.BigEndian.PutUint64(out[1:], uint64(x)^topBit)
	return out
}

func encodeDouble(x float64) []byte {
	bits := math.Float64bits(x)
	if bits&topBit != 0 {
		bits = ^bits
	} else {
		bits ^= topBit
	}
	out := make([]byte, 9)
	out[0] = tagDouble
	binary.BigEndian.PutUint64(out[1:], bits)
	return out
}

// Decode parses a prefix of buf produced by Encode, returning the
// decoded value and the number of bytes consumed. It returns an error
// if buf does not begin with a recognized, well-terminated encoding.
func Decode(buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return Value{}, 0, fmt.Errorf("keyenc: empty buffer")
	}
	switch buf[0] {
	case tagBytes:
		return decodeBytes(buf)
	case tagString:
		return decodeString(buf)
	case tagInt64:
		return decodeInt64(buf)
	case tagDouble:
		return decodeDouble(buf)
	default:
		return Value{}, 0, fmt.Errorf("keyenc: unknown tag 0x%02x", buf[0])
	}
}

func decodeBytes(buf []byte) (Value, int, error) {
	out := make([]byte, 0, len(buf))
	i := 1
	for {
		if i >= len(buf) {
			return Value{}, 0, fmt.Errorf("keyenc: unterminated bytes value")
		}
		if buf[i] == 0x00 {
			if i+1 >= len(buf) {
				return Value{}, 0, fmt.Errorf("keyenc: truncated escape in bytes value")
			}
			switch buf[i+1] {
			case 0xff:
				out = append(out, 0x00)
				i += 2
			case 0x00:
				return Value{Type: Bytes, Bytes: out}, i + 2, nil
			default:
				return Value{}, 0, fmt.Errorf("keyenc: invalid escape 0x00 0x%02x", buf[i+1])
			}
		} else {
			out = append(out, buf[i])
			i++
		}
	}
}

func decodeString(buf []byte) (Value, int, error) {
	var out []byte
	i := 1
	for {
		if i >= len(buf) {
			return Value{}, 0, fmt.Errorf("keyenc: unterminated string value")
		}
		if buf[i] == 0x00 {
			if i+1 >= len(buf) {
				return Value{}, 0, fmt.Errorf("keyenc: truncated escape in string value")
			}
			switch buf[i+1] {
			case 0xff:
				out = append(out, 0x00)
				i += 2
			case 0x00:
				return Value{Type: String, String: string(out)}, i + 2, nil
			default:
				return Value{}, 0, fmt.Errorf("keyenc: invalid escape 0x00 0x%02x", buf[i+1])
			}
		} else {
			out = append(out, buf[i])
			i++
		}
	}
}

func decodeInt64(buf []byte) (Value, int, error) {
	if len(buf) < 9 {
		return Value{}, 0, fmt.Errorf("keyenc: truncated int64 value")
	}
	x := binary.BigEndian.Uint64(buf[1:9]) ^ topBit
	return Value{Type: Int64, Int64: int64(x)}, 9, nil
}

func decodeDouble(buf []byte) (Value, int, error) {
	if len(buf) < 9 {
		return Value{}, 0, fmt.Errorf("keyenc: truncated double value")
	}
	bits := binary.BigEndian.Uint64(buf[1:9])
	if bits&topBit != 0 {
		bits ^= topBit
	} else {
		bits = ^bits
	}
	return Value{Type: Double, Double: math.Float64frombits(bits)}, 9, nil
}

// DefaultValue returns the type's zero value, used by migration to
// backfill newly non-optional primitive fields with no @default.
func DefaultValue(t Type) Value {
	switch t {
	case Bytes:
		return Byt(nil)
	case String:
		return Str("")
	case Int64:
		return Int(0)
	case Double:
		return Dbl(0)
	default:
		panic(fmt.Sprintf("keyenc: unknown type %v", t))
	}
}
