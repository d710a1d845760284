package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// ValueType is the 1-byte type tag that precedes every header value
type ValueType uint8

// Header value type tags
const (
	TypeBoolTrue ValueType = iota
	TypeBoolFalse
	TypeByte
	TypeInt16
	TypeInt32
	TypeInt64
	TypeBytes
	TypeString
	TypeTimestamp
	TypeUUID
)

// String returns the tag name
func (t ValueType) String() string {
	switch t {
	case TypeBoolTrue:
		return "bool_true"
	case TypeBoolFalse:
		return "bool_false"
	case TypeByte:
		return "byte"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeBytes:
		return "bytes"
	case TypeString:
		return "string"
	case TypeTimestamp:
		return "timestamp"
	case TypeUUID:
		return "uuid"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// Value is a typed header value. The set of implementations is closed: one
// per ValueType.
type Value interface {
	Type() ValueType
	String() string
	encodeValue(buf *bytes.Buffer) error
}

// BoolValue is carried entirely by its type tag
type BoolValue bool

type ByteValue int8
type Int16Value int16
type Int32Value int32
type Int64Value int64
type BytesValue []byte
type StringValue string

// TimestampValue is encoded as milliseconds since the Unix epoch
type TimestampValue time.Time

type UUIDValue [16]byte

func (v BoolValue) Type() ValueType {
	if v {
		return TypeBoolTrue
	}
	return TypeBoolFalse
}
func (v BoolValue) String() string { return strconv.FormatBool(bool(v)) }
func (v BoolValue) encodeValue(*bytes.Buffer) error { return nil }

func (ByteValue) Type() ValueType { return TypeByte }
func (v ByteValue) String() string { return strconv.Itoa(int(v)) }
func (v ByteValue) encodeValue(buf *bytes.Buffer) error {
	return buf.WriteByte(byte(v))
}

func (Int16Value) Type() ValueType { return TypeInt16 }
func (v Int16Value) String() string { return strconv.Itoa(int(v)) }
func (v Int16Value) encodeValue(buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, int16(v))
}

func (Int32Value) Type() ValueType { return TypeInt32 }
func (v Int32Value) String() string { return strconv.Itoa(int(v)) }
func (v Int32Value) encodeValue(buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, int32(v))
}

func (Int64Value) Type() ValueType { return TypeInt64 }
func (v Int64Value) String() string { return strconv.FormatInt(int64(v), 10) }
func (v Int64Value) encodeValue(buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, int64(v))
}

func (BytesValue) Type() ValueType { return TypeBytes }
func (v BytesValue) String() string { return hex.EncodeToString(v) }
func (v BytesValue) encodeValue(buf *bytes.Buffer) error {
	return writeLengthPrefixed(buf, v)
}

func (StringValue) Type() ValueType { return TypeString }
func (v StringValue) String() string { return string(v) }
func (v StringValue) encodeValue(buf *bytes.Buffer) error {
	return writeLengthPrefixed(buf, []byte(v))
}

func (TimestampValue) Type() ValueType { return TypeTimestamp }
func (v TimestampValue) String() string { return time.Time(v).UTC().Format(time.RFC3339Nano) }
func (v TimestampValue) encodeValue(buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, time.Time(v).UnixMilli())
}

func (UUIDValue) Type() ValueType { return TypeUUID }
func (v UUIDValue) String() string { return hex.EncodeToString(v[:]) }
func (v UUIDValue) encodeValue(buf *bytes.Buffer) error {
	_, err := buf.Write(v[:])
	return err
}

func writeLengthPrefixed(buf *bytes.Buffer, b []byte) error {
	if len(b) > MaxHeaderValueLen {
		return fmt.Errorf("header value too long: %d bytes (max %d)", len(b), MaxHeaderValueLen)
	}
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(b)))
	buf.Write(l[:])
	buf.Write(b)
	return nil
}

// Header is a single name/value pair
type Header struct {
	Name  string
	Value Value
}

// Headers keeps headers in wire order
type Headers []Header

// Get returns the value of the first header with the given name
func (hs Headers) Get(name string) (Value, bool) {
	for _, h := range hs {
		if h.Name == name {
			return h.Value, true
		}
	}
	return nil, false
}

// GetString returns the named header rendered as a string, or ""
func (hs Headers) GetString(name string) string {
	v, ok := hs.Get(name)
	if !ok {
		return ""
	}
	return v.String()
}

func (h Header) encode(buf *bytes.Buffer) error {
	if len(h.Name) == 0 || len(h.Name) > MaxHeaderNameLen {
		return fmt.Errorf("header name length %d out of range [1, %d]", len(h.Name), MaxHeaderNameLen)
	}
	if h.Value == nil {
		return fmt.Errorf("header %q has no value", h.Name)
	}
	buf.WriteByte(byte(len(h.Name)))
	buf.WriteString(h.Name)
	buf.WriteByte(byte(h.Value.Type()))
	return h.Value.encodeValue(buf)
}

// decodeHeaders parses (name length, name, type tag, value) tuples until b is
// exhausted.
func decodeHeaders(b []byte) (Headers, error) {
	var headers Headers
	for len(b) > 0 {
		nameLen := int(b[0])
		if nameLen == 0 {
			return nil, integrityErrorf("empty header name")
		}
		if len(b) < 1+nameLen+1 {
			return nil, integrityErrorf("header block truncated in name")
		}
		name := string(b[1 : 1+nameLen])
		tag := ValueType(b[1+nameLen])
		b = b[1+nameLen+1:]

		value, rest, err := decodeValue(tag, b)
		if err != nil {
			return nil, fmt.Errorf("header %q: %w", name, err)
		}
		headers = append(headers, Header{Name: name, Value: value})
		b = rest
	}
	return headers, nil
}

func decodeValue(tag ValueType, b []byte) (Value, []byte, error) {
	need := func(n int) error {
		if len(b) < n {
			return integrityErrorf("%s value truncated: need %d bytes, have %d", tag, n, len(b))
		}
		return nil
	}

	switch tag {
	case TypeBoolTrue:
		return BoolValue(true), b, nil
	case TypeBoolFalse:
		return BoolValue(false), b, nil
	case TypeByte:
		if err := need(1); err != nil {
			return nil, nil, err
		}
		return ByteValue(int8(b[0])), b[1:], nil
	case TypeInt16:
		if err := need(2); err != nil {
			return nil, nil, err
		}
		return Int16Value(int16(binary.BigEndian.Uint16(b))), b[2:], nil
	case TypeInt32:
		if err := need(4); err != nil {
			return nil, nil, err
		}
		return Int32Value(int32(binary.BigEndian.Uint32(b))), b[4:], nil
	case TypeInt64:
		if err := need(8); err != nil {
			return nil, nil, err
		}
		return Int64Value(int64(binary.BigEndian.Uint64(b))), b[8:], nil
	case TypeBytes, TypeString:
		if err := need(2); err != nil {
			return nil, nil, err
		}
		l := int(binary.BigEndian.Uint16(b))
		b = b[2:]
		if err := need(l); err != nil {
			return nil, nil, err
		}
		if tag == TypeString {
			return StringValue(b[:l]), b[l:], nil
		}
		v := make(BytesValue, l)
		copy(v, b[:l])
		return v, b[l:], nil
	case TypeTimestamp:
		if err := need(8); err != nil {
			return nil, nil, err
		}
		ms := int64(binary.BigEndian.Uint64(b))
		return TimestampValue(time.UnixMilli(ms).UTC()), b[8:], nil
	case TypeUUID:
		if err := need(16); err != nil {
			return nil, nil, err
		}
		var v UUIDValue
		copy(v[:], b[:16])
		return v, b[16:], nil
	default:
		return nil, nil, integrityErrorf("unknown header value type 0x%02x", uint8(tag))
	}
}
