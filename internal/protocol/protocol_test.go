package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

func TestAudioEventRoundTrip(t *testing.T) {
	chunk := []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x10, 0x20}

	frame, err := NewAudioEvent(chunk).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	msg, err := Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !bytes.Equal(msg.Payload, chunk) {
		t.Errorf("payload mismatch: expected %v, got %v", chunk, msg.Payload)
	}

	expected := Headers{
		{Name: HeaderMessageType, Value: StringValue(MessageTypeEvent)},
		{Name: HeaderEventType, Value: StringValue(EventTypeAudio)},
		{Name: HeaderContentType, Value: StringValue(ContentTypeOctetStream)},
	}
	if !reflect.DeepEqual(msg.Headers, expected) {
		t.Errorf("headers mismatch:\nexpected %v\ngot      %v", expected, msg.Headers)
	}
}

func TestFrameLayout(t *testing.T) {
	chunk := bytes.Repeat([]byte{0xab}, 32)
	frame, err := NewAudioEvent(chunk).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	total := binary.BigEndian.Uint32(frame[0:4])
	headersLen := binary.BigEndian.Uint32(frame[4:8])
	preludeCRC := binary.BigEndian.Uint32(frame[8:12])

	if int(total) != len(frame) {
		t.Errorf("total length: expected %d, got %d", len(frame), total)
	}
	if preludeCRC != crc32.ChecksumIEEE(frame[0:8]) {
		t.Error("prelude CRC does not cover the first 8 bytes")
	}
	if int(headersLen)+PreludeLen+len(chunk)+MessageCRCLen != len(frame) {
		t.Errorf("headers length %d inconsistent with frame size %d", headersLen, len(frame))
	}

	// First header: name length, name, string tag, 2-byte length, value
	h := frame[PreludeLen:]
	if int(h[0]) != len(HeaderMessageType) {
		t.Fatalf("first header name length: expected %d, got %d", len(HeaderMessageType), h[0])
	}
	if string(h[1:1+h[0]]) != HeaderMessageType {
		t.Errorf("first header name: got %q", string(h[1:1+h[0]]))
	}
	if ValueType(h[1+h[0]]) != TypeString {
		t.Errorf("first header type: expected string, got %s", ValueType(h[1+h[0]]))
	}

	msgCRC := binary.BigEndian.Uint32(frame[len(frame)-4:])
	if msgCRC != crc32.ChecksumIEEE(frame[:len(frame)-4]) {
		t.Error("message CRC does not cover all preceding bytes")
	}
}

func TestUnmarshalPayloadCorruption(t *testing.T) {
	chunk := []byte("0123456789abcdef")
	frame, err := NewAudioEvent(chunk).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	headersLen := int(binary.BigEndian.Uint32(frame[4:8]))
	payloadStart := PreludeLen + headersLen

	for i := payloadStart; i < payloadStart+len(chunk); i++ {
		corrupted := append([]byte(nil), frame...)
		corrupted[i] ^= 0x01

		msg, err := Unmarshal(corrupted)
		if err == nil {
			t.Fatalf("byte %d flipped: expected integrity error, got payload %q", i, msg.Payload)
		}
		if !errors.Is(err, ErrIntegrity) {
			t.Errorf("byte %d flipped: expected ErrIntegrity, got %v", i, err)
		}
		if msg != nil {
			t.Errorf("byte %d flipped: message returned alongside error", i)
		}
	}
}

func TestUnmarshalAnyByteCorruption(t *testing.T) {
	frame, err := NewAudioEvent([]byte{1, 2, 3, 4}).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	for i := range frame {
		corrupted := append([]byte(nil), frame...)
		corrupted[i] ^= 0x80
		if _, err := Unmarshal(corrupted); !errors.Is(err, ErrIntegrity) {
			t.Errorf("byte %d flipped: expected ErrIntegrity, got %v", i, err)
		}
	}
}

func TestUnmarshalErrors(t *testing.T) {
	valid, err := NewAudioEvent([]byte{1, 2}).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{
			name:     "empty frame",
			data:     []byte{},
			errorMsg: "frame too short",
		},
		{
			name:     "shorter than prelude",
			data:     valid[:PreludeLen-1],
			errorMsg: "frame too short",
		},
		{
			name:     "truncated body",
			data:     valid[:len(valid)-1],
			errorMsg: "frame length mismatch",
		},
		{
			name:     "prelude checksum mismatch",
			data:     withByte(valid, 9, valid[9]^0xff),
			errorMsg: "prelude checksum mismatch",
		},
		{
			name:     "message checksum mismatch",
			data:     withByte(valid, len(valid)-1, valid[len(valid)-1]^0xff),
			errorMsg: "message checksum mismatch",
		},
		{
			name:     "unknown header value type",
			data:     rawFrame([]byte{4, 't', 'e', 's', 't', 0x2a}, nil),
			errorMsg: "unknown header value type 0x2a",
		},
		{
			name:     "truncated string header",
			data:     rawFrame([]byte{1, 'a', byte(TypeString), 0x00, 0x05, 'x'}, nil),
			errorMsg: "string value truncated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Unmarshal(tt.data)
			if err == nil {
				t.Fatalf("Expected error but got message %v", msg)
			}
			if !errors.Is(err, ErrIntegrity) {
				t.Errorf("Expected ErrIntegrity, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestHeaderValueTypes(t *testing.T) {
	ts := time.UnixMilli(1700000000123).UTC()
	headers := Headers{
		{Name: "t", Value: BoolValue(true)},
		{Name: "f", Value: BoolValue(false)},
		{Name: "b", Value: ByteValue(-3)},
		{Name: "i16", Value: Int16Value(-1234)},
		{Name: "i32", Value: Int32Value(123456789)},
		{Name: "i64", Value: Int64Value(-9876543210)},
		{Name: "bytes", Value: BytesValue{0xde, 0xad}},
		{Name: "str", Value: StringValue("hello")},
		{Name: "ts", Value: TimestampValue(ts)},
		{Name: "uuid", Value: UUIDValue{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}},
	}

	frame, err := (&Message{Headers: headers, Payload: []byte("x")}).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	msg, err := Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(msg.Headers, headers) {
		t.Errorf("headers mismatch:\nexpected %v\ngot      %v", headers, msg.Headers)
	}

	// Booleans are carried by the tag alone
	boolFrame, _ := (&Message{Headers: Headers{{Name: "t", Value: BoolValue(true)}}}).MarshalBinary()
	if hl := binary.BigEndian.Uint32(boolFrame[4:8]); hl != 3 {
		t.Errorf("bool header length: expected 3 bytes, got %d", hl)
	}
}

func TestMarshalAudioEventsSplitsLargeBuffers(t *testing.T) {
	pcm := make([]byte, 2*MaxAudioChunk+100)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	frames, err := MarshalAudioEvents(pcm)
	if err != nil {
		t.Fatalf("MarshalAudioEvents failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	var reassembled []byte
	for i, f := range frames {
		msg, err := Unmarshal(f)
		if err != nil {
			t.Fatalf("frame %d: Unmarshal failed: %v", i, err)
		}
		if len(msg.Payload) > MaxAudioChunk {
			t.Errorf("frame %d: payload %d exceeds cap %d", i, len(msg.Payload), MaxAudioChunk)
		}
		reassembled = append(reassembled, msg.Payload...)
	}

	if !bytes.Equal(reassembled, pcm) {
		t.Error("reassembled payload does not match original sample order")
	}
}

func TestMarshalRejectsBadHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers Headers
	}{
		{"empty name", Headers{{Name: "", Value: StringValue("x")}}},
		{"long name", Headers{{Name: strings.Repeat("n", 256), Value: StringValue("x")}}},
		{"nil value", Headers{{Name: "x"}}},
		{"long string", Headers{{Name: "x", Value: StringValue(strings.Repeat("v", MaxHeaderValueLen+1))}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (&Message{Headers: tt.headers}).MarshalBinary(); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestCompatibleWithAWSEventStream(t *testing.T) {
	t.Run("aws decodes our audio event", func(t *testing.T) {
		chunk := []byte{9, 8, 7, 6, 5, 4}
		frame, err := NewAudioEvent(chunk).MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary failed: %v", err)
		}

		msg, err := eventstream.NewDecoder().Decode(bytes.NewReader(frame), nil)
		if err != nil {
			t.Fatalf("aws decoder rejected frame: %v", err)
		}
		if !bytes.Equal(msg.Payload, chunk) {
			t.Errorf("payload mismatch: expected %v, got %v", chunk, msg.Payload)
		}
		if v := msg.Headers.Get(HeaderEventType); v == nil || v.String() != EventTypeAudio {
			t.Errorf("expected :event-type AudioEvent, got %v", v)
		}
	})

	t.Run("we decode an aws transcript event", func(t *testing.T) {
		payload := []byte(`{"Transcript":{"Results":[]}}`)
		var buf bytes.Buffer
		err := eventstream.NewEncoder().Encode(&buf, eventstream.Message{
			Headers: eventstream.Headers{
				{Name: HeaderMessageType, Value: eventstream.StringValue(MessageTypeEvent)},
				{Name: HeaderEventType, Value: eventstream.StringValue(EventTypeTranscript)},
				{Name: HeaderContentType, Value: eventstream.StringValue("application/json")},
			},
			Payload: payload,
		})
		if err != nil {
			t.Fatalf("aws encoder failed: %v", err)
		}

		msg, err := Unmarshal(buf.Bytes())
		if err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if msg.EventType() != EventTypeTranscript {
			t.Errorf("expected event type %s, got %s", EventTypeTranscript, msg.EventType())
		}
		if !bytes.Equal(msg.Payload, payload) {
			t.Errorf("payload mismatch: got %s", msg.Payload)
		}
	})
}

func TestIsException(t *testing.T) {
	tests := []struct {
		messageType string
		expected    bool
	}{
		{MessageTypeEvent, false},
		{MessageTypeException, true},
		{MessageTypeError, true},
		{"", false},
	}

	for _, tt := range tests {
		msg := &Message{}
		if tt.messageType != "" {
			msg.Headers = Headers{{Name: HeaderMessageType, Value: StringValue(tt.messageType)}}
		}
		if got := msg.IsException(); got != tt.expected {
			t.Errorf("IsException(%q) = %v, expected %v", tt.messageType, got, tt.expected)
		}
	}
}

func TestValueTypeString(t *testing.T) {
	if TypeString.String() != "string" {
		t.Errorf("expected 'string', got %q", TypeString.String())
	}
	if !strings.Contains(ValueType(0x2a).String(), "Unknown(0x2a)") {
		t.Errorf("unexpected unknown tag rendering: %q", ValueType(0x2a).String())
	}
}

// rawFrame builds a frame with valid length prelude and checksums around
// arbitrary header bytes
func rawFrame(headers, payload []byte) []byte {
	total := PreludeLen + len(headers) + len(payload) + MessageCRCLen
	out := make([]byte, total)
	binary.BigEndian.PutUint32(out[0:4], uint32(total))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(headers)))
	binary.BigEndian.PutUint32(out[8:12], crc32.ChecksumIEEE(out[0:8]))
	copy(out[PreludeLen:], headers)
	copy(out[PreludeLen+len(headers):], payload)
	binary.BigEndian.PutUint32(out[total-4:], crc32.ChecksumIEEE(out[:total-4]))
	return out
}

func withByte(b []byte, i int, v byte) []byte {
	out := append([]byte(nil), b...)
	out[i] = v
	return out
}
