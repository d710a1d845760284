package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// Frame layout constants
const (
	// Prelude: total length (4) + headers length (4) + prelude CRC (4)
	PreludeLen    = 12
	MessageCRCLen = 4
	MinMessageLen = PreludeLen + MessageCRCLen

	MaxHeaderNameLen  = 255
	MaxHeaderValueLen = 1<<15 - 1
	MaxHeadersLen     = 128 * 1024
	MaxPayloadLen     = 16 * 1024 * 1024

	// MaxAudioChunk caps the PCM payload of a single AudioEvent
	MaxAudioChunk = 8000
)

// Well-known header names and values
const (
	HeaderMessageType   = ":message-type"
	HeaderEventType     = ":event-type"
	HeaderContentType   = ":content-type"
	HeaderExceptionType = ":exception-type"
	HeaderErrorCode     = ":error-code"
	HeaderErrorMessage  = ":error-message"

	MessageTypeEvent     = "event"
	MessageTypeException = "exception"
	MessageTypeError     = "error"

	EventTypeAudio      = "AudioEvent"
	EventTypeTranscript = "TranscriptEvent"

	ContentTypeOctetStream = "application/octet-stream"
)

// ErrIntegrity is wrapped by every framing failure: undersized frames, length
// mismatches, checksum mismatches and undecodable headers.
var ErrIntegrity = errors.New("event stream integrity error")

func integrityErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}

// Message is a single decoded event-stream frame
type Message struct {
	Headers Headers
	Payload []byte
}

// NewAudioEvent wraps a raw PCM chunk in an AudioEvent message
func NewAudioEvent(chunk []byte) *Message {
	return &Message{
		Headers: Headers{
			{Name: HeaderMessageType, Value: StringValue(MessageTypeEvent)},
			{Name: HeaderEventType, Value: StringValue(EventTypeAudio)},
			{Name: HeaderContentType, Value: StringValue(ContentTypeOctetStream)},
		},
		Payload: chunk,
	}
}

// MarshalAudioEvents frames pcm as one or more AudioEvents of at most
// MaxAudioChunk payload bytes each, preserving sample order.
func MarshalAudioEvents(pcm []byte) ([][]byte, error) {
	frames := make([][]byte, 0, len(pcm)/MaxAudioChunk+1)
	for start := 0; start < len(pcm); start += MaxAudioChunk {
		end := start + MaxAudioChunk
		if end > len(pcm) {
			end = len(pcm)
		}
		frame, err := NewAudioEvent(pcm[start:end]).MarshalBinary()
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// MarshalBinary encodes the message:
// [TotalLen:4][HeadersLen:4][PreludeCRC:4][Headers][Payload][MessageCRC:4]
func (m *Message) MarshalBinary() ([]byte, error) {
	if len(m.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(m.Payload), MaxPayloadLen)
	}

	var hbuf bytes.Buffer
	for _, h := range m.Headers {
		if err := h.encode(&hbuf); err != nil {
			return nil, fmt.Errorf("failed to encode header %q: %w", h.Name, err)
		}
	}
	if hbuf.Len() > MaxHeadersLen {
		return nil, fmt.Errorf("headers too large: %d bytes (max %d)", hbuf.Len(), MaxHeadersLen)
	}

	total := PreludeLen + hbuf.Len() + len(m.Payload) + MessageCRCLen
	out := make([]byte, total)
	binary.BigEndian.PutUint32(out[0:4], uint32(total))
	binary.BigEndian.PutUint32(out[4:8], uint32(hbuf.Len()))
	binary.BigEndian.PutUint32(out[8:12], crc32.ChecksumIEEE(out[0:8]))

	n := copy(out[PreludeLen:], hbuf.Bytes())
	copy(out[PreludeLen+n:], m.Payload)
	binary.BigEndian.PutUint32(out[total-MessageCRCLen:], crc32.ChecksumIEEE(out[:total-MessageCRCLen]))

	return out, nil
}

// Unmarshal decodes and validates a complete frame. The returned payload does
// not alias data.
func Unmarshal(data []byte) (*Message, error) {
	if len(data) < PreludeLen {
		return nil, integrityErrorf("frame too short: expected at least %d bytes, got %d", PreludeLen, len(data))
	}

	totalLen := binary.BigEndian.Uint32(data[0:4])
	headersLen := binary.BigEndian.Uint32(data[4:8])
	preludeCRC := binary.BigEndian.Uint32(data[8:12])

	if got := crc32.ChecksumIEEE(data[0:8]); got != preludeCRC {
		return nil, integrityErrorf("prelude checksum mismatch: expected 0x%08x, computed 0x%08x", preludeCRC, got)
	}

	if int(totalLen) != len(data) {
		return nil, integrityErrorf("frame length mismatch: prelude says %d bytes, got %d", totalLen, len(data))
	}
	if totalLen < MinMessageLen {
		return nil, integrityErrorf("frame too short: expected at least %d bytes, got %d", MinMessageLen, totalLen)
	}
	if headersLen > totalLen-MinMessageLen {
		return nil, integrityErrorf("headers length %d exceeds frame body of %d bytes", headersLen, totalLen-MinMessageLen)
	}

	crcOffset := len(data) - MessageCRCLen
	messageCRC := binary.BigEndian.Uint32(data[crcOffset:])
	if got := crc32.ChecksumIEEE(data[:crcOffset]); got != messageCRC {
		return nil, integrityErrorf("message checksum mismatch: expected 0x%08x, computed 0x%08x", messageCRC, got)
	}

	headersEnd := PreludeLen + int(headersLen)
	headers, err := decodeHeaders(data[PreludeLen:headersEnd])
	if err != nil {
		return nil, err
	}

	msg := &Message{Headers: headers}
	if payloadLen := crcOffset - headersEnd; payloadLen > 0 {
		msg.Payload = make([]byte, payloadLen)
		copy(msg.Payload, data[headersEnd:crcOffset])
	}

	return msg, nil
}

// MessageType returns the :message-type header, or "" when absent
func (m *Message) MessageType() string {
	return m.Headers.GetString(HeaderMessageType)
}

// EventType returns the :event-type header, or "" when absent
func (m *Message) EventType() string {
	return m.Headers.GetString(HeaderEventType)
}

// IsException reports whether the backend sent an exception or error frame
func (m *Message) IsException() bool {
	switch m.MessageType() {
	case MessageTypeException, MessageTypeError:
		return true
	}
	return false
}

// String returns a human-readable representation of the message
func (m *Message) String() string {
	names := make([]string, 0, len(m.Headers))
	for _, h := range m.Headers {
		names = append(names, fmt.Sprintf("%s=%s", h.Name, h.Value))
	}
	return fmt.Sprintf("Message{Headers:[%s], PayloadLen:%d}", strings.Join(names, " "), len(m.Payload))
}
