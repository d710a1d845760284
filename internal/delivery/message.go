package delivery

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Message is one announcement as delivered downstream
type Message struct {
	CategoryID    int       `json:"category_id"`
	Category      string    `json:"category"`
	Intent        string    `json:"intent"`
	Transcription string    `json:"transcription"`
	MessageText   string    `json:"message_text"`
	Timestamp     time.Time `json:"timestamp"`
	EventID       string    `json:"event_id,omitempty"`
	MessageID     string    `json:"message_id"`
}

// Marshal encodes the message as the JSON payload sent to transports
func (m *Message) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return b, nil
}

// UnmarshalMessage decodes a payload produced by Marshal
func UnmarshalMessage(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &m, nil
}
