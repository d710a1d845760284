package transcribe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/protocol"
)

var (
	// ErrSetup wraps every failure to establish a stream: presigning,
	// credential resolution and the websocket handshake.
	ErrSetup = errors.New("stream setup failed")

	// ErrClosed is returned when the backend closes the connection while
	// audio is still being streamed.
	ErrClosed = errors.New("stream closed by backend")

	// ErrDecode is returned when a well-framed event carries a payload that
	// does not decode. Like an integrity failure it ends the connection.
	ErrDecode = errors.New("undecodable event payload")
)

// ExceptionError is an exception frame sent by the recognition backend. It
// is fatal to the connection.
type ExceptionError struct {
	Type    string
	Message string
}

func (e *ExceptionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition backend exception: %s", e.Type)
	}
	return fmt.Sprintf("recognition backend exception: %s: %s", e.Type, e.Message)
}

// Transcript is one finalized recognition result
type Transcript struct {
	Text       string    `json:"text"`
	ResultID   string    `json:"result_id,omitempty"`
	StartTime  float64   `json:"start_time"`
	EndTime    float64   `json:"end_time"`
	CapturedAt time.Time `json:"captured_at"`
}

// Handler receives transcripts on the stream's receive goroutine
type Handler func(Transcript)

type transcriptEvent struct {
	Transcript struct {
		Results []struct {
			ResultID     string  `json:"ResultId"`
			IsPartial    bool    `json:"IsPartial"`
			StartTime    float64 `json:"StartTime"`
			EndTime      float64 `json:"EndTime"`
			Alternatives []struct {
				Transcript string `json:"Transcript"`
			} `json:"Alternatives"`
		} `json:"Results"`
	} `json:"Transcript"`
}

// ParseTranscriptEvent extracts the final results of a TranscriptEvent
// payload. Partial results and results without alternatives are skipped; the
// first alternative of each remaining result is kept.
func ParseTranscriptEvent(payload []byte, capturedAt time.Time) ([]Transcript, error) {
	var ev transcriptEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: failed to decode transcript event: %w", ErrDecode, err)
	}

	var out []Transcript
	for _, r := range ev.Transcript.Results {
		if r.IsPartial || len(r.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(r.Alternatives[0].Transcript)
		if text == "" {
			continue
		}
		out = append(out, Transcript{
			Text:       text,
			ResultID:   r.ResultID,
			StartTime:  r.StartTime,
			EndTime:    r.EndTime,
			CapturedAt: capturedAt,
		})
	}
	return out, nil
}

// NewExceptionError builds the error for an exception or error frame
func NewExceptionError(msg *protocol.Message) *ExceptionError {
	e := &ExceptionError{
		Type:    msg.Headers.GetString(protocol.HeaderExceptionType),
		Message: msg.Headers.GetString(protocol.HeaderErrorMessage),
	}
	if e.Type == "" {
		e.Type = msg.Headers.GetString(protocol.HeaderErrorCode)
	}
	if e.Type == "" {
		e.Type = "UnknownException"
	}

	if e.Message == "" && len(msg.Payload) > 0 {
		var body struct {
			Message string `json:"Message"`
		}
		if err := json.Unmarshal(msg.Payload, &body); err == nil && body.Message != "" {
			e.Message = body.Message
		} else {
			e.Message = strings.TrimSpace(string(msg.Payload))
		}
	}
	return e
}
