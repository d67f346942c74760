package dispatch

import (
	"encoding/json"
	"time"
)

// Outbound event types sent to voice-call clients.
const (
	EventConnected         = "connected"
	EventCallStarted       = "call_started"
	EventCallEnded         = "call_ended"
	EventError             = "error"
	EventVoiceTranscript   = "voice_transcript"
	EventProcessing        = "processing"
	EventTranscriptConfirm = "user_transcript_confirmed"
	EventSentenceReady     = "ai_sentence_ready"
	EventResponseChunk     = "ai_response_chunk"
	EventResponseComplete  = "ai_response_complete"
	EventVoiceConfig       = "ai_voice_config"
	EventStatusUpdated     = "call_status_updated"
)

// Event is the envelope written to a connection as one text frame.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
}

// ErrorEvent builds an error event carrying message.
func ErrorEvent(message string) Event {
	return NewEvent(EventError, map[string]any{"message": message})
}

func (e Event) encode() ([]byte, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return json.Marshal(e)
}
